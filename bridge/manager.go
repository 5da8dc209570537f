package bridge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aethercore-labs/aethercore/crypto"
	"github.com/asaskevich/govalidator"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config controls the manager. Routes hold the per-direction limits
// returned by GetBridgeConfig.
type Config struct {
	Routes Routes
	// ConfirmationTimeout bounds VerifySourceTransaction. On expiry the
	// transaction stays PENDING.
	ConfirmationTimeout time.Duration
	PollInterval        time.Duration
	// RetryAttempts is the number of retries after the first failed store
	// or ledger call.
	RetryAttempts        int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	// ScreeningLevel is the security level create requests are screened at.
	ScreeningLevel crypto.SecurityLevel
}

func DefaultConfig() Config {
	return Config{
		Routes:               DefaultRoutes(),
		ConfirmationTimeout:  2 * time.Minute,
		PollInterval:         5 * time.Second,
		RetryAttempts:        3,
		RetryInitialInterval: 200 * time.Millisecond,
		RetryMaxInterval:     5 * time.Second,
		ScreeningLevel:       2,
	}
}

func (c Config) Validate() error {
	if err := c.Routes.Validate(); err != nil {
		return err
	}
	switch {
	case c.ConfirmationTimeout <= 0:
		return errors.New("confirmation timeout must be positive")
	case c.PollInterval <= 0:
		return errors.New("poll interval must be positive")
	case c.RetryAttempts < 0:
		return errors.New("retry attempts must not be negative")
	case c.RetryInitialInterval <= 0:
		return errors.New("retry initial interval must be positive")
	case !c.ScreeningLevel.Valid():
		return fmt.Errorf("screening level %d is out of range", c.ScreeningLevel)
	}
	return nil
}

// Manager owns every status change of bridge transactions. Changes to one
// transaction are serialized by a per-id lock and guarded by the store's
// version check; different transactions proceed in parallel.
type Manager struct {
	cfg       Config
	store     Store
	ledgers   map[NetworkType]Ledger
	operator  *crypto.PrivateKey
	screener  Screener
	publisher Publisher
	metrics   Metrics
	logger    *zap.Logger
	locks     *keyedMutex
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	newID     func() string
}

type Option func(*Manager)

func WithScreener(s Screener) Option {
	return func(m *Manager) { m.screener = s }
}

func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

func WithMetrics(mt Metrics) Option {
	return func(m *Manager) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Manager) { m.sleep = sleep }
}

func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) { m.newID = gen }
}

func NewManager(
	cfg Config,
	store Store,
	ledgers map[NetworkType]Ledger,
	operator *crypto.PrivateKey,
	logger *zap.Logger,
	opts ...Option,
) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bridge config: %w", err)
	}
	if store == nil {
		return nil, errors.New("bridge store is required")
	}
	if operator == nil {
		return nil, errors.New("bridge operator key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		cfg:      cfg,
		store:    store,
		ledgers:  ledgers,
		operator: operator,
		metrics:  nopMetrics{},
		logger:   logger.Named("bridge"),
		locks:    newKeyedMutex(),
		now:      time.Now,
		sleep:    sleepWithContext,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (m *Manager) OperatorPublicKey() *crypto.PublicKey {
	return m.operator.PublicKey()
}

type CreateRequest struct {
	UserID             string                 `json:"user_id"`
	SourceAddress      string                 `json:"source_address"`
	DestinationAddress string                 `json:"destination_address"`
	Amount             string                 `json:"amount"`
	Direction          Direction              `json:"direction"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
}

// CreateBridgeTransaction validates req against the route limits, screens
// it and stores a new INITIATED transaction.
func (m *Manager) CreateBridgeTransaction(ctx context.Context, req CreateRequest) (*Transaction, error) {
	tx, err := m.newTransaction(req)
	if err != nil {
		m.fail("create", err)
		return nil, err
	}
	if err := attest(tx, m.operator); err != nil {
		return nil, err
	}
	if err := m.retry(ctx, "insert bridge transaction", func() error {
		return m.store.Insert(ctx, tx)
	}); err != nil {
		m.fail("create", err)
		return nil, err
	}

	m.logger.Info("bridge transaction created",
		zap.String("tx_id", tx.ID),
		zap.String("user_id", tx.UserID),
		zap.String("direction", string(tx.Direction)),
		zap.String("amount", tx.Amount),
		zap.String("fee", tx.Fee))
	m.metrics.ObserveTransition("", tx.Status)
	m.emit(ctx, "", tx)
	return tx.Clone(), nil
}

func (m *Manager) newTransaction(req CreateRequest) (*Transaction, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, &ValidationError{Field: "user_id", Reason: "is required"}
	}
	source, destination, ok := req.Direction.Networks()
	if !ok {
		return nil, &ValidationError{Field: "direction", Reason: fmt.Sprintf("unknown direction %q", req.Direction)}
	}
	route, err := m.cfg.Routes.Lookup(req.Direction)
	if err != nil {
		return nil, err
	}
	srcAddr := strings.TrimSpace(req.SourceAddress)
	dstAddr := strings.TrimSpace(req.DestinationAddress)
	if srcAddr == "" {
		return nil, &ValidationError{Field: "source_address", Reason: "is required"}
	}
	if dstAddr == "" {
		return nil, &ValidationError{Field: "destination_address", Reason: "is required"}
	}

	amountStr := strings.TrimSpace(req.Amount)
	amount, err := parseAmount(amountStr)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	l, err := route.limits()
	if err != nil {
		return nil, err
	}
	if amount.LessThan(l.min) || amount.GreaterThan(l.max) {
		return nil, &AmountOutOfRangeError{Amount: amountStr, Min: route.MinTransactionAmount, Max: route.MaxTransactionAmount}
	}

	validations := map[string]interface{}{}
	if m.screener != nil {
		request := map[string]interface{}{
			"from":   srcAddr,
			"to":     dstAddr,
			"amount": amountStr,
		}
		for k, v := range req.Metadata {
			if s, ok := v.(string); ok {
				request["metadata."+k] = s
			}
		}
		res := m.screener.ValidateRequest(request, m.cfg.ScreeningLevel)
		validations[ValidationRequestScreen] = map[string]interface{}{
			"is_valid":       res.IsValid,
			"security_score": res.SecurityScore,
			"threat_level":   string(res.ThreatLevel),
			"anomalies":      res.Anomalies,
		}
		if !res.IsValid {
			return nil, &ValidationError{Field: "request", Reason: "rejected by screening: " + strings.Join(res.Anomalies, "; ")}
		}
	}

	now := m.now().UTC()
	return &Transaction{
		ID:                 m.newID(),
		UserID:             userID,
		SourceNetwork:      source,
		DestinationNetwork: destination,
		Direction:          req.Direction,
		SourceAddress:      srcAddr,
		DestinationAddress: dstAddr,
		Amount:             amountStr,
		Fee:                fee(amount, l).String(),
		Status:             StatusInitiated,
		Validations:        validations,
		Metadata:           cloneMap(req.Metadata),
		CreatedAt:          now,
		UpdatedAt:          now,
		Version:            1,
	}, nil
}

func (m *Manager) GetBridgeTransaction(ctx context.Context, id string) (*Transaction, error) {
	return m.load(ctx, id)
}

func (m *Manager) GetUserBridgeTransactions(ctx context.Context, userID string) ([]*Transaction, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &ValidationError{Field: "user_id", Reason: "is required"}
	}
	var txs []*Transaction
	err := m.retry(ctx, "list bridge transactions", func() (err error) {
		txs, err = m.store.ListByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	owned := txs[:0]
	for _, tx := range txs {
		if tx.UserID == userID {
			owned = append(owned, tx)
		}
	}
	txs = owned
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].CreatedAt.After(txs[j].CreatedAt) })
	return txs, nil
}

func (m *Manager) GetBridgeConfig(source, destination NetworkType) (RouteConfig, error) {
	return m.cfg.Routes.Between(source, destination)
}

func (m *Manager) CalculateBridgeFee(amount string, d Direction) (string, error) {
	return m.cfg.Routes.CalculateBridgeFee(amount, d)
}

// VerifyAttestation checks that tx carries a valid signature by this
// manager's operator key.
func (m *Manager) VerifyAttestation(tx *Transaction) error {
	return VerifyAttestation(tx, m.operator.PublicKey())
}

// AttachSourceTransaction records the source ledger transaction and moves
// INITIATED to PENDING. Attaching the same hash again is a no-op.
func (m *Manager) AttachSourceTransaction(ctx context.Context, id, sourceTxHash string) (*Transaction, error) {
	sourceTxHash = strings.TrimSpace(sourceTxHash)
	if sourceTxHash == "" || !govalidator.IsAlphanumeric(strings.TrimPrefix(sourceTxHash, "0x")) {
		return nil, &ValidationError{Field: "source_tx_hash", Reason: fmt.Sprintf("%q is not a transaction hash", sourceTxHash)}
	}
	unlock := m.locks.Lock(id)
	defer unlock()

	cur, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status == StatusPending && cur.SourceTxHash == sourceTxHash {
		return cur, nil
	}
	if cur.Status != StatusInitiated {
		err := &InvalidStateTransitionError{Current: cur.Status, Attempted: StatusPending, Reason: "source transaction can only be attached once"}
		m.fail("attach_source", err)
		return nil, err
	}
	next, err := Transition(cur, StatusPending, m.now().UTC())
	if err != nil {
		return nil, err
	}
	next.SourceTxHash = sourceTxHash
	return m.commit(ctx, cur, next)
}

// UpdateBridgeTransactionStatus applies a single move of the transition
// table and merges metadata into the record. COMPLETED and REVERTED settle
// value on a ledger and are only reachable through CompleteBridgeTransaction
// and RevertBridgeTransaction.
func (m *Manager) UpdateBridgeTransactionStatus(ctx context.Context, id string, status Status, metadata map[string]interface{}) (*Transaction, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	cur, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch status {
	case StatusCompleted:
		err := &InvalidStateTransitionError{Current: cur.Status, Attempted: status, Reason: "completion requires a destination mint"}
		m.fail("update_status", err)
		return nil, err
	case StatusReverted:
		err := &InvalidStateTransitionError{Current: cur.Status, Attempted: status, Reason: "reversal requires a source refund"}
		m.fail("update_status", err)
		return nil, err
	}
	next, err := Transition(cur, status, m.now().UTC())
	if err != nil {
		m.fail("update_status", err)
		return nil, err
	}
	for k, v := range metadata {
		next.Metadata[k] = v
	}
	return m.commit(ctx, cur, next)
}

// VerifySourceTransaction polls the source ledger until the transaction has
// the route's required confirmations, the ledger reports it failed, or the
// confirmation timeout expires.
//
// A confirmed transaction moves to CONFIRMED_SOURCE and returns true. A
// failed one moves to FAILED and returns false with no error. On timeout the
// transaction stays PENDING and ErrConfirmationTimeout is returned.
func (m *Manager) VerifySourceTransaction(ctx context.Context, id string) (bool, error) {
	cur, err := m.load(ctx, id)
	if err != nil {
		return false, err
	}
	switch cur.Status {
	case StatusConfirmedSource, StatusMinting, StatusCompleted:
		return true, nil
	case StatusPending:
		if cur.SourceTxHash == "" {
			return false, &InvalidStateTransitionError{Current: cur.Status, Attempted: StatusConfirmedSource, Reason: "source transaction hash is not set"}
		}
	default:
		err := &InvalidStateTransitionError{Current: cur.Status, Attempted: StatusConfirmedSource}
		m.fail("verify_source", err)
		return false, err
	}

	route, ok := m.cfg.Routes[cur.Direction]
	if !ok {
		return false, &ValidationError{Field: "direction", Reason: fmt.Sprintf("direction %q is not supported", cur.Direction)}
	}
	ledger, err := m.ledger(cur.SourceNetwork)
	if err != nil {
		return false, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, m.cfg.ConfirmationTimeout)
	defer cancel()
	log := m.logger.With(zap.String("tx_id", id), zap.String("source_tx_hash", cur.SourceTxHash))

	timedOut := func() (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		log.Warn("source confirmation timed out", zap.Duration("timeout", m.cfg.ConfirmationTimeout))
		m.metrics.ObserveFailure("verify_source", KindInfrastructure)
		return false, fmt.Errorf("%w: transaction %s after %s", ErrConfirmationTimeout, id, m.cfg.ConfirmationTimeout)
	}

	for {
		var conf Confirmation
		err := m.retry(waitCtx, "query source confirmations", func() (err error) {
			conf, err = ledger.Confirmations(waitCtx, cur.SourceTxHash)
			return err
		})
		switch {
		case err == nil:
		case waitCtx.Err() != nil:
			return timedOut()
		default:
			m.fail("verify_source", err)
			return false, err
		}

		if conf.Failed {
			log.Warn("source ledger reports transaction failed")
			if err := m.settleSource(ctx, id, StatusFailed, conf, route.RequiredConfirmations); err != nil {
				return false, err
			}
			return false, nil
		}
		if conf.Found && conf.Confirmations >= route.RequiredConfirmations {
			if err := m.settleSource(ctx, id, StatusConfirmedSource, conf, route.RequiredConfirmations); err != nil {
				return false, err
			}
			return true, nil
		}

		log.Debug("waiting for source confirmations",
			zap.Bool("found", conf.Found),
			zap.Int("confirmations", conf.Confirmations),
			zap.Int("required", route.RequiredConfirmations))
		if err := m.sleep(waitCtx, m.cfg.PollInterval); err != nil {
			return timedOut()
		}
	}
}

// settleSource records the confirmation outcome. The record is reloaded
// under the lock because it was read before polling.
func (m *Manager) settleSource(ctx context.Context, id string, status Status, conf Confirmation, required int) error {
	unlock := m.locks.Lock(id)
	defer unlock()

	cur, err := m.load(ctx, id)
	if err != nil {
		return err
	}
	if cur.Status == status {
		return nil
	}
	now := m.now().UTC()
	next, err := Transition(cur, status, now)
	if err != nil {
		m.fail("verify_source", err)
		return err
	}
	next.Validations[ValidationSourceConfirmation] = map[string]interface{}{
		"found":         conf.Found,
		"failed":        conf.Failed,
		"confirmations": conf.Confirmations,
		"required":      required,
		"checked_at":    now.Format(time.RFC3339Nano),
	}
	if status == StatusFailed {
		next.Metadata["failure_reason"] = "source ledger rejected the transaction"
	}
	_, err = m.commit(ctx, cur, next)
	return err
}

// StartMinting moves CONFIRMED_SOURCE to MINTING.
func (m *Manager) StartMinting(ctx context.Context, id string) (*Transaction, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	cur, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := Transition(cur, StatusMinting, m.now().UTC())
	if err != nil {
		m.fail("start_minting", err)
		return nil, err
	}
	return m.commit(ctx, cur, next)
}

// CompleteBridgeTransaction mints the net amount on the destination ledger
// and marks the transaction COMPLETED. MINTING is persisted before the
// ledger is called, so a failed mint leaves the transaction in MINTING.
func (m *Manager) CompleteBridgeTransaction(ctx context.Context, id string) (*Transaction, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	cur, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch cur.Status {
	case StatusConfirmedSource:
		next, err := Transition(cur, StatusMinting, m.now().UTC())
		if err != nil {
			return nil, err
		}
		if cur, err = m.commit(ctx, cur, next); err != nil {
			return nil, err
		}
	case StatusMinting:
	default:
		err := &InvalidStateTransitionError{Current: cur.Status, Attempted: StatusCompleted}
		m.fail("complete", err)
		return nil, err
	}

	ledger, err := m.ledger(cur.DestinationNetwork)
	if err != nil {
		return nil, err
	}
	net, err := netAmount(cur)
	if err != nil {
		return nil, err
	}
	var destTxHash string
	err = m.retry(ctx, "mint on destination", func() (err error) {
		destTxHash, err = ledger.Mint(ctx, TransferRequest{
			BridgeID:  cur.ID,
			Network:   cur.DestinationNetwork,
			Address:   cur.DestinationAddress,
			Amount:    net,
			Reference: cur.SourceTxHash,
		})
		return err
	})
	if err != nil {
		m.logger.Error("mint failed, transaction left in minting",
			zap.String("tx_id", id), zap.Error(err))
		m.fail("complete", err)
		return nil, err
	}

	next, err := Transition(cur, StatusCompleted, m.now().UTC())
	if err != nil {
		return nil, err
	}
	next.DestinationTxHash = destTxHash
	return m.commit(ctx, cur, next)
}

func netAmount(tx *Transaction) (string, error) {
	amount, err := parseAmount(tx.Amount)
	if err != nil {
		return "", err
	}
	f, err := parseAmount(tx.Fee)
	if err != nil {
		return "", err
	}
	return amount.Sub(f).String(), nil
}

// RevertBridgeTransaction moves the transaction through REVERTING to
// REVERTED, refunding the source address when value was already locked.
//
// Before a refund the destination ledger is asked whether the bridge id was
// already minted. If it was, nothing is refunded and a MINTING or
// CONFIRMED_SOURCE transaction is settled as COMPLETED instead. A refund
// that fails transiently leaves the transaction in REVERTING and a later call
// resumes from there. A refund the source ledger rejects moves it to FAILED
// for good.
func (m *Manager) RevertBridgeTransaction(ctx context.Context, id, reason string) (*Transaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Reason: "is required"}
	}
	unlock := m.locks.Lock(id)
	defer unlock()

	cur, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.SourceTxHash != "" && !cur.Status.IsTerminal() {
		if err := m.reconcileMint(ctx, cur); err != nil {
			m.fail("revert", err)
			return nil, err
		}
	}
	if cur.Status != StatusReverting {
		next, err := Transition(cur, StatusReverting, m.now().UTC())
		if err != nil {
			m.fail("revert", err)
			return nil, err
		}
		next.Metadata["revert_reason"] = reason
		next.Metadata["reverted_from"] = string(cur.Status)
		if cur, err = m.commit(ctx, cur, next); err != nil {
			return nil, err
		}
	}

	var refundTxHash string
	if cur.SourceTxHash != "" {
		ledger, err := m.ledger(cur.SourceNetwork)
		if err != nil {
			return nil, err
		}
		err = m.retry(ctx, "refund on source", func() (err error) {
			refundTxHash, err = ledger.Refund(ctx, TransferRequest{
				BridgeID:  cur.ID,
				Network:   cur.SourceNetwork,
				Address:   cur.SourceAddress,
				Amount:    cur.Amount,
				Reference: cur.SourceTxHash,
			})
			return err
		})
		if err != nil {
			m.fail("revert", err)
			if KindOf(err) != KindValidation {
				m.logger.Error("refund failed, transaction left in reverting",
					zap.String("tx_id", id), zap.Error(err))
				return nil, err
			}
			m.logger.Error("refund rejected by source ledger, transaction failed",
				zap.String("tx_id", id), zap.Error(err))
			next, terr := Transition(cur, StatusFailed, m.now().UTC())
			if terr != nil {
				return nil, terr
			}
			next.Metadata[MetadataRefundRejected] = true
			next.Metadata["failure_reason"] = err.Error()
			if _, cerr := m.commit(ctx, cur, next); cerr != nil {
				return nil, cerr
			}
			return nil, err
		}
	}

	next, err := Transition(cur, StatusReverted, m.now().UTC())
	if err != nil {
		return nil, err
	}
	if _, ok := next.Metadata["revert_reason"]; !ok {
		next.Metadata["revert_reason"] = reason
	}
	if refundTxHash != "" {
		next.Metadata["refund_tx_hash"] = refundTxHash
	}
	return m.commit(ctx, cur, next)
}

// reconcileMint refuses to revert a transaction whose destination mint went
// through. A transaction that can still complete is completed.
func (m *Manager) reconcileMint(ctx context.Context, cur *Transaction) error {
	ledger, err := m.ledger(cur.DestinationNetwork)
	if err != nil {
		return err
	}
	var (
		destTxHash string
		minted     bool
	)
	err = m.retry(ctx, "look up destination mint", func() (err error) {
		destTxHash, minted, err = ledger.LookupMint(ctx, cur.ID)
		return err
	})
	if err != nil || !minted {
		return err
	}

	m.logger.Warn("destination already minted, revert refused",
		zap.String("tx_id", cur.ID), zap.String("destination_tx_hash", destTxHash))
	if !cur.Status.CanTransitionTo(StatusCompleted) {
		return &InvalidStateTransitionError{Current: cur.Status, Attempted: StatusReverting, Reason: "destination already minted " + destTxHash}
	}
	next, err := Transition(cur, StatusCompleted, m.now().UTC())
	if err != nil {
		return err
	}
	next.DestinationTxHash = destTxHash
	if _, err := m.commit(ctx, cur, next); err != nil {
		return err
	}
	return &InvalidStateTransitionError{Current: StatusCompleted, Attempted: StatusReverting, Reason: "destination already minted " + destTxHash}
}

func (m *Manager) ledger(network NetworkType) (Ledger, error) {
	l, ok := m.ledgers[network]
	if !ok || l == nil {
		return nil, &InfrastructureError{Op: "ledger", Err: fmt.Errorf("no ledger client configured for %s", network)}
	}
	return l, nil
}

func (m *Manager) load(ctx context.Context, id string) (*Transaction, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &ValidationError{Field: "id", Reason: "is required"}
	}
	var tx *Transaction
	err := m.retry(ctx, "load bridge transaction", func() (err error) {
		tx, err = m.store.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if tx.Validations == nil {
		tx.Validations = map[string]interface{}{}
	}
	if tx.Metadata == nil {
		tx.Metadata = map[string]interface{}{}
	}
	return tx, nil
}

// commit persists next as the successor of cur. Must be called with the
// id's lock held.
func (m *Manager) commit(ctx context.Context, cur, next *Transaction) (*Transaction, error) {
	next.Version = cur.Version + 1
	if err := attest(next, m.operator); err != nil {
		return nil, err
	}
	if err := m.retry(ctx, "update bridge transaction", func() error {
		return m.store.Update(ctx, next, cur.Version)
	}); err != nil {
		m.fail("update", err)
		return nil, err
	}

	if cur.Status != next.Status {
		m.logger.Info("bridge transaction status changed",
			zap.String("tx_id", next.ID),
			zap.String("from", string(cur.Status)),
			zap.String("to", string(next.Status)),
			zap.Int64("version", next.Version))
		m.metrics.ObserveTransition(cur.Status, next.Status)
		m.emit(ctx, cur.Status, next)
	}
	return next.Clone(), nil
}

func (m *Manager) emit(ctx context.Context, previous Status, tx *Transaction) {
	if m.publisher == nil {
		return
	}
	err := m.publisher.Publish(ctx, StatusEvent{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Previous:      previous,
		Status:        tx.Status,
		OccurredAt:    tx.UpdatedAt,
		Transaction:   tx.Clone(),
	})
	if err != nil {
		m.logger.Warn("failed to publish bridge status event",
			zap.String("tx_id", tx.ID),
			zap.String("status", string(tx.Status)),
			zap.Error(err))
	}
}

func (m *Manager) fail(op string, err error) {
	m.metrics.ObserveFailure(op, KindOf(err))
}

// retry runs fn with exponential backoff while it fails with an
// infrastructure error. Exhaustion is reported as *InfrastructureError;
// other errors are returned unchanged.
func (m *Manager) retry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.RetryInitialInterval
	if m.cfg.RetryMaxInterval > 0 {
		b.MaxInterval = m.cfg.RetryMaxInterval
	}
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(m.cfg.RetryAttempts)), ctx)

	err := backoff.RetryNotify(func() error {
		err := fn()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		m.logger.Warn("retrying bridge operation",
			zap.String("op", op),
			zap.Duration("backoff", wait),
			zap.Error(err))
	})
	if err == nil || !retryable(err) {
		return err
	}
	return &InfrastructureError{Op: op, Err: err}
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var infra *InfrastructureError
	if errors.As(err, &infra) {
		return false
	}
	return KindOf(err) == KindInfrastructure
}
