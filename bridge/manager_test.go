package bridge_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aethercore-labs/aethercore/bridge"
	"github.com/aethercore-labs/aethercore/bridge/chainclient"
	"github.com/aethercore-labs/aethercore/consensus/detection"
	"github.com/aethercore-labs/aethercore/crypto"
	"github.com/aethercore-labs/aethercore/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recorder struct {
	mu     sync.Mutex
	events []bridge.StatusEvent
}

func (r *recorder) Publish(_ context.Context, ev bridge.StatusEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) statuses(id string) []bridge.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bridge.Status
	for _, ev := range r.events {
		if ev.TransactionID == id {
			out = append(out, ev.Status)
		}
	}
	return out
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, bridge.StatusEvent) error {
	return errors.New("broker down")
}

type countingMetrics struct {
	mu          sync.Mutex
	transitions map[string]int
	failures    map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{transitions: map[string]int{}, failures: map[string]int{}}
}

func (c *countingMetrics) ObserveTransition(from, to bridge.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitions[string(from)+">"+string(to)]++
}

func (c *countingMetrics) ObserveFailure(op, kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[op+"/"+kind]++
}

type harness struct {
	manager  *bridge.Manager
	store    *store.MemoryStore
	atc      *chainclient.MemoryLedger
	frac     *chainclient.MemoryLedger
	fil      *chainclient.MemoryLedger
	events   *recorder
	metrics  *countingMetrics
	operator *crypto.PrivateKey
}

func testConfig() bridge.Config {
	cfg := bridge.DefaultConfig()
	cfg.ConfirmationTimeout = time.Second
	cfg.PollInterval = 5 * time.Millisecond
	cfg.RetryAttempts = 2
	cfg.RetryInitialInterval = time.Millisecond
	cfg.RetryMaxInterval = 2 * time.Millisecond
	return cfg
}

func newHarness(t *testing.T, cfg bridge.Config, opts ...bridge.Option) *harness {
	t.Helper()
	operator, err := crypto.NewPrivateKey(2)
	require.NoError(t, err)
	h := &harness{
		store:    store.NewMemoryStore(),
		atc:      chainclient.NewMemoryLedger(bridge.NetworkAethercoin),
		frac:     chainclient.NewMemoryLedger(bridge.NetworkFractalcoin),
		fil:      chainclient.NewMemoryLedger(bridge.NetworkFilecoin),
		events:   &recorder{},
		metrics:  newCountingMetrics(),
		operator: operator,
	}
	ledgers := map[bridge.NetworkType]bridge.Ledger{
		bridge.NetworkAethercoin:  h.atc,
		bridge.NetworkFractalcoin: h.frac,
		bridge.NetworkFilecoin:    h.fil,
	}
	opts = append([]bridge.Option{
		bridge.WithPublisher(h.events),
		bridge.WithMetrics(h.metrics),
		bridge.WithScreener(detection.NewAnalyzer()),
	}, opts...)
	h.manager, err = bridge.NewManager(cfg, h.store, ledgers, operator, zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	return h
}

func (h *harness) create(t *testing.T, amount string) *bridge.Transaction {
	t.Helper()
	tx, err := h.manager.CreateBridgeTransaction(context.Background(), bridge.CreateRequest{
		UserID:             "user-1",
		SourceAddress:      "atc1source",
		DestinationAddress: "frac1dest",
		Amount:             amount,
		Direction:          bridge.DirectionATCToFractalcoin,
		Metadata:           map[string]interface{}{"memo": "invoice42"},
	})
	require.NoError(t, err)
	return tx
}

func TestCreateBridgeTransaction(t *testing.T) {
	h := newHarness(t, testConfig())
	tx := h.create(t, "250")

	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, bridge.StatusInitiated, tx.Status)
	assert.Equal(t, bridge.NetworkAethercoin, tx.SourceNetwork)
	assert.Equal(t, bridge.NetworkFractalcoin, tx.DestinationNetwork)
	assert.Equal(t, int64(1), tx.Version)
	assert.Equal(t, "invoice42", tx.Metadata["memo"])
	assert.True(t, decimal.RequireFromString("1.25").Equal(decimal.RequireFromString(tx.Fee)))

	maxFee := decimal.RequireFromString("250").Mul(decimal.RequireFromString("0.01"))
	assert.True(t, decimal.RequireFromString(tx.Fee).LessThanOrEqual(maxFee))

	screen, ok := tx.Validations[bridge.ValidationRequestScreen].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, screen["is_valid"])
	assert.Equal(t, "low", screen["threat_level"])
	require.NoError(t, h.manager.VerifyAttestation(tx))

	stored, err := h.manager.GetBridgeTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.Fee, stored.Fee)
	assert.Equal(t, []bridge.Status{bridge.StatusInitiated}, h.events.statuses(tx.ID))
}

func TestCreateRejectsInvalidRequests(t *testing.T) {
	h := newHarness(t, testConfig())
	base := bridge.CreateRequest{
		UserID:             "user-1",
		SourceAddress:      "atc1source",
		DestinationAddress: "frac1dest",
		Amount:             "10",
		Direction:          bridge.DirectionATCToFractalcoin,
	}
	tests := []struct {
		name   string
		mutate func(*bridge.CreateRequest)
	}{
		{"missing user", func(r *bridge.CreateRequest) { r.UserID = " " }},
		{"unknown direction", func(r *bridge.CreateRequest) { r.Direction = "ATC_TO_MOON" }},
		{"missing destination", func(r *bridge.CreateRequest) { r.DestinationAddress = "" }},
		{"not a number", func(r *bridge.CreateRequest) { r.Amount = "ten" }},
		{"negative", func(r *bridge.CreateRequest) { r.Amount = "-5" }},
		{"zero", func(r *bridge.CreateRequest) { r.Amount = "0" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			_, err := h.manager.CreateBridgeTransaction(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, bridge.KindValidation, bridge.KindOf(err))
		})
	}
}

func TestCreateRejectsAmountOutOfRange(t *testing.T) {
	h := newHarness(t, testConfig())
	for _, amount := range []string{"0.0005", "1000000.01"} {
		_, err := h.manager.CreateBridgeTransaction(context.Background(), bridge.CreateRequest{
			UserID:             "user-1",
			SourceAddress:      "atc1source",
			DestinationAddress: "frac1dest",
			Amount:             amount,
			Direction:          bridge.DirectionATCToFractalcoin,
		})
		var rangeErr *bridge.AmountOutOfRangeError
		require.ErrorAs(t, err, &rangeErr, amount)
		assert.Equal(t, amount, rangeErr.Amount)
		assert.Equal(t, "0.001", rangeErr.Min)
		assert.Equal(t, "1000000", rangeErr.Max)
	}
	list, err := h.manager.GetUserBridgeTransactions(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, 2, h.metrics.failures["create/validation"])
}

func TestCreateRejectedByScreening(t *testing.T) {
	h := newHarness(t, testConfig())
	_, err := h.manager.CreateBridgeTransaction(context.Background(), bridge.CreateRequest{
		UserID:             "user-1",
		SourceAddress:      "atc1source",
		DestinationAddress: "frac1dest",
		Amount:             "10",
		Direction:          bridge.DirectionATCToFractalcoin,
		Metadata:           map[string]interface{}{"note": "<script>alert(1)</script>"},
	})
	var ve *bridge.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "request", ve.Field)
	assert.Contains(t, ve.Reason, "injection")
}

func TestBridgeLifecycleCompletes(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	tx := h.create(t, "100.00")
	require.Equal(t, bridge.StatusInitiated, tx.Status)

	h.atc.Submit("0xabc123", 12)
	pending, err := h.manager.AttachSourceTransaction(ctx, tx.ID, "0xabc123")
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusPending, pending.Status)
	assert.Equal(t, "0xabc123", pending.SourceTxHash)

	again, err := h.manager.AttachSourceTransaction(ctx, tx.ID, "0xabc123")
	require.NoError(t, err)
	assert.Equal(t, pending.Version, again.Version)

	ok, err := h.manager.VerifySourceTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	confirmed, err := h.manager.GetBridgeTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusConfirmedSource, confirmed.Status)
	conf, ok := confirmed.Validations[bridge.ValidationSourceConfirmation].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 12, conf["confirmations"])

	done, err := h.manager.CompleteBridgeTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusCompleted, done.Status)
	assert.NotEmpty(t, done.DestinationTxHash)
	require.NotNil(t, done.CompletedAt)
	assert.False(t, done.CompletedAt.Before(done.CreatedAt))
	require.NoError(t, h.manager.VerifyAttestation(done))

	assert.Equal(t, "99.5", h.frac.Balance("frac1dest"))
	assert.Equal(t, 1, h.frac.MintCount())
	assert.Equal(t, []bridge.Status{
		bridge.StatusInitiated,
		bridge.StatusPending,
		bridge.StatusConfirmedSource,
		bridge.StatusMinting,
		bridge.StatusCompleted,
	}, h.events.statuses(tx.ID))

	_, err = h.manager.RevertBridgeTransaction(ctx, tx.ID, "too late")
	var ste *bridge.InvalidStateTransitionError
	require.ErrorAs(t, err, &ste)
	assert.Equal(t, bridge.StatusCompleted, ste.Current)

	_, err = h.manager.UpdateBridgeTransactionStatus(ctx, tx.ID, bridge.StatusFailed, nil)
	require.ErrorAs(t, err, &ste)

	final, err := h.manager.GetBridgeTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, done.Version, final.Version)
	assert.Equal(t, bridge.StatusCompleted, final.Status)
}

func TestVerifySourceWaitsForConfirmations(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	tx := h.create(t, "5")

	h.atc.Submit("0xdef", 3)
	_, err := h.manager.AttachSourceTransaction(ctx, tx.ID, "0xdef")
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		h.atc.Confirm("0xdef", 9)
	}()

	ok, err := h.manager.VerifySourceTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Greater(t, h.atc.Calls(), 1)
}

func TestVerifySourceTimeoutLeavesPending(t *testing.T) {
	cfg := testConfig()
	cfg.ConfirmationTimeout = 30 * time.Millisecond
	h := newHarness(t, cfg)
	ctx := context.Background()
	tx := h.create(t, "5")

	h.atc.Submit("0xslow", 2)
	_, err := h.manager.AttachSourceTransaction(ctx, tx.ID, "0xslow")
	require.NoError(t, err)

	ok, err := h.manager.VerifySourceTransaction(ctx, tx.ID)
	assert.False(t, ok)
	require.ErrorIs(t, err, bridge.ErrConfirmationTimeout)
	assert.Equal(t, bridge.KindInfrastructure, bridge.KindOf(err))

	got, err := h.manager.GetBridgeTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusPending, got.Status)
}

func TestVerifySourceRejectedFails(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	tx := h.create(t, "5")

	h.atc.Reject("0xbad")
	_, err := h.manager.AttachSourceTransaction(ctx, tx.ID, "0xbad")
	require.NoError(t, err)

	ok, err := h.manager.VerifySourceTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := h.manager.GetBridgeTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusFailed, got.Status)
	assert.NotEmpty(t, got.Metadata["failure_reason"])

	reverted, err := h.manager.RevertBridgeTransaction(ctx, tx.ID, "source rejected")
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusReverted, reverted.Status)
	assert.Equal(t, "failed", reverted.Metadata["reverted_from"])
}

func TestVerifySourceRequiresPendingWithHash(t *testing.T) {
	h := newHarness(t, testConfig())
	tx := h.create(t, "5")

	_, err := h.manager.VerifySourceTransaction(context.Background(), tx.ID)
	var ste *bridge.InvalidStateTransitionError
	assert.ErrorAs(t, err, &ste)

	_, err = h.manager.VerifySourceTransaction(context.Background(), "missing")
	assert.ErrorIs(t, err, bridge.ErrNotFound)
}

func TestRevertFromPendingRefunds(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	tx := h.create(t, "42")

	_, err := h.manager.AttachSourceTransaction(ctx, tx.ID, "0x777")
	require.NoError(t, err)

	reverted, err := h.manager.RevertBridgeTransaction(ctx, tx.ID, "insufficient confirmations")
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusReverted, reverted.Status)
	assert.Equal(t, "insufficient confirmations", reverted.Metadata["revert_reason"])
	assert.Equal(t, "pending", reverted.Metadata["reverted_from"])
	assert.NotEmpty(t, reverted.Metadata["refund_tx_hash"])
	assert.Equal(t, "42", h.atc.Balance("atc1source"))

	statuses := h.events.statuses(tx.ID)
	require.GreaterOrEqual(t, len(statuses), 2)
	assert.Equal(t, []bridge.Status{bridge.StatusReverting, bridge.StatusReverted}, statuses[len(statuses)-2:])

	_, err = h.manager.RevertBridgeTransaction(ctx, tx.ID, "again")
	var ste *bridge.InvalidStateTransitionError
	assert.ErrorAs(t, err, &ste)
}

func TestRevertWithoutSourceSkipsRefund(t *testing.T) {
	h := newHarness(t, testConfig())
	tx := h.create(t, "42")

	reverted, err := h.manager.RevertBridgeTransaction(context.Background(), tx.ID, "user cancelled")
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusReverted, reverted.Status)
	assert.Nil(t, reverted.Metadata["refund_tx_hash"])
	assert.Zero(t, h.atc.Calls())

	_, err = h.manager.RevertBridgeTransaction(context.Background(), tx.ID, " ")
	var ve *bridge.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestFailedRefundResumes(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	tx := h.create(t, "8")
	_, err := h.manager.AttachSourceTransaction(ctx, tx.ID, "0x888")
	require.NoError(t, err)

	h.atc.FailNext(3)
	_, err = h.manager.RevertBridgeTransaction(ctx, tx.ID, "operator request")
	var infra *bridge.InfrastructureError
	require.ErrorAs(t, err, &infra)

	stuck, err := h.manager.GetBridgeTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusReverting, stuck.Status)

	reverted, err := h.manager.RevertBridgeTransaction(ctx, tx.ID, "retry")
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusReverted, reverted.Status)
	assert.Equal(t, "operator request", reverted.Metadata["revert_reason"])
}

func TestMintRetriesTransientFailures(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	tx := h.create(t, "10")
	h.atc.Submit("0x1", 12)
	_, err := h.manager.AttachSourceTransaction(ctx, tx.ID, "0x1")
	require.NoError(t, err)
	_, err = h.manager.VerifySourceTransaction(ctx, tx.ID)
	require.NoError(t, err)

	h.frac.FailNext(2)
	done, err := h.manager.CompleteBridgeTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusCompleted, done.Status)
	assert.Equal(t, 3, h.frac.Calls())
}

func TestMintExhaustionLeavesMinting(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	tx := h.create(t, "10")
	h.atc.Submit("0x2", 12)
	_, err := h.manager.AttachSourceTransaction(ctx, tx.ID, "0x2")
	require.NoError(t, err)
	_, err = h.manager.VerifySourceTransaction(ctx, tx.ID)
	require.NoError(t, err)

	h.frac.FailNext(5)
	_, err = h.manager.CompleteBridgeTransaction(ctx, tx.ID)
	var infra *bridge.InfrastructureError
	require.ErrorAs(t, err, &infra)
	assert.ErrorIs(t, err, chainclient.ErrUnavailable)
	assert.Equal(t, 3, h.frac.Calls())
	assert.Equal(t, 1, h.metrics.failures["complete/infrastructure"])

	stuck, err := h.manager.GetBridgeTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusMinting, stuck.Status)

	done, err := h.manager.CompleteBridgeTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusCompleted, done.Status)
	assert.Equal(t, 1, h.frac.MintCount())
}

func TestStartMinting(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	tx := h.create(t, "10")

	_, err := h.manager.StartMinting(ctx, tx.ID)
	var ste *bridge.InvalidStateTransitionError
	require.ErrorAs(t, err, &ste)

	h.atc.Submit("0x3", 12)
	_, err = h.manager.AttachSourceTransaction(ctx, tx.ID, "0x3")
	require.NoError(t, err)
	_, err = h.manager.VerifySourceTransaction(ctx, tx.ID)
	require.NoError(t, err)

	minting, err := h.manager.StartMinting(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusMinting, minting.Status)
}

func TestUpdateStatusMergesMetadata(t *testing.T) {
	h := newHarness(t, testConfig())
	tx := h.create(t, "10")

	failed, err := h.manager.UpdateBridgeTransactionStatus(context.Background(), tx.ID, bridge.StatusFailed,
		map[string]interface{}{"reason": "manual review"})
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusFailed, failed.Status)
	assert.Equal(t, "manual review", failed.Metadata["reason"])
	assert.Equal(t, "invoice42", failed.Metadata["memo"])
	assert.Equal(t, int64(2), failed.Version)
	assert.Equal(t, 1, h.metrics.transitions["initiated>failed"])

	_, err = h.manager.UpdateBridgeTransactionStatus(context.Background(), tx.ID, bridge.StatusReverting, nil)
	var ste *bridge.InvalidStateTransitionError
	assert.ErrorAs(t, err, &ste)
}

func (h *harness) confirmSource(t *testing.T, tx *bridge.Transaction, sourceTxHash string) {
	t.Helper()
	ctx := context.Background()
	h.atc.Submit(sourceTxHash, 12)
	_, err := h.manager.AttachSourceTransaction(ctx, tx.ID, sourceTxHash)
	require.NoError(t, err)
	ok, err := h.manager.VerifySourceTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestUpdateStatusCannotSettleValue(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	tx := h.create(t, "10")
	h.confirmSource(t, tx, "0x10")

	_, err := h.manager.UpdateBridgeTransactionStatus(ctx, tx.ID, bridge.StatusCompleted, nil)
	var ste *bridge.InvalidStateTransitionError
	require.ErrorAs(t, err, &ste)
	assert.Equal(t, bridge.StatusConfirmedSource, ste.Current)

	reverting, err := h.manager.UpdateBridgeTransactionStatus(ctx, tx.ID, bridge.StatusReverting, nil)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusReverting, reverting.Status)

	_, err = h.manager.UpdateBridgeTransactionStatus(ctx, tx.ID, bridge.StatusReverted, nil)
	require.ErrorAs(t, err, &ste)

	got, err := h.manager.GetBridgeTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusReverting, got.Status)
	assert.Zero(t, h.frac.MintCount())
	assert.Equal(t, "0", h.atc.Balance("atc1source"))
}

func TestRevertAfterUnacknowledgedMintCompletes(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	tx := h.create(t, "10")
	h.confirmSource(t, tx, "0x11")

	h.frac.LoseNextReplies(3)
	_, err := h.manager.CompleteBridgeTransaction(ctx, tx.ID)
	var infra *bridge.InfrastructureError
	require.ErrorAs(t, err, &infra)
	assert.Equal(t, 1, h.frac.MintCount())

	_, err = h.manager.RevertBridgeTransaction(ctx, tx.ID, "user gave up")
	var ste *bridge.InvalidStateTransitionError
	require.ErrorAs(t, err, &ste)
	assert.Equal(t, bridge.StatusCompleted, ste.Current)

	got, err := h.manager.GetBridgeTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusCompleted, got.Status)
	assert.NotEmpty(t, got.DestinationTxHash)
	assert.Equal(t, "9.95", h.frac.Balance("frac1dest"))
	assert.Equal(t, "0", h.atc.Balance("atc1source"))
}

type rejectingLedger struct {
	*chainclient.MemoryLedger
}

func (rejectingLedger) Refund(context.Context, bridge.TransferRequest) (string, error) {
	return "", &chainclient.StatusError{Code: http.StatusBadRequest, Body: "source funds already spent"}
}

func TestRejectedRefundFailsTransaction(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	atc := rejectingLedger{h.atc}
	m, err := bridge.NewManager(testConfig(), h.store, map[bridge.NetworkType]bridge.Ledger{
		bridge.NetworkAethercoin:  atc,
		bridge.NetworkFractalcoin: h.frac,
		bridge.NetworkFilecoin:    h.fil,
	}, h.operator, zaptest.NewLogger(t))
	require.NoError(t, err)

	tx := h.create(t, "10")
	_, err = m.AttachSourceTransaction(ctx, tx.ID, "0x12")
	require.NoError(t, err)

	_, err = m.RevertBridgeTransaction(ctx, tx.ID, "cancel")
	require.Error(t, err)
	assert.Equal(t, bridge.KindValidation, bridge.KindOf(err))

	failed, err := m.GetBridgeTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusFailed, failed.Status)
	assert.True(t, bridge.RefundRejected(failed))

	_, err = m.RevertBridgeTransaction(ctx, tx.ID, "cancel again")
	var ste *bridge.InvalidStateTransitionError
	require.ErrorAs(t, err, &ste)
	assert.Equal(t, bridge.StatusFailed, ste.Current)
}

func TestConcurrentUpdatesApplyOnce(t *testing.T) {
	h := newHarness(t, testConfig())
	tx := h.create(t, "10")

	var wg sync.WaitGroup
	var mu sync.Mutex
	var succeeded, rejected int
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.manager.UpdateBridgeTransactionStatus(context.Background(), tx.ID, bridge.StatusFailed,
				map[string]interface{}{"writer": fmt.Sprint(i)})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			var ste *bridge.InvalidStateTransitionError
			if errors.As(err, &ste) {
				rejected++
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 9, rejected)

	got, err := h.manager.GetBridgeTransaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
}

func TestGetUserBridgeTransactionsNewestFirst(t *testing.T) {
	clock := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Minute)
		return clock
	}
	h := newHarness(t, testConfig(), bridge.WithClock(now))
	first := h.create(t, "1")
	second := h.create(t, "2")

	list, err := h.manager.GetUserBridgeTransactions(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	_, err = h.manager.GetUserBridgeTransactions(context.Background(), "")
	var ve *bridge.ValidationError
	assert.ErrorAs(t, err, &ve)
}

type leakyStore struct {
	bridge.Store
	foreign *bridge.Transaction
}

func (s leakyStore) ListByUser(ctx context.Context, userID string) ([]*bridge.Transaction, error) {
	txs, err := s.Store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return append(txs, s.foreign.Clone()), nil
}

func TestGetUserBridgeTransactionsOnlyReturnsOwnRecords(t *testing.T) {
	h := newHarness(t, testConfig())
	own := h.create(t, "1")

	foreign := own.Clone()
	foreign.ID = "someone-else"
	foreign.UserID = "user-1/x"
	ledgers := map[bridge.NetworkType]bridge.Ledger{
		bridge.NetworkAethercoin:  h.atc,
		bridge.NetworkFractalcoin: h.frac,
		bridge.NetworkFilecoin:    h.fil,
	}
	m, err := bridge.NewManager(testConfig(), leakyStore{Store: h.store, foreign: foreign}, ledgers, h.operator, zaptest.NewLogger(t))
	require.NoError(t, err)

	list, err := m.GetUserBridgeTransactions(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, own.ID, list[0].ID)
}

func TestAttestationDetectsTampering(t *testing.T) {
	h := newHarness(t, testConfig())
	tx := h.create(t, "10")
	require.NoError(t, h.manager.VerifyAttestation(tx))

	tampered := tx.Clone()
	tampered.Amount = "10000"
	var ae *bridge.AttestationError
	require.ErrorAs(t, h.manager.VerifyAttestation(tampered), &ae)
	assert.Equal(t, bridge.KindCrypto, bridge.KindOf(ae))

	other, err := crypto.NewPrivateKey(2)
	require.NoError(t, err)
	assert.Error(t, bridge.VerifyAttestation(tx, other.PublicKey()))

	stripped := tx.Clone()
	delete(stripped.Validations, bridge.ValidationOperatorAttestation)
	assert.Error(t, h.manager.VerifyAttestation(stripped))
}

func TestPublishFailureDoesNotFailTransition(t *testing.T) {
	h := newHarness(t, testConfig(), bridge.WithPublisher(failingPublisher{}))
	tx := h.create(t, "10")
	_, err := h.manager.AttachSourceTransaction(context.Background(), tx.ID, "0x9")
	require.NoError(t, err)
}

func TestGetBridgeConfigAndFee(t *testing.T) {
	h := newHarness(t, testConfig())
	route, err := h.manager.GetBridgeConfig(bridge.NetworkFractalcoin, bridge.NetworkFilecoin)
	require.NoError(t, err)
	assert.Equal(t, 6, route.RequiredConfirmations)
	assert.True(t, route.Enabled)

	fee, err := h.manager.CalculateBridgeFee("1000", bridge.DirectionFilecoinToATC)
	require.NoError(t, err)
	assert.Equal(t, "5", fee)
}

func TestAttachSourceValidation(t *testing.T) {
	h := newHarness(t, testConfig())
	tx := h.create(t, "10")

	_, err := h.manager.AttachSourceTransaction(context.Background(), tx.ID, "not a hash!")
	var ve *bridge.ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = h.manager.AttachSourceTransaction(context.Background(), tx.ID, "0xaaa")
	require.NoError(t, err)
	_, err = h.manager.AttachSourceTransaction(context.Background(), tx.ID, "0xbbb")
	var ste *bridge.InvalidStateTransitionError
	assert.ErrorAs(t, err, &ste)
}

func TestNewManagerValidatesInputs(t *testing.T) {
	operator, err := crypto.NewPrivateKey(2)
	require.NoError(t, err)

	_, err = bridge.NewManager(testConfig(), nil, nil, operator, nil)
	assert.Error(t, err)

	_, err = bridge.NewManager(testConfig(), store.NewMemoryStore(), nil, nil, nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.PollInterval = 0
	_, err = bridge.NewManager(cfg, store.NewMemoryStore(), nil, operator, nil)
	assert.Error(t, err)
}
