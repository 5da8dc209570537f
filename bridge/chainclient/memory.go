// Package chainclient provides bridge.Ledger implementations: an HTTP client
// for ledger gateways and an in-memory ledger for development and tests.
package chainclient

import (
	"context"
	"errors"
	"sync"

	"github.com/aethercore-labs/aethercore/bridge"
	"github.com/aethercore-labs/aethercore/crypto/hash"
	"github.com/shopspring/decimal"
)

// ErrUnavailable is returned by a MemoryLedger told to fail.
var ErrUnavailable = errors.New("ledger unavailable")

type sourceTx struct {
	confirmations int
	failed        bool
}

// MemoryLedger keeps source transactions, mints and refunds in memory. Mint
// and Refund are idempotent per bridge id.
type MemoryLedger struct {
	mu          sync.Mutex
	network     bridge.NetworkType
	txs         map[string]*sourceTx
	mints       map[string]string
	refunds     map[string]string
	balances    map[string]decimal.Decimal
	failures    int
	lostReplies int
	autoConfirm int
	calls       int
}

type MemoryOption func(*MemoryLedger)

// WithAutoConfirm reports unknown transactions as found with n
// confirmations.
func WithAutoConfirm(n int) MemoryOption {
	return func(l *MemoryLedger) { l.autoConfirm = n }
}

func NewMemoryLedger(network bridge.NetworkType, opts ...MemoryOption) *MemoryLedger {
	l := &MemoryLedger{
		network:  network,
		txs:      map[string]*sourceTx{},
		mints:    map[string]string{},
		refunds:  map[string]string{},
		balances: map[string]decimal.Decimal{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Submit records a source transaction with the given confirmations.
func (l *MemoryLedger) Submit(txHash string, confirmations int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.txs[txHash] = &sourceTx{confirmations: confirmations}
}

// Confirm adds n confirmations to a submitted transaction.
func (l *MemoryLedger) Confirm(txHash string, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if tx, ok := l.txs[txHash]; ok {
		tx.confirmations += n
	}
}

// Reject marks a source transaction as failed.
func (l *MemoryLedger) Reject(txHash string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.txs[txHash] = &sourceTx{failed: true}
}

// FailNext makes the next n calls return ErrUnavailable.
func (l *MemoryLedger) FailNext(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = n
}

// LoseNextReplies applies the next n transfers but reports ErrUnavailable,
// as a gateway that times out after committing would.
func (l *MemoryLedger) LoseNextReplies(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lostReplies = n
}

// Calls counts every ledger call, failed ones included.
func (l *MemoryLedger) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func (l *MemoryLedger) Balance(address string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[address].String()
}

func (l *MemoryLedger) MintCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.mints)
}

func (l *MemoryLedger) enter() error {
	l.calls++
	if l.failures > 0 {
		l.failures--
		return ErrUnavailable
	}
	return nil
}

func (l *MemoryLedger) Confirmations(ctx context.Context, txHash string) (bridge.Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return bridge.Confirmation{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(); err != nil {
		return bridge.Confirmation{}, err
	}
	tx, ok := l.txs[txHash]
	if !ok {
		if l.autoConfirm > 0 {
			return bridge.Confirmation{TxHash: txHash, Found: true, Confirmations: l.autoConfirm}, nil
		}
		return bridge.Confirmation{TxHash: txHash}, nil
	}
	return bridge.Confirmation{TxHash: txHash, Found: true, Confirmations: tx.confirmations, Failed: tx.failed}, nil
}

func (l *MemoryLedger) Mint(ctx context.Context, req bridge.TransferRequest) (string, error) {
	return l.transfer(ctx, req, l.mints, "mint")
}

func (l *MemoryLedger) Refund(ctx context.Context, req bridge.TransferRequest) (string, error) {
	return l.transfer(ctx, req, l.refunds, "refund")
}

func (l *MemoryLedger) LookupMint(ctx context.Context, bridgeID string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(); err != nil {
		return "", false, err
	}
	txHash, ok := l.mints[bridgeID]
	return txHash, ok, nil
}

func (l *MemoryLedger) transfer(ctx context.Context, req bridge.TransferRequest, done map[string]string, kind string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return "", &bridge.ValidationError{Field: "amount", Reason: err.Error()}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(); err != nil {
		return "", err
	}
	txHash, ok := done[req.BridgeID]
	if !ok {
		txHash = hash.NewHash([]byte(string(l.network) + "/" + kind + "/" + req.BridgeID)).String()
		done[req.BridgeID] = txHash
		l.balances[req.Address] = l.balances[req.Address].Add(amount)
	}
	if l.lostReplies > 0 {
		l.lostReplies--
		return "", ErrUnavailable
	}
	return txHash, nil
}
