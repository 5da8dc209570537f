package bridge

import (
	"context"
	"time"

	"github.com/aethercore-labs/aethercore/consensus/detection"
	"github.com/aethercore-labs/aethercore/crypto"
)

type (
	// Store persists bridge transactions. Records are never deleted.
	Store interface {
		Insert(ctx context.Context, tx *Transaction) error
		// Get returns ErrNotFound for unknown ids.
		Get(ctx context.Context, id string) (*Transaction, error)
		// ListByUser returns the user's transactions, newest first.
		ListByUser(ctx context.Context, userID string) ([]*Transaction, error)
		// Update replaces the record if its stored version equals
		// expectedVersion, otherwise it returns ErrVersionConflict.
		Update(ctx context.Context, tx *Transaction, expectedVersion int64) error
	}

	// Ledger is a client of one source or destination chain.
	Ledger interface {
		Confirmations(ctx context.Context, txHash string) (Confirmation, error)
		// Mint credits the destination address. BridgeID makes the call
		// idempotent.
		Mint(ctx context.Context, req TransferRequest) (string, error)
		// Refund returns locked value to the source address.
		Refund(ctx context.Context, req TransferRequest) (string, error)
		// LookupMint returns the transaction that minted bridgeID, if any.
		LookupMint(ctx context.Context, bridgeID string) (txHash string, found bool, err error)
	}

	Screener interface {
		ValidateRequest(request map[string]interface{}, level crypto.SecurityLevel) detection.RequestResult
	}

	Publisher interface {
		Publish(ctx context.Context, e StatusEvent) error
	}

	Metrics interface {
		ObserveTransition(from, to Status)
		ObserveFailure(op, kind string)
	}
)

// Confirmation is a ledger's view of a source transaction.
type Confirmation struct {
	TxHash        string `json:"tx_hash"`
	Found         bool   `json:"found"`
	Confirmations int    `json:"confirmations"`
	// Failed means the ledger rejected the transaction or dropped it.
	Failed bool `json:"failed"`
}

type TransferRequest struct {
	BridgeID  string      `json:"bridge_id"`
	Network   NetworkType `json:"network"`
	Address   string      `json:"address"`
	Amount    string      `json:"amount"`
	Reference string      `json:"reference,omitempty"`
}

// StatusEvent is emitted after every persisted status change.
type StatusEvent struct {
	TransactionID string       `json:"transaction_id"`
	UserID        string       `json:"user_id"`
	Previous      Status       `json:"previous_status,omitempty"`
	Status        Status       `json:"status"`
	OccurredAt    time.Time    `json:"occurred_at"`
	Transaction   *Transaction `json:"transaction"`
}

type nopMetrics struct{}

func (nopMetrics) ObserveTransition(Status, Status) {}
func (nopMetrics) ObserveFailure(string, string)    {}
