package bridge

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusInitiated       Status = "initiated"
	StatusPending         Status = "pending"
	StatusConfirmedSource Status = "confirmed_source"
	StatusMinting         Status = "minting"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusReverting       Status = "reverting"
	StatusReverted        Status = "reverted"
)

var Statuses = []Status{
	StatusInitiated, StatusPending, StatusConfirmedSource, StatusMinting,
	StatusCompleted, StatusFailed, StatusReverting, StatusReverted,
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Statuses {
		if st == known {
			return st, nil
		}
	}
	return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)}
}

// transitions is the complete table of legal moves. FAILED may only move to
// REVERTING when value already left the source ledger and no refund was
// rejected; those conditions are checked in Transition.
var transitions = map[Status][]Status{
	StatusInitiated:       {StatusPending, StatusFailed, StatusReverting},
	StatusPending:         {StatusConfirmedSource, StatusFailed, StatusReverting},
	StatusConfirmedSource: {StatusMinting, StatusCompleted, StatusFailed, StatusReverting},
	StatusMinting:         {StatusCompleted, StatusFailed, StatusReverting},
	StatusFailed:          {StatusReverting},
	StatusReverting:       {StatusReverted, StatusFailed},
	StatusCompleted:       nil,
	StatusReverted:        nil,
}

// IsTerminal reports whether no transition leaves s. FAILED is terminal
// unless a compensating revert is required.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusReverted
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// MetadataRefundRejected marks a transaction whose refund the source ledger
// refused permanently.
const MetadataRefundRejected = "refund_rejected"

func RefundRejected(tx *Transaction) bool {
	v, _ := tx.Metadata[MetadataRefundRejected].(bool)
	return v
}

// Transition validates moving tx to next and returns the updated copy. tx is
// never modified.
func Transition(tx *Transaction, next Status, at time.Time) (*Transaction, error) {
	if !tx.Status.CanTransitionTo(next) {
		return nil, &InvalidStateTransitionError{Current: tx.Status, Attempted: next}
	}
	switch {
	case next == StatusConfirmedSource && tx.SourceTxHash == "":
		return nil, &InvalidStateTransitionError{Current: tx.Status, Attempted: next, Reason: "source transaction hash is not set"}
	case tx.Status == StatusFailed && next == StatusReverting && tx.SourceTxHash == "":
		return nil, &InvalidStateTransitionError{Current: tx.Status, Attempted: next, Reason: "nothing to compensate, no source transaction was recorded"}
	case tx.Status == StatusFailed && next == StatusReverting && RefundRejected(tx):
		return nil, &InvalidStateTransitionError{Current: tx.Status, Attempted: next, Reason: "the source ledger rejected the refund"}
	}

	out := tx.Clone()
	out.Status = next
	out.UpdatedAt = at
	if next == StatusCompleted {
		done := at
		out.CompletedAt = &done
	}
	return out, nil
}
