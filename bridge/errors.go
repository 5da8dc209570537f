package bridge

import (
	"errors"
	"fmt"
)

// Error kinds reported by KindOf.
const (
	KindValidation      = "validation"
	KindStateTransition = "state_transition"
	KindCrypto          = "crypto"
	KindInfrastructure  = "infrastructure"
	KindNotFound        = "not_found"
)

var (
	ErrNotFound            = errors.New("bridge transaction not found")
	ErrAlreadyExists       = errors.New("bridge transaction already exists")
	ErrVersionConflict     = errors.New("bridge transaction was modified concurrently")
	ErrConfirmationTimeout = errors.New("timed out waiting for source confirmations")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Kind() string { return KindValidation }

type AmountOutOfRangeError struct {
	Amount string
	Min    string
	Max    string
}

func (e *AmountOutOfRangeError) Error() string {
	return fmt.Sprintf("amount %s is outside the allowed range [%s, %s]", e.Amount, e.Min, e.Max)
}

func (e *AmountOutOfRangeError) Kind() string { return KindValidation }

type InvalidStateTransitionError struct {
	Current   Status
	Attempted Status
	Reason    string
}

func (e *InvalidStateTransitionError) Error() string {
	msg := fmt.Sprintf("invalid state transition from %s to %s", e.Current, e.Attempted)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InvalidStateTransitionError) Kind() string { return KindStateTransition }

// InfrastructureError wraps a store or ledger failure that persisted after
// all retries.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }

func (e *InfrastructureError) Kind() string { return KindInfrastructure }

type AttestationError struct {
	Reason string
}

func (e *AttestationError) Error() string {
	return "operator attestation invalid: " + e.Reason
}

func (e *AttestationError) Kind() string { return KindCrypto }

// KindOf classifies err into one of the Kind constants. Unclassified errors
// are treated as infrastructure failures.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrVersionConflict):
		return KindStateTransition
	case errors.Is(err, ErrAlreadyExists):
		return KindValidation
	case errors.Is(err, ErrConfirmationTimeout):
		return KindInfrastructure
	}
	var k interface{ Kind() string }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInfrastructure
}
