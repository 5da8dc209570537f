package crypto

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSecurityLevel = errors.New("invalid security level")
	ErrDecryption           = errors.New("decryption failed")
)

// InvalidKeyError reports malformed or mismatched key material.
type InvalidKeyError struct {
	Reason string
	Err    error
}

func (e *InvalidKeyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid key: %s: %v", e.Reason, e.Err)
	}
	return "invalid key: " + e.Reason
}

func (e *InvalidKeyError) Unwrap() error { return e.Err }

func (e *InvalidKeyError) Kind() string { return "crypto" }

// DecryptionError is returned for any ciphertext that fails to authenticate.
// It never carries partially decrypted data.
type DecryptionError struct {
	Reason string
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("%v: %s", ErrDecryption, e.Reason)
}

func (e *DecryptionError) Is(target error) bool { return target == ErrDecryption }

func (e *DecryptionError) Kind() string { return "crypto" }

func invalidKey(reason string, err error) error {
	return &InvalidKeyError{Reason: reason, Err: err}
}
