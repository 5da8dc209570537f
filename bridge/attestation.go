package bridge

import (
	"encoding/hex"
	"fmt"

	"github.com/aethercore-labs/aethercore/codec"
	"github.com/aethercore-labs/aethercore/crypto"
)

// Validation keys written by the manager.
const (
	ValidationOperatorAttestation = "operator_attestation"
	ValidationRequestScreen       = "request_screen"
	ValidationSourceConfirmation  = "source_confirmation"
)

type attestedFields struct {
	ID                 string      `cbor:"1,keyasint"`
	UserID             string      `cbor:"2,keyasint"`
	Direction          Direction   `cbor:"3,keyasint"`
	SourceAddress      string      `cbor:"4,keyasint"`
	DestinationAddress string      `cbor:"5,keyasint"`
	Amount             string      `cbor:"6,keyasint"`
	Fee                string      `cbor:"7,keyasint"`
	Status             Status      `cbor:"8,keyasint"`
	SourceTxHash       string      `cbor:"9,keyasint"`
	DestinationTxHash  string      `cbor:"10,keyasint"`
	Version            int64       `cbor:"11,keyasint"`
	UpdatedAt          int64       `cbor:"12,keyasint"`
	SourceNetwork      NetworkType `cbor:"13,keyasint"`
	DestinationNetwork NetworkType `cbor:"14,keyasint"`
}

func attestationPayload(tx *Transaction) ([]byte, error) {
	return codec.Marshal(attestedFields{
		ID:                 tx.ID,
		UserID:             tx.UserID,
		Direction:          tx.Direction,
		SourceAddress:      tx.SourceAddress,
		DestinationAddress: tx.DestinationAddress,
		Amount:             tx.Amount,
		Fee:                tx.Fee,
		Status:             tx.Status,
		SourceTxHash:       tx.SourceTxHash,
		DestinationTxHash:  tx.DestinationTxHash,
		Version:            tx.Version,
		UpdatedAt:          tx.UpdatedAt.UnixNano(),
		SourceNetwork:      tx.SourceNetwork,
		DestinationNetwork: tx.DestinationNetwork,
	})
}

// attest signs the transfer-defining fields of tx with the operator key.
func attest(tx *Transaction, operator *crypto.PrivateKey) error {
	payload, err := attestationPayload(tx)
	if err != nil {
		return fmt.Errorf("encode attestation payload: %w", err)
	}
	if tx.Validations == nil {
		tx.Validations = map[string]interface{}{}
	}
	tx.Validations[ValidationOperatorAttestation] = map[string]interface{}{
		"algorithm":  operator.Level().SignatureScheme(),
		"public_key": hex.EncodeToString(operator.PublicKey().Bytes()),
		"signature":  hex.EncodeToString(operator.Sign(payload)),
	}
	return nil
}

// VerifyAttestation checks the operator signature on tx against operator.
// A missing, malformed or mismatched attestation fails closed.
func VerifyAttestation(tx *Transaction, operator *crypto.PublicKey) error {
	raw, ok := tx.Validations[ValidationOperatorAttestation].(map[string]interface{})
	if !ok {
		return &AttestationError{Reason: "missing"}
	}
	pubHex, _ := raw["public_key"].(string)
	sigHex, _ := raw["signature"].(string)
	pubBytes, err := hex.DecodeString(pubHex)
	if err != nil {
		return &AttestationError{Reason: "public key is not hex"}
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return &AttestationError{Reason: "signature is not hex"}
	}
	pub, err := crypto.ParsePublicKey(pubBytes)
	if err != nil {
		return &AttestationError{Reason: err.Error()}
	}
	if operator != nil && !pub.Equal(operator) {
		return &AttestationError{Reason: "signed by an unknown operator key"}
	}
	payload, err := attestationPayload(tx)
	if err != nil {
		return &AttestationError{Reason: err.Error()}
	}
	if !pub.Verify(payload, sig) {
		return &AttestationError{Reason: "signature does not match record"}
	}
	return nil
}
