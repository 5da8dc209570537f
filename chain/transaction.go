package chain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/aethercore-labs/aethercore/codec"
	"github.com/aethercore-labs/aethercore/crypto"
	"github.com/aethercore-labs/aethercore/crypto/hash"
)

// Transaction is a consensus-layer transfer. It is immutable once signed:
// the ID commits to every field except the signature, and the signature is
// made over the ID.
type Transaction struct {
	ID        string `json:"id" cbor:"1,keyasint"`
	From      string `json:"from" cbor:"2,keyasint"`
	To        string `json:"to" cbor:"3,keyasint"`
	Amount    string `json:"amount" cbor:"4,keyasint"`
	Timestamp int64  `json:"timestamp" cbor:"5,keyasint"`
	Fee       string `json:"fee" cbor:"6,keyasint"`
	Signature []byte `json:"signature" cbor:"7,keyasint"`
	PublicKey []byte `json:"publicKey" cbor:"8,keyasint"`
	Data      []byte `json:"data,omitempty" cbor:"9,keyasint,omitempty"`
}

type signingPayload struct {
	From      string `cbor:"1,keyasint"`
	To        string `cbor:"2,keyasint"`
	Amount    string `cbor:"3,keyasint"`
	Timestamp int64  `cbor:"4,keyasint"`
	Fee       string `cbor:"5,keyasint"`
	PublicKey []byte `cbor:"6,keyasint"`
	Data      []byte `cbor:"7,keyasint,omitempty"`
}

// NewTransaction builds and signs a transaction with priv.
func NewTransaction(from, to, amount, fee string, data []byte, priv *crypto.PrivateKey, at time.Time) (*Transaction, error) {
	if priv == nil {
		return nil, errors.New("signing key is required")
	}
	tx := &Transaction{
		From:      from,
		To:        to,
		Amount:    amount,
		Timestamp: at.UnixMilli(),
		Fee:       fee,
		PublicKey: priv.PublicKey().Bytes(),
		Data:      data,
	}
	id, err := tx.ComputeID()
	if err != nil {
		return nil, err
	}
	tx.ID = id
	tx.Signature = priv.Sign([]byte(id))
	return tx, nil
}

// ComputeID hashes the signed fields of the transaction.
func (tx *Transaction) ComputeID() (string, error) {
	payload, err := codec.Marshal(signingPayload{
		From:      tx.From,
		To:        tx.To,
		Amount:    tx.Amount,
		Timestamp: tx.Timestamp,
		Fee:       tx.Fee,
		PublicKey: tx.PublicKey,
		Data:      tx.Data,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode transaction: %w", err)
	}
	h := hash.NewHash(payload)
	return hex.EncodeToString(h[:]), nil
}

// VerifySignature checks that the ID matches the content and that the
// signature over the ID was made by PublicKey.
func (tx *Transaction) VerifySignature() bool {
	if len(tx.Signature) == 0 || len(tx.PublicKey) == 0 {
		return false
	}
	id, err := tx.ComputeID()
	if err != nil || id != tx.ID {
		return false
	}
	return crypto.Verify([]byte(tx.ID), tx.Signature, tx.PublicKey)
}

// Digest commits to the whole transaction, signature included. It is the
// Merkle leaf of the transaction.
func (tx *Transaction) Digest() (hash.Hash, error) {
	b, err := codec.Marshal(tx)
	if err != nil {
		return hash.Hash{}, fmt.Errorf("failed to encode transaction: %w", err)
	}
	return hash.NewHash(b), nil
}
