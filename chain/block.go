package chain

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/aethercore-labs/aethercore/codec"
	"github.com/aethercore-labs/aethercore/crypto"
	"github.com/aethercore-labs/aethercore/crypto/hash"
	"github.com/shopspring/decimal"
)

const (
	BlockVersion = 1

	// proofEntanglementDepth is the number of temporal layers bound into a
	// block's security proof.
	proofEntanglementDepth = 4
)

type Header struct {
	Version      uint32 `json:"version" cbor:"1,keyasint"`
	PreviousHash string `json:"previousHash" cbor:"2,keyasint"`
	MerkleRoot   string `json:"merkleRoot" cbor:"3,keyasint"`
	// Timestamp is in Unix milliseconds.
	Timestamp  int64  `json:"timestamp" cbor:"4,keyasint"`
	Difficulty uint32 `json:"difficulty" cbor:"5,keyasint"`
	Nonce      uint64 `json:"nonce" cbor:"6,keyasint"`
	Height     uint64 `json:"height" cbor:"7,keyasint"`
}

// SecurityProof is a post-quantum signature of the block hash by the
// producing validator, plus a temporal entanglement of the hash.
type SecurityProof struct {
	Algorithm    string                       `json:"algorithm" cbor:"1,keyasint"`
	PublicKey    []byte                       `json:"publicKey" cbor:"2,keyasint"`
	Signature    []byte                       `json:"signature" cbor:"3,keyasint"`
	Entanglement *crypto.TemporalEntanglement `json:"entanglement,omitempty" cbor:"4,keyasint,omitempty"`
}

// Block is immutable once hashed. Hash covers the header only; the header
// commits to the transactions through MerkleRoot.
type Block struct {
	Header               Header         `json:"header" cbor:"1,keyasint"`
	Transactions         []*Transaction `json:"transactions" cbor:"2,keyasint"`
	Hash                 string         `json:"hash" cbor:"3,keyasint"`
	TotalFees            string         `json:"totalFees" cbor:"4,keyasint"`
	Size                 int            `json:"size" cbor:"5,keyasint"`
	QuantumSecurityProof *SecurityProof `json:"quantumSecurityProof,omitempty" cbor:"6,keyasint,omitempty"`
}

// NewGenesisBlock creates the height-0 block with no transactions.
func NewGenesisBlock(at time.Time) (*Block, error) {
	return assemble(Header{
		Version:      BlockVersion,
		PreviousHash: hash.NullHash().String(),
		Timestamp:    at.UnixMilli(),
		Height:       0,
	}, nil)
}

// NewBlock creates the successor of prev holding txs.
func NewBlock(prev *Block, txs []*Transaction, at time.Time, difficulty uint32, nonce uint64) (*Block, error) {
	if prev == nil {
		return nil, errors.New("previous block is required, use NewGenesisBlock for height 0")
	}
	return assemble(Header{
		Version:      BlockVersion,
		PreviousHash: prev.Hash,
		Timestamp:    at.UnixMilli(),
		Difficulty:   difficulty,
		Nonce:        nonce,
		Height:       prev.Header.Height + 1,
	}, txs)
}

func assemble(header Header, txs []*Transaction) (*Block, error) {
	if txs == nil {
		txs = []*Transaction{}
	}
	root, err := TransactionsMerkleRoot(txs)
	if err != nil {
		return nil, err
	}
	header.MerkleRoot = root

	fees, err := TotalFees(txs)
	if err != nil {
		return nil, err
	}

	b := &Block{Header: header, Transactions: txs, TotalFees: fees}
	if b.Hash, err = ComputeBlockHash(b); err != nil {
		return nil, err
	}
	if b.Size, err = EncodedSize(b); err != nil {
		return nil, err
	}
	return b, nil
}

// ComputeBlockHash hashes the canonical encoding of the header.
func ComputeBlockHash(b *Block) (string, error) {
	headerBytes, err := codec.Marshal(b.Header)
	if err != nil {
		return "", fmt.Errorf("failed to encode block header: %w", err)
	}
	h := hash.NewHash(headerBytes)
	return hex.EncodeToString(h[:]), nil
}

// TotalFees sums transaction fees with exact decimal arithmetic.
func TotalFees(txs []*Transaction) (string, error) {
	total := decimal.Zero
	for _, tx := range txs {
		if tx.Fee == "" {
			continue
		}
		fee, err := decimal.NewFromString(tx.Fee)
		if err != nil {
			return "", fmt.Errorf("transaction %s has invalid fee %q: %w", tx.ID, tx.Fee, err)
		}
		total = total.Add(fee)
	}
	return total.String(), nil
}

// EncodedSize is the size in bytes of the block without its proof.
func EncodedSize(b *Block) (int, error) {
	c := *b
	c.Size = 0
	c.QuantumSecurityProof = nil
	encoded, err := codec.Marshal(&c)
	if err != nil {
		return 0, fmt.Errorf("failed to encode block: %w", err)
	}
	return len(encoded), nil
}

// SealQuantumProof signs the block hash with the validator key and attaches
// the proof to the block.
func SealQuantumProof(b *Block, validatorKey *crypto.PrivateKey, at time.Time) error {
	if validatorKey == nil {
		return errors.New("validator key is required")
	}
	hashBytes, err := hex.DecodeString(b.Hash)
	if err != nil || len(hashBytes) != hash.HashSize {
		return fmt.Errorf("block hash %q is not a valid hash", b.Hash)
	}
	ent, err := crypto.CreateTemporalEntanglementAt(hashBytes, proofEntanglementDepth, at)
	if err != nil {
		return err
	}
	b.QuantumSecurityProof = &SecurityProof{
		Algorithm:    validatorKey.Level().SignatureScheme(),
		PublicKey:    validatorKey.PublicKey().Bytes(),
		Signature:    validatorKey.Sign(hashBytes),
		Entanglement: ent,
	}
	return nil
}

// VerifyQuantumProof checks the proof against the stored block hash.
func VerifyQuantumProof(b *Block) error {
	p := b.QuantumSecurityProof
	if p == nil {
		return errors.New("quantum security proof is missing")
	}
	hashBytes, err := hex.DecodeString(b.Hash)
	if err != nil || len(hashBytes) != hash.HashSize {
		return fmt.Errorf("block hash %q is not a valid hash", b.Hash)
	}
	pub, err := crypto.ParsePublicKey(p.PublicKey)
	if err != nil {
		return fmt.Errorf("proof public key: %w", err)
	}
	if p.Algorithm != pub.Level().SignatureScheme() {
		return fmt.Errorf("proof algorithm %q does not match key scheme %q", p.Algorithm, pub.Level().SignatureScheme())
	}
	if !pub.Verify(hashBytes, p.Signature) {
		return errors.New("proof signature does not verify against block hash")
	}
	if p.Entanglement != nil && !crypto.VerifyTemporalEntanglement(hashBytes, p.Entanglement) {
		return errors.New("proof entanglement does not verify against block hash")
	}
	return nil
}
