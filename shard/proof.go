package shard

import (
	"errors"
	"fmt"
	"time"

	"github.com/aethercore-labs/aethercore/chain"
	"github.com/aethercore-labs/aethercore/codec"
	"github.com/aethercore-labs/aethercore/crypto"
	"github.com/aethercore-labs/aethercore/crypto/hash"
)

const proofEntanglementDepth = 4

// IntegrityProof commits to every shard of a record. It is what downstream
// shard tables persist next to the assignments.
type IntegrityProof struct {
	RecordID     string                       `json:"recordId"`
	MerkleRoot   string                       `json:"merkleRoot"`
	ShardCount   int                          `json:"shardCount"`
	Algorithm    string                       `json:"algorithm"`
	PublicKey    []byte                       `json:"publicKey"`
	Signature    []byte                       `json:"signature"`
	Entanglement *crypto.TemporalEntanglement `json:"entanglement"`
	CreatedAt    time.Time                    `json:"createdAt"`
}

type signedProof struct {
	RecordID     string `cbor:"1,keyasint"`
	MerkleRoot   string `cbor:"2,keyasint"`
	ShardCount   int    `cbor:"3,keyasint"`
	Entanglement string `cbor:"4,keyasint"`
	CreatedAt    int64  `cbor:"5,keyasint"`
}

func (p *IntegrityProof) payload() ([]byte, error) {
	final := ""
	if p.Entanglement != nil {
		final = p.Entanglement.FinalEntanglement
	}
	return codec.Marshal(signedProof{
		RecordID:     p.RecordID,
		MerkleRoot:   p.MerkleRoot,
		ShardCount:   p.ShardCount,
		Entanglement: final,
		CreatedAt:    p.CreatedAt.UnixNano(),
	})
}

func merkleRoot(assignments []Assignment) (hash.Hash, error) {
	leaves := make([]hash.Hash, len(assignments))
	for i, a := range assignments {
		if a.Index != i {
			return hash.Hash{}, fmt.Errorf("assignment %d has index %d", i, a.Index)
		}
		h, err := hash.FromString(a.Digest)
		if err != nil {
			return hash.Hash{}, fmt.Errorf("assignment %d digest: %w", i, err)
		}
		leaves[i] = h
	}
	return chain.ComputeMerkleRoot(leaves), nil
}

// Prove signs the Merkle root over the shard digests of one record.
func Prove(assignments []Assignment, key *crypto.PrivateKey, at time.Time) (*IntegrityProof, error) {
	if len(assignments) == 0 {
		return nil, errors.New("no shard assignments")
	}
	if key == nil {
		return nil, errors.New("signing key is required")
	}
	recordID := assignments[0].RecordID
	for _, a := range assignments {
		if a.RecordID != recordID {
			return nil, fmt.Errorf("assignments span records %s and %s", recordID, a.RecordID)
		}
	}
	root, err := merkleRoot(assignments)
	if err != nil {
		return nil, err
	}
	ent, err := crypto.CreateTemporalEntanglementAt(root.Bytes(), proofEntanglementDepth, at)
	if err != nil {
		return nil, err
	}
	p := &IntegrityProof{
		RecordID:     recordID,
		MerkleRoot:   root.String(),
		ShardCount:   len(assignments),
		Algorithm:    key.Level().SignatureScheme(),
		PublicKey:    key.PublicKey().Bytes(),
		Entanglement: ent,
		CreatedAt:    at.UTC(),
	}
	payload, err := p.payload()
	if err != nil {
		return nil, err
	}
	p.Signature = key.Sign(payload)
	return p, nil
}

// VerifyProof checks p against the assignments it claims to cover. When
// signer is set the proof must have been made with that key.
func VerifyProof(p *IntegrityProof, assignments []Assignment, signer *crypto.PublicKey) error {
	if p == nil {
		return errors.New("integrity proof is missing")
	}
	if len(assignments) != p.ShardCount {
		return fmt.Errorf("proof covers %d shards, got %d", p.ShardCount, len(assignments))
	}
	for _, a := range assignments {
		if a.RecordID != p.RecordID {
			return fmt.Errorf("assignment for record %s does not belong to %s", a.RecordID, p.RecordID)
		}
	}
	root, err := merkleRoot(assignments)
	if err != nil {
		return err
	}
	if root.String() != p.MerkleRoot {
		return errors.New("merkle root does not match shard digests")
	}
	if !crypto.VerifyTemporalEntanglement(root.Bytes(), p.Entanglement) {
		return errors.New("temporal entanglement does not match merkle root")
	}
	pub, err := crypto.ParsePublicKey(p.PublicKey)
	if err != nil {
		return err
	}
	if signer != nil && !pub.Equal(signer) {
		return errors.New("integrity proof signed by an unexpected key")
	}
	payload, err := p.payload()
	if err != nil {
		return err
	}
	if !pub.Verify(payload, p.Signature) {
		return errors.New("integrity proof signature is invalid")
	}
	return nil
}
