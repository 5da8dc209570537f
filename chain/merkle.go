package chain

import (
	"fmt"

	"github.com/aethercore-labs/aethercore/crypto/hash"
)

const (
	leafPrefix = 0x00
	nodePrefix = 0x01
)

// ComputeMerkleRoot hashes each leaf under a leaf prefix and folds the level
// pairwise under a node prefix, carrying the last node of odd levels up
// unpaired. An empty set has the null root.
func ComputeMerkleRoot(leaves []hash.Hash) hash.Hash {
	if len(leaves) == 0 {
		return hash.NullHash()
	}
	level := make([]hash.Hash, len(leaves))
	for i, l := range leaves {
		level[i] = hash.Concat([]byte{leafPrefix}, l[:])
	}
	for len(level) > 1 {
		next := make([]hash.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, hash.Concat([]byte{nodePrefix}, level[i][:], level[i+1][:]))
		}
		level = next
	}
	return level[0]
}

// TransactionsMerkleRoot returns the hex Merkle root over the transaction
// digests. A repeated transaction is an error.
func TransactionsMerkleRoot(txs []*Transaction) (string, error) {
	leaves := make([]hash.Hash, 0, len(txs))
	seen := make(map[hash.Hash]struct{}, len(txs))
	for i, tx := range txs {
		if tx == nil {
			return "", fmt.Errorf("transaction %d is nil", i)
		}
		d, err := tx.Digest()
		if err != nil {
			return "", err
		}
		if _, dup := seen[d]; dup {
			return "", fmt.Errorf("transaction %d repeats digest %s", i, d)
		}
		seen[d] = struct{}{}
		leaves = append(leaves, d)
	}
	return ComputeMerkleRoot(leaves).String(), nil
}
