package shard

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const (
	DefaultReplicationFactor = 3
	DefaultChunkSize         = 1 << 20
)

// Record is a large parameter set to be spread across nodes.
type Record struct {
	ID   string
	Name string
	Data []byte
}

// Assignment places one chunk of a record on a primary node and its
// replicas.
type Assignment struct {
	RecordID string   `json:"recordId"`
	Index    int      `json:"index"`
	Offset   int      `json:"offset"`
	Size     int      `json:"size"`
	Digest   string   `json:"digest"`
	Primary  string   `json:"primary"`
	Replicas []string `json:"replicas"`
}

type Planner struct {
	ring      *Ring
	chunkSize int
}

func NewPlanner(ring *Ring, chunkSize int) (*Planner, error) {
	if ring == nil {
		return nil, errors.New("ring is required")
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Planner{ring: ring, chunkSize: chunkSize}, nil
}

// Assign splits rec into chunks and places each on replicas nodes. Fewer
// nodes are used when the ring is smaller than replicas.
func (p *Planner) Assign(rec Record, replicas int) ([]Assignment, error) {
	if rec.ID == "" {
		return nil, errors.New("record id is required")
	}
	if len(rec.Data) == 0 {
		return nil, fmt.Errorf("record %s is empty", rec.ID)
	}
	if replicas <= 0 {
		replicas = DefaultReplicationFactor
	}

	out := make([]Assignment, 0, (len(rec.Data)+p.chunkSize-1)/p.chunkSize)
	for offset, i := 0, 0; offset < len(rec.Data); offset, i = offset+p.chunkSize, i+1 {
		end := offset + p.chunkSize
		if end > len(rec.Data) {
			end = len(rec.Data)
		}
		nodes, err := p.ring.Replicas(chunkKey(rec.ID, i), replicas)
		if err != nil {
			return nil, err
		}
		out = append(out, Assignment{
			RecordID: rec.ID,
			Index:    i,
			Offset:   offset,
			Size:     end - offset,
			Digest:   ChunkDigest(rec.Data[offset:end]),
			Primary:  nodes[0],
			Replicas: nodes[1:],
		})
	}
	return out, nil
}

func chunkKey(recordID string, index int) string {
	return fmt.Sprintf("%s/%d", recordID, index)
}

// ChunkDigest is the hex BLAKE2b-256 digest of a chunk.
func ChunkDigest(chunk []byte) string {
	sum := blake2b.Sum256(chunk)
	return hex.EncodeToString(sum[:])
}

// VerifyChunk reports whether data is the chunk described by a.
func VerifyChunk(a Assignment, data []byte) bool {
	return len(data) == a.Size && ChunkDigest(data) == a.Digest
}
