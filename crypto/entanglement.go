package crypto

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/aethercore-labs/aethercore/crypto/hash"
)

const MaxEntanglementDepth = 64

// EntanglementLayer is one link of a temporal hash chain.
type EntanglementLayer struct {
	Index     int    `json:"index"`
	Hash      string `json:"hash"`
	Timestamp int64  `json:"timestamp"`
}

// TemporalEntanglement binds data to a sequence of time-ordered hash
// commitments. Each layer commits to the previous one, its timestamp and its
// index.
type TemporalEntanglement struct {
	OriginalDataHash  string              `json:"originalDataHash"`
	Layers            []EntanglementLayer `json:"layers"`
	FinalEntanglement string              `json:"finalEntanglement"`
	Timestamp         int64               `json:"timestamp"`
	Depth             int                 `json:"depth"`
}

func CreateTemporalEntanglement(data []byte, depth int) (*TemporalEntanglement, error) {
	return CreateTemporalEntanglementAt(data, depth, time.Now())
}

// CreateTemporalEntanglementAt builds the chain with layer timestamps
// starting at at (in nanoseconds) and strictly increasing by one per layer.
func CreateTemporalEntanglementAt(data []byte, depth int, at time.Time) (*TemporalEntanglement, error) {
	if depth < 1 || depth > MaxEntanglementDepth {
		return nil, fmt.Errorf("entanglement depth must be between 1 and %d, got %d", MaxEntanglementDepth, depth)
	}
	base := at.UnixNano()
	origin := hash.NewHash(data)
	e := &TemporalEntanglement{
		OriginalDataHash: origin.String(),
		Layers:           make([]EntanglementLayer, 0, depth),
		Timestamp:        base,
		Depth:            depth,
	}
	prev := origin
	for i := 0; i < depth; i++ {
		ts := base + int64(i)
		prev = entangle(prev, ts, i)
		e.Layers = append(e.Layers, EntanglementLayer{Index: i, Hash: prev.String(), Timestamp: ts})
	}
	e.FinalEntanglement = prev.String()
	return e, nil
}

// VerifyTemporalEntanglement recomputes every link of the chain from data
// and rejects on any mismatch, including reordered or retimed layers.
func VerifyTemporalEntanglement(data []byte, e *TemporalEntanglement) bool {
	if e == nil || e.Depth < 1 || e.Depth > MaxEntanglementDepth || len(e.Layers) != e.Depth {
		return false
	}
	prev := hash.NewHash(data)
	if prev.String() != e.OriginalDataHash {
		return false
	}
	lastTS := e.Timestamp - 1
	for i, layer := range e.Layers {
		if layer.Index != i || layer.Timestamp <= lastTS {
			return false
		}
		prev = entangle(prev, layer.Timestamp, i)
		if prev.String() != layer.Hash {
			return false
		}
		lastTS = layer.Timestamp
	}
	return prev.String() == e.FinalEntanglement
}

func entangle(prev hash.Hash, ts int64, index int) hash.Hash {
	var buf [12]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(ts))
	binary.BigEndian.PutUint32(buf[8:], uint32(index))
	return hash.Concat(prev[:], buf[:])
}
