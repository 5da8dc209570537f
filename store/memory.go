package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aethercore-labs/aethercore/bridge"
)

// MemoryStore is a bridge.Store backed by a map. It hands out copies so
// callers never alias stored records.
type MemoryStore struct {
	mu  sync.RWMutex
	txs map[string]*bridge.Transaction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{txs: map[string]*bridge.Transaction{}}
}

func (s *MemoryStore) Insert(ctx context.Context, tx *bridge.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[tx.ID]; ok {
		return fmt.Errorf("%w: %s", bridge.ErrAlreadyExists, tx.ID)
	}
	s.txs[tx.ID] = tx.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*bridge.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[id]
	if !ok {
		return nil, bridge.ErrNotFound
	}
	return tx.Clone(), nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]*bridge.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*bridge.Transaction
	for _, tx := range s.txs {
		if tx.UserID == userID {
			out = append(out, tx.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, tx *bridge.Transaction, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.txs[tx.ID]
	if !ok {
		return bridge.ErrNotFound
	}
	if current.Version != expectedVersion {
		return bridge.ErrVersionConflict
	}
	s.txs[tx.ID] = tx.Clone()
	return nil
}
