package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aethercore-labs/aethercore/bridge"
	"github.com/dgraph-io/badger/v4"
)

const (
	defaultCacheSize    = 1024
	cacheExpectedItems  = 100000
	cacheFalsePositives = 0.01
)

// BadgerStore persists bridge transactions as JSON documents keyed by id,
// with a secondary index per user.
type BadgerStore struct {
	db    *Database
	cache *LRUCache[*bridge.Transaction]
}

func NewBadgerStore(db *Database, cacheSize int) (*BadgerStore, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	c, err := NewLRUCache[*bridge.Transaction](cacheSize, cacheExpectedItems, cacheFalsePositives)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction cache: %v", err)
	}
	return &BadgerStore{db: db, cache: c}, nil
}

func (s *BadgerStore) Insert(ctx context.Context, tx *bridge.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("encode bridge transaction %s: %w", tx.ID, err)
	}
	err = s.db.db.Update(func(txn *badger.Txn) error {
		key := transactionKey(tx.ID)
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("%w: %s", bridge.ErrAlreadyExists, tx.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, value); err != nil {
			return err
		}
		return txn.Set(userIndexKey(tx.UserID, tx.CreatedAt.UnixNano(), tx.ID), []byte(tx.ID))
	})
	if err != nil {
		return mapBadgerError(err)
	}
	s.cache.Add(tx.ID, tx.Clone())
	return nil
}

func (s *BadgerStore) Get(ctx context.Context, id string) (*bridge.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tx, ok := s.cache.Get(id); ok {
		return tx.Clone(), nil
	}
	var tx *bridge.Transaction
	err := s.db.db.View(func(txn *badger.Txn) error {
		var err error
		tx, err = readTransaction(txn, id)
		return err
	})
	if err != nil {
		return nil, mapBadgerError(err)
	}
	s.cache.Add(id, tx.Clone())
	return tx, nil
}

func (s *BadgerStore) ListByUser(ctx context.Context, userID string) ([]*bridge.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*bridge.Transaction
	err := s.db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := userIndexPrefix(userID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			tx, err := readTransaction(txn, string(id))
			if err != nil {
				return err
			}
			if tx.UserID != userID {
				continue
			}
			out = append(out, tx)
		}
		return nil
	})
	if err != nil {
		return nil, mapBadgerError(err)
	}
	// Index order is oldest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *BadgerStore) Update(ctx context.Context, tx *bridge.Transaction, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("encode bridge transaction %s: %w", tx.ID, err)
	}
	err = s.db.db.Update(func(txn *badger.Txn) error {
		current, err := readTransaction(txn, tx.ID)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return bridge.ErrVersionConflict
		}
		return txn.Set(transactionKey(tx.ID), value)
	})
	if err != nil {
		s.cache.Remove(tx.ID)
		return mapBadgerError(err)
	}
	s.cache.Add(tx.ID, tx.Clone())
	return nil
}

func readTransaction(txn *badger.Txn, id string) (*bridge.Transaction, error) {
	item, err := txn.Get(transactionKey(id))
	if err != nil {
		return nil, err
	}
	var tx bridge.Transaction
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &tx)
	})
	if err != nil {
		return nil, fmt.Errorf("decode bridge transaction %s: %w", id, err)
	}
	return &tx, nil
}

func mapBadgerError(err error) error {
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return bridge.ErrNotFound
	case errors.Is(err, badger.ErrConflict):
		return bridge.ErrVersionConflict
	}
	return err
}
