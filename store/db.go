package store

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Database wraps the Badger database
type Database struct {
	db *badger.DB
}

// NewDatabase opens (or creates) a Badger database at path. Badger holds a
// directory lock, so a second process opening the same path fails.
func NewDatabase(path string) (*Database, error) {
	return open(badger.DefaultOptions(path))
}

// NewInMemoryDatabase keeps everything in memory; used for development
// and tests.
func NewInMemoryDatabase() (*Database, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*Database, error) {
	db, err := badger.Open(opts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open Badger database: %v", err)
	}
	return &Database{db: db}, nil
}

// Close closes the Badger database
func (d *Database) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}
