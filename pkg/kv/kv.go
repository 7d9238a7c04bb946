// Package kv provides the per-tenant key-value store used for document
// chunks and processing-status records.
//
// Unlike the shared graph engine, each tenant gets its own BadgerDB under
// its working directory. The store is exclusively owned by one tenant
// engine instance; isolation here is physical (separate files), not
// logical.
package kv

import (
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// Store is a tenant-owned key-value store backed by BadgerDB.
// Safe for concurrent use.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a store at dir. The directory must be inside the
// owning tenant's working directory.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening kv store at %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a volatile store. For tests.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening in-memory kv store: %w", err)
	}
	return &Store{db: db}, nil
}

// Set stores a value under key.
func (s *Store) Set(key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Get returns the value for key. The second return reports presence.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// SetJSON stores v marshaled as JSON.
func (s *Store) SetJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	return s.Set(key, data)
}

// GetJSON unmarshals the value for key into v. Returns false when absent.
func (s *Store) GetJSON(key string, v any) (bool, error) {
	data, found, err := s.Get(key)
	if err != nil || !found {
		return found, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("unmarshaling %s: %w", key, err)
	}
	return true, nil
}

// Scan calls fn for every key with the given prefix.
func (s *Store) Scan(prefix string, fn func(key string, value []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(string(item.Key()), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// DropAll removes every record in the store.
func (s *Store) DropAll() error {
	return s.db.DropAll()
}

// Close releases the store. Safe to call once; the owning instance
// guarantees it is not called twice.
func (s *Store) Close() error {
	return s.db.Close()
}
