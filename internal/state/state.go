// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package state persists the process's local, mutable state — file-state
// cursors, migration checkpoints, and the port/IPC registries (spec §3
// "Ownership", §6 "Persisted state layout") — in an embedded Badger
// database under the data directory. Badger gives us single-writer,
// crash-safe key-value storage without standing up an external service
// for what is, per spec, purely local process state.
//
// Cursor and registry values are stored encrypted at rest (spec §3
// "File-State Cursor (local, mutable, encrypted at rest)") using Badger's
// built-in encryption-at-rest, keyed by a file under the data directory
// the operator controls.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
)

// Store is a scoped handle over the local embedded database. It is
// obtained once (typically by the orchestrator at startup) and passed
// explicitly into the components that need it, per spec §9 "Global
// state" — never held as a package-level singleton.
type Store struct {
	db *badger.DB
}

// Open opens (creating if absent) the Badger database rooted at dataDir.
// If encryptionKey is non-empty it must be 16, 24, or 32 bytes and enables
// Badger's AES encryption-at-rest for the whole database.
func Open(dataDir string, encryptionKey []byte) (*Store, error) {
	dbDir := filepath.Join(dataDir, "state")
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("state: creating %s: %w", dbDir, err)
	}

	opts := badger.DefaultOptions(dbDir).WithLogger(nil)
	if len(encryptionKey) > 0 {
		opts = opts.WithEncryptionKey(encryptionKey).WithIndexCacheSize(64 << 20)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("state: opening badger at %s: %w", dbDir, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database on every exit path, guaranteeing the
// single-writer-per-path contract in spec §5 is respected even on panic
// recovery paths upstream.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// putJSON marshals v and writes it under key.
func (s *Store) putJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("state: marshaling %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// getJSON reads the value under key into v. Returns ErrNotFound if absent.
func (s *Store) getJSON(key string, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
}

// delete removes key; a missing key is not an error.
func (s *Store) delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// scanPrefix iterates all keys under prefix, invoking fn with the decoded
// value. Iteration stops on the first error from fn.
func (s *Store) scanPrefix(prefix string, newValue func() any, fn func(key string, value any) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			v := newValue()
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, v)
			}); err != nil {
				return err
			}
			if err := fn(string(item.Key()), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// ErrNotFound is returned by getters when the key is absent.
var ErrNotFound = fmt.Errorf("state: key not found")
