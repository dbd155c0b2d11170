// Package store provides the persisted key-value storage backing permission
// decisions and notification bookkeeping.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// ErrClosed is returned when the store is used after Close.
var ErrClosed = errors.New("store: closed")

const (
	valueFalse byte = '0'
	valueTrue  byte = '1'
)

// Store is a process-wide key-value store on top of badger.
// Keys are plain strings; boolean values are stored as a single byte.
type Store struct {
	mu     sync.RWMutex
	db     *badger.DB
	closed bool
}

// Open opens (or creates) a store under dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithNumVersionsToKeep(1)
	return open(opts)
}

// OpenInMemory opens a store that lives only for the process lifetime.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)
	return open(opts)
}

func open(opts badger.Options) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Bool reads a boolean value. found is false when the key was never written.
func (s *Store) Bool(key string) (value, found bool, err error) {
	err = s.view(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			value = len(val) == 1 && val[0] == valueTrue
			return nil
		})
	})
	if err != nil {
		return false, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, found, nil
}

// SetBools writes all pairs in a single transaction.
func (s *Store) SetBools(values map[string]bool) error {
	err := s.update(func(txn *badger.Txn) error {
		for k, v := range values {
			b := valueFalse
			if v {
				b = valueTrue
			}
			if err := txn.Set([]byte(k), []byte{b}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set bools: %w", err)
	}
	return nil
}

// Exists reports whether key has been written.
func (s *Store) Exists(key string) (bool, error) {
	var found bool
	err := s.view(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return found, nil
}

// Touch writes an empty value under key, marking it as a set member.
func (s *Store) Touch(key string) error {
	err := s.update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), nil)
	})
	if err != nil {
		return fmt.Errorf("touch %s: %w", key, err)
	}
	return nil
}

// Keys lists all keys starting with prefix.
func (s *Store) Keys(prefix string) ([]string, error) {
	var keys []string
	err := s.view(func(txn *badger.Txn) error {
		keys = collectKeys(txn, []byte(prefix))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return keys, nil
}

// DeletePrefix removes every key starting with prefix.
func (s *Store) DeletePrefix(prefix string) error {
	err := s.update(func(txn *badger.Txn) error {
		for _, k := range collectKeys(txn, []byte(prefix)) {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete prefix %s: %w", prefix, err)
	}
	slog.Debug("store prefix deleted", "prefix", prefix)
	return nil
}

func collectKeys(txn *badger.Txn, prefix []byte) []string {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var keys []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, string(it.Item().KeyCopy(nil)))
	}
	return keys
}

func (s *Store) view(fn func(txn *badger.Txn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.View(fn)
}

func (s *Store) update(fn func(txn *badger.Txn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.Update(fn)
}
