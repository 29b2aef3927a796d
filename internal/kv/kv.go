// Package kv is a thin badger-backed key/value store used for small
// pieces of connector and stack bookkeeping that don't need sqlite's
// relational shape, adapted from the teacher's db_utils.go helpers into
// methods on an injected store instead of a package-level *badger.DB.
package kv

import (
	"errors"
	"strconv"

	"github.com/dgraph-io/badger/v4"
)

// Store wraps a *badger.DB.
type Store struct {
	db *badger.DB
}

// Open opens (creating if absent) a badger database at dir. Pass ""
// for an in-memory store, useful in tests.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying badger database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Exists reports whether key is present.
func (s *Store) Exists(key string) (bool, error) {
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
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
	return found, err
}

// GetString returns the string value of key, "" if absent.
func (s *Store) GetString(key string) (string, error) {
	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		v, err := getString(txn, key)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	return value, err
}

// SetString sets key to value.
func (s *Store) SetString(key, value string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
}

// GetInt returns the int value of key, 0 if absent or unparsable.
func (s *Store) GetInt(key string) (int, error) {
	var value int
	err := s.db.View(func(txn *badger.Txn) error {
		v, err := getInt(txn, key)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	return value, err
}

// MustGetInt returns the int value of key, or 0 on any error.
func (s *Store) MustGetInt(key string) int {
	v, _ := s.GetInt(key)
	return v
}

// SetInt sets key to the decimal string form of value.
func (s *Store) SetInt(key string, value int) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(strconv.Itoa(value)))
	})
}

// Increment adds delta (1 if delta is 0) to key's current int value,
// creating it if absent, inside one transaction.
func (s *Store) Increment(key string, delta int) error {
	if delta == 0 {
		delta = 1
	}
	return s.db.Update(func(txn *badger.Txn) error {
		current, err := getInt(txn, key)
		if err != nil {
			return err
		}
		return txn.Set([]byte(key), []byte(strconv.Itoa(current+delta)))
	})
}

// SetIfNotExists sets key to value only if it isn't already present.
func (s *Store) SetIfNotExists(key, value string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set([]byte(key), []byte(value))
	})
}

// Delete removes key; a missing key is not an error.
func (s *Store) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// Entry is one key/value pair, for diagnostic listing.
type Entry struct {
	Key   string
	Value string
}

// All returns every stored entry, for the control server's database
// listing, grounded on the teacher's own /list-db iterator.
func (s *Store) All() ([]Entry, error) {
	var out []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 10
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, Entry{Key: string(item.Key()), Value: string(v)})
		}
		return nil
	})
	return out, err
}

func getString(txn *badger.Txn, key string) (string, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func getInt(txn *badger.Txn, key string) (int, error) {
	v, err := getString(txn, key)
	if err != nil {
		return 0, err
	}
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
