package blob

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
)

// BadgerStore keeps documents in an embedded badger key-value store.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(path string) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// NewMemoryStore returns an in-memory badger store.
func NewMemoryStore() (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("opening badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Put(key string, data []byte) error {
	const op = "blob.BadgerStore.Put"
	if !validKey(key) {
		return apperr.New(apperr.KindValidation, op, "invalid blob key")
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	return apperr.Wrap(apperr.KindInternal, op, err)
}

func (s *BadgerStore) Get(key string) ([]byte, error) {
	const op = "blob.BadgerStore.Get"
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errNotFound(op, key)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}
	return data, nil
}

func (s *BadgerStore) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	return apperr.Wrap(apperr.KindInternal, "blob.BadgerStore.Delete", err)
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
