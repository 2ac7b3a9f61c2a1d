package stores

import (
	"errors"
	"fmt"
	"sync"

	"github.com/YasiruR/didcomm-engine/domain"
	"github.com/dgraph-io/badger/v4"
)

type Badger struct {
	db        *badger.DB
	closeOnce sync.Once
	closeErr  error
}

func NewBadger(path string) (*Badger, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf(`opening badger store at %s failed - %v`, path, err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Put(bucket, key string, val []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(recordKey(bucket, key)), val)
	})
	if err != nil {
		return fmt.Errorf(`storing %s/%s failed - %v: %w`, bucket, key, err, domain.ErrWallet)
	}
	return nil
}

func (b *Badger) Get(bucket, key string) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(recordKey(bucket, key)))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf(`reading %s/%s failed - %v: %w`, bucket, key, err, domain.ErrWallet)
	}
	return val, nil
}

func (b *Badger) List(bucket string) ([][]byte, error) {
	var vals [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(bucket + sep)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			vals = append(vals, val)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf(`listing %s failed - %v: %w`, bucket, err, domain.ErrWallet)
	}
	return vals, nil
}

func (b *Badger) Delete(bucket, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(recordKey(bucket, key)))
	})
	if err != nil {
		return fmt.Errorf(`deleting %s/%s failed - %v: %w`, bucket, key, err, domain.ErrWallet)
	}
	return nil
}

// Close can be called more than once, later calls return the first result
func (b *Badger) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.db.Close()
	})
	return b.closeErr
}
