// Package badger stores cascade collections in a Badger database.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	badger "github.com/dgraph-io/badger/v2"
	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/database/embedded"
	"github.com/ohsu-comp-bio/cascade/util"
)

// Badger is a database.Database backed by the Badger embedded database.
// Badger transactions are optimistic; conflicting read-write transactions
// are retried, so each Transition still sees a consistent snapshot.
type Badger struct {
	*embedded.Database
}

// NewBadger creates a new database instance.
func NewBadger(conf config.Badger) (*Badger, error) {
	if err := os.MkdirAll(conf.Path, 0775); err != nil {
		return nil, fmt.Errorf("creating database directory: %s", err)
	}
	opts := badger.DefaultOptions(conf.Path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %s", err)
	}

	r := util.NewRetrier(50)
	r.InitialInterval = time.Millisecond
	r.MaxInterval = time.Millisecond * 100
	r.MaxElapsedTime = time.Minute
	r.Retryable = func(err error) bool {
		return errors.Is(err, badger.ErrConflict)
	}

	return &Badger{embedded.New(&kv{db: db, retrier: r})}, nil
}

type kv struct {
	db      *badger.DB
	retrier *util.Retrier
}

// Init is a no-op; badger buckets are key prefixes.
func (k *kv) Init(buckets []string) error {
	return nil
}

func (k *kv) View(fn func(embedded.Txn) error) error {
	return k.db.View(func(tx *badger.Txn) error {
		return fn(&txn{tx})
	})
}

func (k *kv) Update(fn func(embedded.Txn) error) error {
	return k.retrier.Retry(context.Background(), func() error {
		return k.db.Update(func(tx *badger.Txn) error {
			return fn(&txn{tx})
		})
	})
}

func (k *kv) Close() error {
	return k.db.Close()
}

func prefix(bucket string) []byte {
	return []byte(bucket + "/")
}

func key(bucket, k string) []byte {
	p := prefix(bucket)
	out := make([]byte, 0, len(p)+len(k))
	out = append(out, p...)
	return append(out, k...)
}

type txn struct {
	tx *badger.Txn
}

func (t *txn) Get(bucket, k string) ([]byte, error) {
	item, err := t.tx.Get(key(bucket, k))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *txn) Put(bucket, k string, val []byte) error {
	return t.tx.Set(key(bucket, k), val)
}

func (t *txn) Delete(bucket, k string) error {
	return t.tx.Delete(key(bucket, k))
}

func (t *txn) ForEach(bucket string, fn func(key string, val []byte) error) error {
	p := prefix(bucket)
	it := t.tx.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		item := it.Item()
		k := string(item.Key()[len(p):])
		err := item.Value(func(val []byte) error {
			return fn(k, val)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
