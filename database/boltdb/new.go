// Package boltdb stores cascade collections in a BoltDB file.
package boltdb

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/database/embedded"
)

// BoltDB is a database.Database backed by a BoltDB file. Bolt allows a
// single writer at a time, which makes every Transition serializable.
type BoltDB struct {
	*embedded.Database
}

// NewBoltDB returns a new instance of BoltDB, accessing the database at
// the given path.
func NewBoltDB(conf config.BoltDB) (*BoltDB, error) {
	if err := os.MkdirAll(filepath.Dir(conf.Path), 0775); err != nil {
		return nil, fmt.Errorf("creating database directory: %s", err)
	}
	db, err := bolt.Open(conf.Path, 0600, &bolt.Options{
		Timeout: time.Second * 5,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %s", err)
	}
	return &BoltDB{embedded.New(&kv{db: db})}, nil
}

type kv struct {
	db *bolt.DB
}

// Init creates the required BoltDB buckets
func (k *kv) Init(buckets []string) error {
	return k.db.Update(func(tx *bolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (k *kv) View(fn func(embedded.Txn) error) error {
	return k.db.View(func(tx *bolt.Tx) error {
		return fn(&txn{tx})
	})
}

func (k *kv) Update(fn func(embedded.Txn) error) error {
	return k.db.Update(func(tx *bolt.Tx) error {
		return fn(&txn{tx})
	})
}

func (k *kv) Close() error {
	return k.db.Close()
}

type txn struct {
	tx *bolt.Tx
}

func (t *txn) bucket(name string) (*bolt.Bucket, error) {
	b := t.tx.Bucket([]byte(name))
	if b == nil {
		return nil, fmt.Errorf("bucket %s does not exist, was Init called?", name)
	}
	return b, nil
}

func (t *txn) Get(bucket, key string) ([]byte, error) {
	b, err := t.bucket(bucket)
	if err != nil {
		return nil, err
	}
	val := b.Get([]byte(key))
	if val == nil {
		return nil, nil
	}
	// Bolt values are only valid for the life of the transaction.
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (t *txn) Put(bucket, key string, val []byte) error {
	b, err := t.bucket(bucket)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), val)
}

func (t *txn) Delete(bucket, key string) error {
	b, err := t.bucket(bucket)
	if err != nil {
		return err
	}
	return b.Delete([]byte(key))
}

func (t *txn) ForEach(bucket string, fn func(key string, val []byte) error) error {
	b, err := t.bucket(bucket)
	if err != nil {
		return err
	}
	return b.ForEach(func(k, v []byte) error {
		return fn(string(k), v)
	})
}
