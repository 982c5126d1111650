package embedded

// KV is an ordered key/value engine with serializable transactions.
// Keys are grouped into named buckets, one per collection.
type KV interface {
	// Init creates the named buckets.
	Init(buckets []string) error
	View(fn func(Txn) error) error
	// Update runs fn in a read-write transaction. The engine retries fn
	// when the transaction conflicts with a concurrent one.
	Update(fn func(Txn) error) error
	Close() error
}

// Txn is a transaction over a KV.
type Txn interface {
	// Get returns nil when the key is absent.
	Get(bucket, key string) ([]byte, error)
	Put(bucket, key string, val []byte) error
	Delete(bucket, key string) error
	// ForEach visits every key of a bucket in key order. The value slice is
	// only valid during the call.
	ForEach(bucket string, fn func(key string, val []byte) error) error
}
