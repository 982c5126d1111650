// Package database defines the document store contract shared by every
// backend. Each collection holds documents keyed by a unique string field.
// All state coordination between workers goes through Transition, the
// atomic conditional update.
package database

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no document matched a lookup or an atomic
// conditional transition.
var ErrNotFound = errors.New("not found")

// ErrDuplicateKey is returned when an insert collides with an existing key
// or unique index.
var ErrDuplicateKey = errors.New("duplicate key")

// Doc is a stored document. Values are normalized: numbers are float64,
// times are UTC time.Time at millisecond precision, arrays are
// []interface{} and nested documents are Doc.
type Doc map[string]interface{}

// Collection is a set of documents keyed by the collection's key field.
type Collection interface {
	// Insert adds new documents. A key or unique index collision returns
	// ErrDuplicateKey.
	Insert(ctx context.Context, docs ...Doc) error
	FindOne(ctx context.Context, filter Filter, opts *FindOptions) (Doc, error)
	Find(ctx context.Context, filter Filter, opts *FindOptions) ([]Doc, error)
	// Transition atomically selects the first document matching filter
	// (under opts.Sort), applies update and returns the updated document.
	// When nothing matches it returns ErrNotFound and changes nothing.
	Transition(ctx context.Context, filter Filter, update Update, opts *FindOptions) (Doc, error)
	// Upsert is Transition that inserts a new document when nothing
	// matches. The new document is seeded from the filter's Eq conditions.
	Upsert(ctx context.Context, filter Filter, update Update) (Doc, error)
	// UpdateMany applies update to every matching document. Each document
	// is updated atomically; the set as a whole is not.
	UpdateMany(ctx context.Context, filter Filter, update Update) (int, error)
	DeleteMany(ctx context.Context, filter Filter) (int, error)
	Count(ctx context.Context, filter Filter) (int, error)
	// CountBy groups matching documents by the value of field and counts them.
	CountBy(ctx context.Context, filter Filter, field string) (map[string]int, error)
}

// Database is a set of named collections.
type Database interface {
	// Init creates collections and indexes.
	Init(ctx context.Context) error
	Collection(name string) Collection
	Close() error
}
