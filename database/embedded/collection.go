// Package embedded implements the database contract over an ordered
// key/value engine. Documents are stored as BSON values keyed by the
// collection's key field. Queries scan the collection inside a single
// transaction, so Transition is atomic as long as the engine serializes
// (or conflict-checks) read-write transactions.
package embedded

import (
	"context"
	"fmt"
	"strings"

	"github.com/ohsu-comp-bio/cascade/database"
)

// batchSize bounds the number of documents written per transaction by
// UpdateMany and DeleteMany.
const batchSize = 500

// Database is a database.Database backed by a KV engine.
type Database struct {
	kv KV
}

// New returns a Database over the given engine.
func New(kv KV) *Database {
	return &Database{kv: kv}
}

// Init creates one bucket per collection, plus one holding its unique
// index entries.
func (db *Database) Init(ctx context.Context) error {
	names := make([]string, 0, 2*len(database.Schemas))
	for _, s := range database.Schemas {
		names = append(names, s.Name, uniqueBucket(s.Name))
	}
	return db.kv.Init(names)
}

func uniqueBucket(name string) string {
	return name + ".unique"
}

// Collection returns the named collection.
func (db *Database) Collection(name string) database.Collection {
	schema, ok := database.SchemaFor(name)
	if !ok {
		schema = database.Schema{Name: name, Key: "id"}
	}
	return &collection{kv: db.kv, schema: schema}
}

// Close closes the underlying engine.
func (db *Database) Close() error {
	return db.kv.Close()
}

type collection struct {
	kv     KV
	schema database.Schema
}

func (c *collection) key(doc database.Doc) (string, error) {
	k, ok := doc[c.schema.Key].(string)
	if !ok || k == "" {
		return "", fmt.Errorf("%s: document is missing key field %q", c.schema.Name, c.schema.Key)
	}
	return k, nil
}

func (c *collection) get(tx Txn, key string) (database.Doc, error) {
	b, err := tx.Get(c.schema.Name, key)
	if err != nil || b == nil {
		return nil, err
	}
	return database.Unmarshal(b)
}

func (c *collection) put(tx Txn, doc database.Doc) error {
	key, err := c.key(doc)
	if err != nil {
		return err
	}
	b, err := database.Marshal(doc)
	if err != nil {
		return err
	}
	return tx.Put(c.schema.Name, key, b)
}

// scan returns every document matching filter, in key order.
func (c *collection) scan(tx Txn, filter database.Filter) ([]database.Doc, error) {
	// A key equality condition is a point lookup.
	for _, cond := range filter {
		if cond.Field == c.schema.Key && cond.Op == database.OpEq && !cond.OrMissing {
			key, _ := cond.Value.(string)
			doc, err := c.get(tx, key)
			if err != nil || doc == nil || !Match(doc, filter) {
				return nil, err
			}
			return []database.Doc{doc}, nil
		}
	}

	var out []database.Doc
	err := tx.ForEach(c.schema.Name, func(_ string, val []byte) error {
		doc, err := database.Unmarshal(val)
		if err != nil {
			return err
		}
		if Match(doc, filter) {
			out = append(out, doc)
		}
		return nil
	})
	return out, err
}

// checkUnique fails when another document shares the values of a unique
// index with doc.
func (c *collection) checkUnique(tx Txn, doc database.Doc) error {
	key, _ := c.key(doc)
	for _, idx := range c.schema.Indexes {
		if !idx.Unique {
			continue
		}
		var f database.Filter
		complete := true
		for _, field := range idx.Fields {
			v, ok := database.Lookup(doc, field)
			complete = complete && ok
			f = append(f, database.Eq(field, v))
		}
		if idx.Partial && !complete {
			continue
		}
		// Writing the index entry makes concurrent inserts of the same
		// values conflict on engines with optimistic transactions. The
		// scan below stays authoritative, so stale entries are harmless.
		entry := strings.Join(idx.Fields, ",") + "=" + fmt.Sprint(f)
		if _, err := tx.Get(uniqueBucket(c.schema.Name), entry); err != nil {
			return err
		}
		if err := tx.Put(uniqueBucket(c.schema.Name), entry, []byte(key)); err != nil {
			return err
		}
		f = append(f, database.Ne(c.schema.Key, key))
		dups, err := c.scan(tx, f)
		if err != nil {
			return err
		}
		if len(dups) > 0 {
			return fmt.Errorf("%s: unique index (%s): %w",
				c.schema.Name, strings.Join(idx.Fields, ", "), database.ErrDuplicateKey)
		}
	}
	return nil
}

func (c *collection) touchesUnique(u database.Update) bool {
	for _, idx := range c.schema.Indexes {
		if !idx.Unique {
			continue
		}
		for _, f := range idx.Fields {
			if _, ok := u.Set[f]; ok {
				return true
			}
		}
	}
	return false
}

func (c *collection) Insert(ctx context.Context, docs ...database.Doc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.kv.Update(func(tx Txn) error {
		for _, d := range docs {
			doc := database.Copy(d)
			key, err := c.key(doc)
			if err != nil {
				return err
			}
			existing, err := tx.Get(c.schema.Name, key)
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("%s: key %s: %w", c.schema.Name, key, database.ErrDuplicateKey)
			}
			if err := c.checkUnique(tx, doc); err != nil {
				return err
			}
			if err := c.put(tx, doc); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *collection) FindOne(ctx context.Context, filter database.Filter, opts *database.FindOptions) (database.Doc, error) {
	o := database.FindOptions{}
	if opts != nil {
		o = *opts
	}
	o.Limit = 1
	docs, err := c.Find(ctx, filter, &o)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, database.ErrNotFound
	}
	return docs[0], nil
}

func (c *collection) Find(ctx context.Context, filter database.Filter, opts *database.FindOptions) ([]database.Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &database.FindOptions{}
	}
	var docs []database.Doc
	err := c.kv.View(func(tx Txn) error {
		var err error
		docs, err = c.scan(tx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}

	sortDocs(docs, opts.Sort)
	if opts.Limit > 0 && len(docs) > opts.Limit {
		docs = docs[:opts.Limit]
	}
	for i := range docs {
		docs[i] = project(docs[i], c.schema.Key, opts.Projection)
	}
	return docs, nil
}

func (c *collection) Transition(ctx context.Context, filter database.Filter, update database.Update, opts *database.FindOptions) (database.Doc, error) {
	return c.transition(ctx, filter, update, opts, false)
}

func (c *collection) Upsert(ctx context.Context, filter database.Filter, update database.Update) (database.Doc, error) {
	return c.transition(ctx, filter, update, nil, true)
}

func (c *collection) transition(ctx context.Context, filter database.Filter, update database.Update, opts *database.FindOptions, upsert bool) (database.Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var sortBy []database.SortField
	if opts != nil {
		sortBy = opts.Sort
	}

	var result database.Doc
	err := c.kv.Update(func(tx Txn) error {
		result = nil
		docs, err := c.scan(tx, filter)
		if err != nil {
			return err
		}

		var doc database.Doc
		switch {
		case len(docs) > 0:
			sortDocs(docs, sortBy)
			doc = docs[0]
		case upsert:
			doc = seed(filter)
			for k, v := range update.SetOnInsert {
				database.SetPath(doc, k, database.Normalize(v))
			}
		default:
			return database.ErrNotFound
		}

		apply(doc, update)
		if len(docs) == 0 || c.touchesUnique(update) {
			if err := c.checkUnique(tx, doc); err != nil {
				return err
			}
		}
		if err := c.put(tx, doc); err != nil {
			return err
		}
		result = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// keys returns the keys of all matching documents.
func (c *collection) keys(filter database.Filter) ([]string, error) {
	var keys []string
	err := c.kv.View(func(tx Txn) error {
		docs, err := c.scan(tx, filter)
		for _, d := range docs {
			k, _ := c.key(d)
			keys = append(keys, k)
		}
		return err
	})
	return keys, err
}

// batch runs fn over keys in transactions of at most batchSize keys.
// Each document is re-read and re-matched inside its transaction.
func (c *collection) batch(ctx context.Context, filter database.Filter, fn func(tx Txn, key string, doc database.Doc) error) (int, error) {
	keys, err := c.keys(filter)
	if err != nil {
		return 0, err
	}

	total := 0
	for start := 0; start < len(keys); start += batchSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		n := 0
		err := c.kv.Update(func(tx Txn) error {
			n = 0
			for _, key := range keys[start:end] {
				doc, err := c.get(tx, key)
				if err != nil {
					return err
				}
				if doc == nil || !Match(doc, filter) {
					continue
				}
				if err := fn(tx, key, doc); err != nil {
					return err
				}
				n++
			}
			return nil
		})
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (c *collection) UpdateMany(ctx context.Context, filter database.Filter, update database.Update) (int, error) {
	return c.batch(ctx, filter, func(tx Txn, key string, doc database.Doc) error {
		apply(doc, update)
		return c.put(tx, doc)
	})
}

func (c *collection) DeleteMany(ctx context.Context, filter database.Filter) (int, error) {
	return c.batch(ctx, filter, func(tx Txn, key string, doc database.Doc) error {
		return tx.Delete(c.schema.Name, key)
	})
}

func (c *collection) Count(ctx context.Context, filter database.Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := 0
	err := c.kv.View(func(tx Txn) error {
		docs, err := c.scan(tx, filter)
		n = len(docs)
		return err
	})
	return n, err
}

func (c *collection) CountBy(ctx context.Context, filter database.Filter, field string) (map[string]int, error) {
	docs, err := c.Find(ctx, filter, database.Project(field))
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, d := range docs {
		v, _ := database.Lookup(d, field)
		counts[fmt.Sprintf("%v", v)]++
	}
	return counts, nil
}
