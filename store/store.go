// Package store is the typed repository over the document database.
// Engines use it for record CRUD; conditional state changes go through
// the collections' Transition directly.
package store

import (
	"context"
	"fmt"

	"github.com/ohsu-comp-bio/cascade/database"
)

// Store wraps a database.Database with typed accessors.
type Store struct {
	DB database.Database
}

// New returns a Store over db.
func New(db database.Database) *Store {
	return &Store{DB: db}
}

// Datasets returns the datasets collection.
func (s *Store) Datasets() database.Collection { return s.DB.Collection(database.Datasets) }

// Configs returns the dataset config collection.
func (s *Store) Configs() database.Collection { return s.DB.Collection(database.DatasetConfigs) }

// Jobs returns the jobs collection.
func (s *Store) Jobs() database.Collection { return s.DB.Collection(database.Jobs) }

// Tasks returns the tasks collection.
func (s *Store) Tasks() database.Collection { return s.DB.Collection(database.Tasks) }

// Pilots returns the pilots collection.
func (s *Store) Pilots() database.Collection { return s.DB.Collection(database.Pilots) }

// Requests returns the materialization request collection.
func (s *Store) Requests() database.Collection { return s.DB.Collection(database.Materialization) }

// Logs returns the logs collection.
func (s *Store) Logs() database.Collection { return s.DB.Collection(database.Logs) }

// Users returns the users collection.
func (s *Store) Users() database.Collection { return s.DB.Collection(database.Users) }

// Groups returns the groups collection.
func (s *Store) Groups() database.Collection { return s.DB.Collection(database.Groups) }

// NextSequence atomically increments and returns the named counter.
func (s *Store) NextSequence(ctx context.Context, name string) (int, error) {
	doc, err := s.DB.Collection(database.Sequences).Upsert(ctx,
		database.Filter{database.Eq("name", name)},
		database.Update{Inc: map[string]float64{"value": 1}},
	)
	if err != nil {
		return 0, fmt.Errorf("incrementing sequence %s: %w", name, err)
	}
	return doc.Int("value"), nil
}

func findOne(ctx context.Context, c database.Collection, key, id string, out interface{}) error {
	doc, err := c.FindOne(ctx, database.Filter{database.Eq(key, id)}, nil)
	if err != nil {
		return err
	}
	return database.Decode(doc, out)
}

func insert(ctx context.Context, c database.Collection, v interface{}) error {
	doc, err := database.Encode(v)
	if err != nil {
		return err
	}
	return c.Insert(ctx, doc)
}

func decodeAll[T any](docs []database.Doc) ([]*T, error) {
	out := make([]*T, 0, len(docs))
	for _, d := range docs {
		v := new(T)
		if err := database.Decode(d, v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
