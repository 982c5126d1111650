package store

import (
	"context"
	"errors"

	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/model"
)

// UserPriority returns a user's priority weight, or def when the user
// has none.
func (s *Store) UserPriority(ctx context.Context, username string, def float64) (float64, error) {
	return weight(ctx, s.Users(), "username", username, def)
}

// GroupPriority returns a group's priority weight, or def when the group
// has none.
func (s *Store) GroupPriority(ctx context.Context, name string, def float64) (float64, error) {
	return weight(ctx, s.Groups(), "name", name, def)
}

// SetUserPriority sets a user's priority weight.
func (s *Store) SetUserPriority(ctx context.Context, username string, p float64) error {
	return setWeight(ctx, s.Users(), "username", username, p)
}

// SetGroupPriority sets a group's priority weight.
func (s *Store) SetGroupPriority(ctx context.Context, name string, p float64) error {
	return setWeight(ctx, s.Groups(), "name", name, p)
}

func weight(ctx context.Context, c database.Collection, key, id string, def float64) (float64, error) {
	doc, err := c.FindOne(ctx, database.Filter{database.Eq(key, id)}, nil)
	if errors.Is(err, database.ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return 0, err
	}
	v, ok := doc["priority"].(float64)
	if !ok {
		return def, nil
	}
	return v, nil
}

func setWeight(ctx context.Context, c database.Collection, key, id string, p float64) error {
	if id == "" {
		return model.Invalid("%s is required", key)
	}
	if p < 0 || p > 1 {
		return model.Invalid("priority must be within [0, 1]")
	}
	_, err := c.Upsert(ctx,
		database.Filter{database.Eq(key, id)},
		database.Update{Set: database.Doc{"priority": p}},
	)
	return err
}
