// Package storetest provides a store backed by a temporary BoltDB file
// for package tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/database/boltdb"
	"github.com/ohsu-comp-bio/cascade/model"
	"github.com/ohsu-comp-bio/cascade/store"
)

// New returns an initialized, empty store which is closed when the test ends.
func New(t testing.TB) *store.Store {
	t.Helper()
	db, err := boltdb.NewBoltDB(config.BoltDB{Path: filepath.Join(t.TempDir(), "cascade.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	return store.New(db)
}

// Dataset creates a processing dataset with the given shape and a config
// of tasksPerJob plain templates named task0, task1, ...
func Dataset(t testing.TB, s *store.Store, jobs, tasksPerJob int) *model.Dataset {
	t.Helper()
	ctx := context.Background()
	d := &model.Dataset{
		Username:      "alice",
		Group:         "users",
		Priority:      0.5,
		JobsSubmitted: jobs,
		TasksPerJob:   tasksPerJob,
	}
	if err := s.CreateDataset(ctx, d); err != nil {
		t.Fatal(err)
	}
	conf := &model.DatasetConfig{DatasetID: d.DatasetID}
	for i := 0; i < tasksPerJob; i++ {
		conf.Tasks = append(conf.Tasks, model.TaskTemplate{Name: "task" + string(rune('0'+i))})
	}
	if err := s.PutConfig(ctx, conf); err != nil {
		t.Fatal(err)
	}
	return d
}
