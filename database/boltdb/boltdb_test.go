package boltdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/database/dbtest"
)

func TestContract(t *testing.T) {
	db, err := NewBoltDB(config.BoltDB{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := db.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	dbtest.RunContract(t, db)
}
