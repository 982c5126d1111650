package util

import (
	"context"
	"fmt"
	"strings"

	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/database/badger"
	"github.com/ohsu-comp-bio/cascade/database/boltdb"
	"github.com/ohsu-comp-bio/cascade/database/mongodb"
)

// OpenDatabase connects to the configured database and creates its
// collections and indexes.
func OpenDatabase(ctx context.Context, conf config.Config) (database.Database, error) {
	var db database.Database
	var err error

	switch strings.ToLower(conf.Database) {
	case "boltdb":
		db, err = boltdb.NewBoltDB(conf.BoltDB)
	case "badger":
		db, err = badger.NewBadger(conf.Badger)
	case "mongodb":
		db, err = mongodb.NewMongoDB(conf.MongoDB)
	default:
		return nil, fmt.Errorf("unknown database: '%s'", conf.Database)
	}
	if err != nil {
		return nil, fmt.Errorf("error occurred while connecting to or creating the database: %v", err)
	}

	if err := db.Init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error occurred while initializing the database: %v", err)
	}
	return db, nil
}
