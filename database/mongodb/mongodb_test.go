package mongodb

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/database/dbtest"
	"github.com/ohsu-comp-bio/cascade/util"
)

// TestContract runs against the server named by CASCADE_TEST_MONGODB,
// using a fresh database for each run.
func TestContract(t *testing.T) {
	addrs := os.Getenv("CASCADE_TEST_MONGODB")
	if addrs == "" {
		t.Skip("CASCADE_TEST_MONGODB is not set")
	}
	db, err := NewMongoDB(config.MongoDB{
		Addrs:    strings.Split(addrs, ","),
		Database: "cascade-test-" + util.GenID(),
		Timeout:  config.Duration(10 * time.Second),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := db.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	dbtest.RunContract(t, db)
}
