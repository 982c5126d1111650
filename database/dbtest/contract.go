// Package dbtest contains a test suite shared by the database backends.
package dbtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunContract exercises the database.Database contract against db.
// db must be initialized and empty.
func RunContract(t *testing.T, db database.Database) {
	t.Run("InsertFind", func(t *testing.T) { testInsertFind(t, db) })
	t.Run("DuplicateKey", func(t *testing.T) { testDuplicateKey(t, db) })
	t.Run("Transition", func(t *testing.T) { testTransition(t, db) })
	t.Run("ConcurrentTransition", func(t *testing.T) { testConcurrentTransition(t, db) })
	t.Run("Upsert", func(t *testing.T) { testUpsert(t, db) })
	t.Run("SetOnInsert", func(t *testing.T) { testSetOnInsert(t, db) })
	t.Run("UpdateMax", func(t *testing.T) { testUpdateMax(t, db) })
	t.Run("ManyAndCounts", func(t *testing.T) { testManyAndCounts(t, db) })
	t.Run("OrMissing", func(t *testing.T) { testOrMissing(t, db) })
}

func task(id, dataset, status string, priority float64) database.Doc {
	return database.Doc{
		"task_id":    id,
		"dataset_id": dataset,
		"status":     status,
		"priority":   priority,
		"created":    time.Now(),
	}
}

func testInsertFind(t *testing.T, db database.Database) {
	ctx := context.Background()
	c := db.Collection(database.Tasks)
	require.NoError(t, c.Insert(ctx,
		task("if-1", "ds-if", "waiting", 0.1),
		task("if-2", "ds-if", "waiting", 0.9),
		task("if-3", "ds-if", "queued", 0.5),
	))

	docs, err := c.Find(ctx, database.Filter{database.Eq("dataset_id", "ds-if")}, database.Sorted("-priority"))
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "if-2", docs[0]["task_id"])
	assert.Equal(t, "if-1", docs[2]["task_id"])

	doc, err := c.FindOne(ctx, database.Filter{database.Eq("task_id", "if-3")}, database.Project("status"))
	require.NoError(t, err)
	assert.Equal(t, database.Doc{"task_id": "if-3", "status": "queued"}, doc)

	_, err = c.FindOne(ctx, database.Filter{database.Eq("task_id", "missing")}, nil)
	assert.True(t, errors.Is(err, database.ErrNotFound))
}

func testDuplicateKey(t *testing.T, db database.Database) {
	ctx := context.Background()
	tasks := db.Collection(database.Tasks)
	require.NoError(t, tasks.Insert(ctx, task("dup-1", "ds-dup", "waiting", 0)))
	err := tasks.Insert(ctx, task("dup-1", "ds-dup", "waiting", 0))
	assert.True(t, errors.Is(err, database.ErrDuplicateKey), "got %v", err)

	jobs := db.Collection(database.Jobs)
	require.NoError(t, jobs.Insert(ctx, database.Doc{"job_id": "j1", "dataset_id": "ds-dup", "job_index": 0}))
	err = jobs.Insert(ctx, database.Doc{"job_id": "j2", "dataset_id": "ds-dup", "job_index": 0})
	assert.True(t, errors.Is(err, database.ErrDuplicateKey), "got %v", err)
}

func testTransition(t *testing.T, db database.Database) {
	ctx := context.Background()
	c := db.Collection(database.Tasks)
	require.NoError(t, c.Insert(ctx,
		task("tr-1", "ds-tr", "queued", 0.2),
		task("tr-2", "ds-tr", "queued", 0.8),
	))

	f := database.Filter{database.Eq("dataset_id", "ds-tr"), database.Eq("status", "queued")}
	u := database.Update{Set: database.Doc{"status": "processing"}, Inc: map[string]float64{"failures": 1}}

	doc, err := c.Transition(ctx, f, u, database.Sorted("-priority"))
	require.NoError(t, err)
	assert.Equal(t, "tr-2", doc["task_id"])
	assert.Equal(t, "processing", doc["status"])
	assert.Equal(t, 1.0, doc["failures"])

	doc, err = c.Transition(ctx, f, u, database.Sorted("-priority"))
	require.NoError(t, err)
	assert.Equal(t, "tr-1", doc["task_id"])

	_, err = c.Transition(ctx, f, u, database.Sorted("-priority"))
	assert.True(t, errors.Is(err, database.ErrNotFound))
}

func testConcurrentTransition(t *testing.T, db database.Database) {
	ctx := context.Background()
	c := db.Collection(database.Tasks)
	const n = 20
	for i := 0; i < n; i++ {
		require.NoError(t, c.Insert(ctx, task(fmt.Sprintf("ct-%02d", i), "ds-ct", "queued", float64(i))))
	}

	f := database.Filter{database.Eq("dataset_id", "ds-ct"), database.Eq("status", "queued")}
	u := database.Update{Set: database.Doc{"status": "processing"}}

	var mtx sync.Mutex
	claimed := map[string]int{}
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				doc, err := c.Transition(ctx, f, u, database.Sorted("-priority"))
				if errors.Is(err, database.ErrNotFound) {
					return
				}
				if !assert.NoError(t, err) {
					return
				}
				mtx.Lock()
				claimed[doc.String("task_id")]++
				mtx.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, n)
	for id, count := range claimed {
		assert.Equal(t, 1, count, "task %s claimed more than once", id)
	}
}

func testUpsert(t *testing.T, db database.Database) {
	ctx := context.Background()
	c := db.Collection(database.Sequences)
	f := database.Filter{database.Eq("name", "dataset")}
	u := database.Update{Inc: map[string]float64{"value": 1}}

	doc, err := c.Upsert(ctx, f, u)
	require.NoError(t, err)
	assert.Equal(t, 1.0, doc["value"])
	assert.Equal(t, "dataset", doc["name"])

	doc, err = c.Upsert(ctx, f, u)
	require.NoError(t, err)
	assert.Equal(t, 2.0, doc["value"])
}

func testSetOnInsert(t *testing.T, db database.Database) {
	ctx := context.Background()
	c := db.Collection(database.Materialization)
	f := database.Filter{database.Eq("pending", "ds-soi")}
	req := func(id string) database.Update {
		return database.Update{SetOnInsert: database.Doc{
			"materialization_id": id,
			"status":             "waiting",
		}}
	}

	var wg sync.WaitGroup
	ids := make([]string, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc, err := c.Upsert(ctx, f, req(fmt.Sprintf("soi-%d", i)))
			if errors.Is(err, database.ErrDuplicateKey) {
				doc, err = c.Upsert(ctx, f, req(fmt.Sprintf("soi-%d", i)))
			}
			if assert.NoError(t, err) {
				ids[i], _ = doc["materialization_id"].(string)
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	n, err := c.Count(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Once the key is cleared a new document is inserted.
	_, err = c.Transition(ctx, f, database.Update{Unset: []string{"pending"}}, nil)
	require.NoError(t, err)
	doc, err := c.Upsert(ctx, f, req("soi-next"))
	require.NoError(t, err)
	assert.Equal(t, "soi-next", doc["materialization_id"])
	assert.Equal(t, "ds-soi", doc["pending"])
}

func testUpdateMax(t *testing.T, db database.Database) {
	ctx := context.Background()
	c := db.Collection(database.Tasks)
	d := task("max-1", "ds-max", "waiting", 0)
	d["requirements"] = database.Doc{"memory": 4.0}
	require.NoError(t, c.Insert(ctx, d))

	f := database.Filter{database.Eq("task_id", "max-1")}
	doc, err := c.Transition(ctx, f, database.Update{Max: map[string]float64{"requirements.memory": 3.0, "requirements.disk": 2.0}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4.0, doc.Float("requirements.memory"))
	assert.Equal(t, 2.0, doc.Float("requirements.disk"))

	doc, err = c.Transition(ctx, f, database.Update{Max: map[string]float64{"requirements.memory": 6.0}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 6.0, doc.Float("requirements.memory"))
}

func testManyAndCounts(t *testing.T, db database.Database) {
	ctx := context.Background()
	c := db.Collection(database.Tasks)
	require.NoError(t, c.Insert(ctx,
		task("m-1", "ds-m", "waiting", 0),
		task("m-2", "ds-m", "waiting", 0),
		task("m-3", "ds-m", "failed", 0),
	))
	scope := database.Filter{database.Eq("dataset_id", "ds-m")}

	counts, err := c.CountBy(ctx, scope, "status")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"waiting": 2, "failed": 1}, counts)

	n, err := c.UpdateMany(ctx, scope.And(database.Eq("status", "waiting")), database.Update{Set: database.Doc{"status": "suspended"}})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.Count(ctx, scope.And(database.Eq("status", "suspended")))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.DeleteMany(ctx, scope.And(database.In("status", []string{"failed"})))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = c.Count(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func testOrMissing(t *testing.T, db database.Database) {
	ctx := context.Background()
	c := db.Collection(database.Tasks)
	withMem := task("om-1", "ds-om", "queued", 0)
	withMem["requirements"] = database.Doc{"memory": 4.5, "os": []interface{}{"RHEL_7", "RHEL_8"}}
	without := task("om-2", "ds-om", "queued", 0)
	require.NoError(t, c.Insert(ctx, withMem, without))

	scope := database.Filter{database.Eq("dataset_id", "ds-om")}

	docs, err := c.Find(ctx, scope.And(database.OrMissing(database.Lte("requirements.memory", 2.0))), nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "om-2", docs[0]["task_id"])

	docs, err = c.Find(ctx, scope.And(database.OrMissing(database.Lte("requirements.memory", 6.0))), nil)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = c.Find(ctx, scope.And(database.Eq("requirements.os", "RHEL_8")), nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "om-1", docs[0]["task_id"])
}
