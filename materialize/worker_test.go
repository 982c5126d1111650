package materialize

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/model"
	"github.com/ohsu-comp-bio/cascade/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestDedupe(t *testing.T) {
	ctx := context.Background()
	s, m := setup(t)
	d := storetest.Dataset(t, s, 2, 1)

	a, err := m.Request(ctx, d.DatasetID, 1, "")
	require.NoError(t, err)
	b, err := m.Request(ctx, d.DatasetID, 5, "")
	require.NoError(t, err)
	assert.Equal(t, a.MaterializationID, b.MaterializationID)

	sweep, err := m.Request(ctx, "", 0, "")
	require.NoError(t, err)
	assert.NotEqual(t, a.MaterializationID, sweep.MaterializationID)

	_, err = m.Request(ctx, "missing", 0, "")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestRequestConcurrentDedupe(t *testing.T) {
	ctx := context.Background()
	s, m := setup(t)
	d := storetest.Dataset(t, s, 2, 1)

	ids := make([]string, 20)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, err := m.Request(ctx, d.DatasetID, 1, "")
			if assert.NoError(t, err) {
				ids[i] = req.MaterializationID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	n, err := s.Requests().Count(ctx, database.Filter{
		database.Eq("dataset_id", d.DatasetID),
		database.Eq("status", string(model.RequestWaiting)),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestProcessNext(t *testing.T) {
	ctx := context.Background()
	s, m := setup(t)
	d := storetest.Dataset(t, s, 3, 2)
	w := NewWorker(m)

	worked, err := w.ProcessNext(ctx)
	require.NoError(t, err)
	assert.False(t, worked)

	req, err := m.Request(ctx, d.DatasetID, 2, "")
	require.NoError(t, err)
	worked, err = w.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, worked)

	got, err := m.Status(ctx, req.MaterializationID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestComplete, got.Status)
	assert.Equal(t, 2, got.JobsBuffered)
	assert.Equal(t, 4, got.TasksBuffered)

	// A new request may be made once the previous one left waiting.
	next, err := m.Request(ctx, d.DatasetID, 2, "")
	require.NoError(t, err)
	assert.NotEqual(t, req.MaterializationID, next.MaterializationID)
}

func TestProcessNextRecordsError(t *testing.T) {
	ctx := context.Background()
	s, m := setup(t)
	d := dataset(t, s, 1, model.TaskTemplate{Name: "a", Depends: []interface{}{"a"}})
	w := NewWorker(m)

	req, err := m.Request(ctx, d.DatasetID, 0, "")
	require.NoError(t, err)
	worked, err := w.ProcessNext(ctx)
	assert.True(t, worked)
	assert.ErrorIs(t, err, ErrBadConfig)

	got, err := m.Status(ctx, req.MaterializationID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestError, got.Status)
	assert.Contains(t, got.Error, "not an earlier task")
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	s, m := setup(t)
	old := time.Now().UTC().Add(-7 * time.Hour)
	fresh := time.Now().UTC()

	insert := func(id string, status model.RequestStatus, modified time.Time) {
		doc, err := database.Encode(&model.MaterializationRequest{
			MaterializationID: id,
			Status:            status,
			CreateTimestamp:   modified,
			ModifyTimestamp:   modified,
		})
		require.NoError(t, err)
		require.NoError(t, s.Requests().Insert(ctx, doc))
	}
	insert("stale", model.RequestProcessing, old)
	insert("busy", model.RequestProcessing, fresh)
	insert("done-old", model.RequestComplete, old)
	insert("err-old", model.RequestError, old)
	insert("done-new", model.RequestComplete, fresh)

	reset, deleted, err := m.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reset)
	assert.Equal(t, 2, deleted)

	got, err := m.Status(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, model.RequestWaiting, got.Status)
	got, err = m.Status(ctx, "busy")
	require.NoError(t, err)
	assert.Equal(t, model.RequestProcessing, got.Status)
	_, err = m.Status(ctx, "done-old")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestHealth(t *testing.T) {
	ctx := context.Background()
	_, m := setup(t)
	w := NewWorker(m)

	_, err := w.Health(ctx)
	assert.Error(t, err, "not started")

	now := time.Now()
	w.now = func() time.Time { return now }
	w.started = now.Add(-2 * time.Hour)
	w.lastRun = now.Add(-time.Minute)
	w.lastSuccess = now.Add(-time.Minute)
	hs, err := w.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, hs.Backlog)

	w.lastRun = now.Add(-2 * time.Hour)
	_, err = w.Health(ctx)
	assert.Error(t, err)

	w.lastRun = now.Add(-time.Minute)
	w.lastSuccess = time.Time{}
	w.started = now.Add(-25 * time.Hour)
	_, err = w.Health(ctx)
	assert.Error(t, err, "never succeeded since start")
}

func TestWorkerRun(t *testing.T) {
	s, m := setup(t)
	d := storetest.Dataset(t, s, 2, 1)
	w := NewWorker(m)

	req, err := m.Request(context.Background(), d.DatasetID, 0, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		got, err := m.Status(context.Background(), req.MaterializationID)
		return err == nil && got.Status == model.RequestComplete
	}, 5*time.Second, 10*time.Millisecond)

	_, err = w.Health(context.Background())
	assert.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}
