package loops

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/logger"
	"github.com/ohsu-comp-bio/cascade/materialize"
	"github.com/ohsu-comp-bio/cascade/model"
	"github.com/ohsu-comp-bio/cascade/queue"
	"github.com/ohsu-comp-bio/cascade/store"
	"github.com/ohsu-comp-bio/cascade/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	s *store.Store
	q *queue.Queue
	m *materialize.Materializer
	l *Loops
}

func setup(t *testing.T, conf config.Config) *fixture {
	t.Helper()
	s := storetest.New(t)
	log := logger.NewLogger("loops", logger.DefaultConfig())
	log.Discard()
	q := queue.New(s, conf.Queue, log, nil)
	m := materialize.New(s, conf, log, nil)
	return &fixture{s: s, q: q, m: m, l: New(s, q, m, conf, log, nil)}
}

// buffer materializes every job of d.
func (f *fixture) buffer(t *testing.T, d *model.Dataset, num int) []*model.Task {
	t.Helper()
	ctx := context.Background()
	_, err := f.m.RunOnce(ctx, materialize.Options{DatasetID: d.DatasetID, Num: num})
	require.NoError(t, err)
	tasks, err := f.s.ListTasks(ctx,
		database.Filter{database.Eq("dataset_id", d.DatasetID)},
		database.Sorted("job_index", "task_index"),
	)
	require.NoError(t, err)
	return tasks
}

func (f *fixture) setStatus(t *testing.T, status model.TaskStatus, tasks ...*model.Task) {
	t.Helper()
	for _, task := range tasks {
		require.NoError(t, f.q.SetStatus(context.Background(), task.TaskID, status))
	}
}

func (f *fixture) task(t *testing.T, id string) *model.Task {
	t.Helper()
	task, err := f.s.GetTask(context.Background(), id)
	require.NoError(t, err)
	return task
}

func (f *fixture) jobStatus(t *testing.T, d *model.Dataset, index int) model.JobStatus {
	t.Helper()
	jobs, err := f.s.ListJobs(context.Background(),
		database.Filter{database.Eq("dataset_id", d.DatasetID), database.Eq("job_index", index)}, nil)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	return jobs[0].Status
}

func (f *fixture) datasetStatus(t *testing.T, d *model.Dataset) model.DatasetStatus {
	t.Helper()
	got, err := f.s.GetDataset(context.Background(), d.DatasetID)
	require.NoError(t, err)
	return got.Status
}

func TestNextDelay(t *testing.T) {
	tests := []struct {
		interval, elapsed, min, want time.Duration
	}{
		{time.Minute, 10 * time.Second, time.Second, 50 * time.Second},
		{time.Minute, 2 * time.Minute, 5 * time.Second, 5 * time.Second},
		{time.Minute, 59 * time.Second, 5 * time.Second, 5 * time.Second},
		{time.Minute, 0, 0, time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NextDelay(tt.interval, tt.elapsed, tt.min))
	}
}

func TestRegistry(t *testing.T) {
	f := setup(t, config.DefaultConfig())
	assert.Equal(t, []string{
		JobCompletion, DatasetCompletion, NonActiveTasks, QueueTasks,
		UpdateTaskPriority, CleanPilots, MaterializationCleanup, Metrics,
	}, f.l.Names())

	lp, err := f.l.Get(QueueTasks)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, lp.Interval)
	assert.Equal(t, time.Minute, lp.MinDelay)

	_, err = f.l.Get("nope")
	assert.Error(t, err)
}

func TestJobAndDatasetCompletion(t *testing.T) {
	ctx := context.Background()
	f := setup(t, config.DefaultConfig())
	d := storetest.Dataset(t, f.s, 3, 2)
	tasks := f.buffer(t, d, 0)
	require.Len(t, tasks, 6)

	// job 0 done, job 1 failed, job 2 still running
	f.setStatus(t, model.TaskComplete, tasks[0], tasks[1])
	f.setStatus(t, model.TaskComplete, tasks[2])
	f.setStatus(t, model.TaskFailed, tasks[3])
	f.setStatus(t, model.TaskComplete, tasks[4])

	require.NoError(t, f.l.JobCompletion(ctx, true))
	assert.Equal(t, model.JobComplete, f.jobStatus(t, d, 0))
	assert.Equal(t, model.JobErrors, f.jobStatus(t, d, 1))
	assert.Equal(t, model.JobProcessing, f.jobStatus(t, d, 2))

	require.NoError(t, f.l.DatasetCompletion(ctx, true))
	assert.Equal(t, model.DatasetProcessing, f.datasetStatus(t, d))

	f.setStatus(t, model.TaskSuspended, tasks[5])
	require.NoError(t, f.l.JobCompletion(ctx, true))
	assert.Equal(t, model.JobSuspended, f.jobStatus(t, d, 2))

	require.NoError(t, f.l.DatasetCompletion(ctx, true))
	assert.Equal(t, model.DatasetErrors, f.datasetStatus(t, d))
}

func TestDatasetComplete(t *testing.T) {
	ctx := context.Background()
	f := setup(t, config.DefaultConfig())
	d := storetest.Dataset(t, f.s, 2, 1)
	tasks := f.buffer(t, d, 0)
	f.setStatus(t, model.TaskComplete, tasks...)

	require.NoError(t, f.l.JobCompletion(ctx, true))
	require.NoError(t, f.l.DatasetCompletion(ctx, true))
	assert.Equal(t, model.DatasetComplete, f.datasetStatus(t, d))
}

func TestDatasetCompletionWaitsForBuffering(t *testing.T) {
	ctx := context.Background()
	f := setup(t, config.DefaultConfig())
	d := storetest.Dataset(t, f.s, 3, 1)
	tasks := f.buffer(t, d, 1)
	require.Len(t, tasks, 1)
	f.setStatus(t, model.TaskComplete, tasks...)

	require.NoError(t, f.l.JobCompletion(ctx, true))
	require.NoError(t, f.l.DatasetCompletion(ctx, true))
	assert.Equal(t, model.DatasetProcessing, f.datasetStatus(t, d))

	// truncated datasets skip the target check
	require.NoError(t, f.s.SetDatasetStatus(ctx, d.DatasetID, model.DatasetTruncated))
	require.NoError(t, f.l.DatasetCompletion(ctx, true))
	assert.Equal(t, model.DatasetComplete, f.datasetStatus(t, d))
}

func TestDatasetWithoutConfigIsSuspended(t *testing.T) {
	ctx := context.Background()
	f := setup(t, config.DefaultConfig())
	d := &model.Dataset{Username: "bob", Group: "users", JobsSubmitted: 1, TasksPerJob: 1}
	require.NoError(t, f.s.CreateDataset(ctx, d))

	require.NoError(t, f.l.DatasetCompletion(ctx, true))
	assert.Equal(t, model.DatasetSuspended, f.datasetStatus(t, d))
}

func TestOrphanedTaskReset(t *testing.T) {
	ctx := context.Background()
	conf := config.DefaultConfig()
	conf.Loops.OrphanGrace = config.Duration(5 * time.Minute)
	f := setup(t, conf)
	d := storetest.Dataset(t, f.s, 1, 2)
	tasks := f.buffer(t, d, 0)
	f.setStatus(t, model.TaskProcessing, tasks...)

	// the second task is held by a live pilot
	p := &model.Pilot{QueueHost: "condor", GridQueueID: "1.0"}
	require.NoError(t, f.s.CreatePilot(ctx, p))
	_, err := f.s.UpdatePilot(ctx, p.PilotID, map[string]interface{}{"tasks": []string{tasks[1].TaskID}})
	require.NoError(t, err)

	start := time.Now().UTC()
	f.l.now = func() time.Time { return start.Add(time.Minute) }
	require.NoError(t, f.l.NonActiveTasks(ctx, true))
	assert.Equal(t, model.TaskProcessing, f.task(t, tasks[0].TaskID).Status)

	f.l.now = func() time.Time { return start.Add(10 * time.Minute) }
	require.NoError(t, f.l.NonActiveTasks(ctx, true))
	orphan := f.task(t, tasks[0].TaskID)
	assert.Equal(t, model.TaskWaiting, orphan.Status)
	assert.Equal(t, 1, orphan.Failures)
	assert.Equal(t, model.TaskProcessing, f.task(t, tasks[1].TaskID).Status)

	logs, err := f.s.TaskLogs(ctx, d.DatasetID, tasks[0].TaskID)
	require.NoError(t, err)
	var names []string
	for _, l := range logs {
		names = append(names, l.Name)
	}
	assert.ElementsMatch(t, []string{"stdlog", "stderr"}, names)

	// a second pass finds nothing to do
	require.NoError(t, f.l.NonActiveTasks(ctx, true))
	assert.Equal(t, 1, f.task(t, tasks[0].TaskID).Failures)
}

func TestQueueTasksHoldsUnmetDependencies(t *testing.T) {
	ctx := context.Background()
	f := setup(t, config.DefaultConfig())
	d := &model.Dataset{Username: "alice", Group: "users", Priority: 1, JobsSubmitted: 1, TasksPerJob: 2}
	require.NoError(t, f.s.CreateDataset(ctx, d))
	require.NoError(t, f.s.PutConfig(ctx, &model.DatasetConfig{
		DatasetID: d.DatasetID,
		Tasks: []model.TaskTemplate{
			{Name: "generate"},
			{Name: "filter", Depends: []interface{}{"generate"}},
		},
	}))
	tasks := f.buffer(t, d, 0)
	require.Len(t, tasks, 2)
	require.Greater(t, tasks[1].Priority, 0.0)

	require.NoError(t, f.l.QueueTasks(ctx, true))
	assert.Equal(t, model.TaskQueued, f.task(t, tasks[0].TaskID).Status)
	held := f.task(t, tasks[1].TaskID)
	assert.Equal(t, model.TaskWaiting, held.Status)
	assert.Equal(t, 0.0, held.Priority)

	// priority is not restored while the dependency is incomplete
	require.NoError(t, f.l.UpdateTaskPriority(ctx, true))
	assert.Equal(t, 0.0, f.task(t, tasks[1].TaskID).Priority)

	f.setStatus(t, model.TaskComplete, tasks[0])
	require.NoError(t, f.l.UpdateTaskPriority(ctx, true))
	assert.Greater(t, f.task(t, tasks[1].TaskID).Priority, 0.0)

	require.NoError(t, f.l.QueueTasks(ctx, true))
	assert.Equal(t, model.TaskQueued, f.task(t, tasks[1].TaskID).Status)
}

func TestQueueTasksMixedDependencies(t *testing.T) {
	ctx := context.Background()
	conf := config.DefaultConfig()
	conf.Queue.NTasks = 1000
	conf.Queue.NTasksPerCycle = 1000
	conf.Queue.DependencyConcurrency = 8
	f := setup(t, conf)
	d := &model.Dataset{Username: "alice", Group: "users", Priority: 1, JobsSubmitted: 60, TasksPerJob: 2}
	require.NoError(t, f.s.CreateDataset(ctx, d))
	require.NoError(t, f.s.PutConfig(ctx, &model.DatasetConfig{
		DatasetID: d.DatasetID,
		Tasks: []model.TaskTemplate{
			{Name: "a"},
			{Name: "b", Depends: []interface{}{"a"}},
		},
	}))
	tasks := f.buffer(t, d, 0)
	require.Len(t, tasks, 120)

	// every other job has its first task complete
	for i := 0; i < len(tasks); i += 4 {
		f.setStatus(t, model.TaskComplete, tasks[i])
	}

	require.NoError(t, f.l.QueueTasks(ctx, true))

	for i := 0; i < len(tasks); i += 2 {
		a, b := f.task(t, tasks[i].TaskID), f.task(t, tasks[i+1].TaskID)
		if (i/2)%2 == 0 {
			assert.Equal(t, model.TaskComplete, a.Status)
			assert.Equal(t, model.TaskQueued, b.Status, "job %d", a.JobIndex)
		} else {
			assert.Equal(t, model.TaskQueued, a.Status, "job %d", a.JobIndex)
			assert.Equal(t, model.TaskWaiting, b.Status)
			assert.Equal(t, 0.0, b.Priority)
		}
	}
}

func TestQueueTasksTarget(t *testing.T) {
	ctx := context.Background()
	conf := config.DefaultConfig()
	conf.Queue.NTasks = 3
	conf.Queue.NTasksPerCycle = 2
	f := setup(t, conf)
	d := storetest.Dataset(t, f.s, 5, 1)
	f.buffer(t, d, 0)

	count := func() int {
		counts, err := f.s.TaskStatusCounts(ctx, d.DatasetID)
		require.NoError(t, err)
		return counts[string(model.TaskQueued)]
	}

	require.NoError(t, f.l.QueueTasks(ctx, true))
	assert.Equal(t, 2, count())
	require.NoError(t, f.l.QueueTasks(ctx, true))
	assert.Equal(t, 3, count())
	require.NoError(t, f.l.QueueTasks(ctx, true))
	assert.Equal(t, 3, count())
}

func TestUpdateTaskPriorityZeroesInactiveDatasets(t *testing.T) {
	ctx := context.Background()
	f := setup(t, config.DefaultConfig())
	d := storetest.Dataset(t, f.s, 1, 1)
	tasks := f.buffer(t, d, 0)
	require.Greater(t, tasks[0].Priority, 0.0)

	require.NoError(t, f.s.SetDatasetStatus(ctx, d.DatasetID, model.DatasetSuspended))
	require.NoError(t, f.l.UpdateTaskPriority(ctx, true))
	assert.Equal(t, 0.0, f.task(t, tasks[0].TaskID).Priority)
}

func TestCleanPilots(t *testing.T) {
	ctx := context.Background()
	conf := config.DefaultConfig()
	conf.Loops.PilotTimeout = config.Duration(time.Hour)
	conf.Loops.LogRetention = config.Duration(24 * time.Hour)
	f := setup(t, conf)

	live := &model.Pilot{QueueHost: "condor"}
	require.NoError(t, f.s.CreatePilot(ctx, live))
	_, err := f.s.UpdatePilot(ctx, live.PilotID, map[string]interface{}{"grid_queue_id": "12.0"})
	require.NoError(t, err)
	unsubmitted := &model.Pilot{QueueHost: "condor"}
	require.NoError(t, f.s.CreatePilot(ctx, unsubmitted))

	old := &model.Log{Name: "stdout", TaskID: "t", Timestamp: time.Now().UTC().Add(-48 * time.Hour)}
	fresh := &model.Log{Name: "stdout", TaskID: "t"}
	require.NoError(t, f.s.AddLog(ctx, old))
	require.NoError(t, f.s.AddLog(ctx, fresh))

	require.NoError(t, f.l.CleanPilots(ctx, true))
	_, err = f.s.GetPilot(ctx, live.PilotID)
	assert.NoError(t, err)
	_, err = f.s.GetPilot(ctx, unsubmitted.PilotID)
	assert.True(t, errors.Is(err, database.ErrNotFound))
	_, err = f.s.GetLog(ctx, old.LogID)
	assert.True(t, errors.Is(err, database.ErrNotFound))
	_, err = f.s.GetLog(ctx, fresh.LogID)
	assert.NoError(t, err)

	f.l.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	require.NoError(t, f.l.CleanPilots(ctx, true))
	_, err = f.s.GetPilot(ctx, live.PilotID)
	assert.True(t, errors.Is(err, database.ErrNotFound))
}

func TestMaintenanceLoops(t *testing.T) {
	ctx := context.Background()
	f := setup(t, config.DefaultConfig())
	storetest.Dataset(t, f.s, 1, 1)
	_, err := f.m.Request(ctx, "", 1, "")
	require.NoError(t, err)

	assert.NoError(t, f.l.MaterializationCleanup(ctx, true))
	assert.NoError(t, f.l.Metrics(ctx, true))
}

func TestPassDebug(t *testing.T) {
	log := logger.NewLogger("loops", logger.DefaultConfig())
	log.Discard()
	boom := errors.New("boom")

	p := &pass{log: log}
	assert.NoError(t, p.fail(boom, "item"))
	assert.NoError(t, p.fail(boom, "item"))
	assert.Error(t, p.err())

	p = &pass{log: log, debug: true}
	assert.Equal(t, boom, p.fail(boom, "item"))
}

func TestRunnerReschedules(t *testing.T) {
	log := logger.NewLogger("loops", logger.DefaultConfig())
	log.Discard()

	var runs, skipped int32
	loops := []Loop{
		{
			Name:     "counter",
			Interval: 5 * time.Millisecond,
			MinDelay: time.Millisecond,
			Run: func(ctx context.Context, debug bool) error {
				atomic.AddInt32(&runs, 1)
				return errors.New("keeps going")
			},
		},
		{
			Name:     "disabled",
			Disabled: true,
			Run: func(ctx context.Context, debug bool) error {
				atomic.AddInt32(&skipped, 1)
				return nil
			},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- NewRunner(loops, log).Start(ctx) }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 3 }, 5*time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&skipped))
}
