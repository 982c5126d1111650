package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/logger"
	"github.com/ohsu-comp-bio/cascade/model"
	"github.com/ohsu-comp-bio/cascade/store"
	"github.com/ohsu-comp-bio/cascade/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	s       *store.Store
	q       *Queue
	dataset *model.Dataset
	job     *model.Job
}

func setup(t *testing.T, conf config.Queue) *fixture {
	t.Helper()
	s := storetest.New(t)
	log := logger.NewLogger("queue", logger.DefaultConfig())
	log.Discard()
	d := storetest.Dataset(t, s, 1, 1)
	job := &model.Job{DatasetID: d.DatasetID}
	require.NoError(t, s.CreateJob(context.Background(), job))
	return &fixture{s: s, q: New(s, conf, log, nil), dataset: d, job: job}
}

var taskIndex int

func (f *fixture) task(t *testing.T, status model.TaskStatus, priority float64, reqs map[string]interface{}) *model.Task {
	t.Helper()
	taskIndex++
	task := &model.Task{
		DatasetID:    f.dataset.DatasetID,
		JobID:        f.job.JobID,
		TaskIndex:    taskIndex,
		Name:         fmt.Sprintf("task%d", taskIndex),
		Status:       status,
		Priority:     priority,
		Requirements: reqs,
	}
	require.NoError(t, f.s.CreateTask(context.Background(), task))
	return task
}

func (f *fixture) get(t *testing.T, id string) *model.Task {
	t.Helper()
	task, err := f.s.GetTask(context.Background(), id)
	require.NoError(t, err)
	return task
}

func TestQueueTasksByPriority(t *testing.T) {
	ctx := context.Background()
	f := setup(t, config.Queue{})
	low := f.task(t, model.TaskWaiting, 0.1, nil)
	high := f.task(t, model.TaskReset, 0.9, nil)
	held := f.task(t, model.TaskWaiting, 0, nil)
	busy := f.task(t, model.TaskProcessing, 1, nil)

	n, err := f.q.QueueTasks(ctx, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.TaskQueued, f.get(t, high.TaskID).Status)
	assert.Equal(t, model.TaskWaiting, f.get(t, low.TaskID).Status)

	n, err = f.q.QueueTasks(ctx, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.TaskQueued, f.get(t, low.TaskID).Status)
	assert.Equal(t, model.TaskWaiting, f.get(t, held.TaskID).Status)
	assert.Equal(t, model.TaskProcessing, f.get(t, busy.TaskID).Status)

	_, err = f.q.QueueTasks(ctx, 1, database.Filter{database.Eq("status", "complete")})
	var verr model.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestQueueTasksFilter(t *testing.T) {
	ctx := context.Background()
	f := setup(t, config.Queue{})
	a := f.task(t, model.TaskWaiting, 0.5, nil)
	b := f.task(t, model.TaskWaiting, 0.9, nil)

	n, err := f.q.QueueTasks(ctx, 5, database.Filter{database.In("task_id", []string{a.TaskID})})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.TaskQueued, f.get(t, a.TaskID).Status)
	assert.Equal(t, model.TaskWaiting, f.get(t, b.TaskID).Status)
}

func TestConcurrentDispatch(t *testing.T) {
	ctx := context.Background()
	f := setup(t, config.Queue{})
	const tasks, pilots = 20, 50
	for i := 0; i < tasks; i++ {
		f.task(t, model.TaskQueued, 0.5, nil)
	}

	var mu sync.Mutex
	got := map[string]int{}
	misses := 0
	var wg sync.WaitGroup
	for i := 0; i < pilots; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, err := f.q.Dispatch(ctx, map[string]interface{}{"cpu": 1.0}, nil)
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, database.ErrNotFound) {
				misses++
				return
			}
			if assert.NoError(t, err) {
				got[task.TaskID]++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, got, tasks)
	for id, n := range got {
		assert.Equal(t, 1, n, "task %s dispatched %d times", id, n)
	}
	assert.Equal(t, pilots-tasks, misses)
}

func TestDispatchMatchesResources(t *testing.T) {
	ctx := context.Background()
	f := setup(t, config.Queue{})
	big := f.task(t, model.TaskQueued, 0.9, map[string]interface{}{"memory": 8.0})
	gpu := f.task(t, model.TaskQueued, 0.8, map[string]interface{}{"gpu": 1})
	rhel := f.task(t, model.TaskQueued, 0.7, map[string]interface{}{"os": []string{"RHEL_7"}})

	_, err := f.q.Dispatch(ctx, map[string]interface{}{"memory": 4.0, "gpu": 0.0, "os": "Ubuntu"}, nil)
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.Equal(t, model.TaskQueued, f.get(t, big.TaskID).Status)

	task, err := f.q.Dispatch(ctx, map[string]interface{}{"memory": 4.0, "gpu": 2.0}, nil)
	require.NoError(t, err)
	assert.Equal(t, gpu.TaskID, task.TaskID, "gpu pilots only take gpu tasks")

	task, err = f.q.Dispatch(ctx, map[string]interface{}{"memory": 16.0, "os": "RHEL_7", "site": "madison"}, nil)
	require.NoError(t, err)
	assert.Equal(t, big.TaskID, task.TaskID)
	assert.Equal(t, model.TaskProcessing, task.Status)
	assert.Equal(t, "madison", task.Site)

	task, err = f.q.Dispatch(ctx, map[string]interface{}{"os": []interface{}{"RHEL_7", "RHEL_8"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, rhel.TaskID, task.TaskID)
}

func TestDispatchQueryParams(t *testing.T) {
	ctx := context.Background()
	f := setup(t, config.Queue{})
	f.task(t, model.TaskQueued, 0.9, nil)
	other := f.task(t, model.TaskQueued, 0.1, nil)

	task, err := f.q.Dispatch(ctx, nil, map[string]interface{}{"task_id": other.TaskID})
	require.NoError(t, err)
	assert.Equal(t, other.TaskID, task.TaskID)

	var verr model.ValidationError
	_, err = f.q.Dispatch(ctx, nil, map[string]interface{}{"status": "waiting"})
	assert.True(t, errors.As(err, &verr))
	_, err = f.q.Dispatch(ctx, map[string]interface{}{"memory": 2.0}, map[string]interface{}{"requirements.memory": 1.0})
	assert.True(t, errors.As(err, &verr))
	_, err = f.q.Dispatch(ctx, map[string]interface{}{"bogus": 2.0}, nil)
	assert.True(t, errors.As(err, &verr))
}

func TestScenarioAdmitDispatchComplete(t *testing.T) {
	ctx := context.Background()
	f := setup(t, config.Queue{})
	task := f.task(t, model.TaskWaiting, 0.5, nil)

	n, err := f.q.QueueTasks(ctx, 10, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := f.q.Dispatch(ctx, map[string]interface{}{"cpu": 4.0, "memory": 8.0}, nil)
	require.NoError(t, err)
	assert.Equal(t, task.TaskID, got.TaskID)

	done, err := f.q.ReportComplete(ctx, task.TaskID, CompleteReport{TimeUsed: 7200})
	require.NoError(t, err)
	assert.Equal(t, model.TaskComplete, done.Status)
	assert.Equal(t, 2.0, done.Walltime)

	_, err = f.q.ReportComplete(ctx, task.TaskID, CompleteReport{TimeUsed: 10})
	assert.ErrorIs(t, err, database.ErrNotFound, "duplicate report")
}

func TestResetNeverRevivesComplete(t *testing.T) {
	ctx := context.Background()
	f := setup(t, config.Queue{})
	task := f.task(t, model.TaskComplete, 0.5, nil)

	_, err := f.q.ReportError(ctx, task.TaskID, ErrorReport{TimeUsed: 60, Reason: "late report"})
	assert.ErrorIs(t, err, database.ErrNotFound)

	got := f.get(t, task.TaskID)
	assert.Equal(t, model.TaskComplete, got.Status)
	assert.Equal(t, 0, got.Failures)
}

func TestReportErrorEscalates(t *testing.T) {
	ctx := context.Background()
	f := setup(t, config.Queue{})
	task := f.task(t, model.TaskProcessing, 0.5, map[string]interface{}{"memory": 2.0})

	got, err := f.q.ReportError(ctx, task.TaskID, ErrorReport{
		TimeUsed:  1800,
		Resources: map[string]interface{}{"memory": 4.0, "cpu": 1.5},
		Reason:    "out of memory",
		Evicted:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.TaskReset, got.Status)
	assert.Equal(t, 6.0, got.Requirements["memory"])
	assert.Equal(t, 2.0, got.Requirements["cpu"])
	assert.Equal(t, 1, got.Failures)
	assert.Equal(t, 1, got.Evictions)
	assert.Equal(t, 0.5, got.WalltimeErr)
	assert.Equal(t, 1, got.WalltimeErrN)

	logs, err := f.s.TaskLogs(ctx, task.DatasetID, task.TaskID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "out of memory", logs[0].Data)

	// Lower observations never lower requirements; a small cpu overshoot
	// and an implausible cpu count are ignored.
	got, err = f.q.ReportError(ctx, task.TaskID, ErrorReport{
		TimeUsed:  3600,
		Resources: map[string]interface{}{"memory": 3.0, "cpu": 2.1},
	})
	require.NoError(t, err)
	assert.Equal(t, 6.0, got.Requirements["memory"])
	assert.Equal(t, 2.0, got.Requirements["cpu"])
	assert.Equal(t, 1.5, got.WalltimeErr)
	assert.Equal(t, 2, got.WalltimeErrN)

	got, err = f.q.ReportError(ctx, task.TaskID, ErrorReport{Resources: map[string]interface{}{"cpu": 64.0, "time": 2.0}})
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.Requirements["cpu"])
	assert.Equal(t, 3.0, got.Requirements["time"])
	assert.Equal(t, 3.5, got.WalltimeErr, "time used falls back to the observed time resource")
}

func TestMaxFailures(t *testing.T) {
	ctx := context.Background()
	f := setup(t, config.Queue{MaxFailures: 2})
	task := f.task(t, model.TaskProcessing, 0.5, nil)

	got, err := f.q.ReportError(ctx, task.TaskID, ErrorReport{})
	require.NoError(t, err)
	assert.Equal(t, model.TaskReset, got.Status)

	got, err = f.q.ReportError(ctx, task.TaskID, ErrorReport{})
	require.NoError(t, err)
	assert.Equal(t, model.TaskFailed, got.Status)
	assert.Equal(t, 2, got.Failures)
}

func TestBulkStatusCap(t *testing.T) {
	ctx := context.Background()
	f := setup(t, config.Queue{})
	task := f.task(t, model.TaskWaiting, 0.5, nil)

	ids := make([]string, MaxBulkIDs+1)
	for i := range ids {
		ids[i] = task.TaskID
	}
	_, err := f.q.BulkStatus(ctx, "", ids, model.TaskSuspended)
	var verr model.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Equal(t, model.TaskWaiting, f.get(t, task.TaskID).Status)

	n, err := f.q.BulkStatus(ctx, f.dataset.DatasetID, ids[:MaxBulkIDs], model.TaskSuspended)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.TaskSuspended, f.get(t, task.TaskID).Status)

	_, err = f.q.BulkStatus(ctx, "", nil, model.TaskWaiting)
	assert.True(t, errors.As(err, &verr))
	_, err = f.q.BulkStatus(ctx, f.dataset.DatasetID, nil, "bogus")
	assert.True(t, errors.As(err, &verr))
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	f := setup(t, config.Queue{})
	task := f.task(t, model.TaskFailed, 0.5, nil)

	require.NoError(t, f.q.SetStatus(ctx, task.TaskID, model.TaskWaiting))
	assert.Equal(t, model.TaskWaiting, f.get(t, task.TaskID).Status)
	assert.ErrorIs(t, f.q.SetStatus(ctx, "missing", model.TaskWaiting), database.ErrNotFound)
	assert.Error(t, f.q.SetStatus(ctx, task.TaskID, "bogus"))
}

func TestBulkRequirements(t *testing.T) {
	ctx := context.Background()
	f := setup(t, config.Queue{})
	a := f.task(t, model.TaskWaiting, 0.5, map[string]interface{}{"cpu": 4})
	f.task(t, model.TaskWaiting, 0.5, map[string]interface{}{"cpu": 4})

	name := a.Name
	n, err := f.q.BulkRequirements(ctx, f.dataset.DatasetID, name, map[string]interface{}{"memory": 3, "cpu": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := f.get(t, a.TaskID)
	assert.Equal(t, 3.0, got.Requirements["memory"])
	assert.NotContains(t, got.Requirements, "cpu")

	_, err = f.q.BulkRequirements(ctx, f.dataset.DatasetID, name, map[string]interface{}{"warp": 9})
	assert.Error(t, err)
}
