package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/logger"
	"github.com/ohsu-comp-bio/cascade/materialize"
	"github.com/ohsu-comp-bio/cascade/model"
	"github.com/ohsu-comp-bio/cascade/queue"
	"github.com/ohsu-comp-bio/cascade/store"
	"github.com/ohsu-comp-bio/cascade/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const token = "s3cret"

type fixture struct {
	s   *store.Store
	m   *materialize.Materializer
	srv *httptest.Server
}

func setup(t *testing.T) *fixture {
	t.Helper()
	conf := config.DefaultConfig()
	conf.Server.AuthToken = token
	log := logger.NewLogger("server", logger.DefaultConfig())
	log.Discard()

	s := storetest.New(t)
	m := materialize.New(s, conf, log, nil)
	q := queue.New(s, conf.Queue, log, nil)
	srv := httptest.NewServer(New(conf, s, q, materialize.NewWorker(m), log, nil).Handler())
	t.Cleanup(srv.Close)
	return &fixture{s: s, m: m, srv: srv}
}

// do sends a JSON request and decodes the JSON response into out, if given.
func (f *fixture) do(t *testing.T, method, path string, body, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestAuth(t *testing.T) {
	f := setup(t)

	for _, h := range []string{"", "Bearer wrong", "Basic " + token} {
		req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/task_counts/status", nil)
		require.NoError(t, err)
		if h != "" {
			req.Header.Set("Authorization", h)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, h)
	}

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/task_counts/status", nil, nil))

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestParseBearer(t *testing.T) {
	tok, ok := parseBearer("bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)
	_, ok = parseBearer("Bearer ")
	assert.False(t, ok)
	_, ok = parseBearer("Token abc")
	assert.False(t, ok)
}

func TestDatasetEndpoints(t *testing.T) {
	f := setup(t)

	var d model.Dataset
	code := f.do(t, http.MethodPost, "/datasets", map[string]interface{}{
		"username":       "alice",
		"group":          "users",
		"jobs_submitted": 2,
		"tasks_per_job":  1,
		"priority":       0.5,
		"config":         []map[string]interface{}{{"name": "main"}},
	}, &d)
	require.Equal(t, http.StatusCreated, code)
	require.NotEmpty(t, d.DatasetID)
	assert.Equal(t, 2, d.TasksSubmitted)
	assert.Equal(t, model.DatasetProcessing, d.Status)

	var conf model.DatasetConfig
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/config/"+d.DatasetID, nil, &conf))
	assert.Len(t, conf.Tasks, 1)

	var got model.Dataset
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/datasets/"+d.DatasetID+"/jobs_submitted",
		map[string]int{"jobs_submitted": 4}, &got))
	assert.Equal(t, 4, got.TasksSubmitted)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/datasets/"+d.DatasetID+"/status",
		map[string]string{"status": "bogus"}, nil))
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/datasets/"+d.DatasetID+"/status",
		map[string]string{"status": "suspended"}, &got))
	assert.Equal(t, model.DatasetSuspended, got.Status)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/datasets/missing", nil, nil))
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/datasets", map[string]interface{}{
		"username": "alice", "tasks_per_job": 0,
	}, nil))

	job := map[string]interface{}{"dataset_id": d.DatasetID, "job_index": 0}
	assert.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/jobs", job, nil))
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/jobs", job, nil))
}

func TestPilotRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	d := storetest.Dataset(t, f.s, 1, 1)
	_, err := f.m.RunOnce(ctx, materialize.Options{DatasetID: d.DatasetID})
	require.NoError(t, err)

	var queued map[string]int
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/task_actions/queue", map[string]int{"num_tasks": 10}, &queued))
	assert.Equal(t, 1, queued["queued"])

	var pilot model.Pilot
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/pilots", map[string]interface{}{
		"queue_host": "condor",
		"resources":  map[string]interface{}{"cpu": 1, "memory": 4},
	}, &pilot))
	require.NotEmpty(t, pilot.PilotID)

	var task model.Task
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/task_actions/process", map[string]interface{}{
		"requirements": map[string]interface{}{"cpu": 1, "memory": 4, "site": "local"},
	}, &task))
	assert.Equal(t, model.TaskProcessing, task.Status)
	assert.Equal(t, "local", task.Site)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, "/pilots/"+pilot.PilotID,
		map[string]interface{}{"tasks": []string{task.TaskID}, "grid_queue_id": "3.0"}, nil))
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPatch, "/pilots/"+pilot.PilotID,
		map[string]interface{}{"pilot_id": "other"}, nil))

	// nothing else to hand out
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/task_actions/process",
		map[string]interface{}{"requirements": map[string]interface{}{"cpu": 1}}, nil))

	var done model.Task
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/tasks/"+task.TaskID+"/task_actions/complete",
		map[string]interface{}{"time_used": 7200}, &done))
	assert.Equal(t, model.TaskComplete, done.Status)
	assert.Equal(t, 2.0, done.Walltime)

	// stale reports are rejected
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/tasks/"+task.TaskID+"/task_actions/complete",
		map[string]interface{}{"time_used": 7200}, nil))
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/tasks/"+task.TaskID+"/task_actions/reset",
		map[string]interface{}{"reason": "late"}, nil))

	var counts map[string]int
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/datasets/"+d.DatasetID+"/task_counts/status", nil, &counts))
	assert.Equal(t, 1, counts["complete"])

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodDelete, "/pilots/"+pilot.PilotID, nil, nil))
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/pilots/"+pilot.PilotID, nil, nil))
}

func TestTaskResetAndLogs(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	d := storetest.Dataset(t, f.s, 1, 1)
	_, err := f.m.RunOnce(ctx, materialize.Options{DatasetID: d.DatasetID})
	require.NoError(t, err)

	var tasks []*model.Task
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/datasets/"+d.DatasetID+"/tasks", nil, &tasks))
	require.Len(t, tasks, 1)
	id := tasks[0].TaskID

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/tasks/"+id+"/status",
		map[string]string{"status": "processing"}, nil))

	var reset model.Task
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/tasks/"+id+"/task_actions/reset", map[string]interface{}{
		"time_used": 3600,
		"resources": map[string]interface{}{"memory": 3.0},
		"reason":    "out of memory",
	}, &reset))
	assert.Equal(t, model.TaskReset, reset.Status)
	assert.Equal(t, 1, reset.Failures)

	var logs []*model.Log
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, fmt.Sprintf("/datasets/%s/tasks/%s/logs", d.DatasetID, id), nil, &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, "out of memory", logs[0].Data)

	var patched model.Task
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPatch, "/tasks/"+id,
		map[string]interface{}{"requirements": map[string]interface{}{"cpu": 2}}, &patched))
	assert.Equal(t, 2.0, patched.Requirements["cpu"])
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPatch, "/tasks/"+id,
		map[string]interface{}{"status": "complete"}, nil))

	var updated map[string]int
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPatch,
		"/datasets/"+d.DatasetID+"/task_actions/bulk_requirements/task0",
		map[string]interface{}{"memory": 8}, &updated))
	assert.Equal(t, 1, updated["updated"])
}

func TestBulkStatusCap(t *testing.T) {
	f := setup(t)
	ids := make([]string, queue.MaxBulkIDs+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("t%d", i)
	}
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/task_actions/bulk_status/suspended",
		map[string]interface{}{"tasks": ids}, nil))
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/task_actions/bulk_status/suspended",
		map[string]interface{}{}, nil))
}

func TestBulkJobStatusCap(t *testing.T) {
	f := setup(t)
	d := storetest.Dataset(t, f.s, 1, 1)
	job := &model.Job{DatasetID: d.DatasetID}
	require.NoError(t, f.s.CreateJob(context.Background(), job))

	ids := make([]string, model.MaxBulkIDs+1)
	for i := range ids {
		ids[i] = job.JobID
	}
	path := "/datasets/" + d.DatasetID + "/job_actions/bulk_status/suspended"
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, path, map[string]interface{}{"jobs": ids}, nil))

	got, err := f.s.GetJob(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobProcessing, got.Status)

	var out map[string]int
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, path, map[string]interface{}{"jobs": ids[:1]}, &out))
	assert.Equal(t, 1, out["updated"])
}

func TestMaterializationEndpoints(t *testing.T) {
	f := setup(t)
	d := storetest.Dataset(t, f.s, 1, 1)

	var req model.MaterializationRequest
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/materialization/request/dataset/"+d.DatasetID,
		map[string]int{"num": 5}, &req))
	assert.Equal(t, model.RequestWaiting, req.Status)

	var again model.MaterializationRequest
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/materialization/request/dataset/"+d.DatasetID, nil, &again))
	assert.Equal(t, req.MaterializationID, again.MaterializationID)

	var status model.MaterializationRequest
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/materialization/status/"+req.MaterializationID, nil, &status))
	assert.Equal(t, 5, status.Num)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/materialization/request/dataset/missing", nil, nil))

	// the worker loop is not running in this test
	assert.Equal(t, http.StatusInternalServerError, f.do(t, http.MethodGet, "/materialization/healthz", nil, nil))
}

func TestPriorityWeights(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPut, "/users/alice/priority", map[string]float64{"priority": 0.8}, nil))
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/groups/users/priority", map[string]float64{"priority": 2}, nil))
	p, err := f.s.UserPriority(ctx, "alice", 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.8, p)
}
