package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/units"
	"github.com/ohsu-comp-bio/cascade/model"
	"github.com/ohsu-comp-bio/cascade/store/storetest"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdatePilots(t *testing.T) {
	UpdatePilots([]*model.Pilot{
		{Resources: map[string]interface{}{"cpu": 4.0, "memory": 8.0}, ResourcesAvailable: map[string]interface{}{"cpu": 1.0, "memory": 2.0}},
		{Resources: map[string]interface{}{"cpu": 2.0, "gpu": 1.0, "os": []interface{}{"RHEL_7"}}},
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(pilotCount))
	assert.Equal(t, 6.0, testutil.ToFloat64(pilotTotal.WithLabelValues("cpu")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pilotTotal.WithLabelValues("gpu")))
	assert.Equal(t, 8*float64(units.GB), testutil.ToFloat64(pilotTotal.WithLabelValues("memory")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pilotAvailable.WithLabelValues("cpu")))
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	d := storetest.Dataset(t, s, 1, 1)
	job := &model.Job{DatasetID: d.DatasetID}
	require.NoError(t, s.CreateJob(ctx, job))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateTask(ctx, &model.Task{DatasetID: d.DatasetID, JobID: job.JobID, TaskIndex: i}))
	}

	require.NoError(t, Refresh(ctx, s))
	assert.Equal(t, 3.0, testutil.ToFloat64(taskStates.WithLabelValues("waiting")))
	assert.Equal(t, 0.0, testutil.ToFloat64(taskStates.WithLabelValues("complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(datasetStates.WithLabelValues("processing")))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(dispatches.WithLabelValues("matched"))
	Dispatched(true)
	assert.Equal(t, before+1, testutil.ToFloat64(dispatches.WithLabelValues("matched")))

	errsBefore := testutil.ToFloat64(loopErrors.WithLabelValues("job_completion"))
	ObserveLoop("job_completion", time.Second, errors.New("x"))
	ObserveLoop("job_completion", time.Second, nil)
	assert.Equal(t, errsBefore+1, testutil.ToFloat64(loopErrors.WithLabelValues("job_completion")))
}
