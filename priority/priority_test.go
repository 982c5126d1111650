package priority

import (
	"context"
	"testing"
	"time"

	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/model"
	"github.com/ohsu-comp-bio/cascade/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inputs() Inputs {
	return Inputs{
		DatasetPriority:    1,
		UserPriority:       1,
		GroupPriority:      1,
		UserActiveDatasets: 1,
		JobIndex:           0,
		JobsSubmitted:      10,
		TaskIndex:          0,
		TasksPerJob:        2,
		Age:                0,
		AgeHorizon:         time.Hour,
	}
}

func TestComputeRange(t *testing.T) {
	in := inputs()
	in.TaskIndex = 1
	in.Age = 2 * time.Hour
	assert.InDelta(t, 1.0, Compute(in), 1e-9)

	in = inputs()
	in.DatasetPriority = 0
	assert.Equal(t, 0.0, Compute(in))

	in = inputs()
	in.DatasetPriority = 7
	assert.LessOrEqual(t, Compute(in), 1.0)
}

func TestComputeBiases(t *testing.T) {
	early, late := inputs(), inputs()
	late.JobIndex = 9
	assert.Greater(t, Compute(early), Compute(late), "earlier jobs first")

	first, second := inputs(), inputs()
	second.TaskIndex = 1
	assert.Greater(t, Compute(second), Compute(first), "later tasks of a started job first")

	young, old := inputs(), inputs()
	old.Age = 30 * time.Minute
	assert.Greater(t, Compute(old), Compute(young), "older datasets first")

	one, shared := inputs(), inputs()
	shared.UserActiveDatasets = 4
	assert.InDelta(t, Compute(one)/4, Compute(shared), 1e-9)
}

func TestEngine(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	d := storetest.Dataset(t, s, 4, 2)
	require.NoError(t, s.SetUserPriority(ctx, "alice", 0.5))

	conf := config.Priority{
		AgeHorizon:           config.Duration(24 * time.Hour),
		DefaultUserPriority:  1,
		DefaultGroupPriority: 1,
	}
	e := NewEngine(s, conf)
	task := &model.Task{DatasetID: d.DatasetID, JobIndex: 1, TaskIndex: 1}
	p, err := e.Task(ctx, task)
	require.NoError(t, err)

	expect := Compute(Inputs{
		DatasetPriority:    0.5,
		UserPriority:       0.5,
		GroupPriority:      1,
		UserActiveDatasets: 1,
		JobIndex:           1,
		JobsSubmitted:      4,
		TaskIndex:          1,
		TasksPerJob:        2,
		Age:                e.now.Sub(d.StartDate),
		AgeHorizon:         24 * time.Hour,
	})
	assert.InDelta(t, expect, p, 1e-9)

	// Cached for the engine's lifetime.
	require.NoError(t, s.SetUserPriority(ctx, "alice", 0))
	again, err := e.Task(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, p, again)

	fresh, err := NewEngine(s, conf).Task(ctx, task)
	require.NoError(t, err)
	assert.Equal(t, 0.0, fresh)
}

func TestEngineInactiveDataset(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	d := storetest.Dataset(t, s, 1, 1)
	require.NoError(t, s.SetDatasetStatus(ctx, d.DatasetID, model.DatasetSuspended))

	p, err := NewEngine(s, config.Priority{DefaultUserPriority: 1, DefaultGroupPriority: 1}).
		Task(ctx, &model.Task{DatasetID: d.DatasetID})
	require.NoError(t, err)
	assert.Equal(t, 0.0, p)
}
