// Package priority scores tasks for admission and dispatch.
package priority

import (
	"math"
	"time"
)

// Inputs are everything a task's score depends on.
type Inputs struct {
	DatasetPriority float64
	UserPriority    float64
	GroupPriority   float64
	// Number of the user's datasets currently processing.
	UserActiveDatasets int

	JobIndex      int
	JobsSubmitted int
	TaskIndex     int
	TasksPerJob   int

	Age        time.Duration
	AgeHorizon time.Duration
}

// Bias weights. They sum to one so a score never exceeds its base.
const (
	baseWeight = 0.9
	jobWeight  = 0.05
	taskWeight = 0.01
	ageWeight  = 0.04
)

// Compute returns a score in [0, 1]. Higher runs first; zero holds the task.
//
// The base is the product of the dataset, user and group weights, shared
// among the user's active datasets. It is scaled by small biases which
// prefer earlier jobs, later tasks within a job (to finish started
// jobs) and older datasets.
func Compute(in Inputs) float64 {
	base := clamp(in.DatasetPriority) * clamp(in.UserPriority) * clamp(in.GroupPriority)
	if in.UserActiveDatasets > 1 {
		base /= float64(in.UserActiveDatasets)
	}
	if base == 0 {
		return 0
	}

	jobBias := 1.0
	if in.JobsSubmitted > 0 {
		jobBias = clamp(1 - float64(in.JobIndex)/float64(in.JobsSubmitted))
	}
	taskBias := 1.0
	if in.TasksPerJob > 0 {
		taskBias = clamp(float64(in.TaskIndex+1) / float64(in.TasksPerJob))
	}
	ageBias := 0.0
	if in.AgeHorizon > 0 {
		ageBias = clamp(float64(in.Age) / float64(in.AgeHorizon))
	}

	score := base * (baseWeight + jobWeight*jobBias + taskWeight*taskBias + ageWeight*ageBias)
	return clamp(score)
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
