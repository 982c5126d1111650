// Package events records state changes of datasets, jobs and tasks and
// delivers them to configurable writers.
package events

import (
	"encoding/json"
	"time"
)

// Type identifies the kind of an event.
type Type string

// Event types.
const (
	TaskStatus     Type = "task_status"
	JobStatus      Type = "job_status"
	DatasetStatus  Type = "dataset_status"
	TaskDispatched Type = "task_dispatched"
	Materialized   Type = "materialized"
	PilotRemoved   Type = "pilot_removed"
)

// Event describes one state change.
type Event struct {
	Type      Type                   `json:"type"`
	ID        string                 `json:"id"`
	DatasetID string                 `json:"dataset_id,omitempty"`
	From      string                 `json:"from,omitempty"`
	To        string                 `json:"to,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// NewTaskStatus creates a task status change event.
func NewTaskStatus(taskID, datasetID, from, to string) *Event {
	return newEvent(TaskStatus, taskID, datasetID, from, to)
}

// NewJobStatus creates a job status change event.
func NewJobStatus(jobID, datasetID, from, to string) *Event {
	return newEvent(JobStatus, jobID, datasetID, from, to)
}

// NewDatasetStatus creates a dataset status change event.
func NewDatasetStatus(datasetID, from, to string) *Event {
	return newEvent(DatasetStatus, datasetID, datasetID, from, to)
}

// NewTaskDispatched creates an event for a task handed to a pilot.
func NewTaskDispatched(taskID, datasetID, site string) *Event {
	ev := newEvent(TaskDispatched, taskID, datasetID, "queued", "processing")
	ev.Fields = map[string]interface{}{"site": site}
	return ev
}

// NewMaterialized creates an event for jobs and tasks buffered into a dataset.
func NewMaterialized(datasetID string, jobs, tasks int) *Event {
	ev := newEvent(Materialized, datasetID, datasetID, "", "")
	ev.Fields = map[string]interface{}{"jobs": jobs, "tasks": tasks}
	return ev
}

// NewPilotRemoved creates an event for a pilot deleted after going silent.
func NewPilotRemoved(pilotID string) *Event {
	return newEvent(PilotRemoved, pilotID, "", "", "")
}

func newEvent(t Type, id, datasetID, from, to string) *Event {
	return &Event{
		Type:      t,
		ID:        id,
		DatasetID: datasetID,
		From:      from,
		To:        to,
		Timestamp: time.Now().UTC(),
	}
}

// Marshal encodes an event as JSON.
func Marshal(ev *Event) ([]byte, error) {
	return json.Marshal(ev)
}

// Unmarshal decodes a JSON event.
func Unmarshal(b []byte, ev *Event) error {
	return json.Unmarshal(b, ev)
}
