package model

// DatasetStatus is the lifecycle state of a dataset.
type DatasetStatus string

// Dataset statuses.
const (
	DatasetProcessing DatasetStatus = "processing"
	DatasetSuspended  DatasetStatus = "suspended"
	DatasetErrors     DatasetStatus = "errors"
	DatasetTruncated  DatasetStatus = "truncated"
	DatasetComplete   DatasetStatus = "complete"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

// Job statuses.
const (
	JobProcessing JobStatus = "processing"
	JobComplete   JobStatus = "complete"
	JobErrors     JobStatus = "errors"
	JobSuspended  JobStatus = "suspended"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

// Task statuses.
const (
	TaskWaiting    TaskStatus = "waiting"
	TaskQueued     TaskStatus = "queued"
	TaskProcessing TaskStatus = "processing"
	TaskReset      TaskStatus = "reset"
	TaskFailed     TaskStatus = "failed"
	TaskSuspended  TaskStatus = "suspended"
	TaskComplete   TaskStatus = "complete"
)

// RequestStatus is the lifecycle state of a materialization request.
type RequestStatus string

// Materialization request statuses.
const (
	RequestWaiting    RequestStatus = "waiting"
	RequestProcessing RequestStatus = "processing"
	RequestComplete   RequestStatus = "complete"
	RequestError      RequestStatus = "error"
)

var (
	datasetStatuses = []DatasetStatus{DatasetProcessing, DatasetSuspended, DatasetErrors, DatasetTruncated, DatasetComplete}
	jobStatuses     = []JobStatus{JobProcessing, JobComplete, JobErrors, JobSuspended}
	taskStatuses    = []TaskStatus{TaskWaiting, TaskQueued, TaskProcessing, TaskReset, TaskFailed, TaskSuspended, TaskComplete}
)

// Valid reports whether s is a known dataset status.
func (s DatasetStatus) Valid() bool {
	for _, x := range datasetStatuses {
		if x == s {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	for _, x := range jobStatuses {
		if x == s {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	for _, x := range taskStatuses {
		if x == s {
			return true
		}
	}
	return false
}

// AdmissibleTaskStatuses are the statuses a task can be queued from.
// A reset task is put back in line alongside waiting tasks.
func AdmissibleTaskStatuses() []TaskStatus {
	return []TaskStatus{TaskWaiting, TaskReset}
}

// ActiveTaskStatuses are statuses in which a task may still make progress.
func ActiveTaskStatuses() []TaskStatus {
	return []TaskStatus{TaskWaiting, TaskQueued, TaskProcessing, TaskReset}
}

// IsActive reports whether the task may still make progress.
func (s TaskStatus) IsActive() bool {
	for _, x := range ActiveTaskStatuses() {
		if x == s {
			return true
		}
	}
	return false
}

// BufferableDatasetStatuses are the statuses a dataset may be explicitly
// materialized from.
func BufferableDatasetStatuses() []DatasetStatus {
	return []DatasetStatus{DatasetProcessing, DatasetTruncated, DatasetSuspended}
}
