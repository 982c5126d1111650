package model

import (
	"time"
)

// Dataset is a user submission: a declared number of jobs, each with the
// same ordered list of task templates.
type Dataset struct {
	DatasetID      string        `bson:"dataset_id" json:"dataset_id"`
	Dataset        int           `bson:"dataset" json:"dataset"`
	Description    string        `bson:"description" json:"description"`
	Group          string        `bson:"group" json:"group"`
	Username       string        `bson:"username" json:"username"`
	Status         DatasetStatus `bson:"status" json:"status"`
	Priority       float64       `bson:"priority" json:"priority"`
	JobsSubmitted  int           `bson:"jobs_submitted" json:"jobs_submitted"`
	TasksSubmitted int           `bson:"tasks_submitted" json:"tasks_submitted"`
	TasksPerJob    int           `bson:"tasks_per_job" json:"tasks_per_job"`
	JobsImmutable  bool          `bson:"jobs_immutable" json:"jobs_immutable"`
	Debug          bool          `bson:"debug" json:"debug"`
	StartDate      time.Time     `bson:"start_date" json:"start_date"`
	StatusChanged  time.Time     `bson:"status_changed" json:"status_changed"`
}

// Job is one instance of a dataset's task list.
type Job struct {
	JobID         string    `bson:"job_id" json:"job_id"`
	DatasetID     string    `bson:"dataset_id" json:"dataset_id"`
	JobIndex      int       `bson:"job_index" json:"job_index"`
	Status        JobStatus `bson:"status" json:"status"`
	StatusChanged time.Time `bson:"status_changed" json:"status_changed"`
}

// Task is one schedulable unit of work.
type Task struct {
	TaskID        string                 `bson:"task_id" json:"task_id"`
	DatasetID     string                 `bson:"dataset_id" json:"dataset_id"`
	JobID         string                 `bson:"job_id" json:"job_id"`
	JobIndex      int                    `bson:"job_index" json:"job_index"`
	TaskIndex     int                    `bson:"task_index" json:"task_index"`
	Name          string                 `bson:"name" json:"name"`
	Depends       []string               `bson:"depends" json:"depends"`
	Requirements  map[string]interface{} `bson:"requirements" json:"requirements"`
	Status        TaskStatus             `bson:"status" json:"status"`
	StatusChanged time.Time              `bson:"status_changed" json:"status_changed"`
	CreateDate    time.Time              `bson:"create_date" json:"create_date"`
	Priority      float64                `bson:"priority" json:"priority"`
	Failures      int                    `bson:"failures" json:"failures"`
	Evictions     int                    `bson:"evictions" json:"evictions"`
	Walltime      float64                `bson:"walltime" json:"walltime"`
	WalltimeErr   float64                `bson:"walltime_err" json:"walltime_err"`
	WalltimeErrN  int                    `bson:"walltime_err_n" json:"walltime_err_n"`
	Site          string                 `bson:"site" json:"site"`
}

// Pilot is a remote execution agent that requests and runs tasks.
type Pilot struct {
	PilotID            string                 `bson:"pilot_id" json:"pilot_id"`
	QueueHost          string                 `bson:"queue_host" json:"queue_host"`
	QueueVersion       string                 `bson:"queue_version" json:"queue_version"`
	GridQueueID        string                 `bson:"grid_queue_id" json:"grid_queue_id"`
	Resources          map[string]interface{} `bson:"resources" json:"resources"`
	ResourcesAvailable map[string]interface{} `bson:"resources_available" json:"resources_available"`
	ResourcesClaimed   map[string]interface{} `bson:"resources_claimed" json:"resources_claimed"`
	Tasks              []string               `bson:"tasks" json:"tasks"`
	Site               string                 `bson:"site" json:"site"`
	LastUpdate         time.Time              `bson:"last_update" json:"last_update"`
	SubmitDate         time.Time              `bson:"submit_date" json:"submit_date"`
}

// MaterializationRequest asks the materialization worker to buffer jobs.
type MaterializationRequest struct {
	MaterializationID string        `bson:"materialization_id" json:"materialization_id"`
	Status            RequestStatus `bson:"status" json:"status"`
	DatasetID         string        `bson:"dataset_id,omitempty" json:"dataset_id,omitempty"`
	Num               int           `bson:"num" json:"num"`
	SetStatus         TaskStatus    `bson:"set_status,omitempty" json:"set_status,omitempty"`
	Error             string        `bson:"error,omitempty" json:"error,omitempty"`
	JobsBuffered      int           `bson:"jobs_buffered" json:"jobs_buffered"`
	TasksBuffered     int           `bson:"tasks_buffered" json:"tasks_buffered"`
	CreateTimestamp   time.Time     `bson:"create_timestamp" json:"create_timestamp"`
	ModifyTimestamp   time.Time     `bson:"modify_timestamp" json:"modify_timestamp"`
	// Pending holds the dataset ID, or "*" for a sweep, while the request
	// is waiting to be claimed.
	Pending string `bson:"pending,omitempty" json:"-"`
}

// TaskTemplate declares one task of every job in a dataset.
type TaskTemplate struct {
	Name string `bson:"name" json:"name"`
	// Values may be plain JSON values or strings holding expressions.
	Requirements map[string]interface{} `bson:"requirements" json:"requirements"`
	// Each entry is a sibling name, a sibling index, "<dataset_id>:<name-or-index>"
	// or a raw task ID.
	Depends []interface{} `bson:"depends" json:"depends"`
}

// DatasetConfig is the declared job structure of a dataset.
type DatasetConfig struct {
	DatasetID string         `bson:"dataset_id" json:"dataset_id"`
	Version   int            `bson:"version" json:"version"`
	Tasks     []TaskTemplate `bson:"tasks" json:"tasks"`
}

// Log is a named blob of task output.
type Log struct {
	LogID     string    `bson:"log_id" json:"log_id"`
	DatasetID string    `bson:"dataset_id" json:"dataset_id"`
	TaskID    string    `bson:"task_id" json:"task_id"`
	Name      string    `bson:"name" json:"name"`
	Data      string    `bson:"data" json:"data"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// User carries the per-user weight of the priority engine.
type User struct {
	Username string  `bson:"username" json:"username"`
	Priority float64 `bson:"priority" json:"priority"`
}

// Group carries the per-group weight of the priority engine.
type Group struct {
	Name     string  `bson:"name" json:"name"`
	Priority float64 `bson:"priority" json:"priority"`
}
