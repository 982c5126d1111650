package model

import (
	"fmt"
)

// Validate checks a dataset submission.
func (d *Dataset) Validate() error {
	var errs ValidationError
	if d.TasksPerJob <= 0 {
		errs = append(errs, "tasks_per_job must be greater than zero")
	}
	if d.JobsSubmitted < 0 {
		errs = append(errs, "jobs_submitted must not be negative")
	}
	if d.Priority < 0 || d.Priority > 1 {
		errs = append(errs, "priority must be within [0, 1]")
	}
	if d.Status != "" && !d.Status.Valid() {
		errs = append(errs, fmt.Sprintf("unknown dataset status %q", d.Status))
	}
	if d.Username == "" {
		errs = append(errs, "username is required")
	}
	if d.Group == "" {
		errs = append(errs, "group is required")
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// MaxBulkIDs is the most record IDs a bulk request may name.
const MaxBulkIDs = 100000

// CheckBulkIDs rejects a bulk request naming more than MaxBulkIDs ids.
func CheckBulkIDs(kind string, ids []string) error {
	if len(ids) > MaxBulkIDs {
		return Invalid("at most %d %s ids per request, got %d", MaxBulkIDs, kind, len(ids))
	}
	return nil
}

// Validate checks a dataset config against the dataset it belongs to.
// A config is allowed to declare more templates than tasks_per_job; only
// the first tasks_per_job are used.
func (c *DatasetConfig) Validate(tasksPerJob int) error {
	var errs ValidationError
	if len(c.Tasks) < tasksPerJob {
		errs = append(errs, fmt.Sprintf("config declares %d tasks, dataset requires %d", len(c.Tasks), tasksPerJob))
	}
	seen := map[string]bool{}
	for i, t := range c.Tasks {
		if t.Name == "" {
			continue
		}
		if seen[t.Name] {
			errs = append(errs, fmt.Sprintf("duplicate task name %q at index %d", t.Name, i))
		}
		seen[t.Name] = true
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
