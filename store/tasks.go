package store

import (
	"context"
	"time"

	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/model"
	"github.com/ohsu-comp-bio/cascade/resources"
	"github.com/ohsu-comp-bio/cascade/util"
)

// GetTask returns a task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (*model.Task, error) {
	t := &model.Task{}
	if err := findOne(ctx, s.Tasks(), "task_id", id, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTasks returns tasks matching the filter.
func (s *Store) ListTasks(ctx context.Context, f database.Filter, opts *database.FindOptions) ([]*model.Task, error) {
	docs, err := s.Tasks().Find(ctx, f, opts)
	if err != nil {
		return nil, err
	}
	return decodeAll[model.Task](docs)
}

// CreateTask normalizes and inserts a task.
func (s *Store) CreateTask(ctx context.Context, t *model.Task) error {
	if t.DatasetID == "" || t.JobID == "" {
		return model.Invalid("task requires dataset_id and job_id")
	}
	if t.Status == "" {
		t.Status = model.TaskWaiting
	}
	if !t.Status.Valid() {
		return model.Invalid("unknown task status %q", t.Status)
	}
	reqs, err := resources.Normalize(t.Requirements)
	if err != nil {
		return err
	}
	if t.TaskID == "" {
		t.TaskID = util.GenID()
	}
	if t.Depends == nil {
		t.Depends = []string{}
	}
	now := time.Now().UTC()
	t.Requirements = reqs
	t.CreateDate = now
	t.StatusChanged = now
	return insert(ctx, s.Tasks(), t)
}

// TaskStatusCounts counts a dataset's tasks (or all tasks, when
// datasetID is empty) by status.
func (s *Store) TaskStatusCounts(ctx context.Context, datasetID string) (map[string]int, error) {
	var f database.Filter
	if datasetID != "" {
		f = append(f, database.Eq("dataset_id", datasetID))
	}
	return s.Tasks().CountBy(ctx, f, "status")
}

var taskPatchable = map[string]bool{
	"name":         true,
	"depends":      true,
	"requirements": true,
	"priority":     true,
	"site":         true,
}

// UpdateTask applies an admin patch to a task. Status changes go through
// the queue instead.
func (s *Store) UpdateTask(ctx context.Context, id string, patch map[string]interface{}) (*model.Task, error) {
	set := database.Doc{}
	for k, v := range patch {
		if !taskPatchable[k] {
			return nil, model.Invalid("task field %q cannot be updated", k)
		}
		set[k] = v
	}
	if reqs, ok := patch["requirements"]; ok {
		m, ok := reqs.(map[string]interface{})
		if !ok {
			return nil, model.Invalid("requirements must be an object")
		}
		norm, err := resources.Normalize(m)
		if err != nil {
			return nil, err
		}
		set["requirements"] = norm
	}
	if p, ok := patch["priority"].(float64); ok && (p < 0 || p > 1) {
		return nil, model.Invalid("priority must be within [0, 1]")
	}
	if len(set) == 0 {
		return s.GetTask(ctx, id)
	}
	doc, err := s.Tasks().Transition(ctx,
		database.Filter{database.Eq("task_id", id)},
		database.Update{Set: set},
		nil,
	)
	if err != nil {
		return nil, err
	}
	t := &model.Task{}
	return t, database.Decode(doc, t)
}
