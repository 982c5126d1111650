package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/model"
	"github.com/ohsu-comp-bio/cascade/util"
)

// GetDataset returns a dataset by ID.
func (s *Store) GetDataset(ctx context.Context, id string) (*model.Dataset, error) {
	d := &model.Dataset{}
	if err := findOne(ctx, s.Datasets(), "dataset_id", id, d); err != nil {
		return nil, err
	}
	return d, nil
}

// ListDatasets returns datasets matching the filter.
func (s *Store) ListDatasets(ctx context.Context, f database.Filter, opts *database.FindOptions) ([]*model.Dataset, error) {
	docs, err := s.Datasets().Find(ctx, f, opts)
	if err != nil {
		return nil, err
	}
	return decodeAll[model.Dataset](docs)
}

// CreateDataset validates and inserts a new dataset, assigning its ID,
// sequence number and derived task count.
func (s *Store) CreateDataset(ctx context.Context, d *model.Dataset) error {
	if err := d.Validate(); err != nil {
		return err
	}
	num, err := s.NextSequence(ctx, "dataset")
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if d.DatasetID == "" {
		d.DatasetID = util.GenID()
	}
	d.Dataset = num
	if d.Status == "" {
		d.Status = model.DatasetProcessing
	}
	d.TasksSubmitted = d.JobsSubmitted * d.TasksPerJob
	d.StartDate = now
	d.StatusChanged = now
	return insert(ctx, s.Datasets(), d)
}

// SetDatasetStatus moves a dataset to a new status.
func (s *Store) SetDatasetStatus(ctx context.Context, id string, status model.DatasetStatus) error {
	if !status.Valid() {
		return model.Invalid("unknown dataset status %q", status)
	}
	_, err := s.Datasets().Transition(ctx,
		database.Filter{database.Eq("dataset_id", id)},
		database.Update{Set: database.Doc{"status": status, "status_changed": time.Now().UTC()}},
		nil,
	)
	return err
}

// SetDatasetPriority sets the dataset's priority weight.
func (s *Store) SetDatasetPriority(ctx context.Context, id string, priority float64) error {
	if priority < 0 || priority > 1 {
		return model.Invalid("priority must be within [0, 1]")
	}
	_, err := s.Datasets().Transition(ctx,
		database.Filter{database.Eq("dataset_id", id)},
		database.Update{Set: database.Doc{"priority": priority}},
		nil,
	)
	return err
}

// SetJobsSubmitted raises a dataset's target job count. The update is
// guarded by the previously read count, so concurrent updates cannot
// silently overwrite each other, and keeps
// tasks_submitted == jobs_submitted * tasks_per_job.
func (s *Store) SetJobsSubmitted(ctx context.Context, id string, n int) (*model.Dataset, error) {
	d, err := s.GetDataset(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case d.JobsImmutable:
		return nil, model.Invalid("jobs_submitted is immutable for dataset %s", id)
	case n < d.JobsSubmitted:
		return nil, model.Invalid("jobs_submitted must not decrease (%d < %d)", n, d.JobsSubmitted)
	case d.TasksPerJob <= 0:
		return nil, model.Invalid("dataset %s has no tasks_per_job", id)
	}

	doc, err := s.Datasets().Transition(ctx,
		database.Filter{
			database.Eq("dataset_id", id),
			database.Eq("jobs_submitted", d.JobsSubmitted),
			database.Eq("jobs_immutable", false),
		},
		database.Update{Set: database.Doc{
			"jobs_submitted":  n,
			"tasks_submitted": n * d.TasksPerJob,
		}},
		nil,
	)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("dataset %s changed concurrently: %w", id, err)
	}
	if err != nil {
		return nil, err
	}
	out := &model.Dataset{}
	return out, database.Decode(doc, out)
}

// GetConfig returns the dataset's job config.
func (s *Store) GetConfig(ctx context.Context, datasetID string) (*model.DatasetConfig, error) {
	c := &model.DatasetConfig{}
	if err := findOne(ctx, s.Configs(), "dataset_id", datasetID, c); err != nil {
		return nil, err
	}
	return c, nil
}

// PutConfig replaces the dataset's job config, bumping its version.
func (s *Store) PutConfig(ctx context.Context, c *model.DatasetConfig) error {
	d, err := s.GetDataset(ctx, c.DatasetID)
	if err != nil {
		return err
	}
	if err := c.Validate(d.TasksPerJob); err != nil {
		return err
	}
	tasks, err := database.Encode(struct {
		Tasks []model.TaskTemplate `bson:"tasks"`
	}{c.Tasks})
	if err != nil {
		return err
	}
	doc, err := s.Configs().Upsert(ctx,
		database.Filter{database.Eq("dataset_id", c.DatasetID)},
		database.Update{
			Set: database.Doc{"tasks": tasks["tasks"]},
			Inc: map[string]float64{"version": 1},
		},
	)
	if err != nil {
		return err
	}
	c.Version = doc.Int("version")
	return nil
}
