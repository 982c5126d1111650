package store

import (
	"context"
	"time"

	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/model"
	"github.com/ohsu-comp-bio/cascade/util"
)

// GetJob returns a job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*model.Job, error) {
	j := &model.Job{}
	if err := findOne(ctx, s.Jobs(), "job_id", id, j); err != nil {
		return nil, err
	}
	return j, nil
}

// ListJobs returns jobs matching the filter.
func (s *Store) ListJobs(ctx context.Context, f database.Filter, opts *database.FindOptions) ([]*model.Job, error) {
	docs, err := s.Jobs().Find(ctx, f, opts)
	if err != nil {
		return nil, err
	}
	return decodeAll[model.Job](docs)
}

// CreateJob inserts a job. A second job with the same dataset and index
// fails with database.ErrDuplicateKey.
func (s *Store) CreateJob(ctx context.Context, j *model.Job) error {
	if j.DatasetID == "" || j.JobIndex < 0 {
		return model.Invalid("job requires dataset_id and a non-negative job_index")
	}
	if j.JobID == "" {
		j.JobID = util.GenID()
	}
	if j.Status == "" {
		j.Status = model.JobProcessing
	}
	j.StatusChanged = time.Now().UTC()
	return insert(ctx, s.Jobs(), j)
}

// SetJobStatus moves a job to a new status.
func (s *Store) SetJobStatus(ctx context.Context, id string, status model.JobStatus) error {
	if !status.Valid() {
		return model.Invalid("unknown job status %q", status)
	}
	_, err := s.Jobs().Transition(ctx,
		database.Filter{database.Eq("job_id", id)},
		database.Update{Set: database.Doc{"status": status, "status_changed": time.Now().UTC()}},
		nil,
	)
	return err
}

// BulkJobStatus moves every job of a dataset (or the listed jobs) to a
// new status. At most model.MaxBulkIDs jobs may be listed.
func (s *Store) BulkJobStatus(ctx context.Context, datasetID string, jobIDs []string, status model.JobStatus) (int, error) {
	if err := model.CheckBulkIDs("job", jobIDs); err != nil {
		return 0, err
	}
	if !status.Valid() {
		return 0, model.Invalid("unknown job status %q", status)
	}
	f := database.Filter{database.Eq("dataset_id", datasetID)}
	if len(jobIDs) > 0 {
		f = f.And(database.In("job_id", jobIDs))
	}
	return s.Jobs().UpdateMany(ctx, f, database.Update{
		Set: database.Doc{"status": status, "status_changed": time.Now().UTC()},
	})
}

// UpdateJob applies an admin patch to a job. Only status may change.
func (s *Store) UpdateJob(ctx context.Context, id string, patch map[string]interface{}) (*model.Job, error) {
	set := database.Doc{}
	for k, v := range patch {
		if k != "status" {
			return nil, model.Invalid("job field %q cannot be updated", k)
		}
		str, _ := v.(string)
		if !model.JobStatus(str).Valid() {
			return nil, model.Invalid("unknown job status %v", v)
		}
		set["status"] = str
		set["status_changed"] = time.Now().UTC()
	}
	if len(set) == 0 {
		return s.GetJob(ctx, id)
	}
	doc, err := s.Jobs().Transition(ctx,
		database.Filter{database.Eq("job_id", id)},
		database.Update{Set: set},
		nil,
	)
	if err != nil {
		return nil, err
	}
	j := &model.Job{}
	return j, database.Decode(doc, j)
}
