package loops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/events"
	"github.com/ohsu-comp-bio/cascade/model"
)

// JobCompletion rolls task states up into processing jobs.
func (l *Loops) JobCompletion(ctx context.Context, debug bool) error {
	ctx, p := l.pass(ctx, JobCompletion, debug)

	jobs, err := l.store.ListJobs(ctx,
		database.Filter{database.Eq("status", model.JobProcessing)},
		database.Project("job_id", "dataset_id", "job_index", "status"),
	)
	if err != nil {
		return fmt.Errorf("listing processing jobs: %w", err)
	}

	tpj := map[string]int{}
	changed := 0
	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, ok := tpj[j.DatasetID]
		if !ok {
			d, err := l.store.GetDataset(ctx, j.DatasetID)
			if err != nil {
				if err := p.fail(err, "loading dataset", "datasetID", j.DatasetID); err != nil {
					return err
				}
				continue
			}
			n = d.TasksPerJob
			tpj[j.DatasetID] = n
		}

		counts, err := l.store.Tasks().CountBy(ctx, database.Filter{database.Eq("job_id", j.JobID)}, "status")
		if err != nil {
			if err := p.fail(err, "counting job tasks", "jobID", j.JobID); err != nil {
				return err
			}
			continue
		}
		next, ok := jobRollup(counts, n)
		if !ok {
			continue
		}

		_, err = l.store.Jobs().Transition(ctx,
			database.Filter{database.Eq("job_id", j.JobID), database.Eq("status", model.JobProcessing)},
			database.Update{Set: database.Doc{"status": next, "status_changed": l.now()}},
			nil,
		)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			if err := p.fail(err, "updating job status", "jobID", j.JobID); err != nil {
				return err
			}
			continue
		}
		changed++
		l.events.WriteEvent(ctx, events.NewJobStatus(j.JobID, j.DatasetID, string(model.JobProcessing), string(next)))
	}
	p.log.Info("job completion pass", "jobs", len(jobs), "changed", changed)
	return p.err()
}

// jobRollup derives a job's status from its task status counts. It
// reports false while the job should stay processing, including when
// fewer than tasksPerJob tasks have been buffered.
func jobRollup(counts map[string]int, tasksPerJob int) (model.JobStatus, bool) {
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 || total < tasksPerJob {
		return "", false
	}
	if counts[string(model.TaskComplete)] == total {
		return model.JobComplete, true
	}
	for _, s := range model.ActiveTaskStatuses() {
		if counts[string(s)] > 0 {
			return "", false
		}
	}
	if counts[string(model.TaskFailed)] > 0 {
		return model.JobErrors, true
	}
	return model.JobSuspended, true
}

// DatasetCompletion rolls job states up into processing and truncated
// datasets.
func (l *Loops) DatasetCompletion(ctx context.Context, debug bool) error {
	ctx, p := l.pass(ctx, DatasetCompletion, debug)

	datasets, err := l.store.ListDatasets(ctx,
		database.Filter{database.In("status", []model.DatasetStatus{model.DatasetProcessing, model.DatasetTruncated})},
		nil,
	)
	if err != nil {
		return fmt.Errorf("listing datasets: %w", err)
	}

	changed := 0
	for _, d := range datasets {
		if err := ctx.Err(); err != nil {
			return err
		}
		next, ok, err := l.datasetRollup(ctx, d)
		if err != nil {
			if err := p.fail(err, "rolling up dataset", "datasetID", d.DatasetID); err != nil {
				return err
			}
			continue
		}
		if !ok {
			continue
		}
		_, err = l.store.Datasets().Transition(ctx,
			database.Filter{database.Eq("dataset_id", d.DatasetID), database.Eq("status", d.Status)},
			database.Update{Set: database.Doc{"status": next, "status_changed": l.now()}},
			nil,
		)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			if err := p.fail(err, "updating dataset status", "datasetID", d.DatasetID); err != nil {
				return err
			}
			continue
		}
		changed++
		p.log.Info("dataset status changed", "datasetID", d.DatasetID, "from", d.Status, "to", next)
		l.events.WriteEvent(ctx, events.NewDatasetStatus(d.DatasetID, string(d.Status), string(next)))
	}
	p.log.Info("dataset completion pass", "datasets", len(datasets), "changed", changed)
	return p.err()
}

func (l *Loops) datasetRollup(ctx context.Context, d *model.Dataset) (model.DatasetStatus, bool, error) {
	if _, err := l.store.GetConfig(ctx, d.DatasetID); errors.Is(err, database.ErrNotFound) {
		return model.DatasetSuspended, true, nil
	} else if err != nil {
		return "", false, err
	}

	jobs, err := l.store.Jobs().CountBy(ctx, database.Filter{database.Eq("dataset_id", d.DatasetID)}, "status")
	if err != nil {
		return "", false, err
	}
	total := 0
	for _, n := range jobs {
		total += n
	}
	if total == 0 {
		return "", false, nil
	}

	if d.Status != model.DatasetTruncated {
		if total < d.JobsSubmitted {
			return "", false, nil
		}
		tasks, err := l.store.Tasks().Count(ctx, database.Filter{database.Eq("dataset_id", d.DatasetID)})
		if err != nil {
			return "", false, err
		}
		if tasks < d.TasksSubmitted {
			return "", false, nil
		}
	}

	switch {
	case jobs[string(model.JobComplete)] == total:
		return model.DatasetComplete, true, nil
	case jobs[string(model.JobProcessing)] > 0:
		return "", false, nil
	case jobs[string(model.JobErrors)] > 0:
		return model.DatasetErrors, true, nil
	}
	return model.DatasetSuspended, true, nil
}

// since returns the cutoff d before now.
func (l *Loops) since(d time.Duration) time.Time {
	return l.now().Add(-d)
}
