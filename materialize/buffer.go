package materialize

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/expr"
	"github.com/ohsu-comp-bio/cascade/model"
	"github.com/ohsu-comp-bio/cascade/resources"
	"github.com/ohsu-comp-bio/cascade/util"
)

// sibling is a task of the job being buffered.
type sibling struct {
	id   string
	name string
}

// bufferJob creates the job's missing tasks in task_index order and
// returns how many it created. A job without an ID is new: it is written
// only after every task evaluates, so a bad template leaves no record.
func (r *run) bufferJob(ctx context.Context, d *model.Dataset, job *model.Job) (int, error) {
	conf, err := r.config(ctx, d)
	if err != nil {
		return 0, err
	}

	fresh := job.JobID == ""
	siblings := make([]*sibling, d.TasksPerJob)
	if fresh {
		job.JobID = util.GenID()
	} else {
		existing, err := r.store.ListTasks(ctx,
			database.Filter{database.Eq("job_id", job.JobID)},
			database.Project("task_index", "name"),
		)
		if err != nil {
			return 0, fmt.Errorf("listing tasks of job %d: %w", job.JobIndex, err)
		}
		for _, t := range existing {
			if t.TaskIndex >= 0 && t.TaskIndex < len(siblings) {
				siblings[t.TaskIndex] = &sibling{id: t.TaskID, name: t.Name}
			}
		}
	}

	var tasks []*model.Task
	for idx := range siblings {
		if siblings[idx] != nil {
			continue
		}
		t, err := r.newTask(ctx, d, job, idx, conf, siblings)
		if err != nil {
			return 0, fmt.Errorf("job %d task %d: %w", job.JobIndex, idx, err)
		}
		siblings[idx] = &sibling{id: t.TaskID, name: t.Name}
		tasks = append(tasks, t)
	}
	if r.opts.DryRun {
		return len(tasks), nil
	}

	if fresh {
		if err := r.store.CreateJob(ctx, job); err != nil {
			return 0, fmt.Errorf("creating job %d: %w", job.JobIndex, err)
		}
	}
	for i, t := range tasks {
		if err := r.store.CreateTask(ctx, t); err != nil {
			return i, fmt.Errorf("creating job %d task %d: %w", job.JobIndex, t.TaskIndex, err)
		}
	}
	return len(tasks), nil
}

func (r *run) newTask(ctx context.Context, d *model.Dataset, job *model.Job, idx int, conf *model.DatasetConfig, siblings []*sibling) (*model.Task, error) {
	tmpl := conf.Tasks[idx]
	name := taskName(tmpl, idx)

	env := expr.Env{
		"job":             job.JobIndex,
		"job_index":       job.JobIndex,
		"task":            name,
		"task_index":      idx,
		"dataset":         d.Dataset,
		"dataset_id":      d.DatasetID,
		"jobs_submitted":  d.JobsSubmitted,
		"tasks_submitted": d.TasksSubmitted,
		"tasks_per_job":   d.TasksPerJob,
		"debug":           d.Debug,
	}
	reqs, err := requirements(tmpl.Requirements, env)
	if err != nil {
		return nil, err
	}
	deps, err := r.depends(ctx, d, job, idx, conf, tmpl.Depends, siblings)
	if err != nil {
		return nil, err
	}

	t := &model.Task{
		TaskID:       util.GenID(),
		DatasetID:    d.DatasetID,
		JobID:        job.JobID,
		JobIndex:     job.JobIndex,
		TaskIndex:    idx,
		Name:         name,
		Depends:      deps,
		Requirements: reqs,
		Status:       r.opts.SetStatus,
	}
	t.Priority, err = r.prio.Task(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("computing priority: %w", err)
	}
	return t, nil
}

func taskName(t model.TaskTemplate, idx int) string {
	if t.Name != "" {
		return t.Name
	}
	return strconv.Itoa(idx)
}

// requirements evaluates a template's requirement expressions and
// normalizes the result.
func requirements(tmpl map[string]interface{}, env expr.Env) (map[string]interface{}, error) {
	raw := make(map[string]interface{}, len(tmpl))
	for k, v := range tmpl {
		x, err := expr.ExpandValue(v, env)
		if err != nil {
			return nil, fmt.Errorf("%w: requirement %s: %v", ErrBadConfig, k, err)
		}
		// text around a placeholder always yields a string
		if s, ok := x.(string); ok && resources.IsNumeric(k) {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				x = f
			}
		}
		raw[k] = x
	}
	reqs, err := resources.Normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadConfig, err)
	}
	return reqs, nil
}
