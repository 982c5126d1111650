// Package materialize lazily expands datasets into job and task records.
//
// A run never recreates an existing task: it first repairs jobs left short
// by an interrupted run, then grows the dataset by new jobs up to its
// declared jobs_submitted. Runs are idempotent and may be repeated freely.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru"
	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/events"
	"github.com/ohsu-comp-bio/cascade/logger"
	"github.com/ohsu-comp-bio/cascade/metrics"
	"github.com/ohsu-comp-bio/cascade/model"
	"github.com/ohsu-comp-bio/cascade/priority"
	"github.com/ohsu-comp-bio/cascade/store"
)

// ErrBadConfig is wrapped by errors caused by a dataset config that cannot
// produce the dataset's tasks.
var ErrBadConfig = errors.New("invalid dataset config")

// Options selects what a run buffers.
type Options struct {
	// Only this dataset. Empty sweeps every processing dataset.
	DatasetID string
	// Status of new tasks. Defaults to waiting.
	SetStatus model.TaskStatus
	// Max new jobs per dataset. Zero uses the configured default.
	Num int
	// Compute the result without writing anything.
	DryRun bool
}

// Result counts what a run buffered.
type Result struct {
	Datasets      int            `json:"datasets"`
	JobsBuffered  int            `json:"jobs_buffered"`
	TasksBuffered int            `json:"tasks_buffered"`
	PerDataset    map[string]int `json:"per_dataset"`
}

// Materializer buffers jobs and tasks.
type Materializer struct {
	store  *store.Store
	conf   config.Config
	log    *logger.Logger
	events events.Writer
}

// New returns a Materializer.
func New(s *store.Store, conf config.Config, log *logger.Logger, ev events.Writer) *Materializer {
	if ev == nil {
		ev = events.Discard
	}
	return &Materializer{store: s, conf: conf, log: log, events: ev}
}

// RunOnce performs one materialization pass.
//
// When opts.DatasetID is set, the dataset must be processing, truncated or
// suspended and any error is returned. Otherwise every processing dataset
// is visited and per-dataset errors are logged.
func (m *Materializer) RunOnce(ctx context.Context, opts Options) (Result, error) {
	r, err := m.newRun(opts)
	if err != nil {
		return Result{}, err
	}

	datasets, err := r.candidates(ctx)
	if err != nil {
		return r.result, err
	}

	for _, d := range datasets {
		if err := ctx.Err(); err != nil {
			return r.result, err
		}
		jobs, tasks, err := r.dataset(ctx, d)
		r.record(d, jobs, tasks)
		if err != nil {
			if opts.DatasetID != "" {
				return r.result, fmt.Errorf("materializing dataset %s: %w", d.DatasetID, err)
			}
			m.log.Error("materializing dataset", "datasetID", d.DatasetID, "error", err)
		}
	}
	return r.result, nil
}

// run holds the state of one pass. It is never reused, so concurrent
// passes share nothing but the store.
type run struct {
	*Materializer
	opts    Options
	configs *lru.Cache
	prio    *priority.Engine
	result  Result
}

func (m *Materializer) newRun(opts Options) (*run, error) {
	if opts.SetStatus == "" {
		opts.SetStatus = model.TaskWaiting
	}
	switch opts.SetStatus {
	case model.TaskWaiting, model.TaskSuspended:
	default:
		return nil, model.Invalid("new tasks cannot start as %q", opts.SetStatus)
	}
	if opts.Num < 0 {
		return nil, model.Invalid("num must not be negative")
	}
	if opts.Num == 0 {
		opts.Num = m.conf.Materialization.DefaultNum
	}

	size := m.conf.Materialization.ConfigCacheSize
	if size <= 0 {
		size = 128
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &run{
		Materializer: m,
		opts:         opts,
		configs:      cache,
		prio:         priority.NewEngine(m.store, m.conf.Priority),
		result:       Result{PerDataset: map[string]int{}},
	}, nil
}

func (r *run) candidates(ctx context.Context) ([]*model.Dataset, error) {
	if r.opts.DatasetID == "" {
		return r.store.ListDatasets(ctx,
			database.Filter{database.Eq("status", model.DatasetProcessing)},
			database.Sorted("dataset"),
		)
	}

	d, err := r.store.GetDataset(ctx, r.opts.DatasetID)
	if err != nil {
		return nil, fmt.Errorf("loading dataset %s: %w", r.opts.DatasetID, err)
	}
	for _, s := range model.BufferableDatasetStatuses() {
		if d.Status == s {
			return []*model.Dataset{d}, nil
		}
	}
	r.log.Info("dataset not bufferable", "datasetID", d.DatasetID, "status", d.Status)
	return nil, nil
}

func (r *run) record(d *model.Dataset, jobs, tasks int) {
	r.result.Datasets++
	r.result.JobsBuffered += jobs
	r.result.TasksBuffered += tasks
	if tasks > 0 {
		r.result.PerDataset[d.DatasetID] = tasks
	}
	if r.opts.DryRun || tasks == 0 {
		return
	}
	metrics.Materialized(jobs, tasks)
	r.events.WriteEvent(context.Background(), events.NewMaterialized(d.DatasetID, jobs, tasks))
}

// dataset repairs short jobs, then grows the dataset by new jobs.
func (r *run) dataset(ctx context.Context, d *model.Dataset) (jobsBuffered, tasksBuffered int, err error) {
	if d.TasksPerJob <= 0 {
		return 0, 0, fmt.Errorf("%w: dataset %s has no tasks_per_job", ErrBadConfig, d.DatasetID)
	}
	if _, err := r.config(ctx, d); err != nil {
		return 0, 0, err
	}
	r.prio.Prime(d)
	log := r.log.WithFields("datasetID", d.DatasetID)

	jobs, err := r.store.ListJobs(ctx,
		database.Filter{database.Eq("dataset_id", d.DatasetID)},
		&database.FindOptions{
			Sort:       []database.SortField{{Field: "job_index"}},
			Projection: []string{"job_id", "job_index", "dataset_id"},
		},
	)
	if err != nil {
		return 0, 0, fmt.Errorf("listing jobs: %w", err)
	}
	buffered, err := r.store.Tasks().Count(ctx, database.Filter{database.Eq("dataset_id", d.DatasetID)})
	if err != nil {
		return 0, 0, fmt.Errorf("counting tasks: %w", err)
	}

	if buffered != len(jobs)*d.TasksPerJob {
		log.Info("repairing dataset", "jobs", len(jobs), "tasks", buffered)
		n, err := r.repair(ctx, d, jobs)
		tasksBuffered += n
		if err != nil {
			return 0, tasksBuffered, err
		}
	}

	n := d.JobsSubmitted - len(jobs)
	if n > r.opts.Num {
		n = r.opts.Num
	}
	if n <= 0 {
		return 0, tasksBuffered, nil
	}

	existing := make(map[int]bool, len(jobs))
	for _, j := range jobs {
		existing[j.JobIndex] = true
	}
	for idx := 0; idx < d.JobsSubmitted && jobsBuffered < n; idx++ {
		if existing[idx] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return jobsBuffered, tasksBuffered, err
		}
		created, err := r.bufferJob(ctx, d, &model.Job{DatasetID: d.DatasetID, JobIndex: idx})
		tasksBuffered += created
		if err != nil {
			return jobsBuffered, tasksBuffered, err
		}
		jobsBuffered++
	}
	log.Debug("buffered", "jobs", jobsBuffered, "tasks", tasksBuffered)
	return jobsBuffered, tasksBuffered, nil
}

// repair buffers the missing tasks of short jobs, highest job index first.
func (r *run) repair(ctx context.Context, d *model.Dataset, jobs []*model.Job) (int, error) {
	counts, err := r.store.Tasks().CountBy(ctx, database.Filter{database.Eq("dataset_id", d.DatasetID)}, "job_id")
	if err != nil {
		return 0, fmt.Errorf("counting tasks per job: %w", err)
	}

	short := make([]*model.Job, 0)
	for _, j := range jobs {
		if counts[j.JobID] < d.TasksPerJob {
			short = append(short, j)
		}
	}
	sort.Slice(short, func(i, k int) bool { return short[i].JobIndex > short[k].JobIndex })

	total := 0
	for _, j := range short {
		n, err := r.bufferJob(ctx, d, j)
		total += n
		if err != nil {
			return total, fmt.Errorf("repairing job %d: %w", j.JobIndex, err)
		}
	}
	return total, nil
}

// config returns the dataset config, cached for the run.
func (r *run) config(ctx context.Context, d *model.Dataset) (*model.DatasetConfig, error) {
	if c, ok := r.configs.Get(d.DatasetID); ok {
		return c.(*model.DatasetConfig), nil
	}
	c, err := r.store.GetConfig(ctx, d.DatasetID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: dataset %s has no config", ErrBadConfig, d.DatasetID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if len(c.Tasks) < d.TasksPerJob {
		return nil, fmt.Errorf("%w: dataset %s declares %d tasks per job, config has %d",
			ErrBadConfig, d.DatasetID, d.TasksPerJob, len(c.Tasks))
	}
	r.configs.Add(d.DatasetID, c)
	return c, nil
}
