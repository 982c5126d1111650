package priority

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/model"
	"github.com/ohsu-comp-bio/cascade/store"
)

// Engine computes task priorities from stored weights. It caches every
// record it reads for its lifetime, so create one per pass and discard it.
// An Engine is safe for concurrent use.
type Engine struct {
	store *store.Store
	conf  config.Priority
	now   time.Time

	mu       sync.Mutex
	datasets map[string]*model.Dataset
	users    map[string]float64
	groups   map[string]float64
	active   map[string]int
}

// NewEngine returns an Engine reading from s.
func NewEngine(s *store.Store, conf config.Priority) *Engine {
	return &Engine{
		store:    s,
		conf:     conf,
		now:      time.Now().UTC(),
		datasets: map[string]*model.Dataset{},
		users:    map[string]float64{},
		groups:   map[string]float64{},
		active:   map[string]int{},
	}
}

// Prime seeds the dataset cache with an already loaded record.
func (e *Engine) Prime(d *model.Dataset) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.datasets[d.DatasetID] = d
}

// Task returns the priority of t.
func (e *Engine) Task(ctx context.Context, t *model.Task) (float64, error) {
	d, err := e.dataset(ctx, t.DatasetID)
	if err != nil {
		return 0, err
	}
	switch d.Status {
	case model.DatasetProcessing, model.DatasetTruncated:
	default:
		return 0, nil
	}

	up, err := e.user(ctx, d.Username)
	if err != nil {
		return 0, err
	}
	gp, err := e.group(ctx, d.Group)
	if err != nil {
		return 0, err
	}
	n, err := e.activeDatasets(ctx, d.Username)
	if err != nil {
		return 0, err
	}

	return Compute(Inputs{
		DatasetPriority:    d.Priority,
		UserPriority:       up,
		GroupPriority:      gp,
		UserActiveDatasets: n,
		JobIndex:           t.JobIndex,
		JobsSubmitted:      d.JobsSubmitted,
		TaskIndex:          t.TaskIndex,
		TasksPerJob:        d.TasksPerJob,
		Age:                e.now.Sub(d.StartDate),
		AgeHorizon:         e.conf.AgeHorizon.D(),
	}), nil
}

func (e *Engine) dataset(ctx context.Context, id string) (*model.Dataset, error) {
	e.mu.Lock()
	d, ok := e.datasets[id]
	e.mu.Unlock()
	if ok {
		return d, nil
	}
	d, err := e.store.GetDataset(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading dataset %s: %w", id, err)
	}
	e.Prime(d)
	return d, nil
}

func (e *Engine) user(ctx context.Context, name string) (float64, error) {
	return e.cached(e.users, name, func() (float64, error) {
		return e.store.UserPriority(ctx, name, e.conf.DefaultUserPriority)
	})
}

func (e *Engine) group(ctx context.Context, name string) (float64, error) {
	return e.cached(e.groups, name, func() (float64, error) {
		return e.store.GroupPriority(ctx, name, e.conf.DefaultGroupPriority)
	})
}

func (e *Engine) activeDatasets(ctx context.Context, username string) (int, error) {
	e.mu.Lock()
	n, ok := e.active[username]
	e.mu.Unlock()
	if ok {
		return n, nil
	}
	n, err := e.store.Datasets().Count(ctx, database.Filter{
		database.Eq("username", username),
		database.Eq("status", model.DatasetProcessing),
	})
	if err != nil {
		return 0, fmt.Errorf("counting datasets of %s: %w", username, err)
	}
	e.mu.Lock()
	e.active[username] = n
	e.mu.Unlock()
	return n, nil
}

func (e *Engine) cached(m map[string]float64, key string, load func() (float64, error)) (float64, error) {
	e.mu.Lock()
	v, ok := m[key]
	e.mu.Unlock()
	if ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	m[key] = v
	e.mu.Unlock()
	return v, nil
}
