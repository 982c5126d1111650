// Package loops runs the periodic recovery and rebalancing passes of the
// control plane: status rollups, orphan recovery, queue admission,
// priority recomputation and cleanup.
package loops

import (
	"context"
	"fmt"
	"time"

	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/events"
	"github.com/ohsu-comp-bio/cascade/logger"
	"github.com/ohsu-comp-bio/cascade/materialize"
	"github.com/ohsu-comp-bio/cascade/queue"
	"github.com/ohsu-comp-bio/cascade/store"
)

// Func is one pass of a loop. Per-item failures are logged and collected
// so the pass continues. With debug set the pass stops at, and returns,
// the first failure.
type Func func(ctx context.Context, debug bool) error

// Loop is a named periodic pass.
type Loop struct {
	Name     string
	Interval time.Duration
	// Minimum sleep between passes, even when a pass overran its interval.
	MinDelay time.Duration
	Disabled bool
	Run      Func
}

// Loop names.
const (
	JobCompletion          = "job_completion"
	DatasetCompletion      = "dataset_completion"
	NonActiveTasks         = "non_active_tasks"
	QueueTasks             = "queue_tasks"
	UpdateTaskPriority     = "update_task_priority"
	CleanPilots            = "clean_pilots"
	MaterializationCleanup = "materialization_cleanup"
	Metrics                = "metrics"
)

// Loops holds what the passes operate on.
type Loops struct {
	store        *store.Store
	queue        *queue.Queue
	materializer *materialize.Materializer
	conf         config.Config
	log          *logger.Logger
	events       events.Writer
	now          func() time.Time
}

// New returns the loop set.
func New(s *store.Store, q *queue.Queue, m *materialize.Materializer, conf config.Config, log *logger.Logger, ev events.Writer) *Loops {
	if ev == nil {
		ev = events.Discard
	}
	return &Loops{
		store:        s,
		queue:        q,
		materializer: m,
		conf:         conf,
		log:          log,
		events:       ev,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Registry lists every loop with its configured schedule.
func (l *Loops) Registry() []Loop {
	c := l.conf.Loops
	loop := func(name string, lc config.Loop, run Func) Loop {
		return Loop{
			Name:     name,
			Interval: lc.Interval.D(),
			MinDelay: lc.MinDelay.D(),
			Disabled: lc.Disabled,
			Run:      run,
		}
	}
	return []Loop{
		loop(JobCompletion, c.JobCompletion, l.JobCompletion),
		loop(DatasetCompletion, c.DatasetCompletion, l.DatasetCompletion),
		loop(NonActiveTasks, c.NonActiveTasks, l.NonActiveTasks),
		loop(QueueTasks, c.QueueTasks, l.QueueTasks),
		loop(UpdateTaskPriority, c.UpdatePriority, l.UpdateTaskPriority),
		loop(CleanPilots, c.CleanPilots, l.CleanPilots),
		loop(MaterializationCleanup, c.MaterializationCleanup, l.MaterializationCleanup),
		loop(Metrics, c.Metrics, l.Metrics),
	}
}

// Get returns the named loop.
func (l *Loops) Get(name string) (Loop, error) {
	for _, lp := range l.Registry() {
		if lp.Name == name {
			return lp, nil
		}
	}
	return Loop{}, fmt.Errorf("unknown loop %q", name)
}

// Names lists the registered loop names.
func (l *Loops) Names() []string {
	var out []string
	for _, lp := range l.Registry() {
		out = append(out, lp.Name)
	}
	return out
}
