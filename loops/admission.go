package loops

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/model"
)

// QueueTasks tops the queue up toward the configured target. Candidates
// whose dependencies are not complete are held by dropping their
// priority to zero.
func (l *Loops) QueueTasks(ctx context.Context, debug bool) error {
	ctx, p := l.pass(ctx, QueueTasks, debug)
	conf := l.conf.Queue

	counts, err := l.store.TaskStatusCounts(ctx, "")
	if err != nil {
		return fmt.Errorf("counting tasks: %w", err)
	}
	waiting := 0
	for _, s := range model.AdmissibleTaskStatuses() {
		waiting += counts[string(s)]
	}
	n := min(waiting, conf.NTasks-counts[string(model.TaskQueued)], conf.NTasksPerCycle)
	if n <= 0 {
		p.log.Debug("queue is full or nothing is waiting", "waiting", waiting, "queued", counts[string(model.TaskQueued)])
		return nil
	}

	opts := database.Sorted("-priority")
	opts.Limit = n
	opts.Projection = []string{"task_id", "dataset_id", "depends"}
	candidates, err := l.store.ListTasks(ctx,
		database.Filter{
			database.In("status", model.AdmissibleTaskStatuses()),
			database.Gt("priority", 0.0),
		},
		opts,
	)
	if err != nil {
		return fmt.Errorf("listing candidates: %w", err)
	}

	// ready is owned by the main goroutine; met is shared with the pool.
	var ready []string
	var mu sync.Mutex
	var met []string
	var held int
	var stop error

	pool := workerpool.New(max(conf.DependencyConcurrency, 1))
	for _, t := range candidates {
		if len(t.Depends) == 0 {
			ready = append(ready, t.TaskID)
			continue
		}
		t := t
		pool.Submit(func() {
			mu.Lock()
			if stop != nil || ctx.Err() != nil {
				mu.Unlock()
				return
			}
			mu.Unlock()

			ok, err := l.dependsMet(ctx, t.Depends)
			if err == nil && !ok {
				err = l.hold(ctx, t.TaskID)
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				if err := p.fail(err, "checking dependencies", "taskID", t.TaskID); err != nil && stop == nil {
					stop = err
				}
			case ok:
				met = append(met, t.TaskID)
			default:
				held++
			}
		})
	}
	pool.StopWait()
	ready = append(ready, met...)
	if stop != nil {
		return stop
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	queued := 0
	if len(ready) > 0 {
		queued, err = l.queue.QueueTasks(ctx, len(ready), database.Filter{database.In("task_id", ready)})
		if err != nil {
			if err := p.fail(err, "queueing ready tasks"); err != nil {
				return err
			}
		}
	}
	p.log.Info("queue tasks pass", "target", n, "candidates", len(candidates), "held", held, "queued", queued)
	return p.err()
}

// dependsMet reports whether every task in ids exists and is complete.
func (l *Loops) dependsMet(ctx context.Context, ids []string) (bool, error) {
	done, err := l.store.Tasks().Count(ctx, database.Filter{
		database.In("task_id", ids),
		database.Eq("status", model.TaskComplete),
	})
	if err != nil {
		return false, err
	}
	return done >= len(uniq(ids)), nil
}

// hold zeroes the priority of an admissible task.
func (l *Loops) hold(ctx context.Context, taskID string) error {
	_, err := l.store.Tasks().Transition(ctx,
		database.Filter{
			database.Eq("task_id", taskID),
			database.In("status", model.AdmissibleTaskStatuses()),
		},
		database.Update{Set: database.Doc{"priority": 0.0}},
		nil,
	)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	return err
}

func uniq(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
