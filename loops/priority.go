package loops

import (
	"context"
	"errors"
	"fmt"

	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/model"
	"github.com/ohsu-comp-bio/cascade/priority"
	"golang.org/x/sync/errgroup"
)

// depsChunk bounds the size of one dependency status lookup.
const depsChunk = 10000

// UpdateTaskPriority recomputes the priority of every active task whose
// dependencies are complete.
func (l *Loops) UpdateTaskPriority(ctx context.Context, debug bool) error {
	ctx, p := l.pass(ctx, UpdateTaskPriority, debug)

	tasks, err := l.store.ListTasks(ctx,
		database.Filter{database.In("status", model.ActiveTaskStatuses())},
		database.Project("task_id", "dataset_id", "job_index", "task_index", "depends", "priority", "status"),
	)
	if err != nil {
		return fmt.Errorf("listing active tasks: %w", err)
	}

	complete, err := l.completeDepends(ctx, tasks)
	if err != nil {
		return fmt.Errorf("loading dependency status: %w", err)
	}

	engine := priority.NewEngine(l.store, l.conf.Priority)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(l.conf.Queue.DependencyConcurrency, 1))

	var skipped int
	for _, t := range tasks {
		if !allComplete(t.Depends, complete) {
			skipped++
			continue
		}
		t := t
		g.Go(func() error {
			err := l.updatePriority(gctx, engine, t)
			if err != nil {
				return p.fail(err, "updating task priority", "taskID", t.TaskID)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	p.log.Info("update task priority pass", "tasks", len(tasks), "skipped", skipped)
	return p.err()
}

func (l *Loops) updatePriority(ctx context.Context, engine *priority.Engine, t *model.Task) error {
	prio, err := engine.Task(ctx, t)
	if err != nil {
		return err
	}
	if prio == t.Priority {
		return nil
	}
	_, err = l.store.Tasks().Transition(ctx,
		database.Filter{
			database.Eq("task_id", t.TaskID),
			database.In("status", model.ActiveTaskStatuses()),
		},
		database.Update{Set: database.Doc{"priority": prio}},
		nil,
	)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	return err
}

// completeDepends returns the set of complete tasks among the
// dependencies of tasks.
func (l *Loops) completeDepends(ctx context.Context, tasks []*model.Task) (map[string]bool, error) {
	var ids []string
	for _, t := range tasks {
		ids = append(ids, t.Depends...)
	}
	ids = uniq(ids)

	out := map[string]bool{}
	for len(ids) > 0 {
		chunk := ids[:min(len(ids), depsChunk)]
		ids = ids[len(chunk):]
		docs, err := l.store.Tasks().Find(ctx,
			database.Filter{database.In("task_id", chunk), database.Eq("status", model.TaskComplete)},
			database.Project("task_id"),
		)
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			out[d.String("task_id")] = true
		}
	}
	return out, nil
}

func allComplete(ids []string, complete map[string]bool) bool {
	for _, id := range ids {
		if !complete[id] {
			return false
		}
	}
	return true
}
