package loops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/events"
	"github.com/ohsu-comp-bio/cascade/logger"
	"github.com/ohsu-comp-bio/cascade/model"
)

// NonActiveTasks resets processing tasks that no pilot claims and that
// have not changed for longer than the orphan grace period.
func (l *Loops) NonActiveTasks(ctx context.Context, debug bool) error {
	ctx, p := l.pass(ctx, NonActiveTasks, debug)

	claimed, err := l.store.ClaimedTasks(ctx)
	if err != nil {
		return fmt.Errorf("loading claimed tasks: %w", err)
	}
	grace := l.conf.Loops.OrphanGrace.D()
	cutoff := l.since(grace)

	datasets, err := l.store.Tasks().CountBy(ctx,
		database.Filter{database.Eq("status", model.TaskProcessing)}, "dataset_id")
	if err != nil {
		return fmt.Errorf("counting processing tasks: %w", err)
	}

	reset := 0
	for id := range datasets {
		tasks, err := l.store.ListTasks(ctx,
			database.Filter{
				database.Eq("dataset_id", id),
				database.Eq("status", model.TaskProcessing),
				database.Lt("status_changed", cutoff),
			},
			database.Project("task_id", "dataset_id", "status_changed"),
		)
		if err != nil {
			if err := p.fail(err, "listing stale tasks", "datasetID", id); err != nil {
				return err
			}
			continue
		}

		n := 0
		for _, t := range tasks {
			if err := ctx.Err(); err != nil {
				return err
			}
			if claimed[t.TaskID] {
				continue
			}
			ok, err := l.resetOrphan(ctx, t.TaskID, id, grace)
			if err != nil {
				if err := p.fail(err, "resetting orphaned task", "taskID", t.TaskID); err != nil {
					return err
				}
				continue
			}
			if ok {
				n++
			}
		}
		if n > 0 {
			p.log.Info("reset orphaned tasks", "datasetID", id, "count", n)
		}
		reset += n
	}
	p.log.Debug("non active tasks pass", "reset", reset)
	return p.err()
}

func (l *Loops) resetOrphan(ctx context.Context, taskID, datasetID string, grace time.Duration) (bool, error) {
	ctx = context.WithValue(ctx, logger.TaskIDKey, taskID)
	now := l.now()
	_, err := l.store.Tasks().Transition(ctx,
		database.Filter{
			database.Eq("task_id", taskID),
			database.Eq("status", model.TaskProcessing),
			database.Lt("status_changed", l.since(grace)),
		},
		database.Update{
			Set: database.Doc{"status": model.TaskWaiting, "status_changed": now},
			Inc: map[string]float64{"failures": 1},
		},
		nil,
	)
	if errors.Is(err, database.ErrNotFound) {
		// picked up or reported since the listing
		return false, nil
	}
	if err != nil {
		return false, err
	}
	l.events.WriteEvent(ctx, events.NewTaskStatus(taskID, datasetID, string(model.TaskProcessing), string(model.TaskWaiting)))

	msg := fmt.Sprintf("task was processing for longer than %s without a pilot holding it; reset to waiting", grace)
	for _, name := range []string{"stdlog", "stderr"} {
		data := msg
		if name == "stderr" {
			data = "lost contact with pilot: " + msg
		}
		err := l.store.AddLog(ctx, &model.Log{
			DatasetID: datasetID,
			TaskID:    taskID,
			Name:      name,
			Data:      data,
			Timestamp: now,
		})
		if err != nil {
			l.log.Warn("attaching orphan log", ctx, "error", err)
		}
	}
	return true, nil
}
