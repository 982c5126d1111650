package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/events"
	"github.com/ohsu-comp-bio/cascade/model"
	"github.com/ohsu-comp-bio/cascade/resources"
)

// ErrorReport is sent by a pilot when a task fails.
type ErrorReport struct {
	// Seconds the task ran.
	TimeUsed float64 `json:"time_used"`
	// Resources the task was observed to use, in requirement units.
	Resources map[string]interface{} `json:"resources"`
	Reason    string                 `json:"reason"`
	Evicted   bool                   `json:"evicted"`
}

// CompleteReport is sent by a pilot when a task succeeds.
type CompleteReport struct {
	// Seconds the task ran.
	TimeUsed float64 `json:"time_used"`
	Site     string  `json:"site"`
}

// ReportError resets a failed task so it can be queued again, counting
// the failure and raising its requirements to what it was seen to use.
// A complete task is never touched; the report then returns ErrNotFound.
// When failures reach the configured maximum the task is marked failed.
func (q *Queue) ReportError(ctx context.Context, taskID string, rep ErrorReport) (*model.Task, error) {
	cur, err := q.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	hours := rep.TimeUsed / 3600
	if hours <= 0 {
		if t, ok := rep.Resources[resources.Time].(float64); ok {
			hours = t
		}
	}

	u := database.Update{
		Set: database.Doc{"status": model.TaskReset, "status_changed": time.Now().UTC()},
		Inc: map[string]float64{
			"failures":       1,
			"walltime_err":   hours,
			"walltime_err_n": 1,
		},
	}
	if rep.Evicted {
		u.Inc["evictions"] = 1
	}
	// Max semantics keep concurrent reports from lowering each other.
	escalated := resources.Escalate(cur.Requirements, rep.Resources)
	if len(escalated) > 0 {
		u.Max = map[string]float64{}
		for k, v := range escalated {
			u.Max[resources.Field(k)] = v
		}
	}

	doc, err := q.store.Tasks().Transition(ctx,
		database.Filter{
			database.Eq("task_id", taskID),
			database.Ne("status", model.TaskComplete),
		},
		u, nil,
	)
	if err != nil {
		return nil, err
	}
	log := q.log.WithFields("taskID", taskID, "datasetID", cur.DatasetID)
	log.Info("task reset", "failures", doc.Int("failures"), "escalated", escalated, "evicted", rep.Evicted)
	q.emit(ctx, events.NewTaskStatus(taskID, cur.DatasetID, string(cur.Status), string(model.TaskReset)))

	if rep.Reason != "" {
		err := q.store.AddLog(ctx, &model.Log{DatasetID: cur.DatasetID, TaskID: taskID, Name: "stdlog", Data: rep.Reason})
		if err != nil {
			log.Error("saving error reason", err)
		}
	}

	if max := q.conf.MaxFailures; max > 0 && doc.Int("failures") >= max {
		failed, err := q.store.Tasks().Transition(ctx,
			database.Filter{
				database.Eq("task_id", taskID),
				database.Eq("status", model.TaskReset),
				database.Gte("failures", float64(max)),
			},
			database.Update{Set: database.Doc{"status": model.TaskFailed, "status_changed": time.Now().UTC()}},
			nil,
		)
		switch {
		case err == nil:
			doc = failed
			log.Warn("task failed too many times", "failures", doc.Int("failures"))
			q.emit(ctx, events.NewTaskStatus(taskID, cur.DatasetID, string(model.TaskReset), string(model.TaskFailed)))
		case !errors.Is(err, database.ErrNotFound):
			return nil, fmt.Errorf("marking task failed: %w", err)
		}
	}

	t := &model.Task{}
	return t, database.Decode(doc, t)
}

// ReportComplete marks a processing task complete. A stale or repeated
// report returns ErrNotFound.
func (q *Queue) ReportComplete(ctx context.Context, taskID string, rep CompleteReport) (*model.Task, error) {
	set := database.Doc{
		"status":         model.TaskComplete,
		"status_changed": time.Now().UTC(),
		"walltime":       rep.TimeUsed / 3600,
	}
	if rep.Site != "" {
		set["site"] = rep.Site
	}
	doc, err := q.store.Tasks().Transition(ctx,
		database.Filter{
			database.Eq("task_id", taskID),
			database.Eq("status", model.TaskProcessing),
		},
		database.Update{Set: set},
		nil,
	)
	if err != nil {
		return nil, err
	}
	t := &model.Task{}
	if err := database.Decode(doc, t); err != nil {
		return nil, err
	}
	q.emit(ctx, events.NewTaskStatus(taskID, t.DatasetID, string(model.TaskProcessing), string(model.TaskComplete)))
	return t, nil
}
