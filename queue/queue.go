// Package queue admits waiting tasks to the queue, hands queued tasks to
// pilots and applies the reports pilots send back.
//
// Every state change is a single guarded Transition on the task, so any
// number of server instances may serve pilots concurrently.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/events"
	"github.com/ohsu-comp-bio/cascade/logger"
	"github.com/ohsu-comp-bio/cascade/metrics"
	"github.com/ohsu-comp-bio/cascade/model"
	"github.com/ohsu-comp-bio/cascade/resources"
	"github.com/ohsu-comp-bio/cascade/store"
)

// MaxBulkIDs is the most task IDs a bulk request may name.
const MaxBulkIDs = model.MaxBulkIDs

// Queue is the admission and dispatch engine.
type Queue struct {
	store  *store.Store
	conf   config.Queue
	log    *logger.Logger
	events events.Writer
}

// New returns a Queue.
func New(s *store.Store, conf config.Queue, log *logger.Logger, ev events.Writer) *Queue {
	if ev == nil {
		ev = events.Discard
	}
	return &Queue{store: s, conf: conf, log: log, events: ev}
}

func (q *Queue) emit(ctx context.Context, ev *events.Event) {
	// write failures are logged by the writer
	q.events.WriteEvent(ctx, ev)
}

// QueueTasks moves up to n admissible tasks matching filter to queued,
// highest priority first, and returns how many it moved. Tasks with zero
// priority are held.
func (q *Queue) QueueTasks(ctx context.Context, n int, filter database.Filter) (int, error) {
	if filter.Has("status") {
		return 0, model.Invalid("queue filter must not constrain status")
	}
	f := database.Filter{
		database.In("status", model.AdmissibleTaskStatuses()),
		database.Gt("priority", 0.0),
	}.And(filter...)

	queued := 0
	for queued < n {
		if err := ctx.Err(); err != nil {
			return queued, err
		}
		doc, err := q.store.Tasks().Transition(ctx, f,
			database.Update{Set: database.Doc{"status": model.TaskQueued, "status_changed": time.Now().UTC()}},
			database.Sorted("-priority"),
		)
		if errors.Is(err, database.ErrNotFound) {
			break
		}
		if err != nil {
			return queued, fmt.Errorf("queueing task: %w", err)
		}
		queued++
		q.emit(ctx, events.NewTaskStatus(doc.String("task_id"), doc.String("dataset_id"), "", string(model.TaskQueued)))
	}
	return queued, nil
}

// Dispatch hands the highest priority queued task that fits the offered
// resources to the caller, moving it to processing. queryParams add
// equality conditions on other task fields. ErrNotFound means no task fits.
func (q *Queue) Dispatch(ctx context.Context, offered map[string]interface{}, queryParams map[string]interface{}) (*model.Task, error) {
	match, err := resources.MatchFilter(offered)
	if err != nil {
		return nil, err
	}

	f := database.Filter{database.Eq("status", model.TaskQueued)}
	var errs model.ValidationError
	for k, v := range queryParams {
		if k == "status" {
			errs = append(errs, "query parameters must not constrain status")
			continue
		}
		if key := strings.TrimPrefix(k, "requirements."); key != k {
			if _, ok := offered[key]; ok {
				errs = append(errs, fmt.Sprintf("query parameter %s collides with offered resource %s", k, key))
				continue
			}
		}
		f = append(f, database.Eq(k, v))
	}
	if len(errs) > 0 {
		return nil, errs
	}
	f = f.And(match...)

	set := database.Doc{"status": model.TaskProcessing, "status_changed": time.Now().UTC()}
	site, _ := offered[resources.Site].(string)
	if site != "" {
		set["site"] = site
	}
	doc, err := q.store.Tasks().Transition(ctx, f, database.Update{Set: set}, database.Sorted("-priority"))
	if errors.Is(err, database.ErrNotFound) {
		metrics.Dispatched(false)
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("dispatching task: %w", err)
	}
	metrics.Dispatched(true)

	t := &model.Task{}
	if err := database.Decode(doc, t); err != nil {
		return nil, err
	}
	q.emit(ctx, events.NewTaskDispatched(t.TaskID, t.DatasetID, site))
	return t, nil
}

// SetStatus moves a single task to status.
func (q *Queue) SetStatus(ctx context.Context, taskID string, status model.TaskStatus) error {
	if !status.Valid() {
		return model.Invalid("unknown task status %q", status)
	}
	doc, err := q.store.Tasks().Transition(ctx,
		database.Filter{database.Eq("task_id", taskID)},
		database.Update{Set: database.Doc{"status": status, "status_changed": time.Now().UTC()}},
		nil,
	)
	if err != nil {
		return err
	}
	q.emit(ctx, events.NewTaskStatus(taskID, doc.String("dataset_id"), "", string(status)))
	return nil
}

// BulkStatus moves the listed tasks to status. With no IDs, every task of
// the dataset is moved.
func (q *Queue) BulkStatus(ctx context.Context, datasetID string, taskIDs []string, status model.TaskStatus) (int, error) {
	if err := model.CheckBulkIDs("task", taskIDs); err != nil {
		return 0, err
	}
	if !status.Valid() {
		return 0, model.Invalid("unknown task status %q", status)
	}
	var f database.Filter
	if datasetID != "" {
		f = append(f, database.Eq("dataset_id", datasetID))
	}
	if len(taskIDs) > 0 {
		f = append(f, database.In("task_id", taskIDs))
	}
	if len(f) == 0 {
		return 0, model.Invalid("task ids are required")
	}

	n, err := q.store.Tasks().UpdateMany(ctx, f, database.Update{
		Set: database.Doc{"status": status, "status_changed": time.Now().UTC()},
	})
	if err != nil {
		return n, err
	}
	q.log.Info("bulk task status", "datasetID", datasetID, "status", status, "count", n)
	return n, nil
}

// BulkRequirements sets requirements on every task of a dataset with the
// given name. Setting a requirement to its default removes it.
func (q *Queue) BulkRequirements(ctx context.Context, datasetID, name string, reqs map[string]interface{}) (int, error) {
	if datasetID == "" || name == "" {
		return 0, model.Invalid("dataset and task name are required")
	}
	if len(reqs) == 0 {
		return 0, model.Invalid("no requirements given")
	}
	norm, err := resources.Normalize(reqs)
	if err != nil {
		return 0, err
	}
	u := database.Update{Set: database.Doc{}}
	for k := range reqs {
		if v, ok := norm[k]; ok {
			u.Set[resources.Field(k)] = v
		} else {
			u.Unset = append(u.Unset, resources.Field(k))
		}
	}
	return q.store.Tasks().UpdateMany(ctx,
		database.Filter{database.Eq("dataset_id", datasetID), database.Eq("name", name)},
		u,
	)
}
