package materialize

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/model"
)

// Health thresholds of the worker loop.
const (
	maxRunAge     = time.Hour
	maxSuccessAge = 24 * time.Hour
)

// Worker processes materialization requests one at a time.
type Worker struct {
	*Materializer

	mu          sync.Mutex
	started     time.Time
	lastRun     time.Time
	lastSuccess time.Time
	now         func() time.Time
}

// NewWorker returns a worker processing requests with m.
func NewWorker(m *Materializer) *Worker {
	return &Worker{Materializer: m, now: time.Now}
}

// Run polls for requests until ctx is canceled. Requests are processed
// back to back; when none is waiting the worker sleeps for the poll
// interval. Stale requests are reaped every cleanup interval.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	w.started = w.now()
	w.mu.Unlock()

	poll := w.conf.Materialization.PollInterval.D()
	cleanupEvery := w.conf.Materialization.CleanupInterval.D()
	var lastCleanup time.Time

	for {
		if w.now().Sub(lastCleanup) >= cleanupEvery {
			if _, _, err := w.Cleanup(ctx); err != nil {
				w.log.Error("materialization cleanup", err)
			}
			lastCleanup = w.now()
		}

		worked, err := w.ProcessNext(ctx)
		w.mark(err)
		if err != nil {
			w.log.Error("materialization request failed", err)
		}

		if worked && err == nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(poll):
		}
	}
}

func (w *Worker) mark(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastRun = w.now()
	if err == nil {
		w.lastSuccess = w.lastRun
	}
}

// ProcessNext claims the oldest waiting request and runs it. It reports
// whether a request was claimed.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	now := time.Now().UTC()
	doc, err := w.store.Requests().Transition(ctx,
		database.Filter{database.Eq("status", model.RequestWaiting)},
		database.Update{
			Set:   database.Doc{"status": model.RequestProcessing, "modify_timestamp": now},
			Unset: []string{"pending"},
		},
		database.Sorted("create_timestamp"),
	)
	if errors.Is(err, database.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claiming request: %w", err)
	}

	req := &model.MaterializationRequest{}
	if err := database.Decode(doc, req); err != nil {
		return true, err
	}
	log := w.log.WithFields("requestID", req.MaterializationID, "datasetID", req.DatasetID)
	log.Info("processing materialization request", "num", req.Num)

	res, runErr := w.RunOnce(ctx, Options{
		DatasetID: req.DatasetID,
		SetStatus: req.SetStatus,
		Num:       req.Num,
	})

	set := database.Doc{
		"status":           model.RequestComplete,
		"modify_timestamp": time.Now().UTC(),
		"jobs_buffered":    res.JobsBuffered,
		"tasks_buffered":   res.TasksBuffered,
	}
	if runErr != nil {
		set["status"] = model.RequestError
		set["error"] = runErr.Error()
	}
	_, err = w.store.Requests().Transition(ctx,
		database.Filter{
			database.Eq("materialization_id", req.MaterializationID),
			database.Eq("status", model.RequestProcessing),
		},
		database.Update{Set: set},
		nil,
	)
	if errors.Is(err, database.ErrNotFound) {
		log.Warn("request was reaped while processing")
		err = nil
	}
	if runErr != nil {
		return true, runErr
	}
	if err != nil {
		return true, fmt.Errorf("finishing request: %w", err)
	}
	log.Info("materialization request complete", "jobs", res.JobsBuffered, "tasks", res.TasksBuffered)
	return true, nil
}

// HealthStatus describes the worker loop.
type HealthStatus struct {
	Backlog     int       `json:"backlog"`
	Started     time.Time `json:"started"`
	LastRun     time.Time `json:"last_run"`
	LastSuccess time.Time `json:"last_success"`
}

// Health returns an error when the loop has not run within the last hour,
// has not succeeded within the last day (counting from start when it
// never succeeded), or the backlog cannot be counted.
func (w *Worker) Health(ctx context.Context) (HealthStatus, error) {
	w.mu.Lock()
	hs := HealthStatus{Started: w.started, LastRun: w.lastRun, LastSuccess: w.lastSuccess}
	w.mu.Unlock()

	n, err := w.store.Requests().Count(ctx, database.Filter{database.Eq("status", model.RequestWaiting)})
	if err != nil {
		return hs, fmt.Errorf("counting backlog: %w", err)
	}
	hs.Backlog = n

	now := w.now()
	if hs.Started.IsZero() {
		return hs, fmt.Errorf("materialization worker is not running")
	}
	lastRun := hs.LastRun
	if lastRun.IsZero() {
		lastRun = hs.Started
	}
	if now.Sub(lastRun) > maxRunAge {
		return hs, fmt.Errorf("materialization worker has not run since %s", lastRun.Format(time.RFC3339))
	}
	success := hs.LastSuccess
	if success.IsZero() {
		success = hs.Started
	}
	if now.Sub(success) > maxSuccessAge {
		return hs, fmt.Errorf("materialization worker has not succeeded since %s", success.Format(time.RFC3339))
	}
	return hs, nil
}
