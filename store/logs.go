package store

import (
	"context"
	"time"

	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/model"
	"github.com/ohsu-comp-bio/cascade/util"
)

// AddLog stores a log entry.
func (s *Store) AddLog(ctx context.Context, l *model.Log) error {
	if l.Name == "" {
		return model.Invalid("log requires a name")
	}
	if l.LogID == "" {
		l.LogID = util.GenID()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now().UTC()
	}
	return insert(ctx, s.Logs(), l)
}

// GetLog returns a log entry by ID.
func (s *Store) GetLog(ctx context.Context, id string) (*model.Log, error) {
	l := &model.Log{}
	if err := findOne(ctx, s.Logs(), "log_id", id, l); err != nil {
		return nil, err
	}
	return l, nil
}

// TaskLogs returns a task's logs, newest first.
func (s *Store) TaskLogs(ctx context.Context, datasetID, taskID string) ([]*model.Log, error) {
	docs, err := s.Logs().Find(ctx,
		database.Filter{database.Eq("dataset_id", datasetID), database.Eq("task_id", taskID)},
		database.Sorted("-timestamp"),
	)
	if err != nil {
		return nil, err
	}
	return decodeAll[model.Log](docs)
}

// DeleteLogsBefore removes logs older than t.
func (s *Store) DeleteLogsBefore(ctx context.Context, t time.Time) (int, error) {
	return s.Logs().DeleteMany(ctx, database.Filter{database.Lt("timestamp", t)})
}
