package events

import (
	"context"

	"github.com/ohsu-comp-bio/cascade/logger"
)

// Logger writes events to a logger.
type Logger struct {
	Log *logger.Logger
}

// WriteEvent writes an event to the logger.
func (el *Logger) WriteEvent(ctx context.Context, ev *Event) error {
	ts := string(ev.Type)
	log := el.Log.WithFields(
		"id", ev.ID,
		"timestamp", ev.Timestamp,
	)
	if ev.DatasetID != "" && ev.DatasetID != ev.ID {
		log = log.WithFields("datasetID", ev.DatasetID)
	}

	switch ev.Type {
	case TaskStatus, JobStatus, DatasetStatus:
		log.Info(ts, "from", ev.From, "to", ev.To)
	case TaskDispatched:
		log.Info(ts, "site", ev.Fields["site"])
	case Materialized:
		log.Info(ts, "jobs", ev.Fields["jobs"], "tasks", ev.Fields["tasks"])
	default:
		log.Info(ts, "event", ev)
	}
	return nil
}
