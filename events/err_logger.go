package events

import (
	"context"

	"github.com/ohsu-comp-bio/cascade/logger"
)

// ErrLogger writes an error message to the given logger when an event write fails.
type ErrLogger struct {
	Writer
	Log *logger.Logger
}

// WriteEvent writes the event to the underlying event writer. If an error is returned
// from that write, ErrLogger will log the error to the given logger, and return the error.
func (e *ErrLogger) WriteEvent(ctx context.Context, ev *Event) error {
	err := e.Writer.WriteEvent(ctx, ev)
	if err != nil {
		e.Log.Error("error writing event", "error", err, "event_type", ev.Type, "event_id", ev.ID)
	}
	return err
}

// Close closes the underlying writer, if it holds resources.
func (e *ErrLogger) Close() error {
	if c, ok := e.Writer.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
