package events

import (
	"context"
	"time"

	"github.com/ohsu-comp-bio/cascade/util"
)

// Retrier retries failed writes to the underlying writer.
type Retrier struct {
	*util.Retrier
	Writer Writer
}

// WriteEvent writes the event, retrying with backoff.
func (r *Retrier) WriteEvent(ctx context.Context, e *Event) error {
	return r.Retry(ctx, func() error {
		return r.Writer.WriteEvent(ctx, e)
	})
}

// Close closes the underlying writer, if it holds resources.
func (r *Retrier) Close() error {
	if c, ok := r.Writer.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func kafkaRetrier() *util.Retrier {
	r := util.NewRetrier(3)
	r.MaxElapsedTime = time.Second * 30
	return r
}
