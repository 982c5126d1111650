package util

import (
	"context"
	"os"
	"os/signal"
)

// Signaled is the cause of a context canceled by SignalContext.
type Signaled struct {
	Signal os.Signal
}

func (s *Signaled) Error() string {
	return "received " + s.Signal.String()
}

// SignalContext returns a context canceled when one of sigs arrives.
// context.Cause of that context is then a *Signaled. Calling stop
// cancels the context and releases the signal handler.
func SignalContext(ctx context.Context, sigs ...os.Signal) (sub context.Context, stop context.CancelFunc) {
	sub, cancel := context.WithCancelCause(ctx)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	go func() {
		defer signal.Stop(ch)
		select {
		case <-sub.Done():
		case sig := <-ch:
			cancel(&Signaled{Signal: sig})
		}
	}()

	return sub, func() { cancel(nil) }
}
