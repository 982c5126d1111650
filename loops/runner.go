package loops

import (
	"context"
	"sync"
	"time"

	"github.com/ohsu-comp-bio/cascade/logger"
	"github.com/ohsu-comp-bio/cascade/metrics"
)

// NextDelay returns how long to sleep after a pass that took elapsed:
// the rest of the interval, but never less than minDelay.
func NextDelay(interval, elapsed, minDelay time.Duration) time.Duration {
	d := interval - elapsed
	if d < minDelay {
		return minDelay
	}
	return d
}

// Runner runs loops on their schedules, each in its own goroutine.
type Runner struct {
	loops []Loop
	log   *logger.Logger
}

// NewRunner returns a Runner for the given loops.
func NewRunner(loops []Loop, log *logger.Logger) *Runner {
	return &Runner{loops: loops, log: log}
}

// Start starts every enabled loop and blocks until ctx is canceled and all
// loops have stopped. A loop never overlaps with itself.
func (r *Runner) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, lp := range r.loops {
		if lp.Disabled {
			r.log.Info("loop disabled", "loop", lp.Name)
			continue
		}
		wg.Add(1)
		go func(lp Loop) {
			defer wg.Done()
			r.runLoop(ctx, lp)
		}(lp)
	}
	wg.Wait()
	return nil
}

func (r *Runner) runLoop(ctx context.Context, lp Loop) {
	log := r.log.Sub(lp.Name)
	for {
		elapsed, err := RunOnce(ctx, lp, false)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Error("loop pass had failures", err)
		}
		delay := NextDelay(lp.Interval, elapsed, lp.MinDelay)
		log.Debug("loop pass done", "elapsed", elapsed, "next", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunOnce runs a single pass of lp and records its metrics.
func RunOnce(ctx context.Context, lp Loop, debug bool) (time.Duration, error) {
	start := time.Now()
	err := lp.Run(ctx, debug)
	elapsed := time.Since(start)
	metrics.ObserveLoop(lp.Name, elapsed, err)
	return elapsed, err
}
