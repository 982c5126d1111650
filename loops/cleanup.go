package loops

import (
	"context"
	"errors"
	"fmt"

	"github.com/ohsu-comp-bio/cascade/database"
	"github.com/ohsu-comp-bio/cascade/events"
	"github.com/ohsu-comp-bio/cascade/metrics"
)

// CleanPilots removes pilots that stopped heartbeating or never reported
// a grid queue ID, then drops logs past the retention window.
func (l *Loops) CleanPilots(ctx context.Context, debug bool) error {
	ctx, p := l.pass(ctx, CleanPilots, debug)

	pilots, err := l.store.ListPilots(ctx,
		nil,
		database.Project("pilot_id", "grid_queue_id", "last_update"),
	)
	if err != nil {
		return fmt.Errorf("listing pilots: %w", err)
	}

	cutoff := l.since(l.conf.Loops.PilotTimeout.D())
	removed := 0
	for _, pl := range pilots {
		if pl.GridQueueID != "" && !pl.LastUpdate.Before(cutoff) {
			continue
		}
		err := l.store.DeletePilot(ctx, pl.PilotID)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			if err := p.fail(err, "deleting pilot", "pilotID", pl.PilotID); err != nil {
				return err
			}
			continue
		}
		removed++
		l.events.WriteEvent(ctx, events.NewPilotRemoved(pl.PilotID))
	}

	var logs int
	if keep := l.conf.Loops.LogRetention.D(); keep > 0 {
		logs, err = l.store.DeleteLogsBefore(ctx, l.since(keep))
		if err != nil {
			if err := p.fail(err, "deleting old logs"); err != nil {
				return err
			}
		}
	}
	p.log.Info("clean pilots pass", "pilots", len(pilots), "removed", removed, "logsDeleted", logs)
	return p.err()
}

// MaterializationCleanup reaps abandoned and finished materialization requests.
func (l *Loops) MaterializationCleanup(ctx context.Context, debug bool) error {
	ctx, p := l.pass(ctx, MaterializationCleanup, debug)
	reset, deleted, err := l.materializer.Cleanup(ctx)
	if err != nil {
		return fmt.Errorf("cleaning materialization requests: %w", err)
	}
	p.log.Info("materialization cleanup pass", "reset", reset, "deleted", deleted)
	return nil
}

// Metrics refreshes the store-derived gauges.
func (l *Loops) Metrics(ctx context.Context, debug bool) error {
	ctx, _ = l.pass(ctx, Metrics, debug)
	return metrics.Refresh(ctx, l.store)
}
