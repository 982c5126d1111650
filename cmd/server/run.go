package server

import (
	"context"
	"errors"
	"syscall"

	"github.com/ohsu-comp-bio/cascade/cmd/util"
	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/events"
	"github.com/ohsu-comp-bio/cascade/logger"
	"github.com/ohsu-comp-bio/cascade/loops"
	"github.com/ohsu-comp-bio/cascade/materialize"
	"github.com/ohsu-comp-bio/cascade/queue"
	"github.com/ohsu-comp-bio/cascade/server"
	"github.com/ohsu-comp-bio/cascade/store"
	cutil "github.com/ohsu-comp-bio/cascade/util"
	"github.com/ohsu-comp-bio/cascade/version"
	"golang.org/x/sync/errgroup"
)

// Run runs a default Cascade server.
// This opens a database, and starts the API server, the materialization
// worker and the control loops. This blocks until ctx is canceled or the
// process receives SIGINT or SIGTERM.
func Run(ctx context.Context, conf config.Config, log *logger.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := cutil.SignalContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log.Info("Version", version.Get().LogFields()...)

	db, err := util.OpenDatabase(ctx, conf)
	if err != nil {
		return err
	}
	defer db.Close()
	s := store.New(db)

	ev, err := events.FromConfig(conf, log)
	if err != nil {
		return err
	}
	if c, ok := ev.(interface{ Close() error }); ok {
		defer c.Close()
	}

	q := queue.New(s, conf.Queue, log.Sub("queue"), ev)
	m := materialize.New(s, conf, log.Sub("materialize"), ev)
	worker := materialize.NewWorker(m)
	lps := loops.New(s, q, m, conf, log.Sub("loops"), ev)
	srv := server.New(conf, s, q, worker, log.Sub("http"), ev)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})
	g.Go(func() error {
		return loops.NewRunner(lps.Registry(), log.Sub("loops")).Start(gctx)
	})
	if conf.Materialization.Disabled {
		log.Info("materialization worker disabled")
	} else {
		g.Go(func() error {
			return worker.Run(gctx)
		})
	}

	err = g.Wait()
	var sig *cutil.Signaled
	if errors.As(context.Cause(ctx), &sig) {
		log.Info("shutting down", "signal", sig.Signal.String())
	}
	if err != nil {
		log.Error("Server error", err)
	}
	return err
}
