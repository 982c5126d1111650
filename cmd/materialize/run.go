package materialize

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ohsu-comp-bio/cascade/client"
	"github.com/ohsu-comp-bio/cascade/cmd/util"
	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/events"
	"github.com/ohsu-comp-bio/cascade/logger"
	"github.com/ohsu-comp-bio/cascade/materialize"
	"github.com/ohsu-comp-bio/cascade/model"
	"github.com/ohsu-comp-bio/cascade/store"
)

func taskStatus(s string) model.TaskStatus {
	return model.TaskStatus(s)
}

// Request submits a materialization request to the server and prints its
// ID, or its final state when waiting.
func Request(ctx context.Context, conf config.Client, opts RequestOptions, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cli, err := client.NewClient(conf)
	if err != nil {
		return err
	}
	req, err := cli.RequestMaterialization(ctx, opts.DatasetID, opts.Num, taskStatus(opts.SetStatus))
	if err != nil {
		return err
	}
	if !opts.Wait {
		fmt.Fprintln(w, req.MaterializationID)
		return nil
	}
	req, err = cli.WaitForMaterialization(ctx, req.MaterializationID, opts.WaitEvery)
	if req != nil {
		fmt.Fprintf(w, "%s\t%s\tjobs=%d\ttasks=%d\n", req.MaterializationID, req.Status, req.JobsBuffered, req.TasksBuffered)
	}
	return err
}

// Run opens the configured database and performs one materialization run.
func Run(ctx context.Context, conf config.Config, opts materialize.Options, log *logger.Logger, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := util.OpenDatabase(ctx, conf)
	if err != nil {
		return err
	}
	defer db.Close()

	ev, err := events.FromConfig(conf, log)
	if err != nil {
		return err
	}
	m := materialize.New(store.New(db), conf, log, ev)
	res, err := m.RunOnce(ctx, opts)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
