// Package loop runs the server's recovery and admission loops by hand.
package loop

import (
	"context"
	"fmt"
	"io"

	"github.com/ohsu-comp-bio/cascade/cmd/util"
	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/events"
	"github.com/ohsu-comp-bio/cascade/logger"
	"github.com/ohsu-comp-bio/cascade/loops"
	"github.com/ohsu-comp-bio/cascade/materialize"
	"github.com/ohsu-comp-bio/cascade/queue"
	"github.com/ohsu-comp-bio/cascade/store"
	"github.com/spf13/cobra"
)

// NewCommand returns the "loop" subcommands.
func NewCommand() *cobra.Command {
	cmd, _ := newCommandHooks()
	return cmd
}

type hooks struct {
	Run func(ctx context.Context, conf config.Config, name string, debug bool, log *logger.Logger, w io.Writer) error
}

func newCommandHooks() (*cobra.Command, *hooks) {
	h := &hooks{
		Run: Run,
	}

	var (
		configFile string
		conf       config.Config
		flagConf   config.Config
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "loop",
		Short: "Run control loops.",
	}

	run := &cobra.Command{
		Use:   "run [name]",
		Short: "Run one pass of a loop against the database.",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			conf, err = util.MergeConfigFileWithFlags(configFile, flagConf)
			if err != nil {
				return fmt.Errorf("error processing config: %v", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.NewLogger("loop", conf.Logger)
			return h.Run(cmd.Context(), conf, args[0], debug, log, cmd.OutOrStdout())
		},
	}
	run.SetGlobalNormalizationFunc(util.NormalizeFlags)
	f := run.Flags()
	f.AddFlagSet(util.ServerFlags(&flagConf, &configFile))
	f.BoolVar(&debug, "debug", false, "Stop at the first error")

	list := &cobra.Command{
		Use:   "list",
		Short: "List loop names.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range (&loops.Loops{}).Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}

	cmd.AddCommand(run, list)
	return cmd, h
}

// Run performs a single pass of the named loop.
func Run(ctx context.Context, conf config.Config, name string, debug bool, log *logger.Logger, w io.Writer) error {
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
	s := store.New(db)
	q := queue.New(s, conf.Queue, log.Sub("queue"), ev)
	m := materialize.New(s, conf, log.Sub("materialize"), ev)
	lp, err := loops.New(s, q, m, conf, log, ev).Get(name)
	if err != nil {
		return err
	}

	took, err := loops.RunOnce(ctx, lp, debug)
	fmt.Fprintf(w, "%s finished in %s\n", lp.Name, took)
	return err
}
