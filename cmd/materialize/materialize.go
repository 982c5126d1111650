package materialize

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ohsu-comp-bio/cascade/cmd/util"
	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/logger"
	"github.com/ohsu-comp-bio/cascade/materialize"
	"github.com/spf13/cobra"
)

// NewCommand returns the "materialize" subcommands.
func NewCommand() *cobra.Command {
	cmd, _ := newCommandHooks()
	return cmd
}

// RequestOptions are the arguments of "materialize request".
type RequestOptions struct {
	DatasetID string
	Num       int
	SetStatus string
	Wait      bool
	WaitEvery time.Duration
}

type hooks struct {
	Request func(ctx context.Context, conf config.Client, opts RequestOptions, w io.Writer) error
	Run     func(ctx context.Context, conf config.Config, opts materialize.Options, log *logger.Logger, w io.Writer) error
}

func newCommandHooks() (*cobra.Command, *hooks) {
	h := &hooks{
		Request: Request,
		Run:     Run,
	}

	var (
		configFile string
		conf       config.Config
		flagConf   config.Config
	)

	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Buffer dataset jobs and tasks.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			conf, err = util.MergeConfigFileWithFlags(configFile, flagConf)
			if err != nil {
				return fmt.Errorf("error processing config: %v", err)
			}
			return nil
		},
	}
	cmd.SetGlobalNormalizationFunc(util.NormalizeFlags)

	var ropts RequestOptions
	request := &cobra.Command{
		Use:   "request [datasetID]",
		Short: "Ask a running server to buffer jobs. Without a dataset ID every processing dataset is buffered.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				ropts.DatasetID = args[0]
			}
			return h.Request(cmd.Context(), conf.Client, ropts, cmd.OutOrStdout())
		},
	}
	rf := request.Flags()
	rf.AddFlagSet(util.ClientFlags(&flagConf, &configFile))
	rf.IntVarP(&ropts.Num, "num", "n", 0, "Max jobs to buffer per dataset")
	rf.StringVar(&ropts.SetStatus, "set-status", "", "Status of new tasks. One of ['waiting', 'suspended']")
	rf.BoolVarP(&ropts.Wait, "wait", "w", false, "Wait for the request to finish")
	rf.DurationVar(&ropts.WaitEvery, "wait-every", 5*time.Second, "Status poll interval while waiting")

	var opts materialize.Options
	var setStatus string
	run := &cobra.Command{
		Use:   "run [datasetID]",
		Short: "Buffer jobs directly against the database, without a server.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.DatasetID = args[0]
			}
			opts.SetStatus = taskStatus(setStatus)
			log := logger.NewLogger("materialize", conf.Logger)
			return h.Run(cmd.Context(), conf, opts, log, cmd.OutOrStdout())
		},
	}
	f := run.Flags()
	f.AddFlagSet(util.ServerFlags(&flagConf, &configFile))
	f.IntVarP(&opts.Num, "num", "n", 0, "Max jobs to buffer per dataset")
	f.StringVar(&setStatus, "set-status", "", "Status of new tasks. One of ['waiting', 'suspended']")
	f.BoolVar(&opts.DryRun, "dry-run", false, "Report what would be buffered without writing")

	cmd.AddCommand(request, run)
	return cmd, h
}
