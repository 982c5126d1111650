package dataset

import (
	"fmt"
	"io"

	"github.com/ohsu-comp-bio/cascade/cmd/util"
	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/spf13/cobra"
)

// NewCommand returns the "dataset" subcommands.
func NewCommand() *cobra.Command {
	cmd, _ := newCommandHooks()
	return cmd
}

type hooks struct {
	Create func(conf config.Client, file string, stdin io.Reader, w io.Writer) error
	Get    func(conf config.Client, ids []string, w io.Writer) error
	List   func(conf config.Client, status string, w io.Writer) error
	Status func(conf config.Client, id, status string) error
	Counts func(conf config.Client, id string, w io.Writer) error
}

func newCommandHooks() (*cobra.Command, *hooks) {
	h := &hooks{
		Create: Create,
		Get:    Get,
		List:   List,
		Status: SetStatus,
		Counts: Counts,
	}

	var (
		configFile string
		conf       config.Config
		flagConf   config.Config
	)

	cmd := &cobra.Command{
		Use:     "dataset",
		Aliases: []string{"datasets"},
		Short:   "Make API calls to a Cascade server.",
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
	cmd.PersistentFlags().AddFlagSet(util.ClientFlags(&flagConf, &configFile))

	create := &cobra.Command{
		Use:   "create [dataset.yaml | -]",
		Short: "Create a dataset and its job config from a YAML or JSON file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return h.Create(conf.Client, args[0], cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	get := &cobra.Command{
		Use:   "get [datasetID ...]",
		Short: "Get one or more datasets by ID.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return h.Get(conf.Client, args, cmd.OutOrStdout())
		},
	}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List datasets.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return h.List(conf.Client, status, cmd.OutOrStdout())
		},
	}
	list.Flags().StringVarP(&status, "status", "s", "", "Only datasets with this status")

	setStatus := &cobra.Command{
		Use:   "status [datasetID] [status]",
		Short: "Set the status of a dataset.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return h.Status(conf.Client, args[0], args[1])
		},
	}

	counts := &cobra.Command{
		Use:   "counts [datasetID]",
		Short: "Count the tasks of a dataset by status.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return h.Counts(conf.Client, args[0], cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(create, get, list, setStatus, counts)
	return cmd, h
}
