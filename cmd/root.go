// Package cmd contains the Cascade CLI commands.
package cmd

import (
	"github.com/ohsu-comp-bio/cascade/cmd/dataset"
	"github.com/ohsu-comp-bio/cascade/cmd/events"
	"github.com/ohsu-comp-bio/cascade/cmd/loop"
	"github.com/ohsu-comp-bio/cascade/cmd/materialize"
	"github.com/ohsu-comp-bio/cascade/cmd/server"
	"github.com/ohsu-comp-bio/cascade/cmd/version"
	"github.com/spf13/cobra"
)

// RootCmd represents the root command
var RootCmd = &cobra.Command{
	Use:           "cascade",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	RootCmd.AddCommand(completionCmd)
	RootCmd.AddCommand(dataset.NewCommand())
	RootCmd.AddCommand(events.NewCommand())
	RootCmd.AddCommand(loop.NewCommand())
	RootCmd.AddCommand(materialize.NewCommand())
	RootCmd.AddCommand(server.NewCommand())
	RootCmd.AddCommand(version.Cmd)
}
