package main

import (
	"os"

	"github.com/ohsu-comp-bio/cascade/cmd"
	"github.com/ohsu-comp-bio/cascade/logger"
)

func main() {
	if err := cmd.RootCmd.Execute(); err != nil {
		logger.PrintSimpleError(err)
		os.Exit(1)
	}
}
