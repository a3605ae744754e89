package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/packman-project/packman/internal/fulfill"
)

// runCmd executes a python script via python3 or anything else through the
// shell, porting run/run_py_script. A non-zero exit propagates verbatim as
// this process's own exit code.
var runCmd = &cobra.Command{
	Use:                "run NAME [ARGS...]",
	Short:              "run an installed script or executable",
	Args:               cobra.MinimumNArgs(1),
	DisableFlagParsing: true,
	Run: func(cmd *cobra.Command, args []string) {
		if err := (fulfill.OSRunner{}).Run(context.Background(), args[0], args[1:]); err != nil {
			exitWithError(err)
		}
	},
}
