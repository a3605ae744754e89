package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/packman-project/packman/internal/publish"
)

var (
	pushRemotes    []string
	pushRemotePath string
	pushForce      bool
	pushMakePublic bool
)

// pushCmd uploads an already-built archive to one or more remotes, porting
// push/push_to_remote.
var pushCmd = &cobra.Command{
	Use:   "push PATH",
	Short: "push a built package archive to one or more remotes",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		names := theApp.defaultCascade(pushRemotes)
		remotes, err := theApp.resolveRemotes(names, nil)
		if err != nil {
			exitWithError(err)
		}
		pipeline := &publish.Pipeline{
			Transports:    theApp.Transports,
			RemotesByName: remoteLookupTable(remotes),
		}
		if err := pipeline.Push(context.Background(), args[0], names, pushForce, pushMakePublic, pushRemotePath); err != nil {
			exitWithError(err)
		}
	},
}

func init() {
	pushCmd.Flags().StringSliceVarP(&pushRemotes, "remote", "r", nil, "remote(s) to push to (defaults to the configured cascade)")
	pushCmd.Flags().StringVar(&pushRemotePath, "rp", "", "subfolder on the remote to push under")
	pushCmd.Flags().BoolVarP(&pushForce, "force", "f", false, "overwrite an existing package on the remote")
	pushCmd.Flags().BoolVar(&pushMakePublic, "mp", false, "make the uploaded package publicly readable")
}
