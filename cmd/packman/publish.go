package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/packman-project/packman/internal/publish"
	"github.com/packman-project/packman/internal/schema"
)

var (
	publishName       string
	publishRemotes    []string
	publishForce      bool
	publishMakePublic bool
)

// publishCmd packs a folder and pushes the resulting archive to every named
// remote, porting publish/publish_to_remote.
var publishCmd = &cobra.Command{
	Use:   "publish INPUT",
	Short: "package a folder and push it to one or more remotes",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		names := theApp.defaultCascade(publishRemotes)
		remotes, err := theApp.resolveRemotes(names, nil)
		if err != nil {
			exitWithError(err)
		}
		pipeline := &publish.Pipeline{
			Transports:    theApp.Transports,
			RemotesByName: remoteLookupTable(remotes),
		}
		if err := pipeline.Publish(context.Background(), args[0], names, publishName, publishForce, publishMakePublic); err != nil {
			exitWithError(err)
		}
	},
}

func init() {
	publishCmd.Flags().StringVarP(&publishName, "name", "n", "", "name for the resulting package (without extension)")
	publishCmd.Flags().StringSliceVarP(&publishRemotes, "remote", "r", nil, "remote(s) to publish to (defaults to the configured cascade)")
	publishCmd.Flags().BoolVarP(&publishForce, "force", "f", false, "overwrite an existing package on the remote")
	publishCmd.Flags().BoolVar(&publishMakePublic, "mp", false, "make the uploaded package publicly readable")
}

// remoteLookupTable builds the namespace-qualified RemotesByName table a
// Pipeline needs from a resolved remote list.
func remoteLookupTable(remotes []*schema.Remote) map[string]*schema.Remote {
	table := make(map[string]*schema.Remote, len(remotes))
	for _, r := range remotes {
		table[r.Name] = r
	}
	return table
}
