package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/packman-project/packman/internal/transport"
)

var listRemotes []string

// listCmd searches the given (or default cascade) remotes for packages
// whose stored name starts with PREFIX, porting list_remote.
var listCmd = &cobra.Command{
	Use:   "list [PREFIX]",
	Short: "search configured remotes for packages by name prefix",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}

		names := theApp.defaultCascade(listRemotes)
		if len(names) == 0 {
			exitWithError(fmt.Errorf("no remotes configured or given via -r"))
		}

		remotes, err := theApp.resolveRemotes(names, nil)
		if err != nil {
			exitWithError(err)
		}

		ctx := context.Background()
		for _, remote := range remotes {
			fmt.Fprintf(os.Stdout, "\nRemote server %q:\n", remote.Name)
			backend, err := transport.New(remote)
			if err != nil {
				exitWithError(err)
			}
			results, err := backend.ListStartingWith(ctx, remote, prefix)
			if err != nil {
				exitWithError(err)
			}
			if len(results) == 0 {
				fmt.Fprintf(os.Stdout, "No package found that starts with %q\n", prefix)
				continue
			}
			for _, item := range results {
				fmt.Fprintln(os.Stdout, item)
			}
		}
	},
}

func init() {
	listCmd.Flags().StringSliceVarP(&listRemotes, "remote", "r", nil, "remote(s) to search (defaults to the configured cascade)")
}
