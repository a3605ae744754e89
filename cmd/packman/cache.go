package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/packman-project/packman/internal/cachestore"
)

var flagRemoveCorrupt bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "list every installed package and its status, optionally removing corrupt entries",
	Run: func(cmd *cobra.Command, args []string) {
		store, err := theApp.requireStore()
		if err != nil {
			exitWithError(err)
		}

		refs, err := store.ListInstalled()
		if err != nil {
			exitWithError(err)
		}

		for _, ref := range refs {
			status, installPath := store.Status(ref.Base, ref.Version)
			fmt.Fprintf(os.Stdout, "%s@%s\t%s\t%s\n", ref.Base, ref.Version, status, installPath)
			if status == cachestore.StatusCorrupt && flagRemoveCorrupt {
				if err := cachestore.Remove(installPath); err != nil {
					exitWithError(err)
				}
				fmt.Fprintf(os.Stdout, "removed %s\n", installPath)
			}
		}
	},
}

func init() {
	cacheCmd.Flags().BoolVar(&flagRemoveCorrupt, "remove-corrupt", false, "remove any package found in a corrupt state")
}
