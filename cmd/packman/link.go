package main

import (
	"github.com/spf13/cobra"

	"github.com/packman-project/packman/internal/linkmgr"
)

var linkCmd = &cobra.Command{
	Use:   "link LINK_PATH TARGET",
	Short: "create a symlink (or junction on Windows) at LINK_PATH pointing at TARGET",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := linkmgr.Create(args[0], args[1]); err != nil {
			exitWithError(err)
		}
	},
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink PATH",
	Short: "remove a link previously created by link or install -l",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := linkmgr.Destroy(args[0]); err != nil {
			exitWithError(err)
		}
	},
}
