package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/packman-project/packman/internal/digestutil"
)

var hashCmd = &cobra.Command{
	Use:   "hash PATH",
	Short: "print the content digest of a file or directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := args[0]
		info, err := os.Stat(path)
		if err != nil {
			exitWithError(err)
		}

		var digest fmt.Stringer
		if info.IsDir() {
			d, err := digestutil.HashDir(path, "")
			if err != nil {
				exitWithError(err)
			}
			digest = d
		} else {
			d, err := digestutil.HashFile(path)
			if err != nil {
				exitWithError(err)
			}
			digest = d
		}

		fmt.Fprintln(os.Stdout, digest.String())
	},
}
