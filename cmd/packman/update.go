package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/packman-project/packman/internal/config"
	"github.com/packman-project/packman/internal/pmerrors"
	"github.com/packman-project/packman/internal/selfupdate"
)

var (
	updateForce bool
	updateYes   bool
)

// updateCmd self-updates the running packman install, porting update(): a
// version argument pins the target, otherwise the bootstrap server's
// last-known-good label is consulted.
var updateCmd = &cobra.Command{
	Use:   "update [VERSION]",
	Short: "update this packman installation in place",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		installPath := os.Getenv(config.InstallPathEnvVar)
		if installPath == "" {
			exitWithError(pmerrors.New(pmerrors.KindTransportIO, "%s is not set; required to locate the install to update", config.InstallPathEnvVar))
		}

		ctx := context.Background()
		ver := ""
		if len(args) == 1 {
			ver = args[0]
		} else {
			v, err := selfupdate.FetchLastKnownGoodVersion(ctx)
			if err != nil {
				exitWithError(err)
			}
			ver = v
		}

		if !updateYes {
			fmt.Fprintf(os.Stdout, "Update %q to version %s? [y/N] ", installPath, ver)
			reader := bufio.NewReader(os.Stdin)
			line, _ := reader.ReadString('\n')
			if strings.ToLower(strings.TrimSpace(line)) != "y" {
				fmt.Fprintln(os.Stdout, "update cancelled")
				return
			}
		}

		if err := selfupdate.Update(ctx, ver, installPath, updateForce, os.Stdout); err != nil {
			exitWithError(err)
		}
	},
}

func init() {
	updateCmd.Flags().BoolVarP(&updateForce, "force", "f", false, "make read-only files in the installation writable so they can be replaced")
	updateCmd.Flags().BoolVarP(&updateYes, "yes", "y", false, "don't prompt for confirmation")
}
