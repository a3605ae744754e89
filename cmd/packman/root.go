package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/packman-project/packman/internal/fulfill"
	"github.com/packman-project/packman/internal/plog"
)

var (
	flagVerbose bool
	flagQuiet   bool
	flagSilent  bool
	flagVarPath string

	theApp *app
	varSink fulfill.EnvSink
)

// RootCmd is the main command for the 'packman' binary, grounded on
// registry/root.go's RootCmd/ServeCmd/GCCmd tree.
var RootCmd = &cobra.Command{
	Use:   "packman",
	Short: "manage external binary dependencies",
	Long:  "packman resolves, fetches, and installs versioned external package dependencies.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}

		verbosity := verbosityFromFlags(flagVerbose, flagQuiet, flagSilent)
		if _, err := plog.Configure(context.Background(), plog.Options{Verbosity: verbosity}); err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		theApp = a

		if a.Config.Reporting != nil {
			if _, err := plog.Configure(context.Background(), plog.Options{
				Verbosity: verbosity,
				Reporting: plog.Reporting{
					BugsnagAPIKey:      a.Config.Reporting.BugsnagAPIKey,
					NewRelicLicenseKey: a.Config.Reporting.NewRelicLicenseKey,
					LogstashAddr:       a.Config.Reporting.LogstashAddr,
				},
			}); err != nil {
				return err
			}
		}

		if flagVarPath != "" {
			f, err := os.Create(flagVarPath)
			if err != nil {
				return err
			}
			varSink = fulfill.FileEnvSink{Out: f}
		} else {
			varSink = fulfill.NopEnvSink{}
		}

		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		// nolint:errcheck
		cmd.Usage()
	},
}

func init() {
	RootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")
	RootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "quiet output")
	RootCmd.PersistentFlags().BoolVarP(&flagSilent, "silent", "s", false, "silent output")
	RootCmd.PersistentFlags().StringVar(&flagVarPath, "var-path", "", "write resolved PM_* environment variables to this file")

	RootCmd.AddCommand(cacheCmd)
	RootCmd.AddCommand(hashCmd)
	RootCmd.AddCommand(installCmd)
	RootCmd.AddCommand(linkCmd)
	RootCmd.AddCommand(unlinkCmd)
	RootCmd.AddCommand(listCmd)
	RootCmd.AddCommand(mirrorCmd)
	RootCmd.AddCommand(packCmd)
	RootCmd.AddCommand(projectCmd)
	RootCmd.AddCommand(publishCmd)
	RootCmd.AddCommand(pullCmd)
	RootCmd.AddCommand(pushCmd)
	RootCmd.AddCommand(remotesCmd)
	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(updateCmd)
	RootCmd.AddCommand(verifyCmd)
}
