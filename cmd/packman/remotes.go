package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// remotesCmd prints every configured remote plus the default search order,
// porting remotes().
var remotesCmd = &cobra.Command{
	Use:   "remotes",
	Short: "list every configured remote and the default search order",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(os.Stdout, "The following remotes have been configured:")
		fmt.Fprintln(os.Stdout)
		header := "NAME" + strings.Repeat(" ", 16) + "TYPE" + strings.Repeat(" ", 3) + "PACKAGELOCATION"
		fmt.Fprintln(os.Stdout, header)
		fmt.Fprintln(os.Stdout, strings.Repeat("=", len(header)))

		names := make([]string, 0, len(theApp.Config.RemotesMap))
		for name := range theApp.Config.RemotesMap {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			remote := theApp.Config.RemotesMap[name]
			line := padRight(name, 19) + " " + padRight(remote.Type, 7)
			if remote.PackageLocation != "" {
				line += remote.PackageLocation
			}
			fmt.Fprintln(os.Stdout, line)
		}
		fmt.Fprintln(os.Stdout)

		if len(theApp.Config.Remotes) > 0 {
			fmt.Fprintln(os.Stdout, "The default search order for remotes is:")
			fmt.Fprintln(os.Stdout, strings.Join(theApp.Config.Remotes, " "))
		} else {
			fmt.Fprintln(os.Stdout, "No default search order has been configured for remotes.")
		}
	},
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
