package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/packman-project/packman/internal/fulfill"
	"github.com/packman-project/packman/internal/lockfile"
	"github.com/packman-project/packman/internal/resolver"
	"github.com/packman-project/packman/internal/schema"
)

var (
	pullPlatform    string
	pullIncludeTags []string
	pullExcludeTags []string
	pullRemotes     []string
	pullPostscript  string
	pullWriteLock   bool
)

// pullCmd resolves and fulfills every dependency in a project manifest,
// porting pull_dependencies's CLI entry point.
var pullCmd = &cobra.Command{
	Use:   "pull PROJECT",
	Short: "resolve and fetch every dependency in a project manifest",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		projectPath := args[0]
		f, err := os.Open(projectPath)
		if err != nil {
			exitWithError(fmt.Errorf("project file %q does not exist", projectPath))
		}
		project, err := schema.ParseProject(f, "project", projectPath)
		f.Close()
		if err != nil {
			exitWithError(err)
		}

		deps, err := resolver.Resolve(project, pullPlatform, pullIncludeTags, pullExcludeTags)
		if err != nil {
			exitWithError(err)
		}

		names := theApp.defaultCascade(pullRemotes)
		remotes, err := theApp.resolveRemotes(names, project.RemotesMap)
		if err != nil {
			exitWithError(err)
		}
		remotesByName := remoteLookupTable(remotes)
		for qualified, r := range project.RemotesMap {
			remotesByName[qualified] = r
		}

		postscript, psArgs := "", []string{}
		if pullPostscript != "" {
			parts := splitPostscriptArgs(pullPostscript)
			if len(parts) > 0 {
				postscript, psArgs = parts[0], parts[1:]
			}
		}

		store, err := theApp.requireStore()
		if err != nil {
			exitWithError(err)
		}

		var removeOnUpdate bool
		if theApp.Config.Cache != nil && theApp.Config.Cache.RemovePreviousPackageOnLabelUpdate != nil {
			removeOnUpdate = *theApp.Config.Cache.RemovePreviousPackageOnLabelUpdate
		}

		engine := &fulfill.Engine{
			Store:               store,
			Transports:          theApp.Transports,
			RemotesByName:       remotesByName,
			Cascade:             names,
			RemoveOnLabelUpdate: removeOnUpdate,
			Locker:              theApp.labelLocker(remotes),
		}

		ctx := context.Background()
		if err := engine.ResolveLabels(ctx, deps); err != nil {
			exitWithError(err)
		}
		result, err := engine.Run(ctx, deps, pullPlatform, varSink, postscript, psArgs)
		if err != nil {
			exitWithError(err)
		}

		for name, path := range result.Paths {
			fmt.Fprintf(os.Stdout, "%s\t%s\n", name, path)
		}

		if pullWriteLock {
			entries := map[string]lockfile.Entry{}
			for depName, dep := range deps {
				if len(dep.Children) != 1 {
					continue
				}
				if pkg, ok := dep.Children[0].(*schema.Package); ok {
					entries[depName] = lockfile.Entry{Name: pkg.Name, Version: pkg.Version}
				}
			}
			lockPath := filepath.Join(filepath.Dir(projectPath), lockfile.FileName)
			if err := lockfile.Build(pullPlatform, entries).Save(lockPath); err != nil {
				exitWithError(err)
			}
		}
	},
}

func init() {
	pullCmd.Flags().StringVarP(&pullPlatform, "platform", "p", "", "platform to resolve against")
	pullCmd.Flags().StringSliceVarP(&pullIncludeTags, "include-tag", "i", nil, "only include dependencies tagged with one of these")
	pullCmd.Flags().StringSliceVarP(&pullExcludeTags, "exclude-tag", "e", nil, "exclude dependencies tagged with one of these")
	pullCmd.Flags().StringSliceVarP(&pullRemotes, "remote", "r", nil, "remote(s) to use (overrides the configured cascade)")
	pullCmd.Flags().StringVar(&pullPostscript, "ps", "", "script to run (with args) after a successful pull")
	pullCmd.Flags().BoolVar(&pullWriteLock, "lockfile", false, "write a packman.lock.yaml recording the resolved dependency set")
}
