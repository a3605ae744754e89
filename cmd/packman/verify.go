package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/packman-project/packman/internal/cachestore"
	"github.com/packman-project/packman/internal/fulfill"
	"github.com/packman-project/packman/internal/lockfile"
	"github.com/packman-project/packman/internal/resolver"
	"github.com/packman-project/packman/internal/schema"
	"github.com/packman-project/packman/internal/transport"
)

var (
	verifyPlatform  string
	verifyRemotes   []string
	verifyCheckLock bool
)

// verifyCmd checks that every dependency in a project manifest is present
// locally and on at least one configured remote, porting verify().
var verifyCmd = &cobra.Command{
	Use:   "verify PROJECT",
	Short: "check that a project's dependencies are present locally and remotely",
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

		deps, err := resolver.Resolve(project, verifyPlatform, nil, nil)
		if err != nil {
			exitWithError(err)
		}

		names := theApp.defaultCascade(verifyRemotes)
		remotes, err := theApp.resolveRemotes(names, project.RemotesMap)
		if err != nil {
			exitWithError(err)
		}
		remotesByName := remoteLookupTable(remotes)
		for qualified, r := range project.RemotesMap {
			remotesByName[qualified] = r
		}

		store, err := theApp.requireStore()
		if err != nil {
			exitWithError(err)
		}

		engine := &fulfill.Engine{
			Store:         store,
			Transports:    theApp.Transports,
			RemotesByName: remotesByName,
			Cascade:       names,
			Locker:        theApp.labelLocker(remotes),
		}
		ctx := context.Background()
		if err := engine.ResolveLabels(ctx, deps); err != nil {
			exitWithError(err)
		}

		currentEntries := map[string]lockfile.Entry{}
		packageCount, missingLocally, missingRemotely := 0, 0, 0
		for depName, dep := range deps {
			if len(dep.Children) != 1 {
				continue
			}
			pkg, ok := dep.Children[0].(*schema.Package)
			if !ok {
				continue
			}
			packageCount++
			currentEntries[depName] = lockfile.Entry{Name: pkg.Name, Version: pkg.Version}

			status, _ := store.Status(pkg.Name, pkg.Version)
			if status != cachestore.StatusInstalled {
				fmt.Fprintf(os.Stdout, "dependency %q: package %q@%q is %s locally\n", depName, pkg.Name, pkg.Version, status)
				missingLocally++
			}

			packageRemoteNames := append(append([]string{}, pkg.Remotes...), names...)
			found := false
			for _, remoteName := range packageRemoteNames {
				remote, ok := remotesByName[remoteName]
				if !ok {
					continue
				}
				backend, err := transport.New(remote)
				if err != nil {
					exitWithError(err)
				}
				_, present, err := transport.PackagePath(ctx, backend, remote, pkg.Name, pkg.Version)
				if err != nil {
					exitWithError(err)
				}
				if present {
					found = true
				}
			}
			if !found {
				fmt.Fprintf(os.Stdout, "dependency %q: package %q@%q is missing from every configured remote\n", depName, pkg.Name, pkg.Version)
				missingRemotely++
			}
		}

		fmt.Fprintf(os.Stdout, "%d/%d packages present locally\n", packageCount-missingLocally, packageCount)
		fmt.Fprintf(os.Stdout, "%d/%d packages present on at least one remote\n", packageCount-missingRemotely, packageCount)

		driftCount := 0
		if verifyCheckLock {
			lockPath := filepath.Join(filepath.Dir(projectPath), lockfile.FileName)
			lf, err := lockfile.Load(lockPath)
			if err != nil {
				exitWithError(err)
			}
			for _, drift := range lf.Verify(currentEntries) {
				switch {
				case drift.Missing:
					fmt.Fprintf(os.Stdout, "lockfile drift: dependency %q is locked to %q@%q but no longer resolves\n", drift.Dependency, drift.Locked.Name, drift.Locked.Version)
				case drift.Unlocked:
					fmt.Fprintf(os.Stdout, "lockfile drift: dependency %q resolves to %q@%q but isn't in the lockfile\n", drift.Dependency, drift.Current.Name, drift.Current.Version)
				default:
					fmt.Fprintf(os.Stdout, "lockfile drift: dependency %q is locked to %q@%q but resolves to %q@%q\n", drift.Dependency, drift.Locked.Name, drift.Locked.Version, drift.Current.Name, drift.Current.Version)
				}
				driftCount++
			}
		}

		if missingLocally > 0 || missingRemotely > 0 || driftCount > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyPlatform, "platform", "p", "", "platform to resolve against")
	verifyCmd.Flags().StringSliceVarP(&verifyRemotes, "remote", "r", nil, "remote(s) to use (overrides the configured cascade)")
	verifyCmd.Flags().BoolVar(&verifyCheckLock, "lockfile", false, "also check the project's packman.lock.yaml against the current resolution")
}
