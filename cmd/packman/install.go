package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/packman-project/packman/internal/fulfill"
	"github.com/packman-project/packman/internal/pmerrors"
	"github.com/packman-project/packman/internal/schema"
)

var (
	installLinkPath       string
	installCacheExpire    int
	installRemotes        []string
	installProjectPath    string
	installPostscript     string
)

// installCmd installs a single ad-hoc dependency -- a package when VERSION
// is given, otherwise NAME is treated as a label to dereference -- porting
// install_cmd/install_with_variable_file.
var installCmd = &cobra.Command{
	Use:   "install NAME [VERSION]",
	Short: "install a single package or label dependency",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]
		version := ""
		if len(args) == 2 {
			version = args[1]
		}

		extraRemotes := map[string]*schema.Remote{}
		if installProjectPath != "" {
			f, err := os.Open(installProjectPath)
			if err != nil {
				exitWithError(pmerrors.New(pmerrors.KindTransportIO, "project file %q does not exist", installProjectPath))
			}
			project, err := schema.ParseProject(f, "project", installProjectPath)
			f.Close()
			if err != nil {
				exitWithError(err)
			}
			extraRemotes = project.RemotesMap
		}

		names := theApp.defaultCascade(installRemotes)
		if len(names) == 0 {
			exitWithError(pmerrors.New(pmerrors.KindNoRemoteConfigured, "no remotes specified in config files (neither packman nor user level); use -r"))
		}
		remotes, err := theApp.resolveRemotes(names, extraRemotes)
		if err != nil {
			exitWithError(err)
		}
		remotesByName := remoteLookupTable(remotes)
		for qualified, r := range extraRemotes {
			remotesByName[qualified] = r
		}

		depName := validShellVariableName(name)
		dep := &schema.Dependency{Name: depName}
		if version != "" {
			dep.Children = []schema.DependencyChild{&schema.Package{Name: name, Version: version}}
		} else {
			ce := installCacheExpire
			if ce == 0 {
				ce = 300
			}
			dep.Children = []schema.DependencyChild{&schema.Label{Name: name, CacheExpiration: ce}}
		}
		if installLinkPath != "" {
			abs, err := filepath.Abs(installLinkPath)
			if err != nil {
				exitWithError(err)
			}
			dep.LinkPath = abs
		}

		postscript, psArgs := "", []string{}
		if installPostscript != "" {
			parts := splitPostscriptArgs(installPostscript)
			if len(parts) == 0 {
				exitWithError(pmerrors.New(pmerrors.KindParseError, "unable to parse postscript %q", installPostscript))
			}
			postscript, psArgs = parts[0], parts[1:]
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

		deps := map[string]*schema.Dependency{depName: dep}
		ctx := context.Background()
		if err := engine.ResolveLabels(ctx, deps); err != nil {
			exitWithError(err)
		}
		result, err := engine.Run(ctx, deps, "", varSink, postscript, psArgs)
		if err != nil {
			exitWithError(err)
		}

		for _, path := range result.Paths {
			fmt.Fprintln(os.Stdout, path)
		}
	},
}

func init() {
	installCmd.Flags().StringVarP(&installLinkPath, "link", "l", "", "path to link the installed dependency to")
	installCmd.Flags().IntVar(&installCacheExpire, "cacheExpiration", 300, "seconds a cached label resolution remains valid")
	installCmd.Flags().StringSliceVarP(&installRemotes, "remote", "r", nil, "remote(s) to use (overrides the configured cascade)")
	installCmd.Flags().StringVar(&installProjectPath, "pf", "", "project file to resolve remotes against")
	installCmd.Flags().StringVar(&installPostscript, "ps", "", "script to run (with args) after a successful install")
}
