package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/packman-project/packman/internal/mirror"
	"github.com/packman-project/packman/internal/resolver"
	"github.com/packman-project/packman/internal/schema"
)

var (
	mirrorPlatforms []string
	mirrorAutoYes   bool
)

// mirrorCmd copies every package dependency of PROJECT that's missing on
// REMOTE over from wherever it can be found, porting mirror_dependencies.
var mirrorCmd = &cobra.Command{
	Use:   "mirror PROJECT REMOTE",
	Short: "copy a project's resolved packages onto a remote that's missing them",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		projectPath, targetRemoteName := args[0], args[1]

		f, err := os.Open(projectPath)
		if err != nil {
			exitWithError(err)
		}
		project, err := schema.ParseProject(f, "project", projectPath)
		f.Close()
		if err != nil {
			exitWithError(err)
		}

		sourceByName := map[string]*schema.Remote{}
		for name, r := range project.RemotesMap {
			sourceByName[name] = r
		}
		for name, r := range theApp.Config.RemotesMap {
			if _, ok := sourceByName[name]; !ok {
				sourceByName[name] = r
			}
		}

		targetRemote, err := theApp.resolveRemote(targetRemoteName, project.RemotesMap)
		if err != nil {
			exitWithError(err)
		}

		platforms := mirrorPlatforms
		if len(platforms) == 0 {
			platforms = []string{""}
		}

		ctx := context.Background()
		for _, platform := range platforms {
			deps, err := resolver.Resolve(project, platform, nil, nil)
			if err != nil {
				exitWithError(err)
			}

			pipeline := &mirror.Pipeline{
				Transports:          theApp.Transports,
				TargetRemote:        targetRemote,
				SourceRemotesByName: sourceByName,
				SourceRemoteNames:   theApp.Config.Remotes,
				AutoYes:             mirrorAutoYes,
				Out:                 os.Stdout,
			}
			if err := pipeline.Mirror(ctx, deps); err != nil {
				exitWithError(err)
			}
		}
	},
}

func init() {
	mirrorCmd.Flags().StringSliceVarP(&mirrorPlatforms, "platform", "p", nil, "platform(s) to mirror (defaults to the unqualified platform)")
	mirrorCmd.Flags().BoolVarP(&mirrorAutoYes, "yes", "y", false, "don't prompt before copying each package")
}
