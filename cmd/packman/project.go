package main

import (
	"github.com/spf13/cobra"

	"github.com/packman-project/packman/internal/manifestedit"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "create and edit project manifests",
}

var (
	projectCreateForce bool

	depAddLinkPath string
	depAddTags     []string
	depAddForce    bool

	depAddPackageName     string
	depAddPackageVersion  string
	depAddPackagePlatform []string
)

var projectCreateCmd = &cobra.Command{
	Use:   "create PROJECT",
	Short: "create a new, empty project manifest",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := manifestedit.Create(args[0], projectCreateForce); err != nil {
			exitWithError(err)
		}
	},
}

var projectDependencyAddCmd = &cobra.Command{
	Use:   "dependency-add PROJECT NAME",
	Short: "add a dependency to a project manifest, optionally with an initial package",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		doc, err := manifestedit.Load(args[0])
		if err != nil {
			exitWithError(err)
		}
		name := args[1]
		if err := doc.AddDependency(name, depAddLinkPath, depAddTags, depAddForce); err != nil {
			exitWithError(err)
		}
		if depAddPackageName != "" {
			if err := doc.AddPackage(name, depAddPackageName, depAddPackageVersion, depAddPackagePlatform, depAddForce); err != nil {
				exitWithError(err)
			}
		}
	},
}

var projectDependencyRemoveCmd = &cobra.Command{
	Use:   "dependency-remove PROJECT NAME",
	Short: "remove a dependency from a project manifest",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		doc, err := manifestedit.Load(args[0])
		if err != nil {
			exitWithError(err)
		}
		if err := doc.RemoveDependency(args[1]); err != nil {
			exitWithError(err)
		}
	},
}

func init() {
	projectCreateCmd.Flags().BoolVarP(&projectCreateForce, "force", "f", false, "overwrite an existing project file")

	projectDependencyAddCmd.Flags().StringVarP(&depAddLinkPath, "link", "l", "", "link path for the dependency")
	projectDependencyAddCmd.Flags().StringSliceVar(&depAddTags, "tags", nil, "tags for the dependency")
	projectDependencyAddCmd.Flags().BoolVarP(&depAddForce, "force", "f", false, "overwrite an existing dependency or package")
	projectDependencyAddCmd.Flags().StringVar(&depAddPackageName, "package-name", "", "name of an initial package to add to the dependency")
	projectDependencyAddCmd.Flags().StringVar(&depAddPackageVersion, "package-version", "", "version of the initial package")
	projectDependencyAddCmd.Flags().StringSliceVarP(&depAddPackagePlatform, "platform", "p", nil, "platform(s) the initial package applies to")

	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectDependencyAddCmd)
	projectCmd.AddCommand(projectDependencyRemoveCmd)
}
