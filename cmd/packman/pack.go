package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/packman-project/packman/internal/archive"
	"github.com/packman-project/packman/internal/pmerrors"
)

var (
	packName   string
	packOutDir string
)

// packCmd packages a folder into a .7z archive, porting pack(): the default
// name is "<parent folder name>@<input folder name>" and the default
// output directory is the input folder's parent.
var packCmd = &cobra.Command{
	Use:   "pack INPUT",
	Short: "package a folder into an archive",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		input := args[0]
		if _, err := os.Stat(input); err != nil {
			exitWithError(pmerrors.New(pmerrors.KindTransportIO, "input folder %q not found", input))
		}

		outDir := packOutDir
		if outDir == "" {
			outDir = filepath.Dir(filepath.Clean(input))
		} else if _, err := os.Stat(outDir); err != nil {
			exitWithError(pmerrors.New(pmerrors.KindTransportIO, "output directory %q not found", outDir))
		}

		name := packName
		if name == "" {
			parent, version := filepath.Split(filepath.Clean(input))
			_, pkgName := filepath.Split(filepath.Clean(parent))
			name = pkgName + "@" + version
		}
		if !strings.HasSuffix(strings.ToLower(name), ".7z") {
			name += ".7z"
		}

		archivePath, err := archive.Pack(archive.Format7z, input, filepath.Join(outDir, name))
		if err != nil {
			exitWithError(err)
		}
		fmt.Fprintln(os.Stdout, archivePath)
	},
}

func init() {
	packCmd.Flags().StringVarP(&packName, "name", "n", "", "name for the resulting package (without extension)")
	packCmd.Flags().StringVarP(&packOutDir, "out", "o", "", "output directory (defaults to next to INPUT)")
}
