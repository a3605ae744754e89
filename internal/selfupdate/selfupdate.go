// Package selfupdate implements packman's own update-in-place mechanism
// (SPEC_FULL.md §2/§8 scenario 6), ported from updater.py: fetch the
// current "last known good" version from the bootstrap server, download its
// build tarball, and swap it into the running installation directory with a
// backup-and-rollback safety net.
package selfupdate

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/packman-project/packman/internal/pmerrors"
	"github.com/packman-project/packman/internal/schema"
	"github.com/packman-project/packman/internal/transport"
	"github.com/packman-project/packman/internal/version"
)

// bootstrapRemote is the fixed, unauthenticated HTTPS location packman's own
// builds and "last known good" labels are published to, porting
// fetch_file's hardcoded HttpTransport construction.
var bootstrapRemote = &schema.Remote{
	Name:           "packman-bootstrap",
	Type:           "https",
	PackageLocation: "packman-bootstrap.s3.amazonaws.com",
}

// Out receives progress messages; defaults to os.Stdout when nil is passed
// to a function that accepts it.
func out(w io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return os.Stdout
}

// fetchFile downloads filename from the bootstrap server to targetPath,
// porting fetch_file.
func fetchFile(ctx context.Context, filename, targetPath string) error {
	backend, err := transport.New(bootstrapRemote)
	if err != nil {
		return err
	}
	location, found, err := backend.Locate(ctx, bootstrapRemote, filename)
	if err != nil {
		return err
	}
	if !found {
		return pmerrors.New(pmerrors.KindPackageNotFound, "file %q not found on bootstrap server", filename)
	}
	return backend.Download(ctx, bootstrapRemote, location, targetPath)
}

// FetchLastKnownGoodVersion reports the version currently recommended for
// the running product's major version line, porting
// fetch_last_known_good_version.
func FetchLastKnownGoodVersion(ctx context.Context) (string, error) {
	tempDir, err := os.MkdirTemp("", "packman-selfupdate-")
	if err != nil {
		return "", pmerrors.Wrap(pmerrors.KindTransportIO, err, "creating temp directory")
	}
	defer os.RemoveAll(tempDir)

	major := strings.SplitN(version.ProductVersion, ".", 2)[0]
	labelName := fmt.Sprintf("packman-command@%s.last-known-good.txt", major)
	labelPath := filepath.Join(tempDir, labelName)
	if err := fetchFile(ctx, labelName, labelPath); err != nil {
		return "", err
	}

	data, err := os.ReadFile(labelPath)
	if err != nil {
		return "", pmerrors.Wrap(pmerrors.KindTransportIO, err, "reading last-known-good label")
	}
	buildFilename := strings.TrimSpace(string(data))
	stem := strings.TrimSuffix(buildFilename, filepath.Ext(buildFilename))
	_, versionPart, ok := strings.Cut(stem, "@")
	if !ok {
		return "", pmerrors.New(pmerrors.KindLabelMalformed, "last-known-good label %q does not contain a base@version token", buildFilename)
	}
	return versionPart, nil
}

// Update fetches the build tarball for version and installs it over
// installPath, porting update.
func Update(ctx context.Context, ver, installPath string, force bool, w io.Writer) error {
	tempDir, err := os.MkdirTemp("", "packman-selfupdate-")
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "creating temp directory")
	}
	defer os.RemoveAll(tempDir)

	buildFilename := fmt.Sprintf("packman-command@%s.tar", ver)
	targetPath := filepath.Join(tempDir, buildFilename)
	if err := fetchFile(ctx, buildFilename, targetPath); err != nil {
		return err
	}
	if err := UpdateFromBuild(targetPath, installPath, force, w); err != nil {
		return err
	}
	fmt.Fprintf(out(w), "packman (%s) updated successfully to version %s\n", installPath, ver)
	return nil
}

// undoStep restores the file or directory backup_and_remove_directory_entry
// tore down, in case extraction fails partway through.
type undoStep func() error

// UpdateFromBuild swaps build (a tar file) into installPath, backing up
// every existing entry first (except config.packman.xml, which is left
// untouched) so a failed extraction can be rolled back, porting
// update_from_build/backup_and_remove_directory_entry.
func UpdateFromBuild(buildPath, installPath string, force bool, w io.Writer) error {
	if _, err := os.Stat(buildPath); err != nil {
		return pmerrors.New(pmerrors.KindTransportIO, "path %q not found", buildPath)
	}

	backupDir, err := os.MkdirTemp("", "packman-update-backup-")
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "creating backup directory")
	}
	defer os.RemoveAll(backupDir)

	entries, err := topLevelEntries(installPath)
	if err != nil {
		return err
	}

	writer := out(w)
	fmt.Fprint(writer, "Making a backup .")
	var undo []undoStep
	rollback := func() {
		fmt.Fprint(writer, "Rolling back the update ")
		for i := len(undo) - 1; i >= 0; i-- {
			if err := undo[i](); err != nil {
				fmt.Fprintf(writer, "\nwarning: rollback step failed: %v", err)
			}
			fmt.Fprint(writer, ".")
		}
		fmt.Fprint(writer, " done!\n")
	}

	for _, entry := range entries {
		rel, err := filepath.Rel(installPath, entry)
		if err != nil {
			rollback()
			return pmerrors.Wrap(pmerrors.KindInternal, err, "computing relative path for %q", entry)
		}
		if rel == "config.packman.xml" {
			continue
		}
		fmt.Fprint(writer, ".")
		dest := filepath.Join(backupDir, rel)
		step, err := backupAndRemoveEntry(entry, dest, force)
		if err != nil {
			rollback()
			return err
		}
		undo = append(undo, step)
	}
	fmt.Fprint(writer, " done!\n")

	fmt.Fprint(writer, "Extracting build to install folder ...")
	if err := extractTar(buildPath, installPath); err != nil {
		rollback()
		return pmerrors.Wrap(pmerrors.KindArchiveFailure, err, "failed to extract build to installation location %q", installPath)
	}
	fmt.Fprint(writer, " done!\n")
	return nil
}

// topLevelEntries lists every file and directory directly under root,
// porting get_directory_entries_in_folder's non-recursive (note the
// original's `break` after the first os.walk iteration) top-level scan.
func topLevelEntries(root string) ([]string, error) {
	dirEntries, err := os.ReadDir(root)
	if err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindTransportIO, err, "reading installation directory %q", root)
	}
	entries := make([]string, 0, len(dirEntries))
	for _, e := range dirEntries {
		entries = append(entries, filepath.Join(root, e.Name()))
	}
	return entries, nil
}

// backupAndRemoveEntry moves src to dest (copying a file, or recreating an
// empty directory, mirroring the original's rmdir-only handling of
// directories since every directory's own contents are separately listed as
// their own top-level-scan entries), returning the inverse operation to
// restore it on rollback, porting backup_and_remove_directory_entry.
func backupAndRemoveEntry(src, dest string, force bool) (undoStep, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindTransportIO, err, "stat %q", src)
	}
	mode := info.Mode()

	if mode.Perm()&0o200 == 0 {
		if !force {
			return nil, pmerrors.New(pmerrors.KindTransportIO, "process does not have permission to remove %q; run with the force option to remove/replace read-only files", src)
		}
		if err := os.Chmod(src, mode|0o200); err != nil {
			return nil, pmerrors.Wrap(pmerrors.KindTransportIO, err, "chmod %q", src)
		}
	}

	if info.IsDir() {
		if err := os.MkdirAll(dest, mode.Perm()); err != nil {
			return nil, pmerrors.Wrap(pmerrors.KindTransportIO, err, "creating backup directory %q", dest)
		}
		if err := os.Remove(src); err != nil {
			return nil, pmerrors.Wrap(pmerrors.KindTransportIO, err, "removing directory %q", src)
		}
		return func() error { return os.MkdirAll(src, mode.Perm()) }, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindTransportIO, err, "creating backup directory for %q", dest)
	}
	if err := copyFile(src, dest, mode); err != nil {
		return nil, err
	}
	if err := os.Remove(src); err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindTransportIO, err, "removing %q", src)
	}
	return func() error { return copyFile(dest, src, mode) }, nil
}

func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "opening %q", src)
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "creating %q", dest)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "copying %q to %q", src, dest)
	}
	return nil
}

// extractTar unpacks archivePath (a plain, uncompressed tar -- update_from_build
// always uses tarfile.open's auto-detection, but packman's own builds are
// always plain tar) into destDir, rejecting any entry that would extract
// outside destDir.
func extractTar(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(destDir, hdr.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) && target != filepath.Clean(destDir) {
			return pmerrors.New(pmerrors.KindArchiveFailure, "tar entry %q escapes the install directory", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}
