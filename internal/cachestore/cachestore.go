// Package cachestore implements the on-disk package cache (spec.md §4.3):
// status lookup, the stage-extract-rename install protocol, integrity
// verification, removal, and atomic label read/write. Ported from
// packager.py and cache.py.
package cachestore

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/uuid"

	"github.com/packman-project/packman/internal/archive"
	"github.com/packman-project/packman/internal/digestutil"
	"github.com/packman-project/packman/internal/pmerrors"
)

// Status is the install state of a base@version slot.
type Status int

const (
	StatusInstalled Status = iota
	StatusCorrupt
	StatusMissing
)

func (s Status) String() string {
	switch s {
	case StatusInstalled:
		return "INSTALLED"
	case StatusCorrupt:
		return "CORRUPT"
	default:
		return "MISSING"
	}
}

const sentinelName = ".packman.sha1"

// Store is rooted at a cache directory laid out
// <root>/chk/<base>/<version>/... plus the legacy <root>/<base>/<version>/
// layout, which is recognized as installed but never written.
type Store struct {
	Root string
}

func New(root string) *Store { return &Store{Root: root} }

func (s *Store) checkedPath(base, version string) string {
	return filepath.Join(s.Root, "chk", base, version)
}

func (s *Store) legacyPath(base, version string) string {
	return filepath.Join(s.Root, base, version)
}

// Status reports the install status of base@version and its install path,
// porting get_package_install_info.
func (s *Store) Status(base, version string) (Status, string) {
	checked := s.checkedPath(base, version)
	if _, err := os.Stat(checked); err == nil {
		if _, err := os.Stat(filepath.Join(checked, sentinelName)); err != nil {
			return StatusCorrupt, checked
		}
		return StatusInstalled, checked
	}

	legacy := s.legacyPath(base, version)
	if entries, err := os.ReadDir(legacy); err == nil && len(entries) > 0 {
		return StatusInstalled, legacy
	}
	return StatusMissing, checked
}

// Install runs the staging protocol: extract archivePath into a
// sibling staging directory named with a random UUID, write the empty
// sentinel, then attempt to rename it to installPath. A losing race
// against another process (rename fails because installPath already
// exists or is non-empty) is tolerated silently.
func (s *Store) Install(archivePath, installPath string) error {
	parent := filepath.Dir(installPath)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "creating %q", parent)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindInternal, err, "generating staging directory name")
	}
	stagingDir := filepath.Join(parent, id.String())
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "creating staging directory %q", stagingDir)
	}
	defer os.RemoveAll(stagingDir)

	if err := archive.Unpack(archivePath, stagingDir); err != nil {
		return err
	}
	if strings.HasSuffix(strings.ToLower(archivePath), ".zip") {
		removeRedundantTopLevelFolder(archivePath, stagingDir)
	}
	if err := writeEmptySentinel(stagingDir); err != nil {
		return pmerrors.Wrap(pmerrors.KindArchiveFailure, err, "writing sentinel in %q", stagingDir)
	}

	if err := os.Rename(stagingDir, installPath); err != nil {
		if os.IsExist(err) || isNotEmpty(err) {
			return nil
		}
		return pmerrors.Wrap(pmerrors.KindArchiveFailure, err, "promoting staging directory to %q", installPath)
	}
	return nil
}

func isNotEmpty(err error) bool {
	return strings.Contains(err.Error(), "directory not empty")
}

// removeRedundantTopLevelFolder strips a single top-level folder some ZIP
// publishers (GitHub/GitLab codeload archives) wrap their contents in,
// named "<base>@<version>[...]", the way _remove_redundant_top_level_folder
// does.
func removeRedundantTopLevelFolder(archivePath, outputFolder string) {
	entries, err := os.ReadDir(outputFolder)
	if err != nil || len(entries) != 1 {
		return
	}
	folderName := entries[0].Name()
	base := filepath.Base(archivePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	parts := strings.SplitN(base, "@", 2)
	if len(parts) != 2 {
		return
	}
	packageName, packageVersion := parts[0], parts[1]
	if !strings.HasPrefix(folderName, packageName) {
		return
	}
	rest := folderName[len(packageName):]
	rest = strings.TrimPrefix(rest, "@")
	if !strings.HasPrefix(rest, packageVersion) {
		return
	}

	folderPath := filepath.Join(outputFolder, folderName)
	items, err := os.ReadDir(folderPath)
	if err != nil {
		return
	}
	for _, item := range items {
		os.Rename(filepath.Join(folderPath, item.Name()), filepath.Join(outputFolder, item.Name()))
	}
	os.Chmod(folderPath, 0o700)
	os.Remove(folderPath)
}

func writeEmptySentinel(folderPath string) error {
	f, err := os.Create(filepath.Join(folderPath, sentinelName))
	if err != nil {
		return err
	}
	return f.Close()
}

// Verify recomputes the installed directory's hash (excluding the sentinel)
// and compares it to the sentinel's recorded body, porting verify_package.
func Verify(installPath string) (bool, error) {
	data, err := os.ReadFile(filepath.Join(installPath, sentinelName))
	if err != nil {
		return false, pmerrors.Wrap(pmerrors.KindIntegrityFailure, err, "reading sentinel in %q", installPath)
	}
	recorded := strings.TrimSpace(string(data))
	if recorded == "" {
		// Empty sentinels (the common case, see generate_empty_sha1_file) mean
		// the install was never hash-verified; treat as trivially valid.
		return true, nil
	}
	got, err := digestutil.HashDir(installPath, sentinelName)
	if err != nil {
		return false, pmerrors.Wrap(pmerrors.KindIntegrityFailure, err, "hashing %q", installPath)
	}
	return got.Encoded() == recorded, nil
}

// Remove first grants write permission to every file and directory under
// installPath, then deletes it recursively, in place of remove_package's
// shutil.rmtree(onerror=...) grant-and-retry handler.
func Remove(installPath string) error {
	err := filepath.Walk(installPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		return os.Chmod(path, info.Mode()|0o200)
	})
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindArchiveFailure, err, "granting write permission under %q", installPath)
	}
	if err := os.RemoveAll(installPath); err != nil {
		return pmerrors.Wrap(pmerrors.KindArchiveFailure, err, "removing %q", installPath)
	}
	return nil
}

// PackageRef identifies an installed base@version slot.
type PackageRef struct {
	Base    string
	Version string
}

// ListInstalled scans both the legacy and "chk/" trees, merging entries
// (chk/ wins on conflict) and returning them sorted, porting
// get_packages_installed.
func (s *Store) ListInstalled() ([]PackageRef, error) {
	packages := map[string]PackageRef{}
	if err := collectPackages(s.Root, packages); err != nil {
		return nil, err
	}
	checked := filepath.Join(s.Root, "chk")
	if _, err := os.Stat(checked); err == nil {
		if err := collectPackages(checked, packages); err != nil {
			return nil, err
		}
	}

	refs := make([]PackageRef, 0, len(packages))
	for _, ref := range packages {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Base != refs[j].Base {
			return refs[i].Base < refs[j].Base
		}
		return refs[i].Version < refs[j].Version
	})
	return refs, nil
}

func collectPackages(topLevelPath string, out map[string]PackageRef) error {
	entries, err := os.ReadDir(topLevelPath)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name() == "chk" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, base := range names {
		basePath := filepath.Join(topLevelPath, base)
		info, err := os.Stat(basePath)
		if err != nil || !info.IsDir() {
			continue
		}
		subEntries, err := os.ReadDir(basePath)
		if err != nil {
			continue
		}
		for _, sub := range subEntries {
			subPath := filepath.Join(basePath, sub.Name())
			if info, err := os.Stat(subPath); err == nil && info.IsDir() {
				out[base+"@"+sub.Name()] = PackageRef{Base: base, Version: sub.Name()}
			}
		}
	}
	return nil
}

// CopyIfVersionDiffers copies installPath to targetPath unless a marker
// file recording the same name@version already exists there, porting
// copy_package_if_version_differs.
func CopyIfVersionDiffers(installPath, targetPath string) error {
	version := filepath.Base(installPath)
	name := filepath.Base(filepath.Dir(installPath))
	marker := filepath.Join(targetPath, "."+name+"@"+version)
	if _, err := os.Stat(marker); err == nil {
		return nil
	}

	if _, err := os.Stat(targetPath); err == nil {
		if err := Remove(targetPath); err != nil {
			return err
		}
	}

	if err := copyTree(installPath, targetPath); err != nil {
		return pmerrors.Wrap(pmerrors.KindArchiveFailure, err, "copying %q to %q", installPath, targetPath)
	}
	f, err := os.Create(marker)
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindArchiveFailure, err, "writing marker %q", marker)
	}
	return f.Close()
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode())
	})
}
