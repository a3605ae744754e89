// Package linkmgr creates, destroys, and reads the directory-level links
// packman materializes a dependency's linkPath as (spec.md §4.7), ported
// from link.py's create_link/destroy_link/get_link_target.
package linkmgr

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/packman-project/packman/internal/pmerrors"
)

// Create establishes linkPath as a directory link pointing at targetPath
// (relative targets are interpreted relative to linkPath's parent, matching
// create_link). Create is idempotent: if linkPath is already a link whose
// resolved target matches (case-insensitively) the requested target, it
// returns nil without touching the filesystem. If a non-link entry already
// occupies linkPath, it fails with KindLinkBlocked.
func Create(linkPath, targetPath string) error {
	linkPath = sanitize(linkPath)
	targetPath = sanitize(targetPath)

	if info, err := os.Lstat(linkPath); err == nil {
		if !isLink(info) {
			return pmerrors.New(pmerrors.KindLinkBlocked, "a non-link entry already exists at %q", linkPath)
		}
		if existing, err := Read(linkPath); err == nil && SameTarget(existing, resolveAgainstParent(linkPath, targetPath)) {
			return nil
		}
		if err := destroyPlatform(linkPath); err != nil {
			return pmerrors.Wrap(pmerrors.KindLinkBlocked, err, "replacing stale link at %q", linkPath)
		}
	}

	if err := createPlatform(linkPath, targetPath); err != nil {
		return pmerrors.Wrap(pmerrors.KindLinkBlocked, err, "creating link %q -> %q", linkPath, targetPath)
	}
	return nil
}

// Destroy removes an existing link at linkPath.
func Destroy(linkPath string) error {
	linkPath = sanitize(linkPath)
	if err := destroyPlatform(linkPath); err != nil {
		return pmerrors.Wrap(pmerrors.KindLinkBlocked, err, "destroying link %q", linkPath)
	}
	return nil
}

// Read returns the absolute target of the link at linkPath, resolving a
// relative target against the link's parent directory (get_link_target).
func Read(linkPath string) (string, error) {
	linkPath = sanitize(linkPath)
	target, err := readLinkPlatform(linkPath)
	if err != nil {
		return "", pmerrors.Wrap(pmerrors.KindLinkBlocked, err, "reading link %q", linkPath)
	}
	return resolveAgainstParent(linkPath, target), nil
}

// SameTarget compares two link target paths the way the link manager
// decides whether an existing link already points where it should:
// case-insensitively, after cleaning both paths.
func SameTarget(a, b string) bool {
	return strings.EqualFold(filepath.Clean(a), filepath.Clean(b))
}

func sanitize(path string) string {
	p := filepath.FromSlash(path)
	return strings.TrimRight(p, string(filepath.Separator))
}

func resolveAgainstParent(linkPath, target string) string {
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Clean(filepath.Join(filepath.Dir(linkPath), target))
}

func isLink(info os.FileInfo) bool {
	return info.Mode()&os.ModeSymlink != 0
}
