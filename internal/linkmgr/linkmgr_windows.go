//go:build windows

package linkmgr

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// createPlatform tries a genuine directory symlink first; Windows requires
// elevated privileges to create one, so on "privilege not held" it falls
// back to a junction point, the same two-step create_link takes.
func createPlatform(linkPath, targetPath string) error {
	if err := os.Symlink(targetPath, linkPath); err != nil {
		if strings.Contains(err.Error(), "privilege not held") {
			return createJunction(linkPath, targetPath)
		}
		return err
	}
	return nil
}

func createJunction(linkPath, targetPath string) error {
	resolved := resolveAgainstParent(linkPath, targetPath)
	out, err := exec.Command("cmd", "/c", "mklink", "/j", linkPath, resolved).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s (%s ==> %s)", strings.TrimSpace(string(out)), linkPath, resolved)
	}
	return nil
}

func destroyPlatform(linkPath string) error {
	if _, err := os.Readlink(linkPath); err == nil {
		return os.Remove(linkPath)
	}
	out, err := exec.Command("cmd", "/c", "rmdir", linkPath).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s (%s)", strings.TrimSpace(string(out)), linkPath)
	}
	return nil
}

// readLinkPlatform falls back to parsing `dir /A:L` output for junctions,
// since os.Readlink only resolves genuine symlinks on Windows
// (_get_link_target_win's roundabout approach: fsutil needs admin rights).
func readLinkPlatform(linkPath string) (string, error) {
	if target, err := os.Readlink(linkPath); err == nil {
		return target, nil
	}
	parent := filepath.Clean(filepath.Join(linkPath, ".."))
	out, err := exec.Command("cmd", "/c", "dir", "/A:L", parent).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("failed to get link target for %q: %w", linkPath, err)
	}
	wantName := strings.ToLower(filepath.Base(linkPath))
	for _, line := range strings.Split(string(out), "\n") {
		for _, key := range []string{"<JUNCTION>", "<SYMLINKD>"} {
			idx := strings.Index(line, key)
			if idx == -1 {
				continue
			}
			rest := line[idx+len(key):]
			terms := strings.SplitN(rest, "[", 2)
			if len(terms) < 2 {
				continue
			}
			name := strings.ToLower(strings.TrimSpace(terms[0]))
			if name != wantName {
				continue
			}
			return strings.TrimSuffix(strings.TrimSpace(terms[1]), "]"), nil
		}
	}
	return "", fmt.Errorf("failed to get link target for %q", linkPath)
}
