//go:build !windows

package linkmgr

import "os"

func createPlatform(linkPath, targetPath string) error {
	return os.Symlink(targetPath, linkPath)
}

func destroyPlatform(linkPath string) error {
	return os.Remove(linkPath)
}

func readLinkPlatform(linkPath string) (string, error) {
	return os.Readlink(linkPath)
}
