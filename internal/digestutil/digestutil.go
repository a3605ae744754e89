// Package digestutil computes the canonical content hash used to fingerprint
// installed packages (spec.md "Hash canonicalization"), ported from
// checksum.py's generate_sha1_for_file/generate_sha1_for_folder(_with_exclusion).
package digestutil

import (
	"crypto/sha1"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/opencontainers/go-digest"
)

// Algorithm is the fixed hash algorithm spec.md requires for content
// identity. go-digest's own Algorithm constants only cover sha256/384/512,
// so the digests this package returns are constructed with
// digest.NewDigestFromEncoded rather than digest.FromBytes/FromReader, which
// only format a "sha1:<hex>" value and never touch go-digest's algorithm
// registry (sha1 intentionally isn't registered there as a selectable
// algorithm, since the distribution ecosystem treats it as legacy-only).
const Algorithm digest.Algorithm = "sha1"

const readBufSize = 64 * 1024

// HashFile returns the canonical digest of a single file's contents, the Go
// equivalent of generate_sha1_for_file.
func HashFile(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hex, err := hashFileHex(f)
	if err != nil {
		return "", err
	}
	return digest.NewDigestFromEncoded(Algorithm, hex), nil
}

func hashFileHex(r io.Reader) (string, error) {
	h := sha1.New()
	buf := make([]byte, readBufSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", err
	}
	return digest.NewDigestFromBytes(Algorithm, h.Sum(nil)).Encoded(), nil
}

// HashDir returns the canonical digest of a directory tree, computed over
// the byte stream: for each entry in sorted name order, either
// `dir '<relpath>'\0` (recursing unless the entry is a symlink) or
// `file '<relpath>' <size> <hex-sha1>\0`. excludeRelPath, if non-empty,
// names a single relative path to skip entirely (and not recurse into),
// the Go equivalent of generate_sha1_for_folder_with_exclusion.
func HashDir(root, excludeRelPath string) (digest.Digest, error) {
	h := sha1.New()
	if err := hashDirInto(h, root, "", excludeRelPath); err != nil {
		return "", err
	}
	return digest.NewDigestFromBytes(Algorithm, h.Sum(nil)), nil
}

func hashDirInto(h io.Writer, root, relPath, excludeRelPath string) error {
	dirPath := filepath.Join(root, relPath)
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	sort.Strings(names)

	for _, name := range names {
		relEntry := filepath.Join(relPath, name)
		if excludeRelPath != "" && filepath.ToSlash(relEntry) == filepath.ToSlash(excludeRelPath) {
			continue
		}
		entryPath := filepath.Join(dirPath, name)
		info, err := os.Lstat(entryPath)
		if err != nil {
			return err
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			if _, err := io.WriteString(h, "dir '"+filepath.ToSlash(relEntry)+"'\x00"); err != nil {
				return err
			}
		case info.IsDir():
			if _, err := io.WriteString(h, "dir '"+filepath.ToSlash(relEntry)+"'\x00"); err != nil {
				return err
			}
			if err := hashDirInto(h, root, relEntry, excludeRelPath); err != nil {
				return err
			}
		default:
			f, err := os.Open(entryPath)
			if err != nil {
				return err
			}
			fileHex, err := hashFileHex(f)
			f.Close()
			if err != nil {
				return err
			}
			fi, err := os.Stat(entryPath)
			if err != nil {
				return err
			}
			line := "file '" + filepath.ToSlash(relEntry) + "' " + strconv.FormatInt(fi.Size(), 10) + " " + fileHex + "\x00"
			if _, err := io.WriteString(h, line); err != nil {
				return err
			}
		}
	}
	return nil
}
