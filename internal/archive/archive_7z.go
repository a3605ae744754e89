package archive

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/packman-project/packman/internal/pmerrors"
)

var sevenZipPath string

// locate7za resolves the 7za binary, preferring PM_7za_PATH (a directory
// laid out <arch>/<bitness>/7za[.exe], the way locate_7z_command expects),
// and falling back to whatever "7za"/"7z" exec.LookPath finds on PATH — an
// idiomatic relaxation of the original's hard failure, since packman no
// longer ships the bundled test_data/7za tree this was distilled from.
func locate7za() (string, error) {
	if sevenZipPath != "" {
		return sevenZipPath, nil
	}
	if root := os.Getenv("PM_7za_PATH"); root != "" {
		arch, exe := sevenZipSubpath()
		bitness := "64"
		if strconv.IntSize == 32 {
			bitness = "32"
		}
		candidate := filepath.Join(root, arch, bitness, exe)
		if _, err := os.Stat(candidate); err == nil {
			sevenZipPath = candidate
			return sevenZipPath, nil
		}
	}
	for _, name := range []string{"7za", "7z"} {
		if path, err := exec.LookPath(name); err == nil {
			sevenZipPath = path
			return sevenZipPath, nil
		}
	}
	return "", pmerrors.New(pmerrors.KindArchiveFailure, "7z command not found; set PM_7za_PATH or install 7za/7z on PATH")
}

func sevenZipSubpath() (arch, exe string) {
	switch runtime.GOOS {
	case "windows":
		return "win-x86", "7za.exe"
	case "darwin":
		return "mac-x86", "7za"
	default:
		if runtime.GOARCH == "arm64" {
			return "linux-arm", "7za"
		}
		return "linux-x86", "7za"
	}
}

func call7z(command string, switches, files []string) ([]byte, error) {
	exe, err := locate7za()
	if err != nil {
		return nil, err
	}
	args := append([]string{command}, switches...)
	args = append(args, files...)
	cmd := exec.Command(exe, args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	return out, nil
}

func pack7z(inputFolder, archivePath string) (string, error) {
	if !strings.HasSuffix(strings.ToLower(archivePath), ".7z") {
		archivePath += ".7z"
	}
	if _, err := os.Stat(inputFolder); err != nil {
		return "", pmerrors.Wrap(pmerrors.KindArchiveFailure, err, "%q is not a valid directory", inputFolder)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", pmerrors.Wrap(pmerrors.KindArchiveFailure, err, "reading working directory")
	}
	if err := os.Chdir(inputFolder); err != nil {
		return "", pmerrors.Wrap(pmerrors.KindArchiveFailure, err, "entering %q", inputFolder)
	}
	defer os.Chdir(cwd)

	absArchivePath := archivePath
	if !filepath.IsAbs(absArchivePath) {
		absArchivePath = filepath.Join(cwd, archivePath)
	}

	switches := []string{"-mx=9"}
	if _, err := call7z("a", switches, []string{absArchivePath, "*"}); err != nil {
		os.Remove(absArchivePath)
		return "", pmerrors.Wrap(pmerrors.KindArchiveFailure, err, "archive creation failed")
	}
	return absArchivePath, nil
}

func unpack7z(archivePath, outputFolder string) error {
	switches := []string{"-y", "-o" + outputFolder}
	if _, err := call7z("x", switches, []string{archivePath}); err != nil {
		return pmerrors.Wrap(pmerrors.KindArchiveFailure, err, "archive extraction failed")
	}
	return nil
}

// uncompressedSize7z parses `7za l <archive>`'s summary line, the way
// get_archive_uncompressed_size reads the last line of `l` output.
func uncompressedSize7z(archivePath string) (int64, error) {
	out, err := call7z("l", nil, []string{archivePath})
	if err != nil {
		return 0, pmerrors.Wrap(pmerrors.KindArchiveFailure, err, "unable to access archive %q", archivePath)
	}
	lines := bytes.Split(bytes.TrimRight(out, "\n"), []byte("\n"))
	if len(lines) == 0 {
		return 0, pmerrors.New(pmerrors.KindArchiveFailure, "unable to parse 7z listing for %q", archivePath)
	}
	words := bytes.Fields(lines[len(lines)-1])
	if len(words) < 3 {
		return 0, pmerrors.New(pmerrors.KindArchiveFailure, "unable to parse 7z listing for %q", archivePath)
	}
	size, err := strconv.ParseInt(string(words[2]), 10, 64)
	if err != nil {
		return 0, pmerrors.Wrap(pmerrors.KindArchiveFailure, err, "unable to parse 7z listing for %q", archivePath)
	}
	return size, nil
}
