package archive

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/packman-project/packman/internal/pmerrors"
)

func packZip(inputFolder, archivePath string) (string, error) {
	if !strings.HasSuffix(strings.ToLower(archivePath), ".zip") {
		archivePath += ".zip"
	}
	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return "", pmerrors.Wrap(pmerrors.KindArchiveFailure, err, "creating %q", filepath.Dir(archivePath))
	}

	out, err := os.Create(archivePath)
	if err != nil {
		return "", pmerrors.Wrap(pmerrors.KindArchiveFailure, err, "creating file %q", archivePath)
	}
	defer out.Close()

	w := zip.NewWriter(out)
	err = filepath.Walk(inputFolder, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(inputFolder, path)
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate
		writer, err := w.CreateHeader(header)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(writer, f)
		return err
	})
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(archivePath)
		return "", pmerrors.Wrap(pmerrors.KindArchiveFailure, err, "archive creation failed")
	}
	return archivePath, nil
}

func unpackZip(archivePath, outputFolder string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindArchiveFailure, err, "opening archive %q", archivePath)
	}
	defer r.Close()

	for _, f := range r.File {
		outPath := filepath.Join(outputFolder, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(outPath, filepath.Clean(outputFolder)+string(os.PathSeparator)) && outPath != filepath.Clean(outputFolder) {
			return pmerrors.New(pmerrors.KindArchiveFailure, "archive entry %q escapes output folder", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(outPath, 0o755); err != nil {
				return pmerrors.Wrap(pmerrors.KindArchiveFailure, err, "creating %q", outPath)
			}
			continue
		}
		if err := extractZipEntry(f, outPath); err != nil {
			return pmerrors.Wrap(pmerrors.KindArchiveFailure, err, "extracting %q", f.Name)
		}
	}
	return nil
}

// extractZipEntry writes f into outPath and restores its Unix permission
// bits when present, the way _extract_file chmods the result from
// file_info.external_attr >> 16 (skipped when that field is zero, since
// some zips never populate it).
func extractZipEntry(f *zip.File, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if perm := f.ExternalAttrs >> 16; perm != 0 {
		return os.Chmod(outPath, os.FileMode(perm&0o777))
	}
	return nil
}

func uncompressedSizeZip(archivePath string) (int64, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, pmerrors.Wrap(pmerrors.KindArchiveFailure, err, "opening archive %q", archivePath)
	}
	defer r.Close()

	var total int64
	for _, f := range r.File {
		total += int64(f.UncompressedSize64)
	}
	return total, nil
}
