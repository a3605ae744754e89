// Package archive packs and unpacks the `.7z`/`.zip` containers packages are
// shipped in (spec.md "ArchiveDriver"). The compression codec itself is out
// of scope here: `.7z` work shells out to an external 7za binary exactly as
// the original tool does, and `.zip` work uses the standard library's
// archive/zip, which already implements the DEFLATE codec end to end.
package archive

import (
	"strings"

	"github.com/packman-project/packman/internal/pmerrors"
)

// Format is a supported archive container.
type Format string

const (
	Format7z  Format = "7z"
	FormatZip Format = "zip"
)

// FormatFromName infers a Format from an archive's file extension, the way
// every caller in packman.py picks a codec by trying ".7z" then ".zip".
func FormatFromName(name string) (Format, bool) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".7z"):
		return Format7z, true
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip, true
	default:
		return "", false
	}
}

// Pack creates archivePath (adding the format's extension if missing) from
// every file and folder inside inputFolder, returning the final archive
// path, porting make_archive_from_folder.
func Pack(format Format, inputFolder, archivePath string) (string, error) {
	switch format {
	case Format7z:
		return pack7z(inputFolder, archivePath)
	case FormatZip:
		return packZip(inputFolder, archivePath)
	default:
		return "", pmerrors.New(pmerrors.KindArchiveFailure, "unsupported archive format %q", format)
	}
}

// Unpack extracts archivePath into outputFolder, porting
// extract_archive_to_folder. The format is inferred from archivePath's
// extension.
func Unpack(archivePath, outputFolder string) error {
	format, ok := FormatFromName(archivePath)
	if !ok {
		return pmerrors.New(pmerrors.KindArchiveFailure, "cannot determine archive format for %q", archivePath)
	}
	switch format {
	case Format7z:
		return unpack7z(archivePath, outputFolder)
	case FormatZip:
		return unpackZip(archivePath, outputFolder)
	default:
		return pmerrors.New(pmerrors.KindArchiveFailure, "unsupported archive format %q", format)
	}
}

// UncompressedSize reports the total size the archive would occupy once
// extracted, porting get_archive_uncompressed_size.
func UncompressedSize(archivePath string) (int64, error) {
	format, ok := FormatFromName(archivePath)
	if !ok {
		return 0, pmerrors.New(pmerrors.KindArchiveFailure, "cannot determine archive format for %q", archivePath)
	}
	switch format {
	case Format7z:
		return uncompressedSize7z(archivePath)
	case FormatZip:
		return uncompressedSizeZip(archivePath)
	default:
		return 0, pmerrors.New(pmerrors.KindArchiveFailure, "unsupported archive format %q", format)
	}
}
