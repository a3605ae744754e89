// Package version holds the toolsVersion comparison used to warn when a
// manifest was authored against a newer packman than the running one.
package version

import (
	"strconv"
	"strings"
)

// ProductVersion is the packman release version, analogous to
// version.PRODUCT_VERSION in the original tool. Overridden at link time via
// -ldflags "-X github.com/packman-project/packman/internal/version.ProductVersion=...".
var ProductVersion = "dev"

// SupportedToolsVersion is the toolsVersion manifests are checked against.
// Release-candidate suffixes ("-rc1") are stripped the same way
// _get_tools_version does in schemaparser.py.
var SupportedToolsVersion = stripReleaseCandidate(ProductVersion)

func stripReleaseCandidate(v string) string {
	if pos := strings.Index(v, "-rc"); pos != -1 {
		return v[:pos]
	}
	return v
}

// IsFileVersionNewer reports whether fileVersion's major.minor pair is
// strictly newer than supported's, following ProjectElement.is_file_version_newer:
// a higher major always wins; a higher minor only wins when the majors are
// equal. Malformed version strings (fewer than two dot-separated components,
// or non-numeric components) are treated as not newer rather than raising,
// since a manifest that fails to parse its own toolsVersion attribute has
// bigger problems that surface elsewhere as a PARSE_ERROR.
func IsFileVersionNewer(fileVersion, supported string) bool {
	fMajor, fMinor, ok1 := majorMinor(fileVersion)
	sMajor, sMinor, ok2 := majorMinor(supported)
	if !ok1 || !ok2 {
		return false
	}
	if fMajor > sMajor {
		return true
	}
	if fMajor == sMajor && fMinor > sMinor {
		return true
	}
	return false
}

func majorMinor(v string) (major, minor int, ok bool) {
	parts := strings.Split(v, ".")
	if len(parts) < 2 {
		return 0, 0, false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}
