// Package resolver orchestrates manifest resolution (spec.md §4.2): applying
// platform/tag filters to a parsed project and dereferencing labels against
// the configured remote cascade, grounded on packman.py's
// get_dependencies_remote_names_and_configs/process_label/filter_dependencies.
package resolver

import (
	"github.com/packman-project/packman/internal/pmerrors"
	"github.com/packman-project/packman/internal/schema"
)

// Resolve applies the platform/tag filter to every dependency in project,
// the Go entry point for Project.get_dependencies.
func Resolve(project *schema.Project, platform string, includeTags, excludeTags []string) (map[string]*schema.Dependency, error) {
	deps, err := project.GetDependencies(platform, includeTags, excludeTags)
	if err != nil {
		return nil, err
	}
	return deps, nil
}

// BasenameAndVersion splits a "base@version" package token, stripping a
// known archive extension first, porting
// packager.get_basename_and_version_from_package_name.
func BasenameAndVersion(packageName string) (base, ver string, err error) {
	name := packageName
	for _, ext := range []string{".7z", ".zip", ".tar"} {
		if hasSuffixFold(name, ext) {
			name = name[:len(name)-len(ext)]
			break
		}
	}
	idx := indexByte(name, '@')
	if idx < 0 {
		return "", "", pmerrors.New(pmerrors.KindLabelMalformed, "label body %q does not contain a base@version token", packageName)
	}
	return name[:idx], name[idx+1:], nil
}

func hasSuffixFold(s, suffix string) bool {
	if len(s) < len(suffix) {
		return false
	}
	tail := s[len(s)-len(suffix):]
	if len(tail) != len(suffix) {
		return false
	}
	for i := range tail {
		a, b := tail[i], suffix[i]
		if a >= 'A' && a <= 'Z' {
			a += 'a' - 'A'
		}
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
