// Package lockfile implements the resolved-dependency lockfile
// (packman.lock.yaml, SPEC_FULL.md §C.3): a record of exactly which
// name@version a project's dependencies resolved to on a given platform,
// written by `packman pull --lockfile` after a successful pull so a later
// `packman verify --lockfile` can compare a fresh resolution against it and
// report drift. This has no equivalent in the original tool, which always
// re-resolves from scratch; the format and serialization choice
// (gopkg.in/yaml.v2, a small plaintext document) follow the convention
// internal/credstore already establishes for packman's own local state.
package lockfile

import (
	"os"
	"sort"

	"gopkg.in/yaml.v2"

	"github.com/packman-project/packman/internal/pmerrors"
)

// FileName is the conventional name of a project's lockfile, sitting
// alongside its manifest.
const FileName = "packman.lock.yaml"

// Entry pins a single dependency to the package it resolved to.
type Entry struct {
	Dependency string `yaml:"dependency"`
	Name       string `yaml:"name"`
	Version    string `yaml:"version"`
	Platform   string `yaml:"platform"`
}

// Lockfile is the full resolved set for one platform.
type Lockfile struct {
	Platform string  `yaml:"platform"`
	Entries  []Entry `yaml:"entries"`
}

// Build assembles a Lockfile from a dependency-name -> (package name,
// version) map, the shape a completed fulfill.Engine.Run's resolved
// dependency tree naturally produces. Entries are sorted by dependency name
// for a deterministic, diff-friendly file.
func Build(platform string, resolved map[string]Entry) *Lockfile {
	lf := &Lockfile{Platform: platform}
	for depName, e := range resolved {
		e.Dependency = depName
		e.Platform = ""
		lf.Entries = append(lf.Entries, e)
	}
	sort.Slice(lf.Entries, func(i, j int) bool { return lf.Entries[i].Dependency < lf.Entries[j].Dependency })
	return lf
}

// Save writes lf to path as YAML.
func (lf *Lockfile) Save(path string) error {
	data, err := yaml.Marshal(lf)
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindParseError, err, "serializing lockfile")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "writing lockfile %q", path)
	}
	return nil
}

// Load reads and parses a lockfile from path.
func Load(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindTransportIO, err, "reading lockfile %q", path)
	}
	var lf Lockfile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindParseError, err, "parsing lockfile %q", path)
	}
	return &lf, nil
}

// Drift describes one dependency whose currently-resolved package disagrees
// with what's locked.
type Drift struct {
	Dependency string
	Locked     Entry
	Current    Entry
	// Missing is true when Dependency has no current resolution at all
	// (Current is the zero Entry).
	Missing bool
	// Unlocked is true when Dependency resolves currently but isn't in the
	// lockfile at all (Locked is the zero Entry).
	Unlocked bool
}

// Verify compares lf against a freshly-resolved dependency-name -> Entry
// map (the same shape Build takes), reporting every disagreement: a
// dependency resolving to a different name/version than locked, one that's
// vanished, or one present now but absent from the lockfile. An empty
// result means the two sets agree exactly, equivalent to `packman verify
// --lockfile` passing.
func (lf *Lockfile) Verify(current map[string]Entry) []Drift {
	locked := make(map[string]Entry, len(lf.Entries))
	for _, e := range lf.Entries {
		locked[e.Dependency] = e
	}

	var drifts []Drift
	for depName, lockedEntry := range locked {
		currentEntry, ok := current[depName]
		if !ok {
			drifts = append(drifts, Drift{Dependency: depName, Locked: lockedEntry, Missing: true})
			continue
		}
		if currentEntry.Name != lockedEntry.Name || currentEntry.Version != lockedEntry.Version {
			drifts = append(drifts, Drift{Dependency: depName, Locked: lockedEntry, Current: currentEntry})
		}
	}
	for depName, currentEntry := range current {
		if _, ok := locked[depName]; !ok {
			drifts = append(drifts, Drift{Dependency: depName, Current: currentEntry, Unlocked: true})
		}
	}

	sort.Slice(drifts, func(i, j int) bool { return drifts[i].Dependency < drifts[j].Dependency })
	return drifts
}
