// Package schema implements the manifest and config grammars (spec.md §4.1):
// a streaming element-table-dispatch parser ported from the original tool's
// expat-based ParseHelper/BaseParser/Element hierarchy, together with the
// domain types (Project, Dependency, Package, Label, Source, Remote, Cache,
// Platform) those grammars populate.
package schema

import "github.com/packman-project/packman/internal/pmerrors"

func pmerrorsParseError(depName string, cause error) error {
	return pmerrors.Wrap(pmerrors.KindParseError, cause, "resolving dependency '%s'", depName)
}

// Project is the root of a parsed project (dependency-set) manifest.
type Project struct {
	ToolsVersion     string
	Remotes          []string // namespace-qualified remote names referenced via the root remotes="" attribute
	Dependencies     map[string]*Dependency
	RemotesMap       map[string]*Remote
	RemotesReferenced map[string]bool
	Platforms        map[string]*Platform
}

func newProject() *Project {
	return &Project{
		Dependencies:      map[string]*Dependency{},
		RemotesMap:        map[string]*Remote{},
		RemotesReferenced: map[string]bool{},
		Platforms:         map[string]*Platform{},
	}
}

// AddDependency registers dep, failing if its name is already taken
// (original: Project.add_dependency raises if dep_name in dependency_map).
func (p *Project) AddDependency(dep *Dependency) error {
	if _, exists := p.Dependencies[dep.Name]; exists {
		return dupDependencyError(dep.Name)
	}
	p.Dependencies[dep.Name] = dep
	for _, child := range dep.Children {
		for _, r := range child.remotes() {
			p.RemotesReferenced[r] = true
		}
	}
	return nil
}

func (p *Project) AddRemote(r *Remote) { p.RemotesMap[r.Name] = r }

func (p *Project) HasPlatform(name string) bool {
	_, ok := p.Platforms[name]
	return ok
}

func (p *Project) AddPlatform(pl *Platform) { p.Platforms[pl.Name] = pl }

// GetDependencies resolves every dependency against platform/tag filters,
// keyed by name, dropping any dependency that resolves to nothing
// (Project.get_dependencies).
func (p *Project) GetDependencies(platform string, includeTags, excludeTags []string) (map[string]*Dependency, error) {
	out := map[string]*Dependency{}
	for _, dep := range p.Dependencies {
		resolved, err := dep.AsResolved(platform, includeTags, excludeTags)
		if err != nil {
			return nil, err
		}
		if resolved != nil {
			out[resolved.Name] = resolved
		}
	}
	return out, nil
}

// Platform models <platform name="..." inherit=".../> for platform
// hierarchies; inheritance resolution itself lives in internal/resolver.
type Platform struct {
	Name    string
	Inherit string
}

// Remote is a named source location a dependency's children pull from.
// Type is one of "gtl", "s3", "http", "https" (schemaparser.py's
// supported_types); "azure", "swift", "gcs" are SPEC_FULL additions (§B).
type Remote struct {
	Name            string // namespace-qualified, e.g. "project:artifactory"
	Type            string
	PackageLocation string
	CredentialID    string
	CredentialKey   string
	ErrorURL        string
	Extra           map[string]string // SPEC_FULL: extra per-transport attributes decoded via mapstructure (§B)
}

// Cache models the <cache/> config element.
type Cache struct {
	RemovePreviousPackageOnLabelUpdate *bool
}

// Merge fills any unset field of c from lower, the way Cache.merge lets a
// higher-priority config inherit from a lower-priority one (spec.md §6
// config-file precedence).
func (c *Cache) Merge(lower *Cache) {
	if lower == nil {
		return
	}
	if c.RemovePreviousPackageOnLabelUpdate == nil {
		c.RemovePreviousPackageOnLabelUpdate = lower.RemovePreviousPackageOnLabelUpdate
	}
}

// Reporting models the <reporting/> config element (SPEC_FULL §A.1/§A.3),
// the crash/metrics-service knobs that feed internal/plog's hooks.
type Reporting struct {
	BugsnagAPIKey      string
	NewRelicLicenseKey string
	LogstashAddr       string
}

// Config is the root of a parsed configuration file.
type Config struct {
	Remotes    []string
	RemotesMap map[string]*Remote
	Cache      *Cache
	Reporting  *Reporting
}

func newConfig() *Config {
	return &Config{RemotesMap: map[string]*Remote{}}
}

func (c *Config) AddRemote(r *Remote) { c.RemotesMap[r.Name] = r }

// Dependency is a <dependency name="..."> node: an env-var-style name plus
// an ordered list of candidate children (Package/Label/Source), at most one
// of which is selected for a given platform at resolve time.
type Dependency struct {
	Name     string
	LinkPath string
	CopyPath string
	Tags     []string
	Children []DependencyChild
}

// DependencyChild is implemented by Package, Label, and Source.
type DependencyChild interface {
	platforms() []string
	remotes() []string
	asResolved(platform string) (DependencyChild, error)
}

// AsResolved filters and platform-matches dep the way Dependency.as_resolved
// does: tag filter first, then best-platform-match amongst children. A
// dependency with no surviving child resolves to (nil, nil); a variable
// substitution failure on the matched child propagates as an error instead
// of silently dropping the dependency (the original lets the equivalent
// PackmanError propagate out of as_resolved unguarded).
func (d *Dependency) AsResolved(platform string, includeTags, excludeTags []string) (*Dependency, error) {
	if !d.isFilteredIn(includeTags, excludeTags) {
		return nil, nil
	}
	candidate := d.bestMatchForPlatform(platform)
	if candidate == nil {
		return nil, nil
	}
	resolved, err := candidate.asResolved(platform)
	if err != nil {
		return nil, pmerrorsParseError(d.Name, err)
	}
	return &Dependency{
		Name:     d.Name,
		LinkPath: d.LinkPath,
		CopyPath: d.CopyPath,
		Children: []DependencyChild{resolved},
	}, nil
}

func (d *Dependency) isFilteredIn(includeTags, excludeTags []string) bool {
	includeTagsArg := includeTags != nil
	add := true
	if includeTagsArg || len(excludeTags) > 0 {
		add = !includeTagsArg
		if len(d.Tags) > 0 {
			if len(includeTags) > 0 {
				for _, tag := range includeTags {
					if containsString(d.Tags, tag) {
						add = true
						break
					}
				}
			}
			if len(excludeTags) > 0 {
				for _, tag := range excludeTags {
					if containsString(d.Tags, tag) {
						add = false
						break
					}
				}
			}
		}
	}
	return add
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func dupDependencyError(name string) error {
	return &dupDependency{name: name}
}

type dupDependency struct{ name string }

func (e *dupDependency) Error() string {
	return "dependency '" + e.name + "' can only be defined once in a project"
}
