package schema

import (
	"regexp"
	"strings"
)

// Package is a <package name="..." version="..."/> dependency child:
// a versioned archive to download, extract, and install.
type Package struct {
	Name      string
	Version   string
	Platforms []string
	Remotes   []string
}

func (p *Package) platforms() []string { return p.Platforms }
func (p *Package) remotes() []string   { return p.Remotes }

func (p *Package) asResolved(platform string) (DependencyChild, error) {
	name, err := substitute(p.Name, platform)
	if err != nil {
		return nil, err
	}
	version, err := substitute(p.Version, platform)
	if err != nil {
		return nil, err
	}
	return &Package{Name: name, Version: version, Remotes: p.Remotes}, nil
}

// Label is a <label name="..."/> dependency child: an indirection that
// resolves to a base@version token fetched (and cached) from a remote.
type Label struct {
	Name            string
	CacheExpiration int // seconds; defaults to 300 per schemaparser.py
	Platforms       []string
	Remotes         []string
}

func (l *Label) platforms() []string { return l.Platforms }
func (l *Label) remotes() []string   { return l.Remotes }

func (l *Label) asResolved(platform string) (DependencyChild, error) {
	name, err := substitute(l.Name, platform)
	if err != nil {
		return nil, err
	}
	ce := l.CacheExpiration
	if ce == 0 {
		ce = 300
	}
	return &Label{Name: name, CacheExpiration: ce, Remotes: l.Remotes}, nil
}

// Source is a <source path="..."/> dependency child: a local filesystem
// path used as-is, with no remote fetch (packager.py treats Source children
// as already fulfilled).
type Source struct {
	Path      string
	Platforms []string
}

func (s *Source) platforms() []string { return s.Platforms }
func (s *Source) remotes() []string   { return nil }

func (s *Source) asResolved(platform string) (DependencyChild, error) {
	path, err := substitute(s.Path, platform)
	if err != nil {
		return nil, err
	}
	return &Source{Path: path}, nil
}

// substitute performs the ${platform} variable substitution
// string.Template(self.name).substitute(platform=platform_str) does; "" is
// used when platform is unset, and any other ${...} reference is an error
// (the original raises PackmanError on a KeyError from substitute()).
func substitute(template, platform string) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(template) {
		if template[i] == '$' && i+1 < len(template) {
			rest := template[i+1:]
			switch {
			case strings.HasPrefix(rest, "{platform}"):
				out.WriteString(platform)
				i += len("${platform}")
				continue
			case strings.HasPrefix(rest, "platform"):
				// bare $platform without braces, also valid Template syntax
				next := i + 1 + len("platform")
				if next >= len(template) || !isIdentByte(template[next]) {
					out.WriteString(platform)
					i = next
					continue
				}
			case strings.HasPrefix(rest, "$"):
				out.WriteByte('$')
				i += 2
				continue
			}
			if rest != "" && (rest[0] == '{' || isIdentByte(rest[0])) {
				name := identifierAt(rest)
				return "", variableSubstitutionError(name)
			}
		}
		out.WriteByte(template[i])
		i++
	}
	return out.String(), nil
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func identifierAt(rest string) string {
	if strings.HasPrefix(rest, "{") {
		if end := strings.IndexByte(rest, '}'); end > 0 {
			return rest[1:end]
		}
		return rest[1:]
	}
	j := 0
	for j < len(rest) && isIdentByte(rest[j]) {
		j++
	}
	return rest[:j]
}

type variableSubstErr struct{ name string }

func (e *variableSubstErr) Error() string {
	return "variable substitution failed (keyword '" + e.name + "' not supported)"
}

func variableSubstitutionError(name string) error { return &variableSubstErr{name: name} }

// bestMatchForPlatform returns the child that best matches platform, or nil
// if none does, porting Dependency.get_best_match_for_platform: an
// unqualified child is the exact match when platform is empty, otherwise
// the weakest possible fallback; an exact listed platform wins immediately;
// among wildcard entries the one whose '*' occurs latest in the pattern
// wins (schemaparser.py compares index-of-'*' as a proxy for "more specific
// prefix", not true longest-match, and this port preserves that exact
// tie-break rather than a more "correct" longest-prefix rule).
func (d *Dependency) bestMatchForPlatform(platform string) DependencyChild {
	var candidate DependencyChild
	candidateMatchLocation := 0
	for _, child := range d.Children {
		plats := child.platforms()
		if plats == nil {
			if platform == "" {
				return child
			}
			if candidateMatchLocation > 0 {
				continue
			}
			candidate = child
			continue
		}
		if platform == "" {
			continue
		}
		if containsString(plats, platform) {
			return child
		}
		for _, childPlatform := range plats {
			pos := strings.IndexByte(childPlatform, '*')
			if pos > candidateMatchLocation {
				re := platformWildcardRegexp(childPlatform)
				if re.MatchString(platform) {
					candidate = child
					candidateMatchLocation = pos
				}
			}
		}
	}
	return candidate
}

func platformWildcardRegexp(wildcard string) *regexp.Regexp {
	var b strings.Builder
	for _, c := range wildcard {
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return regexp.MustCompile("(?s)^" + b.String() + "$")
}
