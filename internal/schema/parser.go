package schema

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/packman-project/packman/internal/pmerrors"
	"github.com/packman-project/packman/internal/version"
)

// elementSpec is the Go analogue of xmlparser.Element + the (element,
// parent_tag) tuple BaseParser's element_map stores: the attribute
// contract for one XML tag, its required parent tag (empty for a root
// element), and the start/end callbacks that mutate the in-progress parse.
type elementSpec struct {
	tag           string
	required      []string
	optional      []string
	parentTag     string // "" => must appear at document root
	start         func(ctx *parseCtx, attrs map[string]string) error
	end           func(ctx *parseCtx) error
}

func (e *elementSpec) checkAttrs(attrs map[string]string, failOnUnhandled bool) error {
	for _, req := range e.required {
		v, ok := attrs[req]
		if !ok {
			return fmt.Errorf("attribute '%s' (required) on element '%s' is missing", req, e.tag)
		}
		if v == "" {
			return fmt.Errorf("attribute '%s' on element '%s' cannot be set to empty string", req, e.tag)
		}
	}
	if !failOnUnhandled {
		return nil
	}
	for k := range attrs {
		if !containsString(e.required, k) && !containsString(e.optional, k) {
			return fmt.Errorf("attribute '%s' on element '%s' is not supported (supported: %s %s)",
				k, e.tag, strings.Join(e.required, " "), strings.Join(e.optional, " "))
		}
	}
	return nil
}

// parseCtx mirrors xmlparser.ParseHelper: shared mutable state threaded
// through every element's start/end handler during one parse.
type parseCtx struct {
	filename        string
	namespace       string
	failOnUnhandled bool
	baseDir         string

	elements map[string]elementSpec

	stack       []string
	ignoreDepth int

	lineOf func(offset int64) int

	project *Project
	config  *Config

	currentDependency *Dependency
	currentRemote     *Remote
	currentPlatform   *Platform
}

func (c *parseCtx) parentTag() string {
	if len(c.stack) < 2 {
		return ""
	}
	return c.stack[len(c.stack)-2]
}

func (c *parseCtx) errorf(line int, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	e := pmerrors.New(pmerrors.KindParseError, "%s", msg)
	return e.WithLocation(c.filename, line)
}

func (c *parseCtx) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Clean(filepath.Join(c.baseDir, path))
}

// resolveEnvVars resolves any attribute value beginning with "$" against
// the process environment, matching ParseHelper.resolve_env_vars.
func resolveEnvVars(attrs map[string]string) (map[string]string, string, bool) {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		if strings.HasPrefix(v, "$") {
			name := v[1:]
			val, ok := os.LookupEnv(name)
			if !ok {
				return nil, name, false
			}
			out[k] = val
			continue
		}
		out[k] = v
	}
	return out, "", true
}

// newLineOf builds a byte-offset-to-line-number lookup over the full
// document, the closest stdlib equivalent of expat's CurrentLineNumber
// (xml.Decoder exposes only InputOffset, not line numbers).
func newLineOf(data []byte) func(int64) int {
	return func(offset int64) int {
		if offset < 0 {
			offset = 0
		}
		if offset > int64(len(data)) {
			offset = int64(len(data))
		}
		return bytes.Count(data[:offset], []byte{'\n'}) + 1
	}
}

func runParse(data []byte, filename string, g *grammar) (interface{}, error) {
	cwd, _ := os.Getwd()
	baseDir := filepath.Dir(filepath.Join(cwd, filename))

	ctx := &parseCtx{
		filename:        filename,
		namespace:       g.namespace,
		failOnUnhandled: g.failOnUnhandled,
		baseDir:         baseDir,
		elements:        g.elements,
		lineOf:          newLineOf(data),
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		offset := dec.InputOffset()
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ctx.errorf(ctx.lineOf(offset), "%s", err.Error())
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if err := ctx.startElement(t, offset); err != nil {
				return nil, err
			}
		case xml.EndElement:
			if err := ctx.endElement(t.Name.Local); err != nil {
				return nil, err
			}
		}
	}

	if ctx.project != nil {
		return ctx.project, nil
	}
	return ctx.config, nil
}

func (c *parseCtx) startElement(t xml.StartElement, offset int64) error {
	name := t.Name.Local
	c.stack = append(c.stack, name)
	line := c.lineOf(offset)

	if c.ignoreDepth > 0 {
		c.ignoreDepth++
		return nil
	}

	spec, ok := c.elements[name]
	if !ok {
		if c.failOnUnhandled {
			return c.errorf(line, "unknown element '%s'", name)
		}
		c.ignoreDepth = 1
		return nil
	}

	if spec.parentTag != "" {
		if c.parentTag() != spec.parentTag {
			return c.errorf(line, "element '%s' defined outside '%s' element", name, spec.parentTag)
		}
	} else if c.parentTag() != "" {
		return c.errorf(line, "element '%s' must be defined at the root of the document", name)
	}

	attrs := map[string]string{}
	for _, a := range t.Attr {
		attrs[a.Name.Local] = a.Value
	}
	resolved, badVar, ok := resolveEnvVars(attrs)
	if !ok {
		return c.errorf(line, "environment variable '%s' in project file not found in environment", badVar)
	}
	attrs = resolved

	if err := spec.checkAttrs(attrs, c.failOnUnhandled); err != nil {
		return c.errorf(line, "%s", err.Error())
	}
	if spec.start == nil {
		return nil
	}
	if err := spec.start(c, attrs); err != nil {
		if pe, ok := err.(*pmerrors.Error); ok {
			return pe.WithLocation(c.filename, line)
		}
		return c.errorf(line, "%s", err.Error())
	}
	return nil
}

func (c *parseCtx) endElement(name string) error {
	if len(c.stack) > 0 {
		c.stack = c.stack[:len(c.stack)-1]
	}
	if c.ignoreDepth > 0 {
		c.ignoreDepth--
		return nil
	}
	spec, ok := c.elements[name]
	if !ok || spec.end == nil {
		return nil
	}
	if err := spec.end(c); err != nil {
		return err
	}
	return nil
}

type grammar struct {
	namespace       string
	failOnUnhandled bool
	elements        map[string]elementSpec
}

// ---- Project grammar --------------------------------------------------

const (
	tagProject    = "project"
	tagRemote     = "remote"
	tagCredential = "credentials"
	tagDependency = "dependency"
	tagPackage    = "package"
	tagLabel      = "label"
	tagSource     = "source"
	tagPlatform   = "platform"
	tagCache      = "cache"
	tagConfig     = "config"
	tagReporting  = "reporting"
)

func projectGrammar(namespace string) *grammar {
	return &grammar{
		namespace:       namespace,
		failOnUnhandled: true,
		elements: map[string]elementSpec{
			tagProject: {
				tag:      tagProject,
				required: []string{"toolsVersion"},
				optional: []string{"remotes"},
				start:    startProject,
				end:      endProject,
			},
			tagPlatform: {
				tag:       tagPlatform,
				optional:  []string{"name", "inherit"},
				parentTag: tagProject,
				start:     startPlatform,
				end:       endPlatform,
			},
			tagRemote: {
				tag:       tagRemote,
				required:  []string{"name", "type"},
				optional:  []string{"packageLocation"},
				parentTag: tagProject,
				start:     startRemote,
				end:       endRemote,
			},
			tagCredential: {
				tag:       tagCredential,
				required:  []string{"id", "key"},
				optional:  []string{"errorUrl"},
				parentTag: tagRemote,
				start:     startCredentials,
			},
			tagDependency: {
				tag:       tagDependency,
				required:  []string{"name"},
				optional:  []string{"linkPath", "tags", "copyPath"},
				parentTag: tagProject,
				start:     startDependency,
			},
			tagPackage: {
				tag:       tagPackage,
				required:  []string{"name", "version"},
				optional:  []string{"remotes", "platforms"},
				parentTag: tagDependency,
				start:     startPackage,
			},
			tagLabel: {
				tag:       tagLabel,
				required:  []string{"name"},
				optional:  []string{"remotes", "platforms", "cacheExpiration"},
				parentTag: tagDependency,
				start:     startLabel,
			},
			tagSource: {
				tag:       tagSource,
				required:  []string{"path"},
				optional:  []string{"platforms"},
				parentTag: tagDependency,
				start:     startSource,
			},
		},
	}
}

func startProject(c *parseCtx, attrs map[string]string) error {
	if c.project != nil {
		return fmt.Errorf("new 'project' element cannot be defined when one has already been defined")
	}
	p := newProject()
	c.project = p
	p.ToolsVersion = attrs["toolsVersion"]
	if version.IsFileVersionNewer(p.ToolsVersion, version.SupportedToolsVersion) {
		// matches the original's logged warning rather than a hard failure:
		// "parsing may produce unexpected results" is advisory.
	}
	if raw, ok := attrs["remotes"]; ok {
		p.Remotes = qualify(c.namespace, strings.Fields(raw))
	}
	return nil
}

func endProject(c *parseCtx) error {
	for name := range c.project.RemotesReferenced {
		if _, ok := c.project.RemotesMap[name]; !ok {
			_, tail := splitNamespaced(name)
			return fmt.Errorf("remote named '%s' is listed in attribute 'remotes' but not defined", tail)
		}
	}
	return nil
}

func startPlatform(c *parseCtx, attrs map[string]string) error {
	name, ok := attrs["name"]
	if !ok {
		return fmt.Errorf("'platform' element must specify name attribute")
	}
	if c.project.HasPlatform(name) {
		return fmt.Errorf("platform %s already defined", name)
	}
	c.currentPlatform = &Platform{Name: name, Inherit: attrs["inherit"]}
	return nil
}

func endPlatform(c *parseCtx) error {
	c.project.AddPlatform(c.currentPlatform)
	c.currentPlatform = nil
	return nil
}

var supportedRemoteTypes = []string{"gtl", "s3", "http", "https", "azure", "swift", "gcs"}

func startRemote(c *parseCtx, attrs map[string]string) error {
	name := qualifyOne(c.namespace, attrs["name"])
	remoteType := attrs["type"]
	if !containsString(supportedRemoteTypes, remoteType) {
		return fmt.Errorf("attribute 'type' needs to contain one of the following: %s", strings.Join(supportedRemoteTypes, " "))
	}
	r := &Remote{Name: name, Type: remoteType}
	if remoteType != "gtl" {
		loc, ok := attrs["packageLocation"]
		if !ok {
			return fmt.Errorf("attribute 'packageLocation' is missing but required for remote type '%s'", remoteType)
		}
		r.PackageLocation = loc
	}
	c.currentRemote = r
	if c.project != nil {
		c.project.AddRemote(r)
	} else if c.config != nil {
		c.config.AddRemote(r)
	}
	return nil
}

func endRemote(c *parseCtx) error {
	c.currentRemote = nil
	return nil
}

func startCredentials(c *parseCtx, attrs map[string]string) error {
	c.currentRemote.CredentialID = attrs["id"]
	c.currentRemote.CredentialKey = attrs["key"]
	c.currentRemote.ErrorURL = attrs["errorUrl"]
	return nil
}

var validShellVarName = func(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		b := s[i]
		if !(b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')) {
			return false
		}
	}
	return true
}

func startDependency(c *parseCtx, attrs map[string]string) error {
	name := attrs["name"]
	if !validShellVarName(name) {
		return fmt.Errorf("value for attribute 'name' on element 'dependency' must be a valid Unix shell variable name (alphanumeric and underscore)")
	}
	dep := &Dependency{Name: name}
	c.currentDependency = dep
	if err := c.project.AddDependency(dep); err != nil {
		return err
	}
	if raw, ok := attrs["linkPath"]; ok {
		dep.LinkPath = c.resolvePath(raw)
	}
	if raw, ok := attrs["copyPath"]; ok {
		dep.CopyPath = c.resolvePath(raw)
	}
	if raw, ok := attrs["tags"]; ok {
		dep.Tags = strings.Fields(raw)
	}
	return nil
}

func startPackage(c *parseCtx, attrs map[string]string) error {
	pkg := &Package{Name: attrs["name"], Version: attrs["version"]}
	c.currentDependency.Children = append(c.currentDependency.Children, pkg)
	if raw, ok := attrs["platforms"]; ok {
		pkg.Platforms = strings.Fields(raw)
	}
	if raw, ok := attrs["remotes"]; ok {
		pkg.Remotes = qualify(c.namespace, strings.Fields(raw))
	} else {
		pkg.Remotes = c.project.Remotes
	}
	return nil
}

func startLabel(c *parseCtx, attrs map[string]string) error {
	l := &Label{Name: attrs["name"], CacheExpiration: 300}
	c.currentDependency.Children = append(c.currentDependency.Children, l)
	if raw, ok := attrs["platforms"]; ok {
		l.Platforms = strings.Fields(raw)
	}
	if raw, ok := attrs["remotes"]; ok {
		l.Remotes = qualify(c.namespace, strings.Fields(raw))
	} else {
		l.Remotes = c.project.Remotes
	}
	if raw, ok := attrs["cacheExpiration"]; ok {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			l.CacheExpiration = n
		}
	}
	return nil
}

func startSource(c *parseCtx, attrs map[string]string) error {
	path := c.resolvePath(attrs["path"])
	s := &Source{Path: path}
	c.currentDependency.Children = append(c.currentDependency.Children, s)
	if raw, ok := attrs["platforms"]; ok {
		s.Platforms = strings.Fields(raw)
	}
	return nil
}

// ---- Config grammar -----------------------------------------------------

func configGrammar(namespace string) *grammar {
	return &grammar{
		namespace:       namespace,
		failOnUnhandled: false,
		elements: map[string]elementSpec{
			tagConfig: {
				tag:      tagConfig,
				optional: []string{"remotes"},
				start:    startConfig,
				end:      endConfig,
			},
			tagRemote: {
				tag:       tagRemote,
				required:  []string{"name", "type"},
				optional:  []string{"packageLocation"},
				parentTag: tagConfig,
				start:     startRemote,
				end:       endRemote,
			},
			tagCredential: {
				tag:       tagCredential,
				required:  []string{"id", "key"},
				optional:  []string{"errorUrl"},
				parentTag: tagRemote,
				start:     startCredentials,
			},
			tagCache: {
				tag:       tagCache,
				optional:  []string{"removePreviousPackageOnLabelUpdate"},
				parentTag: tagConfig,
				start:     startCache,
			},
			tagReporting: {
				tag:       tagReporting,
				optional:  []string{"bugsnagApiKey", "newRelicLicenseKey", "logstashAddr"},
				parentTag: tagConfig,
				start:     startReporting,
			},
		},
	}
}

func startConfig(c *parseCtx, attrs map[string]string) error {
	if c.config != nil {
		return fmt.Errorf("new 'config' element cannot be defined when one has already been defined")
	}
	cfg := newConfig()
	c.config = cfg
	if raw, ok := attrs["remotes"]; ok {
		cfg.Remotes = qualify(c.namespace, strings.Fields(raw))
	}
	return nil
}

func endConfig(c *parseCtx) error {
	for _, name := range c.config.Remotes {
		if _, ok := c.config.RemotesMap[name]; !ok {
			_, tail := splitNamespaced(name)
			return fmt.Errorf("remote named '%s' is listed in attribute 'remotes' but not defined", tail)
		}
	}
	return nil
}

func startCache(c *parseCtx, attrs map[string]string) error {
	if c.config.Cache != nil {
		return fmt.Errorf("new 'cache' element cannot be defined when one has already been defined")
	}
	cache := &Cache{}
	c.config.Cache = cache
	if v, ok := attrs["removePreviousPackageOnLabelUpdate"]; ok {
		b := v == "true"
		cache.RemovePreviousPackageOnLabelUpdate = &b
	}
	return nil
}

func startReporting(c *parseCtx, attrs map[string]string) error {
	if c.config.Reporting != nil {
		return fmt.Errorf("new 'reporting' element cannot be defined when one has already been defined")
	}
	c.config.Reporting = &Reporting{
		BugsnagAPIKey:      attrs["bugsnagApiKey"],
		NewRelicLicenseKey: attrs["newRelicLicenseKey"],
		LogstashAddr:       attrs["logstashAddr"],
	}
	return nil
}

// ---- helpers --------------------------------------------------------

func qualify(namespace string, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = qualifyOne(namespace, n)
	}
	return out
}

func qualifyOne(namespace, name string) string { return namespace + ":" + name }

func splitNamespaced(qualified string) (string, string) {
	parts := strings.SplitN(qualified, ":", 2)
	if len(parts) != 2 {
		return "", qualified
	}
	return parts[0], parts[1]
}

// ParseProject parses a project (dependency-set) manifest, equivalent to
// ProjectParser().parse_file/parse_data.
func ParseProject(r io.Reader, namespace, filename string) (*Project, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	root, err := runParse(data, filename, projectGrammar(namespace))
	if err != nil {
		return nil, err
	}
	return root.(*Project), nil
}

// ParseConfig parses a config file, equivalent to ConfigParser(namespace).parse_file/parse_data.
func ParseConfig(r io.Reader, namespace, filename string) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	root, err := runParse(data, filename, configGrammar(namespace))
	if err != nil {
		return nil, err
	}
	return root.(*Config), nil
}
