// Package manifestedit implements idempotent, in-place edits to a project
// manifest file (spec.md §4.8 ManifestEditor): create, add/remove
// <dependency>, and add <package>. Ported from project.py's direct
// xml.etree.ElementTree manipulation, rebuilt on a small generic element
// tree over Go's stdlib encoding/xml (the example pack has no third-party
// XML library; every XML reader/writer anywhere in it, including
// internal/schema's own streaming parser, is stdlib encoding/xml).
package manifestedit

import (
	"bytes"
	"encoding/xml"
	"os"
	"sort"
	"strings"

	"github.com/packman-project/packman/internal/pmerrors"
	"github.com/packman-project/packman/internal/version"
)

// Element is a generic, order-preserving XML node: everything a document
// contains that ManifestEditor doesn't itself understand (remotes,
// platforms, sibling dependencies) is carried through a Load/Save cycle
// unchanged, the same way ElementTree round-trips whatever it parsed.
type Element struct {
	XMLName  xml.Name
	Attrs    []xml.Attr
	Children []*Element
}

// UnmarshalXML recursively captures start, its attributes, and every child
// element until the matching end tag.
func (e *Element) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	e.XMLName = start.Name
	e.Attrs = start.Attr
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child := &Element{}
			if err := child.UnmarshalXML(d, t); err != nil {
				return err
			}
			e.Children = append(e.Children, child)
		case xml.EndElement:
			return nil
		}
	}
}

// MarshalXML re-emits e and its subtree, ignoring the start token the
// encoder offers (an Element always knows its own name and attributes).
func (e *Element) MarshalXML(enc *xml.Encoder, _ xml.StartElement) error {
	start := xml.StartElement{Name: e.XMLName, Attr: e.Attrs}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	for _, child := range e.Children {
		if err := enc.Encode(child); err != nil {
			return err
		}
	}
	return enc.EncodeToken(xml.EndElement{Name: e.XMLName})
}

// Attr returns the named attribute's value, porting attrib[name] lookups.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr assigns name=value, replacing an existing attribute in place to
// preserve its original position.
func (e *Element) SetAttr(name, value string) {
	for i, a := range e.Attrs {
		if a.Name.Local == name {
			e.Attrs[i].Value = value
			return
		}
	}
	e.Attrs = append(e.Attrs, xml.Attr{Name: xml.Name{Local: name}, Value: value})
}

func (e *Element) removeChild(target *Element) {
	out := e.Children[:0]
	for _, c := range e.Children {
		if c != target {
			out = append(out, c)
		}
	}
	e.Children = out
}

// Document is a parsed project manifest ready for editing and re-saving.
type Document struct {
	Path string
	Root *Element
}

// Create writes a brand-new, empty project manifest, porting
// project.create_project. It refuses to overwrite an existing file unless
// force is set.
func Create(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return pmerrors.New(pmerrors.KindFileExists, "project file %q already exists; use the force option to overwrite", path)
	}
	root := &Element{XMLName: xml.Name{Local: "project"}}
	root.SetAttr("toolsVersion", version.SupportedToolsVersion)
	return (&Document{Path: path, Root: root}).Save()
}

// Load parses path into an editable Document, porting
// project._get_project_element_from_file (including the toolsVersion
// bump-forward when the file predates the running packman).
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindTransportIO, err, "reading project file %q", path)
	}
	root := &Element{}
	if err := xml.Unmarshal(data, root); err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindParseError, err, "parsing project file %q", path)
	}
	if root.XMLName.Local != "project" {
		return nil, pmerrors.New(pmerrors.KindParseError, "project file %q is malformed: missing <project> root", path)
	}
	if fileVersion, ok := root.Attr("toolsVersion"); ok {
		if !version.IsFileVersionNewer(fileVersion, version.SupportedToolsVersion) {
			root.SetAttr("toolsVersion", version.SupportedToolsVersion)
		}
	}
	return &Document{Path: path, Root: root}, nil
}

// Save serializes the document back to its Path, porting
// project._write_element_to_file.
func (doc *Document) Save() error {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(doc.Root); err != nil {
		return pmerrors.Wrap(pmerrors.KindParseError, err, "serializing project file %q", doc.Path)
	}
	if err := os.WriteFile(doc.Path, buf.Bytes(), 0o644); err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "writing project file %q", doc.Path)
	}
	return nil
}

func (doc *Document) dependencyByName(name string) *Element {
	for _, child := range doc.Root.Children {
		if child.XMLName.Local != "dependency" {
			continue
		}
		if n, ok := child.Attr("name"); ok && n == name {
			return child
		}
	}
	return nil
}

// AddDependency adds an empty <dependency name="..."/> node, replacing an
// existing one of the same name when force is set, porting
// project.add_dependency.
func (doc *Document) AddDependency(name, linkPath string, tags []string, force bool) error {
	if existing := doc.dependencyByName(name); existing != nil {
		if !force {
			return pmerrors.New(pmerrors.KindFileExists, "dependency %q already exists; use the force option to overwrite", name)
		}
		doc.Root.removeChild(existing)
	}

	dep := &Element{XMLName: xml.Name{Local: "dependency"}}
	dep.SetAttr("name", name)
	if linkPath != "" {
		dep.SetAttr("linkPath", linkPath)
	}
	if len(tags) > 0 {
		dep.SetAttr("tags", strings.Join(tags, " "))
	}
	doc.Root.Children = append(doc.Root.Children, dep)
	return doc.Save()
}

// RemoveDependency deletes the named <dependency>, a no-op if it isn't
// present, porting project.remove_dependency.
func (doc *Document) RemoveDependency(name string) error {
	dep := doc.dependencyByName(name)
	if dep == nil {
		return nil
	}
	doc.Root.removeChild(dep)
	return doc.Save()
}

// AddPackage adds a <package name="..." version="..."/> under the named
// dependency, matching an existing package by platform-set equality (not
// name) the way add_package does: force=true replaces it in place,
// otherwise the call fails.
func (doc *Document) AddPackage(depName, packageName, packageVersion string, platforms []string, force bool) error {
	dep := doc.dependencyByName(depName)
	if dep == nil {
		return pmerrors.New(pmerrors.KindParseError, "dependency %q not found", depName)
	}

	var existing *Element
	for _, child := range dep.Children {
		if child.XMLName.Local != "package" {
			continue
		}
		childPlatforms, hasPlatforms := child.Attr("platforms")
		if !hasPlatforms {
			existing = child
			continue
		}
		if len(platforms) > 0 && samePlatformSet(strings.Fields(childPlatforms), platforms) {
			existing = child
		}
	}

	if existing != nil {
		if !force {
			return pmerrors.New(pmerrors.KindFileExists, "package %q already exists on dependency %q; use the force option to overwrite", packageName, depName)
		}
		dep.removeChild(existing)
	}

	pkg := &Element{XMLName: xml.Name{Local: "package"}}
	pkg.SetAttr("name", packageName)
	pkg.SetAttr("version", packageVersion)
	if len(platforms) > 0 {
		pkg.SetAttr("platforms", strings.Join(platforms, " "))
	}
	dep.Children = append(dep.Children, pkg)
	return doc.Save()
}

func samePlatformSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := append([]string{}, a...), append([]string{}, b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
