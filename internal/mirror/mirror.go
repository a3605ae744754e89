// Package mirror implements the mirror operation (spec.md §4.8, ported from
// mirror.py): walk a project's resolved dependencies and copy every package
// missing from a target remote over from wherever it can be found among the
// source remotes, asking for confirmation before each copy unless running
// non-interactively.
package mirror

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/packman-project/packman/internal/pmerrors"
	"github.com/packman-project/packman/internal/resolver"
	"github.com/packman-project/packman/internal/schema"
	"github.com/packman-project/packman/internal/transport"
)

// Transports is the subset of transport.CachingFactory the pipeline needs.
type Transports interface {
	Get(remote *schema.Remote) (transport.Backend, error)
}

// Pipeline mirrors resolved dependencies to a single target remote.
type Pipeline struct {
	Transports Transports

	TargetRemote *schema.Remote

	// SourceRemotesByName is the merged config+project remote registry a
	// package's own child.Remotes (and an unlabeled dependency's fallback
	// cascade) are resolved against, keyed the same namespace-qualified way
	// internal/fulfill's RemotesByName is.
	SourceRemotesByName map[string]*schema.Remote
	// SourceRemoteNames is the default cascade appended after a label or
	// package's own Remotes, porting source_remote_names.
	SourceRemoteNames []string

	// AutoYes skips the copy confirmation prompt, porting auto_yes.
	AutoYes bool
	// Confirm asks prompt and reports whether the user answered yes.
	// Defaults to reading a line from os.Stdin when nil.
	Confirm func(prompt string) bool

	// Out receives the pipeline's progress messages; defaults to os.Stdout.
	Out io.Writer

	// LabelsDir is the local label cache directory passed to
	// resolver.DereferenceLabel; defaults to a "packman-labels" folder under
	// os.TempDir() when unset.
	LabelsDir string

	TempDir string
}

func (p *Pipeline) labelsDir() string {
	if p.LabelsDir != "" {
		return p.LabelsDir
	}
	return filepath.Join(os.TempDir(), "packman-labels")
}

func (p *Pipeline) out() io.Writer {
	if p.Out != nil {
		return p.Out
	}
	return os.Stdout
}

func (p *Pipeline) confirm(prompt string) bool {
	if p.AutoYes {
		return true
	}
	if p.Confirm != nil {
		return p.Confirm(prompt)
	}
	fmt.Fprintf(p.out(), "%s [Y/n]: ", prompt)
	var line string
	fmt.Fscanln(os.Stdin, &line)
	return !strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "n")
}

func (p *Pipeline) resolveRemote(name string) (*schema.Remote, error) {
	if remote, ok := p.SourceRemotesByName[name]; ok {
		return remote, nil
	}
	var matched *schema.Remote
	var matchedName string
	for qualified, remote := range p.SourceRemotesByName {
		_, tail, ok := strings.Cut(qualified, ":")
		if !ok || tail != name {
			continue
		}
		if matched != nil {
			return nil, pmerrors.New(pmerrors.KindRemoteAmbiguous, "remote %q matches both %q and %q; use the fully qualified name to disambiguate", name, matchedName, qualified)
		}
		matched = remote
		matchedName = qualified
	}
	if matched == nil {
		return nil, pmerrors.New(pmerrors.KindRemoteUndefined, "no configuration found for remote named %q", name)
	}
	return matched, nil
}

// Mirror dereferences any labels in deps against the source cascade, then
// copies every package dependency's archive to TargetRemote when it isn't
// already there, porting mirror_dependencies. Source dependencies are
// reported and skipped, porting the isinstance(child, Source) branch.
func (p *Pipeline) Mirror(ctx context.Context, deps map[string]*schema.Dependency) error {
	if err := p.resolveLabels(ctx, deps); err != nil {
		return err
	}

	targetBackend, err := p.Transports.Get(p.TargetRemote)
	if err != nil {
		return err
	}

	stagingDir, err := os.MkdirTemp(p.tempDir(), "packman-mirror-")
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "creating staging directory")
	}
	defer os.RemoveAll(stagingDir)

	for _, dep := range deps {
		if len(dep.Children) != 1 {
			continue
		}
		if src, ok := dep.Children[0].(*schema.Source); ok {
			fmt.Fprintf(p.out(), "Dependency %q is fulfilled by source at %q\n", dep.Name, src.Path)
			continue
		}
		pkg, ok := dep.Children[0].(*schema.Package)
		if !ok {
			continue
		}
		if err := p.mirrorPackage(ctx, targetBackend, pkg, stagingDir); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) tempDir() string {
	if p.TempDir != "" {
		return p.TempDir
	}
	return os.TempDir()
}

func (p *Pipeline) mirrorPackage(ctx context.Context, targetBackend transport.Backend, pkg *schema.Package, stagingDir string) error {
	_, found, err := transport.PackagePath(ctx, targetBackend, p.TargetRemote, pkg.Name, pkg.Version)
	if err != nil {
		return err
	}
	if found {
		return nil
	}

	fmt.Fprintf(p.out(), "Package %q at version %q is missing from target remote\n", pkg.Name, pkg.Version)
	if !p.confirm(fmt.Sprintf("Do you want to copy package to remote %q", p.TargetRemote.Name)) {
		return nil
	}
	fmt.Fprintln(p.out(), "Mirroring ...")

	remoteNames := append(append([]string{}, pkg.Remotes...), p.SourceRemoteNames...)
	if len(remoteNames) == 0 {
		return pmerrors.New(pmerrors.KindNoRemoteConfigured, "no remote configured for package %q at version %q", pkg.Name, pkg.Version)
	}

	for _, name := range remoteNames {
		remote, err := p.resolveRemote(name)
		if err != nil {
			return err
		}
		backend, err := p.Transports.Get(remote)
		if err != nil {
			return err
		}
		location, found, err := transport.PackagePath(ctx, backend, remote, pkg.Name, pkg.Version)
		if err != nil {
			return err
		}
		if !found {
			continue
		}

		localPath := filepath.Join(stagingDir, filepath.Base(location))
		if err := backend.Download(ctx, remote, location, localPath); err != nil {
			return err
		}
		if _, err := targetBackend.Upload(ctx, p.TargetRemote, localPath, filepath.Base(location), false); err != nil {
			return err
		}
		return nil
	}

	return pmerrors.New(pmerrors.KindPackageNotFound, "package %q at version %q not found on any configured source remote", pkg.Name, pkg.Version).WithRemotes(remoteNames)
}

// resolveLabels dereferences every Label child against the source cascade,
// porting process_labels_in_dependencies.
func (p *Pipeline) resolveLabels(ctx context.Context, deps map[string]*schema.Dependency) error {
	for _, dep := range deps {
		if len(dep.Children) != 1 {
			continue
		}
		label, ok := dep.Children[0].(*schema.Label)
		if !ok {
			continue
		}

		remoteNames := append(append([]string{}, label.Remotes...), p.SourceRemoteNames...)
		remotes := make([]*schema.Remote, 0, len(remoteNames))
		for _, name := range remoteNames {
			remote, err := p.resolveRemote(name)
			if err != nil {
				return err
			}
			remotes = append(remotes, remote)
		}

		base, version, err := resolver.DereferenceLabel(ctx, label, remotes, labelFetcher{p}, resolver.LabelOptions{LabelsDir: p.labelsDir()})
		if err != nil {
			return err
		}
		dep.Children[0] = &schema.Package{Name: base, Version: version, Remotes: label.Remotes}
	}
	return nil
}

// labelFetcher adapts Pipeline.Transports to resolver.LabelFetcher.
type labelFetcher struct{ p *Pipeline }

func (f labelFetcher) Locate(ctx context.Context, remote *schema.Remote, fileName string) (string, bool, error) {
	backend, err := f.p.Transports.Get(remote)
	if err != nil {
		return "", false, err
	}
	return backend.Locate(ctx, remote, fileName)
}

func (f labelFetcher) Download(ctx context.Context, remote *schema.Remote, location, destPath string) error {
	backend, err := f.p.Transports.Get(remote)
	if err != nil {
		return err
	}
	return backend.Download(ctx, remote, location, destPath)
}
