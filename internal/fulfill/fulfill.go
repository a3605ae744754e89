// Package fulfill implements the FulfillmentEngine (spec.md §4.6): for each
// resolved dependency, check the cache, fall back to the remote cascade,
// materialize the result via a link or a copy, recurse into any nested
// manifest the installed package carries, and finally hand off to a
// postscript. Ported from packman.py's pull_dependencies/install_package_deps.
package fulfill

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/packman-project/packman/internal/cachestore"
	"github.com/packman-project/packman/internal/linkmgr"
	"github.com/packman-project/packman/internal/pmerrors"
	"github.com/packman-project/packman/internal/resolver"
	"github.com/packman-project/packman/internal/schema"
	"github.com/packman-project/packman/internal/transport"
)

// Transports is the subset of transport.CachingFactory the engine needs,
// narrowed to an interface so tests can substitute a fake factory.
type Transports interface {
	Get(remote *schema.Remote) (transport.Backend, error)
}

// Engine orchestrates a full pull: resolving each dependency against the
// cache and the remote cascade, materializing it, and recursing into any
// nested manifest the installed package carries.
type Engine struct {
	Store      *cachestore.Store
	Transports Transports

	// RemotesByName is the merged config+project remote registry, keyed by
	// its fully namespace-qualified name (e.g. "project:artifactory").
	RemotesByName map[string]*schema.Remote
	// Cascade is the ordered list of default remote names consulted after
	// a dependency's own child.Remotes, the result of config-file and
	// command-line remote-cascade merging (spec.md §6).
	Cascade []string

	// RemoveOnLabelUpdate mirrors the cache policy
	// removePreviousPackageOnLabelUpdate (spec.md §4.2).
	RemoveOnLabelUpdate bool
	LabelsDir           string

	// Locker, when set, guards a label's remote-cascade refetch against a
	// fleet of build machines sharing one PM_PACKAGES_ROOT racing the same
	// stale label at once. A contention optimization, never a correctness
	// requirement -- nil falls back to the plain atomic-rename protocol.
	Locker resolver.Locker

	// TempDir roots the process-private staging directory downloads land
	// in before CacheStore.Install promotes them; defaults to os.TempDir().
	TempDir string

	Runner Runner
}

// Result is what a completed pull returns: the env-sink-visible path map,
// keyed by dependency name, the way pull_dependencies returns path_map.
type Result struct {
	Paths map[string]string
}

func (e *Engine) tempDir() string {
	if e.TempDir != "" {
		return e.TempDir
	}
	return os.TempDir()
}

// Run fulfills every dependency in deps (already platform/tag-resolved by
// internal/resolver), recursing into nested manifests, then runs postscript
// if set. env receives every PM_* variable as it's produced; a nil env
// still gets process-environment side effects via os.Setenv.
func (e *Engine) Run(ctx context.Context, deps map[string]*schema.Dependency, platform string, env EnvSink, postscript string, postscriptArgs []string) (*Result, error) {
	if env == nil {
		env = NopEnvSink{}
	}
	result := &Result{Paths: map[string]string{}}

	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	// schema.Project.Dependencies is a map and doesn't preserve manifest
	// document order (see DESIGN.md); sorting by name gives a stable,
	// reproducible substitute for the "insertion order" spec.md asks for.
	sort.Strings(names)

	stagingRoot, err := os.MkdirTemp(e.tempDir(), "packman-pull-")
	if err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindTransportIO, err, "creating staging directory")
	}
	defer os.RemoveAll(stagingRoot)

	var allPaths strings.Builder
	for _, name := range names {
		dep := deps[name]
		installPath, err := e.fulfillOne(ctx, dep, stagingRoot, env)
		if err != nil {
			return nil, err
		}

		unixPath := filepath.ToSlash(installPath)
		allPaths.WriteString(unixPath)
		allPaths.WriteByte(';')

		visiblePath, err := e.materialize(dep, installPath, unixPath)
		if err != nil {
			return nil, err
		}
		result.Paths[dep.Name] = visiblePath

		if err := e.recurse(ctx, installPath, platform, env); err != nil {
			return nil, err
		}
	}

	env.Set("PM_PATHS", allPaths.String())

	if postscript != "" {
		if err := e.runPostscript(ctx, postscript, postscriptArgs); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// fulfillOne resolves dep's single remaining child to an install path,
// fetching from the remote cascade on a cache miss, and emits its PM_*_PATH
// (and, for packages, PM_*_VERSION) variables.
func (e *Engine) fulfillOne(ctx context.Context, dep *schema.Dependency, stagingRoot string, env EnvSink) (string, error) {
	if len(dep.Children) != 1 {
		return "", pmerrors.New(pmerrors.KindParseError, "dependency %q has no resolved child", dep.Name)
	}

	switch child := dep.Children[0].(type) {
	case *schema.Source:
		env.Set("PM_"+dep.Name+"_PATH", filepath.ToSlash(child.Path))
		return child.Path, nil

	case *schema.Package:
		installPath, err := e.fulfillPackage(ctx, child, stagingRoot)
		if err != nil {
			return "", err
		}
		env.Set("PM_"+dep.Name+"_VERSION", child.Version)
		env.Set("PM_"+dep.Name+"_PATH", filepath.ToSlash(installPath))
		return installPath, nil

	default:
		return "", pmerrors.New(pmerrors.KindParseError, "dependency %q resolved to an unfetchable child; labels must be dereferenced before fulfillment", dep.Name)
	}
}

func (e *Engine) fulfillPackage(ctx context.Context, pkg *schema.Package, stagingRoot string) (string, error) {
	status, installPath := e.Store.Status(pkg.Name, pkg.Version)
	if status == cachestore.StatusCorrupt {
		if err := cachestore.Remove(installPath); err != nil {
			return "", err
		}
		status = cachestore.StatusMissing
	}
	if status == cachestore.StatusInstalled {
		return installPath, nil
	}

	remoteNames := append(append([]string{}, pkg.Remotes...), e.Cascade...)
	if len(remoteNames) == 0 {
		return "", pmerrors.New(pmerrors.KindNoRemoteConfigured, "no remote configured for package %q at version %q", pkg.Name, pkg.Version)
	}
	remotes, err := e.resolveRemotes(remoteNames)
	if err != nil {
		return "", err
	}

	for _, remote := range remotes {
		backend, err := e.Transports.Get(remote)
		if err != nil {
			return "", err
		}
		location, found, err := transport.PackagePath(ctx, backend, remote, pkg.Name, pkg.Version)
		if err != nil {
			return "", err
		}
		if !found {
			continue
		}

		ext := filepath.Ext(location)
		archivePath := filepath.Join(stagingRoot, pkg.Name+"@"+pkg.Version+ext)
		if err := backend.Download(ctx, remote, location, archivePath); err != nil {
			return "", err
		}
		if err := e.Store.Install(archivePath, installPath); err != nil {
			return "", err
		}
		return installPath, nil
	}

	return "", pmerrors.New(pmerrors.KindPackageNotFound, "package %q at version %q not found on any configured remote", pkg.Name, pkg.Version).WithRemotes(remoteNames)
}

// materialize applies dep's link/copy policy, porting the link_path/copy_path
// branch of pull_dependencies.
func (e *Engine) materialize(dep *schema.Dependency, installPath, unixInstallPath string) (string, error) {
	switch {
	case dep.LinkPath != "":
		if err := linkmgr.Create(dep.LinkPath, installPath); err != nil {
			return "", err
		}
		return dep.LinkPath, nil
	case dep.CopyPath != "":
		if err := cachestore.CopyIfVersionDiffers(installPath, dep.CopyPath); err != nil {
			return "", err
		}
		return dep.CopyPath, nil
	default:
		return unixInstallPath, nil
	}
}

// recurse looks for a nested deps.packman.xml inside the just-installed
// package and, if present, pulls it with the same platform and env sink,
// porting install_package_deps.
func (e *Engine) recurse(ctx context.Context, installPath, platform string, env EnvSink) error {
	nestedPath := filepath.Join(installPath, "deps.packman.xml")
	f, err := os.Open(nestedPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "opening nested manifest %q", nestedPath)
	}
	defer f.Close()

	project, err := schema.ParseProject(f, "", nestedPath)
	if err != nil {
		return err
	}
	deps, err := resolver.Resolve(project, platform, nil, nil)
	if err != nil {
		return err
	}
	_, err = e.Run(ctx, deps, platform, env, "", nil)
	return err
}
