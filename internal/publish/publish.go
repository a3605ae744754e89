// Package publish implements the PublishPipeline (spec.md §4.8): pack a
// folder into an archive and push it to one or more remotes, or push an
// already-built file directly. Ported from packman.py's
// push/push_to_remote/publish/publish_to_remote.
package publish

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/packman-project/packman/internal/archive"
	"github.com/packman-project/packman/internal/pmerrors"
	"github.com/packman-project/packman/internal/schema"
	"github.com/packman-project/packman/internal/transport"
)

// Transports is the subset of transport.CachingFactory the pipeline needs.
type Transports interface {
	Get(remote *schema.Remote) (transport.Backend, error)
}

// Pipeline packs and/or pushes packages to a remote cascade, mirroring
// internal/fulfill.Engine's remote-resolution shape.
type Pipeline struct {
	Transports    Transports
	RemotesByName map[string]*schema.Remote
}

// resolveRemote maps a bare-or-namespace-qualified remote name to its
// config, porting get_remote_config_from_name's disambiguation (also
// ported, independently, in internal/fulfill/cascade.go -- no shared
// "remote cascade" package exists in the module layout for either side to
// depend on, so each consumer carries its own copy of this small lookup).
func (p *Pipeline) resolveRemote(name string) (*schema.Remote, error) {
	if remote, ok := p.RemotesByName[name]; ok {
		return remote, nil
	}

	var matched *schema.Remote
	var matchedName string
	for qualified, remote := range p.RemotesByName {
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

func (p *Pipeline) resolveRemotes(names []string) ([]*schema.Remote, error) {
	if len(names) == 0 {
		return nil, pmerrors.New(pmerrors.KindNoRemoteConfigured, "no remotes configured for this push")
	}
	remotes := make([]*schema.Remote, 0, len(names))
	for _, name := range names {
		remote, err := p.resolveRemote(name)
		if err != nil {
			return nil, err
		}
		remotes = append(remotes, remote)
	}
	return remotes, nil
}

// Push uploads the file at path to every named remote, porting push/
// push_to_remote. remotePath, if set, namespaces the upload under a
// subfolder on the remote the way push_to_remote's remote_path does.
func (p *Pipeline) Push(ctx context.Context, path string, remoteNames []string, force, makePublic bool, remotePath string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return pmerrors.New(pmerrors.KindTransportIO, "file not found at path %q", path)
	}

	remotes, err := p.resolveRemotes(remoteNames)
	if err != nil {
		return err
	}
	for _, remote := range remotes {
		if err := p.pushToRemote(ctx, path, remote, force, makePublic, remotePath); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) pushToRemote(ctx context.Context, path string, remote *schema.Remote, force, makePublic bool, remotePath string) error {
	backend, err := p.Transports.Get(remote)
	if err != nil {
		return err
	}

	targetName := filepath.Base(path)
	if remotePath != "" {
		targetName = strings.TrimSuffix(remotePath, "/") + "/" + targetName
	}

	if !force {
		_, found, err := backend.Locate(ctx, remote, targetName)
		if err != nil {
			return pmerrors.Wrap(pmerrors.KindTransportIO, err, "querying remote %q for %q", remote.Name, targetName)
		}
		if found {
			return pmerrors.New(pmerrors.KindFileExists, "package %q already exists on remote %q; use the force option to overwrite", targetName, remote.Name).WithRemotes([]string{remote.Name})
		}
	}

	if _, err := backend.Upload(ctx, remote, path, targetName, makePublic); err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "uploading %q to remote %q", targetName, remote.Name)
	}
	return nil
}

// Publish packs inputFolder into a 7z archive and pushes it to every named
// remote, porting publish/publish_to_remote. The archive is always built in
// a process-private temp directory and discarded once every push completes.
// name, if empty, is derived as "<parent folder>@<folder>" the same way
// packager.create_package names an unspecified output.
func (p *Pipeline) Publish(ctx context.Context, inputFolder string, remoteNames []string, name string, force, makePublic bool) error {
	if _, err := os.Stat(inputFolder); err != nil {
		return pmerrors.New(pmerrors.KindTransportIO, "specified folder %q for publish was not found", inputFolder)
	}

	// Fail before packing if the remote cascade doesn't resolve -- no point
	// building the archive only to discover a typo in the remote name.
	remotes, err := p.resolveRemotes(remoteNames)
	if err != nil {
		return err
	}

	stagingDir, err := os.MkdirTemp("", "packman-publish-")
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "creating staging directory")
	}
	defer os.RemoveAll(stagingDir)

	archivePath, err := packArchive(inputFolder, stagingDir, name)
	if err != nil {
		return err
	}

	for _, remote := range remotes {
		if err := p.pushToRemote(ctx, archivePath, remote, force, makePublic, ""); err != nil {
			return err
		}
	}
	return nil
}

func packArchive(inputFolder, outDir, name string) (string, error) {
	base := name
	if base == "" {
		parent, version := filepath.Split(filepath.Clean(inputFolder))
		_, pkgName := filepath.Split(filepath.Clean(parent))
		base = pkgName + "@" + version
	}
	if !strings.HasSuffix(strings.ToLower(base), ".7z") {
		base += ".7z"
	}
	archivePath := filepath.Join(outDir, base)
	return archive.Pack(archive.Format7z, inputFolder, archivePath)
}
