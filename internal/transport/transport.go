// Package transport implements the pluggable remote backends packman talks
// to: http(s), s3, azure, swift, gcs and gtl. Ported from basetransport.py
// and the concrete transport/*.py modules, restructured around the
// registry/storage/driver factory idiom (register a constructor by name,
// dispatch on <remote type="..."> the way storage drivers dispatch on a
// configured driver name).
package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/packman-project/packman/internal/pmerrors"
	"github.com/packman-project/packman/internal/schema"
)

// Backend is the capability set every concrete transport exposes. Locate
// and Download alone satisfy internal/resolver.LabelFetcher, so a Backend
// can be handed directly to resolver.DereferenceLabel.
type Backend interface {
	// Locate reports whether fileName exists on the remote, and the
	// opaque URL/key Download needs to fetch it, porting
	// Transport.is_file_found.
	Locate(ctx context.Context, remote *schema.Remote, fileName string) (location string, found bool, err error)

	// Download fetches the object at location (as returned by Locate) to
	// destPath, porting Transport.download_file.
	Download(ctx context.Context, remote *schema.Remote, location, destPath string) error

	// Upload publishes sourcePath under targetName, returning the stored
	// name the cascade should be recorded against, porting
	// Transport.upload_file.
	Upload(ctx context.Context, remote *schema.Remote, sourcePath, targetName string, makePublic bool) (string, error)

	// ListStartingWith lists object names with the given prefix, porting
	// Transport.list_files_starting_with.
	ListStartingWith(ctx context.Context, remote *schema.Remote, prefix string) ([]string, error)
}

// Factory constructs a Backend for a *schema.Remote whose Type matches the
// name it was registered under.
type Factory func(remote *schema.Remote) (Backend, error)

var factories = map[string]Factory{}

// Register makes a transport backend available by name. Called from each
// backend file's init, mirroring factory.Register in the teacher's storage
// driver package.
func Register(name string, f Factory) {
	factories[strings.ToLower(name)] = f
}

// New constructs the Backend named by remote.Type, porting
// transport.create_transport's type_name dispatch.
func New(remote *schema.Remote) (Backend, error) {
	f, ok := factories[strings.ToLower(remote.Type)]
	if !ok {
		return nil, pmerrors.New(pmerrors.KindRemoteUndefined, "transport type %q is not supported", remote.Type)
	}
	return f(remote)
}

// PackagePath resolves the candidate remote filenames for a package,
// probing 7z first and falling back to zip, porting
// Transport.get_package_path.
func PackagePath(ctx context.Context, backend Backend, remote *schema.Remote, base, version string) (string, bool, error) {
	stem := fmt.Sprintf("%s@%s", base, version)
	for _, ext := range []string{".7z", ".zip"} {
		candidate := stem + ext
		location, found, err := backend.Locate(ctx, remote, candidate)
		if err != nil {
			return "", false, err
		}
		if found {
			return location, true, nil
		}
	}
	return "", false, nil
}

// decodeExtra merges remote.Extra's strings into a destination struct via
// mapstructure, so per-transport extra attributes (<remote s3bucket="..."/>
// style) can be typed without each backend hand-rolling string parsing.
func decodeExtra(extra map[string]string, dest interface{}) error {
	if len(extra) == 0 {
		return nil
	}
	dec, err := newWeakDecoder(dest)
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindParseError, err, "building extra-parameter decoder")
	}
	if err := dec.Decode(extra); err != nil {
		return pmerrors.Wrap(pmerrors.KindParseError, err, "decoding remote extra parameters")
	}
	return nil
}
