package transport

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ncw/swift"

	"github.com/packman-project/packman/internal/pmerrors"
	"github.com/packman-project/packman/internal/progress"
	"github.com/packman-project/packman/internal/schema"
)

func init() {
	Register("swift", newSwiftBackend)
}

// swiftParams holds remote.Extra keys specific to the swift transport.
type swiftParams struct {
	AuthURL   string `mapstructure:"authurl"`
	Tenant    string `mapstructure:"tenant"`
	Container string `mapstructure:"container"`
}

// swiftBackend stores packages in an OpenStack Swift container. Not present
// in the original tool; wired in here the way
// registry/storage/driver/swift wraps ncw/swift, since SPEC_FULL names
// swift among the domain transports the rest of the pack demonstrates.
type swiftBackend struct {
	conn      *swift.Connection
	container string
}

func newSwiftBackend(remote *schema.Remote) (Backend, error) {
	var params swiftParams
	if err := decodeExtra(remote.Extra, &params); err != nil {
		return nil, err
	}
	if params.Container == "" {
		return nil, pmerrors.New(pmerrors.KindRemoteUndefined, "container must be specified via extra attributes for the swift transport (remote %q)", remote.Name)
	}
	authURL := params.AuthURL
	if authURL == "" {
		authURL = remote.PackageLocation
	}

	conn := &swift.Connection{
		UserName: remote.CredentialID,
		ApiKey:   remote.CredentialKey,
		AuthUrl:  authURL,
		Tenant:   params.Tenant,
	}
	if err := conn.Authenticate(); err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindTransportIO, err, "authenticating with swift for remote %q", remote.Name)
	}
	return &swiftBackend{conn: conn, container: params.Container}, nil
}

func (b *swiftBackend) Locate(ctx context.Context, remote *schema.Remote, fileName string) (string, bool, error) {
	_, _, err := b.conn.Object(b.container, fileName)
	if err == nil {
		return fileName, true, nil
	}
	if err == swift.ObjectNotFound {
		return "", false, nil
	}
	return "", false, pmerrors.Wrap(pmerrors.KindTransportIO, err, "checking for object %q", fileName)
}

func (b *swiftBackend) Download(ctx context.Context, remote *schema.Remote, location, destPath string) error {
	obj, _, err := b.conn.Object(b.container, location)
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "statting object %q", location)
	}

	reader, _, err := b.conn.ObjectOpen(b.container, location, true, nil)
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "opening object %q", location)
	}
	defer reader.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "creating %q", destPath)
	}
	defer out.Close()

	sink := progress.NewSink("Downloading from Swift: "+location, obj.Bytes)
	defer sink.Close()

	buf := make([]byte, 8*1024)
	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return pmerrors.Wrap(pmerrors.KindTransportIO, writeErr, "writing %q", destPath)
			}
			sink.Write(progress.Sample{BytesAmount: int64(n)})
			progress.RecordDownloadBytes(int64(n))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return pmerrors.Wrap(pmerrors.KindTransportIO, readErr, "reading object %q", location)
		}
	}
	return nil
}

func (b *swiftBackend) Upload(ctx context.Context, remote *schema.Remote, sourcePath, targetName string, makePublic bool) (string, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return "", pmerrors.Wrap(pmerrors.KindTransportIO, err, "opening %q", sourcePath)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", pmerrors.Wrap(pmerrors.KindTransportIO, err, "statting %q", sourcePath)
	}

	sink := progress.NewSink("Uploading to Swift: "+targetName, info.Size())
	defer sink.Close()

	if _, err := b.conn.ObjectPut(b.container, targetName, &progressReader{r: f, sink: sink}, false, "", "", nil); err != nil {
		return "", pmerrors.Wrap(pmerrors.KindTransportIO, err, "uploading object %q", targetName)
	}
	return fmt.Sprintf("swift:%s:%s", b.container, targetName), nil
}

func (b *swiftBackend) ListStartingWith(ctx context.Context, remote *schema.Remote, prefix string) ([]string, error) {
	names, err := b.conn.ObjectNamesAll(b.container, &swift.ObjectsOpts{Prefix: prefix})
	if err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindTransportIO, err, "listing container with prefix %q", prefix)
	}
	return names, nil
}
