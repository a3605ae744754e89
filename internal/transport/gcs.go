package transport

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/oauth2/google"
	storagev1 "google.golang.org/api/storage/v1"

	"github.com/packman-project/packman/internal/pmerrors"
	"github.com/packman-project/packman/internal/progress"
	"github.com/packman-project/packman/internal/schema"
)

func init() {
	Register("gcs", newGCSBackend)
}

// gcsBackend stores packages as objects in a Google Cloud Storage bucket
// named by remote.PackageLocation. Not present in the original tool; wired
// onto the generated storage/v1 client (paired with golang.org/x/oauth2,
// both already pulled in by the teacher's gcs driver) since SPEC_FULL names
// gcs among the domain transports to exercise.
type gcsBackend struct {
	svc    *storagev1.Service
	bucket string
}

func newGCSBackend(remote *schema.Remote) (Backend, error) {
	if remote.PackageLocation == "" {
		return nil, pmerrors.New(pmerrors.KindRemoteUndefined, "bucket must be specified for the gcs transport (remote %q)", remote.Name)
	}
	ctx := context.Background()
	client, err := google.DefaultClient(ctx, storagev1.DevstorageReadWriteScope)
	if err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindCredentialsMissing, err, "obtaining application-default GCS credentials for remote %q", remote.Name)
	}
	svc, err := storagev1.New(client)
	if err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindTransportIO, err, "creating GCS client for remote %q", remote.Name)
	}
	return &gcsBackend{svc: svc, bucket: remote.PackageLocation}, nil
}

func (b *gcsBackend) Locate(ctx context.Context, remote *schema.Remote, fileName string) (string, bool, error) {
	_, err := b.svc.Objects.Get(b.bucket, fileName).Context(ctx).Do()
	if err == nil {
		return fileName, true, nil
	}
	return "", false, nil
}

func (b *gcsBackend) Download(ctx context.Context, remote *schema.Remote, location, destPath string) error {
	obj, err := b.svc.Objects.Get(b.bucket, location).Context(ctx).Do()
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "statting object %q", location)
	}

	resp, err := b.svc.Objects.Get(b.bucket, location).Context(ctx).Download()
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "downloading object %q", location)
	}
	defer resp.Body.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "creating %q", destPath)
	}
	defer out.Close()

	sink := progress.NewSink("Downloading from GCS: "+location, int64(obj.Size))
	defer sink.Close()

	buf := make([]byte, 8*1024)
	for {
		n, readErr := resp.Body.Read(buf)
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

func (b *gcsBackend) Upload(ctx context.Context, remote *schema.Remote, sourcePath, targetName string, makePublic bool) (string, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return "", pmerrors.Wrap(pmerrors.KindTransportIO, err, "opening %q", sourcePath)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", pmerrors.Wrap(pmerrors.KindTransportIO, err, "statting %q", sourcePath)
	}

	sink := progress.NewSink("Uploading to GCS: "+targetName, info.Size())
	defer sink.Close()

	obj := &storagev1.Object{Name: targetName}
	call := b.svc.Objects.Insert(b.bucket, obj).Media(&progressReader{r: f, sink: sink})
	if makePublic {
		call = call.PredefinedAcl("publicRead")
	}
	if _, err := call.Context(ctx).Do(); err != nil {
		return "", pmerrors.Wrap(pmerrors.KindTransportIO, err, "uploading object %q", targetName)
	}
	return fmt.Sprintf("gcs:%s:%s", b.bucket, targetName), nil
}

func (b *gcsBackend) ListStartingWith(ctx context.Context, remote *schema.Remote, prefix string) ([]string, error) {
	var names []string
	call := b.svc.Objects.List(b.bucket).Prefix(prefix).Context(ctx)
	if err := call.Pages(ctx, func(page *storagev1.Objects) error {
		for _, item := range page.Items {
			names = append(names, item.Name)
		}
		return nil
	}); err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindTransportIO, err, "listing bucket %q with prefix %q", b.bucket, prefix)
	}
	return names, nil
}
