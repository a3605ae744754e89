package transport

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Azure/azure-sdk-for-go/storage"

	"github.com/packman-project/packman/internal/pmerrors"
	"github.com/packman-project/packman/internal/progress"
	"github.com/packman-project/packman/internal/schema"
)

func init() {
	Register("azure", newAzureBackend)
}

// azureParams holds remote.Extra keys specific to the azure transport.
type azureParams struct {
	Container string `mapstructure:"container"`
}

// azureBackend stores packages as blobs in an Azure Storage container,
// remote.PackageLocation naming the storage account and azureParams.Container
// naming the container. There is no azure transport in the original tool;
// this backend is a SPEC_FULL addition wired onto the teacher's legacy-SDK
// blob client, the same classic storage.BlobStorageClient the pinned
// Azure/azure-sdk-for-go v56 module exposes.
type azureBackend struct {
	container *storage.Container
}

func newAzureBackend(remote *schema.Remote) (Backend, error) {
	if remote.PackageLocation == "" {
		return nil, pmerrors.New(pmerrors.KindRemoteUndefined, "storage account must be specified for the azure transport (remote %q)", remote.Name)
	}
	var params azureParams
	if err := decodeExtra(remote.Extra, &params); err != nil {
		return nil, err
	}
	if params.Container == "" {
		return nil, pmerrors.New(pmerrors.KindRemoteUndefined, "container must be specified via extra attributes for the azure transport (remote %q)", remote.Name)
	}

	client, err := storage.NewBasicClient(remote.PackageLocation, remote.CredentialKey)
	if err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindTransportIO, err, "creating azure storage client for remote %q", remote.Name)
	}
	blobService := client.GetBlobService()
	return &azureBackend{container: blobService.GetContainerReference(params.Container)}, nil
}

func (b *azureBackend) Locate(ctx context.Context, remote *schema.Remote, fileName string) (string, bool, error) {
	blob := b.container.GetBlobReference(fileName)
	found, err := blob.Exists()
	if err != nil {
		return "", false, pmerrors.Wrap(pmerrors.KindTransportIO, err, "checking for blob %q", fileName)
	}
	return fileName, found, nil
}

func (b *azureBackend) Download(ctx context.Context, remote *schema.Remote, location, destPath string) error {
	blob := b.container.GetBlobReference(location)
	if err := blob.GetProperties(nil); err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "fetching properties for blob %q", location)
	}

	reader, err := blob.Get(nil)
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "downloading blob %q", location)
	}
	defer reader.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "creating %q", destPath)
	}
	defer out.Close()

	sink := progress.NewSink("Downloading from Azure: "+location, int64(blob.Properties.ContentLength))
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
			return pmerrors.Wrap(pmerrors.KindTransportIO, readErr, "reading blob %q", location)
		}
	}
	return nil
}

func (b *azureBackend) Upload(ctx context.Context, remote *schema.Remote, sourcePath, targetName string, makePublic bool) (string, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return "", pmerrors.Wrap(pmerrors.KindTransportIO, err, "opening %q", sourcePath)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", pmerrors.Wrap(pmerrors.KindTransportIO, err, "statting %q", sourcePath)
	}

	sink := progress.NewSink("Uploading to Azure: "+targetName, info.Size())
	defer sink.Close()

	blob := b.container.GetBlobReference(targetName)
	if makePublic {
		return "", pmerrors.New(pmerrors.KindScriptFailure, "the azure transport has no per-blob public ACL equivalent to S3's; configure the container's public access level instead")
	}
	if err := blob.CreateBlockBlobFromReader(&progressReader{r: f, sink: sink}, nil); err != nil {
		return "", pmerrors.Wrap(pmerrors.KindTransportIO, err, "uploading blob %q", targetName)
	}
	return fmt.Sprintf("azure:%s:%s", remote.PackageLocation, targetName), nil
}

func (b *azureBackend) ListStartingWith(ctx context.Context, remote *schema.Remote, prefix string) ([]string, error) {
	var names []string
	marker := ""
	for {
		resp, err := b.container.ListBlobs(storage.ListBlobsParameters{Prefix: prefix, Marker: marker})
		if err != nil {
			return nil, pmerrors.Wrap(pmerrors.KindTransportIO, err, "listing container with prefix %q", prefix)
		}
		for _, blob := range resp.Blobs {
			names = append(names, blob.Name)
		}
		if resp.NextMarker == "" {
			break
		}
		marker = resp.NextMarker
	}
	return names, nil
}
