package transport

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/packman-project/packman/internal/pmerrors"
	"github.com/packman-project/packman/internal/progress"
	"github.com/packman-project/packman/internal/schema"
)

func init() {
	Register("s3", newS3Backend)
}

const defaultS3Region = "us-east-1"

// s3Params holds remote.Extra keys specific to the s3 transport, decoded
// with mapstructure the way transport.decodeExtra wires every backend's
// optional knobs.
type s3Params struct {
	Region string `mapstructure:"region"`
}

// s3Backend stores packages in an S3 bucket named by remote.PackageLocation,
// porting S3Transport. Credentials come from remote.CredentialID (access
// key) and remote.CredentialKey (secret key).
type s3Backend struct {
	bucket   *s3.S3
	bucketID string
}

func newS3Backend(remote *schema.Remote) (Backend, error) {
	if remote.PackageLocation == "" {
		return nil, pmerrors.New(pmerrors.KindRemoteUndefined, "bucket must be specified for the s3 transport (remote %q)", remote.Name)
	}
	var params s3Params
	if err := decodeExtra(remote.Extra, &params); err != nil {
		return nil, err
	}
	region := params.Region
	if region == "" {
		region = defaultS3Region
	}

	cfg := aws.NewConfig().WithRegion(region)
	if remote.CredentialID != "" && remote.CredentialKey != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(remote.CredentialID, remote.CredentialKey, ""))
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindTransportIO, err, "creating S3 session for remote %q", remote.Name)
	}
	return &s3Backend{bucket: s3.New(sess), bucketID: remote.PackageLocation}, nil
}

func (b *s3Backend) Locate(ctx context.Context, remote *schema.Remote, fileName string) (string, bool, error) {
	_, err := b.bucket.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucketID),
		Key:    aws.String(fileName),
	})
	if err == nil {
		return fileName, true, nil
	}
	if aerr, ok := err.(awserr.Error); ok && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
		return "", false, nil
	}
	return "", false, pmerrors.Wrap(pmerrors.KindTransportIO, err, "checking for %q in bucket %q", fileName, b.bucketID)
}

func (b *s3Backend) Download(ctx context.Context, remote *schema.Remote, location, destPath string) error {
	head, err := b.bucket.HeadObjectWithContext(ctx, &s3.HeadObjectInput{Bucket: aws.String(b.bucketID), Key: aws.String(location)})
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "statting %q in bucket %q", location, b.bucketID)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "creating %q", destPath)
	}
	defer out.Close()

	sink := progress.NewSink("Downloading from S3: "+location, aws.Int64Value(head.ContentLength))
	defer sink.Close()

	downloader := s3manager.NewDownloaderWithClient(b.bucket)
	writer := &progressWriterAt{file: out, sink: sink}
	if _, err := downloader.DownloadWithContext(ctx, writer, &s3.GetObjectInput{
		Bucket: aws.String(b.bucketID),
		Key:    aws.String(location),
	}); err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "downloading %q from bucket %q", location, b.bucketID)
	}
	return nil
}

func (b *s3Backend) Upload(ctx context.Context, remote *schema.Remote, sourcePath, targetName string, makePublic bool) (string, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return "", pmerrors.Wrap(pmerrors.KindTransportIO, err, "opening %q", sourcePath)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", pmerrors.Wrap(pmerrors.KindTransportIO, err, "statting %q", sourcePath)
	}

	sink := progress.NewSink("Uploading to S3: "+targetName, info.Size())
	defer sink.Close()

	uploader := s3manager.NewUploaderWithClient(b.bucket)
	input := &s3manager.UploadInput{
		Bucket: aws.String(b.bucketID),
		Key:    aws.String(targetName),
		Body:   &progressReader{r: f, sink: sink},
	}
	if makePublic {
		input.ACL = aws.String(s3.ObjectCannedACLPublicRead)
	}
	if _, err := uploader.UploadWithContext(ctx, input); err != nil {
		return "", pmerrors.Wrap(pmerrors.KindTransportIO, err, "uploading %q to bucket %q", targetName, b.bucketID)
	}
	return fmt.Sprintf("s3:%s:%s", b.bucketID, targetName), nil
}

// ListStartingWith lists every key whose lowercased form starts with the
// lowercased prefix. S3's server-side Prefix match is case-sensitive, so a
// single query can miss keys differing only in case from prefix; porting
// list_files_starting_with, this queries once with the first character
// upper-cased and once lower-cased (cutting down the keys S3 has to return,
// since any match must start with one of those two characters) and unions
// both result sets after a client-side case-insensitive filter. An empty
// prefix lists the whole bucket with no server-side filter at all.
func (b *s3Backend) ListStartingWith(ctx context.Context, remote *schema.Remote, prefix string) ([]string, error) {
	var names []string
	lowerPrefix := strings.ToLower(prefix)

	collect := func(serverPrefix string) error {
		return b.bucket.ListObjectsPagesWithContext(ctx, &s3.ListObjectsInput{
			Bucket: aws.String(b.bucketID),
			Prefix: aws.String(serverPrefix),
		}, func(page *s3.ListObjectsOutput, lastPage bool) bool {
			for _, obj := range page.Contents {
				key := aws.StringValue(obj.Key)
				if strings.HasPrefix(strings.ToLower(key), lowerPrefix) {
					names = append(names, key)
				}
			}
			return true
		})
	}

	if lowerPrefix == "" {
		if err := collect(""); err != nil {
			return nil, pmerrors.Wrap(pmerrors.KindTransportIO, err, "listing bucket %q", b.bucketID)
		}
		return names, nil
	}

	firstUpper := strings.ToUpper(lowerPrefix[:1])
	firstLower := lowerPrefix[:1]
	if err := collect(firstUpper); err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindTransportIO, err, "listing bucket %q with prefix %q", b.bucketID, firstUpper)
	}
	if firstLower != firstUpper {
		if err := collect(firstLower); err != nil {
			return nil, pmerrors.Wrap(pmerrors.KindTransportIO, err, "listing bucket %q with prefix %q", b.bucketID, firstLower)
		}
	}
	return names, nil
}
