package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	retryablehttp "github.com/hashicorp/go-retryablehttp"

	"github.com/packman-project/packman/internal/pmerrors"
	"github.com/packman-project/packman/internal/progress"
	"github.com/packman-project/packman/internal/schema"
)

func init() {
	Register("http", func(remote *schema.Remote) (Backend, error) { return &httpBackend{secure: false}, nil })
	Register("https", func(remote *schema.Remote) (Backend, error) { return &httpBackend{secure: true}, nil })
}

// urlEncodeExceptions mirrors HttpTransport.URL_ENCODE_EXCEPTIONS: packman
// paths may already contain '/', '%', '?' and '=' that must not be
// percent-escaped a second time.
const urlEncodeExceptions = "/%?="

// httpBackend fetches a package location directly under remote.PackageLocation
// over plain HTTP or TLS, retrying transient failures via go-retryablehttp,
// porting HttpTransport.
type httpBackend struct {
	secure bool
}

func (b *httpBackend) scheme() string {
	if b.secure {
		return "https://"
	}
	return "http://"
}

func (b *httpBackend) client() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.HTTPClient = cleanhttp.DefaultPooledClient()
	c.RetryMax = 2
	c.Logger = nil
	return c
}

func (b *httpBackend) resolveURL(remote *schema.Remote, fileName string) string {
	base := strings.TrimRight(remote.PackageLocation, "/")
	encoded := encodeKeepingExceptions(fileName)
	if base == "" {
		return b.scheme() + encoded
	}
	if strings.Contains(base, "://") {
		return base + "/" + encoded
	}
	return b.scheme() + base + "/" + encoded
}

func encodeKeepingExceptions(path string) string {
	var sb strings.Builder
	for _, r := range path {
		if strings.ContainsRune(urlEncodeExceptions, r) {
			sb.WriteRune(r)
			continue
		}
		sb.WriteString(url.QueryEscape(string(r)))
	}
	return sb.String()
}

// Locate issues a HEAD request, porting HttpTransport.is_file_found.
func (b *httpBackend) Locate(ctx context.Context, remote *schema.Remote, fileName string) (string, bool, error) {
	location := b.resolveURL(remote, fileName)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodHead, location, nil)
	if err != nil {
		return "", false, pmerrors.Wrap(pmerrors.KindTransportIO, err, "building HEAD request for %q", location)
	}
	resp, err := b.client().Do(req)
	if err != nil {
		return "", false, pmerrors.Wrap(pmerrors.KindTransportUnreachable, err, "HEAD %q", location)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusFound {
		return location, true, nil
	}
	return "", false, nil
}

// Download fetches location to destPath, reporting progress via a
// percentage sink when Content-Length is known and a speed-only sink
// otherwise (chunked-encoding responses), porting HttpTransport.download_file.
func (b *httpBackend) Download(ctx context.Context, remote *schema.Remote, location, destPath string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "building GET request for %q", location)
	}
	resp, err := b.client().Do(req)
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportUnreachable, err, "GET %q", location)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return pmerrors.New(pmerrors.KindTransportIO, "unable to download %q (server returned %d)", location, resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "creating %q", destPath)
	}
	defer out.Close()

	size, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	msgHead := fmt.Sprintf("Downloading from %q: %s", domainOf(location), fileNameOf(location))
	if err != nil {
		size = 0
	}
	sink := progress.NewSink(msgHead, size)
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
			return pmerrors.Wrap(pmerrors.KindTransportIO, readErr, "reading response body for %q", location)
		}
	}
	return nil
}

// Upload is not supported over plain HTTP(S) in packman (there is no
// generic PUT endpoint behind a package-location template); GTL provides
// the upload-capable HTTP-based transport instead.
func (b *httpBackend) Upload(ctx context.Context, remote *schema.Remote, sourcePath, targetName string, makePublic bool) (string, error) {
	return "", pmerrors.New(pmerrors.KindScriptFailure, "the http/https transport does not support publishing; use gtl or s3")
}

// ListStartingWith has no generic HTTP directory-listing equivalent.
func (b *httpBackend) ListStartingWith(ctx context.Context, remote *schema.Remote, prefix string) ([]string, error) {
	return nil, pmerrors.New(pmerrors.KindScriptFailure, "the http/https transport does not support listing")
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}

func fileNameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	parts := strings.Split(u.Path, "/")
	return parts[len(parts)-1]
}
