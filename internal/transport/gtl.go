package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	retryablehttp "github.com/hashicorp/go-retryablehttp"

	"github.com/packman-project/packman/internal/pmerrors"
	"github.com/packman-project/packman/internal/progress"
	"github.com/packman-project/packman/internal/schema"
)

func init() {
	Register("gtl", newGTLBackend)
}

// gtlRetryCount and gtlRetryDelay mirror GTL_RETRY_COUNT/GTL_RETRY_DELAY:
// transport/__init__.py's _retry decorator retries twice, 20 seconds apart.
const (
	gtlRetryCount = 2
	gtlRetryDelay = 20 * time.Second
	gtlTimeout    = 120 * time.Second
)

// gtlBackend talks to an artifact-index server over a small JSON-RPC-style
// HTTP API, replacing GtlTransport's XML-RPC calls (Python's xmlrpc.client
// against a GTLAPI CGI endpoint) with a JSON equivalent over
// go-retryablehttp, since no pack example vendors an XML-RPC client and
// go-retryablehttp's RetryMax/RetryWaitMin already model GTL_RETRY_COUNT/
// GTL_RETRY_DELAY directly.
type gtlBackend struct {
	client   *retryablehttp.Client
	endpoint string
	username string
}

func newGTLBackend(remote *schema.Remote) (Backend, error) {
	endpoint := remote.PackageLocation
	if endpoint == "" {
		endpoint = "http://gtl-api.nvidia.com:8080"
	}
	c := retryablehttp.NewClient()
	c.HTTPClient = cleanhttp.DefaultPooledClient()
	c.HTTPClient.Timeout = gtlTimeout
	c.RetryMax = gtlRetryCount
	c.RetryWaitMin = gtlRetryDelay
	c.RetryWaitMax = gtlRetryDelay
	c.Logger = nil
	return &gtlBackend{client: c, endpoint: endpoint, username: remote.CredentialID}, nil
}

type gtlFileInfo struct {
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// locateFile asks GTLAPI/File_cgi.pl-equivalent /files/{name} endpoint for
// a file's download URL and size, porting GtlTransport.get_file_url_and_size.
func (b *gtlBackend) locateFile(ctx context.Context, fileName string) (*gtlFileInfo, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+"/files/"+fileName, nil)
	if err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindTransportIO, err, "building GTL lookup request for %q", fileName)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindTransportUnreachable, err, "GTL is unreachable. Is VPN disconnected or network down? (%s)", fileName)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, pmerrors.New(pmerrors.KindTransportIO, "GTL returned HTTP %d resolving %q", resp.StatusCode, fileName)
	}
	var info gtlFileInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindParseError, err, "decoding GTL response for %q", fileName)
	}
	return &info, nil
}

func (b *gtlBackend) Locate(ctx context.Context, remote *schema.Remote, fileName string) (string, bool, error) {
	info, err := b.locateFile(ctx, fileName)
	if err != nil {
		return "", false, err
	}
	if info == nil {
		return "", false, nil
	}
	return info.URL, true, nil
}

func (b *gtlBackend) Download(ctx context.Context, remote *schema.Remote, location, destPath string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "building GTL download request")
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportUnreachable, err, "GTL is unreachable. Is VPN disconnected or network down?")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return pmerrors.New(pmerrors.KindTransportIO, "GTL returned HTTP %d downloading %q", resp.StatusCode, location)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "creating %q", destPath)
	}
	defer out.Close()

	sink := progress.NewSink("Downloading from GTL: "+destPath, resp.ContentLength)
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
			return pmerrors.Wrap(pmerrors.KindTransportIO, readErr, "reading GTL response body")
		}
	}
	return nil
}

// Upload creates a permanent file record then POSTs the multipart body,
// porting GtlTransport.create_file + upload_to_url as a single call against
// a /files endpoint instead of the original's two XML-RPC/CGI round trips.
func (b *gtlBackend) Upload(ctx context.Context, remote *schema.Remote, sourcePath, targetName string, makePublic bool) (string, error) {
	if makePublic {
		return "", pmerrors.New(pmerrors.KindScriptFailure, "GTL does not serve the public; authenticated access is always required")
	}

	f, err := os.Open(sourcePath)
	if err != nil {
		return "", pmerrors.Wrap(pmerrors.KindTransportIO, err, "opening %q", sourcePath)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", pmerrors.Wrap(pmerrors.KindTransportIO, err, "statting %q", sourcePath)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("fname", targetName)
	if err != nil {
		return "", pmerrors.Wrap(pmerrors.KindTransportIO, err, "building multipart body for %q", targetName)
	}
	sink := progress.NewSink("Uploading to GTL: "+targetName, info.Size())
	defer sink.Close()
	if _, err := io.Copy(part, &progressReader{r: f, sink: sink}); err != nil {
		return "", pmerrors.Wrap(pmerrors.KindTransportIO, err, "buffering multipart body for %q", targetName)
	}
	if err := writer.Close(); err != nil {
		return "", pmerrors.Wrap(pmerrors.KindTransportIO, err, "closing multipart body for %q", targetName)
	}
	contentType := writer.FormDataContentType()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/files?name="+targetName, body.Bytes())
	if err != nil {
		return "", pmerrors.Wrap(pmerrors.KindTransportIO, err, "building GTL upload request")
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := b.client.Do(req)
	if err != nil {
		return "", pmerrors.Wrap(pmerrors.KindTransportUnreachable, err, "uploading %q to GTL", targetName)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", pmerrors.New(pmerrors.KindTransportIO, "HTTP status %d. Error occurred during upload of %q", resp.StatusCode, sourcePath)
	}
	return fmt.Sprintf("gtl:%s", targetName), nil
}

func (b *gtlBackend) ListStartingWith(ctx context.Context, remote *schema.Remote, prefix string) ([]string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+"/files?startswith="+prefix, nil)
	if err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindTransportIO, err, "building GTL list request")
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindTransportUnreachable, err, "GTL is unreachable. Is VPN disconnected or network down?")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, pmerrors.New(pmerrors.KindTransportIO, "GTL returned HTTP %d listing %q", resp.StatusCode, prefix)
	}
	var names []string
	if err := json.NewDecoder(resp.Body).Decode(&names); err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindParseError, err, "decoding GTL list response")
	}
	return names, nil
}
