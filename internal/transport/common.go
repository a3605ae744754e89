package transport

import (
	"io"
	"os"

	events "github.com/docker/go-events"

	"github.com/packman-project/packman/internal/progress"
)

// progressWriterAt wraps an *os.File as an io.WriterAt that reports every
// write to a progress sink, for SDKs (s3manager) that download by WriterAt
// rather than by streaming io.Reader.
type progressWriterAt struct {
	file *os.File
	sink events.Sink
}

func (w *progressWriterAt) WriteAt(p []byte, off int64) (int, error) {
	n, err := w.file.WriteAt(p, off)
	if n > 0 {
		w.sink.Write(progress.Sample{BytesAmount: int64(n)})
		progress.RecordDownloadBytes(int64(n))
	}
	return n, err
}

// progressReader wraps an io.Reader so upload SDKs that read the request
// body directly (s3manager.UploadInput.Body) still drive a progress sink.
type progressReader struct {
	r    io.Reader
	sink events.Sink
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.sink.Write(progress.Sample{BytesAmount: int64(n)})
	}
	return n, err
}
