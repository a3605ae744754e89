package download

import (
	"context"
	"os"

	events "github.com/docker/go-events"

	"github.com/packman-project/packman/internal/pmerrors"
)

// runWriter is the sole owner of targetFile: it serializes incoming
// sub-chunks to their absolute offsets, flushes, and reports cumulative
// progress, porting write_chunks. It returns once size bytes have been
// written or the context is cancelled by a latched worker error.
func runWriter(ctx context.Context, targetFile *os.File, size int64, in <-chan chunk, sink events.Sink) error {
	var written int64
	for {
		select {
		case c, ok := <-in:
			if !ok {
				if written == size {
					return nil
				}
				return pmerrors.New(pmerrors.KindTransportIO, "download ended after %d of %d bytes", written, size)
			}
			if _, err := targetFile.WriteAt(c.Data, c.Offset); err != nil {
				return pmerrors.Wrap(pmerrors.KindTransportIO, err, "writing at offset %d", c.Offset)
			}
			if err := targetFile.Sync(); err != nil {
				return pmerrors.Wrap(pmerrors.KindTransportIO, err, "flushing target file")
			}
			written += int64(len(c.Data))
			if sink != nil {
				sink.Write(Sample{BytesAmount: int64(len(c.Data))})
			}
			if written >= size {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
