package download

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/packman-project/packman/internal/pmerrors"
)

// runWorker repeatedly pops a range from the shared queue and fetches it,
// porting ThreadedTransport.get_chunks's per-thread loop: on a transport
// error it requeues the unfetched remainder and returns (another spawn
// will pick the range back up); on exhausted retries it latches the error
// for every worker and the writer to observe.
func runWorker(ctx context.Context, getter Getter, st *state, out chan<- chunk) {
	for {
		if ctx.Err() != nil || st.err() != nil {
			return
		}
		r, ok := st.popRange()
		if !ok {
			return
		}
		if fetchRange(ctx, getter, st, r, out) {
			return
		}
	}
}

// fetchRange reports whether it requeued an unfetched remainder of r.
func fetchRange(ctx context.Context, getter Getter, st *state, r byteRange, out chan<- chunk) (requeued bool) {
	start := time.Now()
	retriesLeft := retryCount

	var body io.ReadCloser
	for {
		if ctx.Err() != nil {
			return
		}
		var status int
		var err error
		body, status, err = getter.Get(ctx, r.From, r.To)
		if err == nil && (status == http.StatusOK || status == http.StatusPartialContent) {
			break
		}
		if err == nil {
			err = pmerrors.New(pmerrors.KindTransportIO, "HTTP error - status code: %d", status)
		}
		if retriesLeft == 0 {
			st.setErr(pmerrors.Wrap(pmerrors.KindTransportUnreachable, err, "range %d-%d unreachable after retries", r.From, r.To))
			return
		}
		retriesLeft--
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return
		}
	}
	defer body.Close()

	location := r.From
	buf := make([]byte, subChunkSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case out <- chunk{Offset: location, Data: data}:
			case <-ctx.Done():
				return
			}
			location += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			// Requeue the remaining unfetched sub-range so another worker
			// retries it, porting get_chunks' ranges_to_fetch.insert(0, ...).
			st.pushRange(byteRange{From: location, To: r.To})
			return true
		}
	}

	st.trackSpeed(float64(r.To-r.From+1) / time.Since(start).Seconds())
	return false
}
