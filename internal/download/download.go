// Package download implements the segmented ranged-GET downloader
// (spec.md §4.5), ported from transport/__init__.py's ThreadedTransport:
// a LIFO range queue, an adaptive worker pool, and a single writer
// goroutine that owns the target file and the progress sink.
package download

import (
	"container/list"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"

	events "github.com/docker/go-events"

	"github.com/packman-project/packman/internal/pmerrors"
)

const (
	// blockSize is the fixed range size a single ranged GET fetches,
	// matching THREAD_BLOCK_SIZE.
	blockSize = 8 * 1024 * 1024
	// subChunkSize is block/16, the size get_chunks streams sub-chunks in.
	subChunkSize = blockSize / 16

	initialWorkers = 10
	maxWorkers     = 20
	minWorkers     = 1

	retryCount = 2
	getTimeout = 120 * time.Second

	speedWindow = 5
)

// retryDelay is GTL_RETRY_DELAY's Go equivalent: the pause between a
// failed ranged GET and the next attempt. A var (not const) so tests can
// shrink it instead of waiting out the production delay.
var retryDelay = 20 * time.Second

// byteRange is an inclusive [From, To] byte range, matching the
// (byte_from, byte_to) tuples ThreadedTransport queues.
type byteRange struct {
	From, To int64
}

// chunk is a sub-range of bytes ready for the writer to place at Offset.
type chunk struct {
	Offset int64
	Data   []byte
}

// Getter performs one ranged HTTP GET, returning the response body to
// stream. Segmented into an interface so tests can substitute a fake
// transport instead of a live HTTP server.
type Getter interface {
	Get(ctx context.Context, rangeFrom, rangeTo int64) (io.ReadCloser, int, error)
}

// httpGetter issues real ranged GET requests against a URL via
// go-retryablehttp's connection pooling (retries are handled by this
// package's own worker-requeue logic, matching get_chunks' explicit retry
// loop rather than retryablehttp's built-in one).
type httpGetter struct {
	client *retryablehttp.Client
	url    string
}

// NewHTTPGetter builds a Getter against url using a plain (non-retrying at
// the HTTP layer) client, since Download implements its own block-level
// retry/requeue semantics.
func NewHTTPGetter(url string) Getter {
	c := retryablehttp.NewClient()
	c.RetryMax = 0
	c.Logger = nil
	c.HTTPClient.Timeout = getTimeout
	return &httpGetter{client: c, url: url}
}

func (g *httpGetter) Get(ctx context.Context, from, to int64) (io.ReadCloser, int, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, g.url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", from, to))
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	return resp.Body, resp.StatusCode, nil
}

// Sample is delivered to the progress sink with each flushed sub-chunk,
// mirroring internal/progress.Sample without importing it directly (the
// writer only needs to emit events.Event values).
type Sample struct {
	BytesAmount int64
	Threads     int
}

// state is the shared, mutex-guarded bookkeeping every worker and the
// writer touch, the Go equivalent of ThreadedTransport's instance fields.
type state struct {
	mu sync.Mutex

	ranges      *list.List // LIFO queue of *byteRange
	activeCount int

	firstErr error

	speeds       []float64
	previousSpeed float64
	workerTarget int
}

func newState() *state {
	return &state{ranges: list.New(), workerTarget: initialWorkers}
}

func (s *state) pushRange(r byteRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranges.PushBack(&r)
}

func (s *state) popRange() (byteRange, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	back := s.ranges.Back()
	if back == nil {
		return byteRange{}, false
	}
	s.ranges.Remove(back)
	return *back.Value.(*byteRange), true
}

func (s *state) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstErr == nil {
		s.firstErr = err
	}
}

func (s *state) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

func (s *state) incActive() {
	s.mu.Lock()
	s.activeCount++
	s.mu.Unlock()
}

func (s *state) decActive() {
	s.mu.Lock()
	s.activeCount--
	s.mu.Unlock()
}

func (s *state) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeCount
}

func (s *state) target() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workerTarget
}

// trackSpeed appends the most recent block's throughput and adapts the
// worker target, porting track_speed's trailing-window average plus the
// smart-threading +/-25%/5% comparison from ThreadedTransport.download.
func (s *state) trackSpeed(bytesPerSecond float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.speeds = append(s.speeds, bytesPerSecond)
	if len(s.speeds) > speedWindow {
		s.speeds = s.speeds[len(s.speeds)-speedWindow:]
	}
	var sum float64
	for _, v := range s.speeds {
		sum += v
	}
	current := sum / float64(len(s.speeds))

	if s.previousSpeed > current*1.25 && s.workerTarget > minWorkers {
		s.workerTarget--
	} else if s.previousSpeed*0.95 < current && s.workerTarget < maxWorkers {
		s.workerTarget++
	}
	s.previousSpeed = current
}

// Download writes exactly size bytes to targetFile by partitioning
// [0, size) into blockSize ranges, fetching them across an adaptive
// worker pool, and serializing writes through a single writer goroutine,
// porting ThreadedTransport.download.
func Download(ctx context.Context, getter Getter, size int64, targetFile *os.File, sink events.Sink) error {
	if size <= 0 {
		return nil
	}
	if err := targetFile.Truncate(size); err != nil {
		return pmerrors.Wrap(pmerrors.KindTransportIO, err, "pre-sizing target file to %d bytes", size)
	}

	st := newState()
	for from := int64(0); from < size; from += blockSize {
		to := from + blockSize - 1
		if to >= size {
			to = size - 1
		}
		st.pushRange(byteRange{From: from, To: to})
	}

	chunks := make(chan chunk, 256)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	spawnWorker := func() {
		wg.Add(1)
		st.incActive()
		go func() {
			defer wg.Done()
			defer st.decActive()
			runWorker(ctx, getter, st, chunks)
		}()
	}

	for i := 0; i < initialWorkers; i++ {
		if !st.hasQueuedRange() {
			break
		}
		spawnWorker()
	}

	writerDone := make(chan error, 1)
	go func() {
		writerDone <- runWriter(ctx, targetFile, size, chunks, sink)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
loop:
	for {
		select {
		case err := <-writerDone:
			cancel()
			wg.Wait()
			close(chunks)
			if err != nil {
				return err
			}
			if latched := st.err(); latched != nil {
				return latched
			}
			return nil
		case <-ticker.C:
			if st.err() != nil {
				break loop
			}
			target := st.target()
			for st.active() < target {
				if !st.hasQueuedRange() {
					break
				}
				spawnWorker()
			}
		}
	}

	cancel()
	wg.Wait()
	close(chunks)
	<-writerDone
	return st.err()
}

// hasQueuedRange reports whether a range is available without consuming it,
// used only to decide whether spawning another worker is worthwhile.
func (s *state) hasQueuedRange() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ranges.Len() > 0
}
