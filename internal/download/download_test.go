package download

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"
)

// fakeGetter serves ranged reads directly out of an in-memory buffer,
// optionally failing the first N calls for a given range to exercise the
// requeue path.
type fakeGetter struct {
	data       []byte
	mu         sync.Mutex
	failCounts map[int64]int
	calls      int64
}

func (g *fakeGetter) Get(ctx context.Context, from, to int64) (io.ReadCloser, int, error) {
	atomic.AddInt64(&g.calls, 1)
	g.mu.Lock()
	if g.failCounts != nil && g.failCounts[from] > 0 {
		g.failCounts[from]--
		g.mu.Unlock()
		return nil, 503, nil
	}
	g.mu.Unlock()

	if to >= int64(len(g.data)) {
		to = int64(len(g.data)) - 1
	}
	return io.NopCloser(bytes.NewReader(g.data[from : to+1])), 206, nil
}

func TestDownloadWritesExactBytes(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefgh"), 1024*1024) // 8 MiB: exactly one blockSize range
	getter := &fakeGetter{data: data}

	f, err := os.CreateTemp(t.TempDir(), "download-*")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if err := Download(context.Background(), getter, int64(len(data)), f, nil); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("downloaded content mismatch: got %d bytes, want %d bytes", len(got), len(data))
	}
}

func TestDownloadZeroSizeIsNoop(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "download-*")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := Download(context.Background(), &fakeGetter{}, 0, f, nil); err != nil {
		t.Fatal(err)
	}
}

func TestDownloadExhaustsRetriesAndFails(t *testing.T) {
	old := retryDelay
	retryDelay = 0
	defer func() { retryDelay = old }()

	data := bytes.Repeat([]byte("x"), blockSize)
	getter := &fakeGetter{data: data, failCounts: map[int64]int{0: retryCount + 1}}

	f, err := os.CreateTemp(t.TempDir(), "download-*")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	err = Download(context.Background(), getter, int64(len(data)), f, nil)
	if err == nil {
		t.Fatal("Download() should fail once retries are exhausted for a range")
	}
}
