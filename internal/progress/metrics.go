package progress

import (
	"time"

	metrics "github.com/docker/go-metrics"
)

// CacheNamespace collects cache-store and download counters, registered with
// go-metrics' default registry; no packman command prints them. Grounded on
// distribution's metrics.StorageNamespace /
// registry/storage/cache/metrics's prometheusCacheProvider wrapping idiom.
var CacheNamespace = metrics.NewNamespace("packman", "cache", nil)

var (
	hitCounter        = CacheNamespace.NewCounter("hits_total", "number of cache lookups that found an installed package")
	missCounter       = CacheNamespace.NewCounter("misses_total", "number of cache lookups that found nothing installed")
	corruptCounter    = CacheNamespace.NewCounter("corrupt_total", "number of cache lookups that found a corrupt install")
	downloadBytes     = CacheNamespace.NewCounter("download_bytes_total", "total bytes fetched from remote transports")
	operationDuration = CacheNamespace.NewLabeledTimer("operation_duration_seconds", "duration of cache operations", "operation")
)

func init() {
	metrics.Register(CacheNamespace)
}

// RecordHit increments the cache-hit counter.
func RecordHit() { hitCounter.Inc(1) }

// RecordMiss increments the cache-miss counter.
func RecordMiss() { missCounter.Inc(1) }

// RecordCorrupt increments the corrupt-install counter.
func RecordCorrupt() { corruptCounter.Inc(1) }

// RecordDownloadBytes adds n to the cumulative bytes-fetched counter.
func RecordDownloadBytes(n int64) { downloadBytes.Inc(float64(n)) }

// TimeOperation returns a func to call when operation completes, recording
// its duration under the given label (e.g. "fulfill", "download", "extract").
func TimeOperation(operation string) func() {
	start := time.Now()
	return func() {
		operationDuration.WithValues(operation).UpdateSince(start)
	}
}
