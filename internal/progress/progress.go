// Package progress renders download/archive progress to the terminal,
// ported from utils.py's ProgressPercentage/ProgressSpeed context managers
// (spec.md §4.5: "a progress sink is invoked from the writer only"), and
// defines the go-metrics counters in metrics.go, which no packman command
// prints.
package progress

import (
	"fmt"
	"os"
	"sync"
	"time"

	events "github.com/docker/go-events"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// Sample is delivered to a Sink each time more bytes have been processed.
type Sample struct {
	BytesAmount int64
	Threads     int
}

// NewSink picks a percentage renderer when the total size is known, or a
// speed-only renderer otherwise (chunked-encoding transfers never learn a
// Content-Length up front), matching ProgressPercentage vs ProgressSpeed.
// The returned Sink is wrapped in an events.Queue so the writer goroutine
// that reports progress never blocks on terminal I/O, the same
// producer/consumer decoupling notifications.Bridge gets from go-events.
func NewSink(messageHead string, totalSize int64) events.Sink {
	var inner events.Sink
	if totalSize > 0 {
		inner = newPercentageSink(messageHead, totalSize)
	} else {
		inner = newSpeedSink(messageHead)
	}
	return events.NewQueue(inner)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type percentageSink struct {
	mu          sync.Mutex
	messageHead string
	size        int64
	seenSoFar   int64
	start       time.Time
	closed      bool
}

func newPercentageSink(messageHead string, size int64) *percentageSink {
	fmt.Printf("%s (%s)\n", messageHead, humanize.IBytes(uint64(size)))
	if !isTerminal(os.Stdout) {
		fmt.Println("No continuous progress report because this is not a proper terminal. Be patient ...")
	}
	return &percentageSink{messageHead: messageHead, size: size, start: time.Now()}
}

func (s *percentageSink) Write(ev events.Event) error {
	sample, ok := ev.(Sample)
	if !ok {
		return fmt.Errorf("progress: unexpected event type %T", ev)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.seenSoFar += sample.BytesAmount

	percentage := float64(100)
	if s.size > 0 {
		percentage = float64(s.seenSoFar) / float64(s.size) * 100
	}
	elapsed := time.Since(s.start).Seconds()
	speed := float64(0)
	if elapsed > 0 {
		speed = float64(s.seenSoFar) / elapsed
	}

	if isTerminal(os.Stdout) {
		if sample.Threads > 0 {
			fmt.Printf("\r%.2f%% (speed %s/s | threads %d)    ", percentage, humanize.IBytes(uint64(speed)), sample.Threads)
		} else {
			fmt.Printf("\r%.2f%% (speed %s/s)   ", percentage, humanize.IBytes(uint64(speed)))
		}
	}
	return nil
}

func (s *percentageSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.seenSoFar != s.size {
		fmt.Printf("ERROR (expected: %d, actual: %d)\n", s.size, s.seenSoFar)
	} else if isTerminal(os.Stdout) {
		fmt.Println()
	} else {
		elapsed := time.Since(s.start).Seconds()
		speed := float64(0)
		if elapsed > 0 {
			speed = float64(s.seenSoFar) / elapsed
		}
		fmt.Printf("100%% (speed %s/s)\n", humanize.IBytes(uint64(speed)))
	}
	fmt.Printf("Total of %.2f seconds\n", time.Since(s.start).Seconds())
	return nil
}

type speedSink struct {
	mu          sync.Mutex
	messageHead string
	seenSoFar   int64
	start       time.Time
	closed      bool
}

func newSpeedSink(messageHead string) *speedSink {
	fmt.Printf("%s\n", messageHead)
	return &speedSink{messageHead: messageHead, start: time.Now()}
}

func (s *speedSink) Write(ev events.Event) error {
	sample, ok := ev.(Sample)
	if !ok {
		return fmt.Errorf("progress: unexpected event type %T", ev)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.seenSoFar += sample.BytesAmount
	elapsed := time.Since(s.start).Seconds()
	if elapsed > 0 && isTerminal(os.Stdout) {
		speed := float64(s.seenSoFar) / elapsed
		fmt.Printf("\r%s/s   ", humanize.IBytes(uint64(speed)))
	}
	return nil
}

func (s *speedSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	fmt.Printf("\nTotal of %.2f seconds, %s transferred\n", time.Since(s.start).Seconds(), humanize.IBytes(uint64(s.seenSoFar)))
	return nil
}
