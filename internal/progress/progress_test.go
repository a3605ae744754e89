package progress

import (
	"testing"
)

func TestMetricsRecordersDoNotPanic(t *testing.T) {
	RecordHit()
	RecordMiss()
	RecordCorrupt()
	RecordDownloadBytes(1024)
	done := TimeOperation("fulfill")
	done()
}

func TestPercentageSinkAccumulatesBytes(t *testing.T) {
	s := newPercentageSink("installing foo@1.0", 10)
	if err := s.Write(Sample{BytesAmount: 4}); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(Sample{BytesAmount: 6}); err != nil {
		t.Fatal(err)
	}
	if s.seenSoFar != 10 {
		t.Fatalf("seenSoFar = %d, want 10", s.seenSoFar)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if !s.closed {
		t.Fatal("Close() should mark the sink closed")
	}
	// A second Close must be a no-op, not a second summary line or panic.
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestPercentageSinkRejectsWrongEventType(t *testing.T) {
	s := newPercentageSink("installing foo@1.0", 10)
	if err := s.Write(struct{}{}); err == nil {
		t.Fatal("Write() should reject an event that is not a Sample")
	}
}

func TestSpeedSinkAccumulatesBytes(t *testing.T) {
	s := newSpeedSink("fetching index")
	if err := s.Write(Sample{BytesAmount: 100}); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(Sample{BytesAmount: 200}); err != nil {
		t.Fatal(err)
	}
	if s.seenSoFar != 300 {
		t.Fatalf("seenSoFar = %d, want 300", s.seenSoFar)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewSinkPicksRendererBySize(t *testing.T) {
	withSize := NewSink("foo", 128)
	if withSize == nil {
		t.Fatal("NewSink() with a known size should return a non-nil sink")
	}
	defer withSize.Close()

	withoutSize := NewSink("foo", 0)
	if withoutSize == nil {
		t.Fatal("NewSink() with an unknown size should return a non-nil sink")
	}
	defer withoutSize.Close()
}
