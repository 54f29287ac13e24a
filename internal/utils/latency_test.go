package utils

import (
	"testing"
	"time"
)

func TestLatencyTrackerPercentile(t *testing.T) {
	tracker := NewLatencyTracker(10)
	for i := 1; i <= 5; i++ {
		tracker.Observe(time.Duration(i*10) * time.Millisecond)
	}

	if tracker.Count() != 5 {
		t.Fatalf("expected count 5, got %d", tracker.Count())
	}
	if p := tracker.Percentile(95); p != 40*time.Millisecond {
		t.Fatalf("expected p95 40ms, got %v", p)
	}
	if p := tracker.Percentile(0); p != 10*time.Millisecond {
		t.Fatalf("expected p0 10ms, got %v", p)
	}
	if p := tracker.Percentile(100); p != 50*time.Millisecond {
		t.Fatalf("expected p100 50ms, got %v", p)
	}
}

func TestLatencyTrackerWindowWraps(t *testing.T) {
	tracker := NewLatencyTracker(3)
	for i := 0; i < 10; i++ {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}
	if tracker.Count() != 3 {
		t.Fatalf("expected window size 3, got %d", tracker.Count())
	}
	if tracker.Total() != 10 {
		t.Fatalf("expected total 10, got %d", tracker.Total())
	}
	if p := tracker.Percentile(0); p != 7*time.Millisecond {
		t.Fatalf("expected oldest retained sample 7ms, got %v", p)
	}
}

func TestLatencyTrackerEmpty(t *testing.T) {
	if p := NewLatencyTracker(0).Percentile(95); p != 0 {
		t.Fatalf("expected zero percentile, got %v", p)
	}
}
