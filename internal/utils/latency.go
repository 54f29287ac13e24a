package utils

import (
	"slices"
	"sync"
	"time"
)

// LatencyTracker keeps the most recent detection latencies in a ring buffer.
type LatencyTracker struct {
	mu    sync.Mutex
	ring  []time.Duration
	next  int
	full  bool
	total uint64
}

// NewLatencyTracker creates a tracker retaining up to window samples.
func NewLatencyTracker(window int) *LatencyTracker {
	if window <= 0 {
		window = 512
	}
	return &LatencyTracker{ring: make([]time.Duration, window)}
}

// Observe records a duration, overwriting the oldest once the window is full.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ring[l.next] = d
	l.next = (l.next + 1) % len(l.ring)
	if l.next == 0 {
		l.full = true
	}
	l.total++
}

// Percentile returns the nearest-rank p (0-100) over the retained window,
// or zero before any sample.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.Lock()
	window := slices.Clone(l.ring[:l.size()])
	l.mu.Unlock()

	if len(window) == 0 {
		return 0
	}
	slices.Sort(window)
	switch {
	case p <= 0:
		return window[0]
	case p >= 100:
		return window[len(window)-1]
	}
	return window[int(p/100*float64(len(window)-1))]
}

// Count returns the number of retained samples.
func (l *LatencyTracker) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size()
}

// Total returns every sample observed since construction.
func (l *LatencyTracker) Total() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

func (l *LatencyTracker) size() int {
	if l.full {
		return len(l.ring)
	}
	return l.next
}
