package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps a bounded ring of recent duration samples and
// computes percentiles over whatever the ring currently holds.
type LatencyTracker struct {
	mu     sync.RWMutex
	ring   []time.Duration
	next   int
	filled bool
	total  uint64
}

// NewLatencyTracker creates a tracker holding up to size samples.
func NewLatencyTracker(size int) *LatencyTracker {
	if size <= 0 {
		size = 512
	}
	return &LatencyTracker{ring: make([]time.Duration, size)}
}

// Observe records a new duration, evicting the oldest sample once the
// ring is full.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.ring[l.next] = d
	l.next++
	l.total++
	if l.next == len(l.ring) {
		l.next = 0
		l.filled = true
	}
}

// Percentile returns the percentile (0-100) duration over the retained
// samples. Returns zero if nothing has been observed.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.RLock()
	n := l.next
	if l.filled {
		n = len(l.ring)
	}
	if n == 0 {
		l.mu.RUnlock()
		return 0
	}
	sorted := append([]time.Duration(nil), l.ring[:n]...)
	l.mu.RUnlock()

	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	index := int((p / 100.0) * float64(len(sorted)-1))
	return sorted[index]
}

// Count returns the number of samples currently retained.
func (l *LatencyTracker) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.filled {
		return len(l.ring)
	}
	return l.next
}

// Total returns the number of samples observed since creation,
// including samples the ring has since evicted.
func (l *LatencyTracker) Total() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}
