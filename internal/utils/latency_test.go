package utils

import (
	"testing"
	"time"
)

func TestLatencyTrackerPercentile(t *testing.T) {
	tracker := NewLatencyTracker(10)
	durations := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond, 40 * time.Millisecond, 50 * time.Millisecond}
	for _, d := range durations {
		tracker.Observe(d)
	}

	if tracker.Count() != len(durations) {
		t.Fatalf("expected count %d, got %d", len(durations), tracker.Count())
	}
	if p95 := tracker.Percentile(95); p95 < 40*time.Millisecond {
		t.Fatalf("expected percentile >= 40ms, got %v", p95)
	}
	if p0 := tracker.Percentile(0); p0 != 10*time.Millisecond {
		t.Fatalf("expected floor 10ms, got %v", p0)
	}
	if p100 := tracker.Percentile(100); p100 != 50*time.Millisecond {
		t.Fatalf("expected ceiling 50ms, got %v", p100)
	}
}

func TestLatencyTrackerEmptyIsZero(t *testing.T) {
	tracker := NewLatencyTracker(4)
	if got := tracker.Percentile(95); got != 0 {
		t.Fatalf("expected zero percentile without samples, got %v", got)
	}
	if tracker.Count() != 0 || tracker.Total() != 0 {
		t.Fatalf("expected empty tracker, got count=%d total=%d", tracker.Count(), tracker.Total())
	}
}

func TestLatencyTrackerRingEvictsOldest(t *testing.T) {
	tracker := NewLatencyTracker(3)
	for i := 0; i < 10; i++ {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}

	if tracker.Count() != 3 {
		t.Fatalf("expected tracker size 3, got %d", tracker.Count())
	}
	if tracker.Total() != 10 {
		t.Fatalf("expected 10 observations counted, got %d", tracker.Total())
	}
	// Only the last three samples (7ms, 8ms, 9ms) remain visible.
	if got := tracker.Percentile(0); got != 7*time.Millisecond {
		t.Fatalf("expected oldest evicted, floor 7ms, got %v", got)
	}
	if got := tracker.Percentile(100); got != 9*time.Millisecond {
		t.Fatalf("expected ceiling 9ms, got %v", got)
	}
}
