package utils

import (
	"testing"
	"time"
)

func TestParseDay(t *testing.T) {
	got, err := ParseDay("2024-03-15")
	if err != nil {
		t.Fatalf("parse day: %v", err)
	}
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if _, err := ParseDay(""); err == nil {
		t.Fatalf("expected empty date rejected")
	}
	if _, err := ParseDay("15/03/2024"); err == nil {
		t.Fatalf("expected non-ISO date rejected")
	}
}

func TestLookbackRange(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	start, end, ok := LookbackRange(PeriodLast7Days, now)
	if !ok {
		t.Fatalf("expected known period resolved")
	}
	if !start.Equal(time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected start on a day boundary, got %v", start)
	}
	if !end.Equal(now) {
		t.Fatalf("expected end at now, got %v", end)
	}

	if _, _, ok := LookbackRange("last_fortnight", now); ok {
		t.Fatalf("expected unknown period refused")
	}
}

func TestClampRange(t *testing.T) {
	min := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	max := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)

	start, end := ClampRange(
		time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		min, max)
	if !start.Equal(min) || !end.Equal(max) {
		t.Fatalf("expected range clamped to bounds, got [%v, %v)", start, end)
	}

	// A window entirely outside the bounds collapses: start no longer
	// precedes end.
	start, end = ClampRange(
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		min, max)
	if start.Before(end) {
		t.Fatalf("expected collapsed range, got [%v, %v)", start, end)
	}
}
