package utils

import (
	"fmt"
	"time"
)

// Named lookback windows the extractor may emit for relative phrases.
const (
	PeriodLast7Days  = "last_7_days"
	PeriodLast30Days = "last_30_days"
	PeriodLast90Days = "last_90_days"
)

// ParseDay parses a YYYY-MM-DD calendar date as midnight UTC.
func ParseDay(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date value")
	}
	t, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date: %w", err)
	}
	return t, nil
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// LookbackDays returns the day count for a named window, false when
// the name is unknown.
func LookbackDays(period string) (int, bool) {
	switch period {
	case PeriodLast7Days:
		return 7, true
	case PeriodLast30Days:
		return 30, true
	case PeriodLast90Days:
		return 90, true
	}
	return 0, false
}

// LookbackRange resolves a named window against now into a half-open
// [start, end) range whose start sits on a day boundary.
func LookbackRange(period string, now time.Time) (time.Time, time.Time, bool) {
	days, ok := LookbackDays(period)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	start := StartOfDay(now.AddDate(0, 0, -days))
	return start, now, true
}

// ClampRange narrows [start, end) to the bounds [min, max]. Callers
// detect an empty result by start not preceding end.
func ClampRange(start, end, min, max time.Time) (time.Time, time.Time) {
	if start.Before(min) {
		start = min
	}
	if end.After(max) {
		end = max
	}
	return start, end
}
