package models

import (
	"fmt"
	"strings"
	"time"
)

// RateLimitedError reports a request rejected before extraction
// because the session exceeded its per-window budget.
type RateLimitedError struct {
	SessionID  string
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("session %s rate limited: %d requests per %s exceeded", e.SessionID, e.Limit, e.Window)
}

// ExtractionFailedError reports that the model produced no usable
// intent: transport failure, malformed JSON, or schema violation.
type ExtractionFailedError struct {
	Cause  error
	Detail string
}

func (e *ExtractionFailedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("intent extraction failed: %s: %v", e.Detail, e.Cause)
	}
	return fmt.Sprintf("intent extraction failed: %s", e.Detail)
}

func (e *ExtractionFailedError) Unwrap() error { return e.Cause }

// UnsupportedOperationError reports a query whose subject is outside
// the dataset vocabulary or metric catalog.
type UnsupportedOperationError struct {
	Subject string
	Reason  string
}

func (e *UnsupportedOperationError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("unsupported request %q: %s", e.Subject, e.Reason)
	}
	return fmt.Sprintf("unsupported request: %s", e.Reason)
}

// InvalidFilterError reports filters that matched no rows in the base
// population, or referenced unknown columns or values.
type InvalidFilterError struct {
	Columns []string
	Reason  string
}

func (e *InvalidFilterError) Error() string {
	if len(e.Columns) > 0 {
		return fmt.Sprintf("invalid filter on %s: %s", strings.Join(e.Columns, ", "), e.Reason)
	}
	return fmt.Sprintf("invalid filter: %s", e.Reason)
}

// InsufficientDataError reports a computation whose every leg lacked
// data. Partial shortfalls are carried on NumberDetail instead.
type InsufficientDataError struct {
	Detail string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %s", e.Detail)
}

// ResourceExhaustedError reports a stage that ran out of its time
// budget, naming which dependency stalled.
type ResourceExhaustedError struct {
	Stage   string
	Timeout time.Duration
	Cause   error
}

func (e *ResourceExhaustedError) Error() string {
	return fmt.Sprintf("%s exceeded %s budget", e.Stage, e.Timeout)
}

func (e *ResourceExhaustedError) Unwrap() error { return e.Cause }
