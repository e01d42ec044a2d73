// Package dataset executes operation-level requests against the
// transactions table. Callers never hand it raw SQL; they describe the
// computation and the package compiles and runs the statement.
package dataset

import (
	"time"

	"github.com/insightxstack/insightx-nlq/internal/models"
)

// Kind selects the statement family a Request compiles to.
type Kind string

const (
	KindFailureRate     Kind = "failure_rate"
	KindAggregate       Kind = "aggregate"
	KindTimeSeries      Kind = "time_series"
	KindTopFailureCodes Kind = "top_failure_codes"
	KindSummary         Kind = "summary"
)

// Request describes one statement to run. Comparisons and composites
// are decomposed by the caller into several requests.
type Request struct {
	Kind        Kind
	Metric      string
	Filters     map[string]models.Filter
	TimeRange   *models.TimeRange
	GroupBy     []string
	Granularity models.Granularity
	TopK        int

	// GroupLimit caps grouped aggregate rows. Zero applies the
	// default cap.
	GroupLimit int
}

// Result is the raw tabular outcome of one statement.
type Result struct {
	Columns []string
	Rows    [][]any
	Trace   models.QueryTrace
	Elapsed time.Duration
}

// Value returns the named column of row i, false when absent.
func (r Result) Value(i int, column string) (any, bool) {
	if i < 0 || i >= len(r.Rows) {
		return nil, false
	}
	for j, c := range r.Columns {
		if c == column {
			return r.Rows[i][j], true
		}
	}
	return nil, false
}

// Empty reports whether the statement produced no rows.
func (r Result) Empty() bool { return len(r.Rows) == 0 }
