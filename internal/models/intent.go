package models

import (
	"sort"
	"time"
)

// Operation enumerates the deterministic analyses the engine can run.
type Operation string

const (
	OpFailureRate      Operation = "failure_rate"
	OpAggregate        Operation = "aggregate"
	OpCompareSegments  Operation = "compare_segments"
	OpTimeSeries       Operation = "time_series"
	OpTopFailureCodes  Operation = "top_failure_codes"
	OpExecutiveSummary Operation = "executive_summary"

	// OpUnsupported marks a query that maps to no supported analysis.
	// It never reaches the resolver.
	OpUnsupported Operation = "unsupported"
)

// Valid reports whether op is a member of the operation enum,
// including the unsupported sentinel.
func (op Operation) Valid() bool {
	switch op {
	case OpFailureRate, OpAggregate, OpCompareSegments, OpTimeSeries,
		OpTopFailureCodes, OpExecutiveSummary, OpUnsupported:
		return true
	}
	return false
}

// Runnable reports whether op resolves to a dataset computation.
func (op Operation) Runnable() bool {
	return op.Valid() && op != OpUnsupported
}

// SupportedOperations lists the runnable operations in stable order.
func SupportedOperations() []Operation {
	return []Operation{
		OpFailureRate,
		OpAggregate,
		OpCompareSegments,
		OpTimeSeries,
		OpTopFailureCodes,
		OpExecutiveSummary,
	}
}

// Granularity buckets a time series.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// Valid reports whether g is a known bucket size.
func (g Granularity) Valid() bool {
	switch g {
	case GranularityDay, GranularityWeek, GranularityMonth:
		return true
	}
	return false
}

// Filter constrains one column. Values holds set membership for
// categorical columns (a single element means equality); Min/Max bound
// numeric columns. A filter sets Values or Min/Max, never both.
type Filter struct {
	Values []string `json:"values,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
}

// TimeRange is a half-open [Start, End) window over the timestamp
// column, already resolved to absolute instants.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Segment names one side of a comparison together with its filters.
type Segment struct {
	Name    string            `json:"name"`
	Filters map[string]Filter `json:"filters"`
}

// Intent is the structured query produced by extraction and consumed
// by the resolver. Filter keys are dataset column names; values are
// canonicalized against the vocabulary before the intent is accepted.
type Intent struct {
	Operation   Operation         `json:"operation"`
	Metric      string            `json:"metric,omitempty"`
	Filters     map[string]Filter `json:"filters,omitempty"`
	GroupBy     []string          `json:"group_by,omitempty"`
	TimeRange   *TimeRange        `json:"time_range,omitempty"`
	Granularity Granularity       `json:"granularity,omitempty"`
	Segments    []Segment         `json:"segments,omitempty"`
	TopK        int               `json:"top_k,omitempty"`

	// Confidence is the extractor's self-reported score in [0,1].
	Confidence float64 `json:"confidence"`

	// Reason carries the extractor's grounds for an unsupported or
	// ambiguous classification. Empty for clean intents.
	Reason string `json:"reason,omitempty"`

	// NeedsClarification is set when the query is ambiguous between
	// operations or missing a required slot.
	NeedsClarification bool `json:"needs_clarification,omitempty"`
}

// HasFilters reports whether the intent constrains any column.
func (in Intent) HasFilters() bool {
	return len(in.Filters) > 0
}

// FilterColumns returns the filtered column names in sorted order.
func (in Intent) FilterColumns() []string {
	if len(in.Filters) == 0 {
		return nil
	}
	cols := make([]string, 0, len(in.Filters))
	for c := range in.Filters {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}
