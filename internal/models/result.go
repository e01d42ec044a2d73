package models

// Calculation records how a headline number was derived so the answer
// can show its work.
type Calculation struct {
	Formula     string   `json:"formula,omitempty"`
	Numerator   *float64 `json:"numerator,omitempty"`
	Denominator *float64 `json:"denominator,omitempty"`
	SampleSize  int64    `json:"sample_size"`
}

// NumberDetail is one headline figure of a computed result: the
// formatted display value plus the raw value and provenance.
type NumberDetail struct {
	Label    string  `json:"label"`
	Value    string  `json:"value"`
	RawValue float64 `json:"raw_value"`

	// Insufficient marks a number whose underlying population was
	// empty. The display value states that instead of a fabricated
	// zero.
	Insufficient bool `json:"insufficient,omitempty"`

	Calculation *Calculation `json:"calculation,omitempty"`
}

// ChartType selects the visual rendering for a result.
type ChartType string

const (
	ChartBar  ChartType = "bar"
	ChartLine ChartType = "line"
)

// ChartPoint is one plotted value.
type ChartPoint struct {
	X     string  `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label,omitempty"`
}

// Chart is an optional visualization payload accompanying a result.
type Chart struct {
	Type   ChartType    `json:"type"`
	Title  string       `json:"title"`
	XLabel string       `json:"x_label,omitempty"`
	YLabel string       `json:"y_label,omitempty"`
	Points []ChartPoint `json:"points"`
}

// SeriesPoint is one time bucket of a time-series result, ordered
// ascending by bucket.
type SeriesPoint struct {
	Bucket string  `json:"bucket"`
	Group  string  `json:"group,omitempty"`
	Value  float64 `json:"value"`
}

// QueryTrace records the statement the dataset executed, for
// transparency in responses and logs. Params are rendered as strings.
type QueryTrace struct {
	Statement string   `json:"statement"`
	Params    []string `json:"params,omitempty"`
}

// ComputedResult is the deterministic output of resolving an intent
// against the dataset. It is the only artifact downstream explanation
// may draw numbers from.
type ComputedResult struct {
	Operation Operation      `json:"operation"`
	Metric    string         `json:"metric,omitempty"`
	Numbers   []NumberDetail `json:"numbers"`
	Series    []SeriesPoint  `json:"series,omitempty"`
	Chart     *Chart         `json:"chart,omitempty"`
	Traces    []QueryTrace   `json:"traces,omitempty"`

	// ExecutionMillis is total dataset time across all statements.
	ExecutionMillis float64 `json:"execution_millis"`
}

// Insufficient reports whether every headline number lacked data.
func (r ComputedResult) Insufficient() bool {
	if len(r.Numbers) == 0 {
		return false
	}
	for _, n := range r.Numbers {
		if !n.Insufficient {
			return false
		}
	}
	return true
}

// PartiallyInsufficient reports whether some but not all numbers
// lacked data.
func (r ComputedResult) PartiallyInsufficient() bool {
	var short, full int
	for _, n := range r.Numbers {
		if n.Insufficient {
			short++
		} else {
			full++
		}
	}
	return short > 0 && full > 0
}
