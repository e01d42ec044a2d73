package models

import "time"

// QueryPattern is a frequency-mined summary of what a session keeps
// asking: one operation/metric pair with its prevalence and a sample
// phrasing. Patterns feed popular-query followup suggestions.
type QueryPattern struct {
	ID         string    `json:"id"`
	Operation  Operation `json:"operation"`
	Metric     string    `json:"metric,omitempty"`
	Count      int       `json:"count"`
	Prevalence float64   `json:"prevalence"`
	LastSeen   time.Time `json:"last_seen"`

	// Example is the most recent user phrasing that produced this
	// pattern, already truncated to the turn text bound.
	Example string `json:"example,omitempty"`

	// Dimensions lists the group-by and filter columns seen with the
	// pattern, most frequent first.
	Dimensions []string `json:"dimensions,omitempty"`
}
