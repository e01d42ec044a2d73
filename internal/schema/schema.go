// Package schema describes the transactions dataset: its columns, the
// closed value sets for categorical dimensions, and the metric catalog.
// Every other layer (extraction, resolution, explanation) validates
// against this package rather than trusting model output.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// TableName is the dataset table materialized inside DuckDB.
const TableName = "transactions"

// Version identifies the dataset vocabulary. It is embedded in cache
// keys and traces so results from different vocabularies never mix.
const Version = "v1"

// Column names of the transactions table.
const (
	ColTransactionID = "transaction_id"
	ColTimestamp     = "timestamp"
	ColAmount        = "amount"
	ColPaymentMethod = "payment_method"
	ColDevice        = "device"
	ColState         = "state"
	ColAgeGroup      = "age_group"
	ColNetwork       = "network"
	ColCategory      = "category"
	ColStatus        = "status"
	ColFailureCode   = "failure_code"
	ColFraudFlag     = "fraud_flag"
	ColReviewFlag    = "review_flag"
)

// Canonical metric names accepted in intents.
const (
	MetricFailureRate = "failure_rate"
	MetricVolume      = "volume"
	MetricAvgAmount   = "avg_amount"
	MetricTotalAmount = "total_amount"
	MetricFraudRate   = "fraud_rate"
	MetricReviewRate  = "review_rate"
)

// StatusFailed is the status literal failure computations count against.
const StatusFailed = "Failed"

// dimensionValues maps each filterable dimension to its closed value
// set. A nil slice marks an open vocabulary (any string is accepted).
var dimensionValues = map[string][]string{
	ColPaymentMethod: {"UPI", "Card", "NetBanking"},
	ColDevice:        {"Android", "iOS", "Web"},
	ColNetwork:       {"4G", "5G", "WiFi", "3G"},
	ColAgeGroup:      {"<25", "25-34", "35-44", "45+"},
	ColCategory:      {"Food", "Entertainment", "Travel", "Utilities", "Others"},
	ColStatus:        {"Success", "Failed", "Reversed", "Pending"},
	ColState:         nil,
	ColFailureCode:   nil,
}

// groupableDimensions are the columns a query may group or segment by.
var groupableDimensions = []string{
	ColPaymentMethod,
	ColDevice,
	ColState,
	ColAgeGroup,
	ColNetwork,
	ColCategory,
	ColStatus,
	ColFailureCode,
}

// metricAliases maps the spellings the model tends to produce onto
// canonical metric names.
var metricAliases = map[string]string{
	"failure_rate":           MetricFailureRate,
	"failure rate":           MetricFailureRate,
	"volume":                 MetricVolume,
	"count":                  MetricVolume,
	"transaction_count":      MetricVolume,
	"txn_count":              MetricVolume,
	"avg_amount":             MetricAvgAmount,
	"average_amount":         MetricAvgAmount,
	"avg_transaction_amount": MetricAvgAmount,
	"total_amount":           MetricTotalAmount,
	"total_volume":           MetricTotalAmount,
	"gmv":                    MetricTotalAmount,
	"fraud_rate":             MetricFraudRate,
	"review_rate":            MetricReviewRate,
}

// metricDescriptions back the clarification text shown when a query
// asks for something outside the catalog.
var metricDescriptions = map[string]string{
	MetricFailureRate: "share of transactions with status Failed",
	MetricVolume:      "number of transactions",
	MetricAvgAmount:   "average transaction amount",
	MetricTotalAmount: "total transaction amount",
	MetricFraudRate:   "share of transactions flagged as fraud",
	MetricReviewRate:  "share of transactions flagged for manual review",
}

// Metrics returns the canonical metric catalog in stable order.
func Metrics() []string {
	return []string{
		MetricFailureRate,
		MetricVolume,
		MetricAvgAmount,
		MetricTotalAmount,
		MetricFraudRate,
		MetricReviewRate,
	}
}

// Dimensions returns the groupable dimension columns in stable order.
func Dimensions() []string {
	out := make([]string, len(groupableDimensions))
	copy(out, groupableDimensions)
	return out
}

// IsDimension reports whether col is a known filterable dimension.
func IsDimension(col string) bool {
	_, ok := dimensionValues[col]
	return ok
}

// IsGroupable reports whether col may appear in a group-by or segment.
func IsGroupable(col string) bool {
	for _, d := range groupableDimensions {
		if d == col {
			return true
		}
	}
	return false
}

// IsNumeric reports whether col supports range filters.
func IsNumeric(col string) bool {
	return col == ColAmount
}

// DimensionValues returns the closed value set for a dimension, or nil
// when the dimension accepts arbitrary values (state, failure_code).
func DimensionValues(col string) []string {
	vals, ok := dimensionValues[col]
	if !ok || vals == nil {
		return nil
	}
	out := make([]string, len(vals))
	copy(out, vals)
	return out
}

// CanonicalValue resolves a raw filter value against a dimension's
// value set, case-insensitively. Open-vocabulary dimensions return the
// input unchanged. The second return is false when the dimension is
// closed and the value is not a member.
func CanonicalValue(col, raw string) (string, bool) {
	vals, ok := dimensionValues[col]
	if !ok {
		return raw, false
	}
	if vals == nil {
		return strings.TrimSpace(raw), true
	}
	needle := strings.ToLower(strings.TrimSpace(raw))
	for _, v := range vals {
		if strings.ToLower(v) == needle {
			return v, true
		}
	}
	return raw, false
}

// CanonicalMetric resolves a raw metric name onto the catalog. The
// second return is false when no alias matches.
func CanonicalMetric(raw string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", "_")
	m, ok := metricAliases[key]
	return m, ok
}

// MetricDescription returns the human description for a canonical
// metric name, or an empty string for unknown metrics.
func MetricDescription(metric string) string {
	return metricDescriptions[metric]
}

// IsRate reports whether a canonical metric is expressed as a
// percentage of the filtered population.
func IsRate(metric string) bool {
	switch metric {
	case MetricFailureRate, MetricFraudRate, MetricReviewRate:
		return true
	}
	return false
}

// PromptSummary renders the vocabulary as compact text for model
// prompts: one line per dimension with its values, plus the metric
// catalog. The output is deterministic.
func PromptSummary() string {
	var b strings.Builder
	b.WriteString("Dataset: payment transactions. Columns:\n")
	dims := make([]string, 0, len(dimensionValues))
	for d := range dimensionValues {
		dims = append(dims, d)
	}
	sort.Strings(dims)
	for _, d := range dims {
		vals := dimensionValues[d]
		if vals == nil {
			fmt.Fprintf(&b, "- %s: open set (free-form values)\n", d)
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", d, strings.Join(vals, ", "))
	}
	fmt.Fprintf(&b, "- %s: numeric transaction amount in INR\n", ColAmount)
	fmt.Fprintf(&b, "- %s: transaction time (supports relative ranges)\n", ColTimestamp)
	b.WriteString("Metrics: ")
	parts := make([]string, 0, len(metricDescriptions))
	for _, m := range Metrics() {
		parts = append(parts, fmt.Sprintf("%s (%s)", m, metricDescriptions[m]))
	}
	b.WriteString(strings.Join(parts, "; "))
	b.WriteString(".")
	return b.String()
}
