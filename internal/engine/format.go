package engine

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/insightxstack/insightx-nlq/internal/models"
	"github.com/insightxstack/insightx-nlq/internal/schema"
)

func metricLabel(metric string) string {
	switch metric {
	case schema.MetricFailureRate:
		return "Failure Rate"
	case schema.MetricVolume:
		return "Transaction Volume"
	case schema.MetricAvgAmount:
		return "Average Transaction Amount"
	case schema.MetricTotalAmount:
		return "Total Amount"
	case schema.MetricFraudRate:
		return "Fraud Rate"
	case schema.MetricReviewRate:
		return "Review Rate"
	}
	return titleCase(metric)
}

func titleCase(s string) string {
	parts := strings.Split(strings.ReplaceAll(s, "_", " "), " ")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// formatMetricValue renders a raw metric value in the display format
// the answer surfaces: percentages for rates, rupees for amounts,
// grouped integers for counts.
func formatMetricValue(metric string, v float64) string {
	switch {
	case schema.IsRate(metric):
		return formatRate(v)
	case metric == schema.MetricVolume:
		return formatCount(v)
	default:
		return formatAmount(v)
	}
}

func formatRate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "%"
}

func formatCount(v float64) string {
	return groupDigits(strconv.FormatInt(int64(math.Round(v)), 10))
}

func formatAmount(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")
	out := "₹" + groupDigits(intPart) + "." + frac
	if neg {
		return "-" + out
	}
	return out
}

// groupDigits inserts thousands separators into a plain digit string.
func groupDigits(digits string) string {
	neg := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")
	n := len(digits)
	if n <= 3 {
		if neg {
			return "-" + digits
		}
		return digits
	}
	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteString(",")
		}
		b.WriteString(digits[i : i+3])
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// describeFilters renders a filter set as "col: v1|v2 & col: v" in
// deterministic column order, for segment labels and chart titles.
func describeFilters(filters map[string]models.Filter) string {
	if len(filters) == 0 {
		return "all transactions"
	}
	cols := make([]string, 0, len(filters))
	for c := range filters {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		f := filters[c]
		switch {
		case len(f.Values) > 0:
			parts = append(parts, fmt.Sprintf("%s: %s", c, strings.Join(f.Values, "|")))
		case f.Min != nil && f.Max != nil:
			parts = append(parts, fmt.Sprintf("%s: %.2f-%.2f", c, *f.Min, *f.Max))
		case f.Min != nil:
			parts = append(parts, fmt.Sprintf("%s: >=%.2f", c, *f.Min))
		case f.Max != nil:
			parts = append(parts, fmt.Sprintf("%s: <=%.2f", c, *f.Max))
		}
	}
	return strings.Join(parts, " & ")
}

func signedDiff(diff, pct float64) string {
	return fmt.Sprintf("%+.2f (%+.1f%%)", diff, pct)
}
