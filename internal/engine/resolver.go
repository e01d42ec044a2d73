// Package engine resolves validated intents into deterministic
// computed results. Every number an answer carries originates here;
// the model never contributes a value, only the question.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/insightxstack/insightx-nlq/internal/cache"
	"github.com/insightxstack/insightx-nlq/internal/dataset"
	"github.com/insightxstack/insightx-nlq/internal/models"
	"github.com/insightxstack/insightx-nlq/internal/schema"
	"github.com/insightxstack/insightx-nlq/internal/utils"
)

// DataSource is the dataset capability the resolver consumes.
type DataSource interface {
	Execute(ctx context.Context, req dataset.Request) (dataset.Result, error)
	Bounds() (time.Time, time.Time)
}

// Options tune resolution behaviour.
type Options struct {
	// TopK is the default failure-code count when the intent names
	// none.
	TopK int

	// CacheResults enables the opt-in result cache. Off by default so
	// repeated questions always recompute.
	CacheResults bool
	CacheTTL     time.Duration
}

// Resolver turns intents into computed results.
type Resolver struct {
	data    DataSource
	results cache.Provider
	opts    Options
	logger  *slog.Logger
}

// NewResolver wires a resolver to its data source. results may be nil
// when caching is disabled.
func NewResolver(data DataSource, results cache.Provider, opts Options, logger *slog.Logger) *Resolver {
	if results == nil {
		results = cache.NoopProvider{}
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{data: data, results: results, opts: opts, logger: logger}
}

// Resolve validates, normalizes, and executes an intent. Identical
// normalized intents always produce identical results.
func (r *Resolver) Resolve(ctx context.Context, intent models.Intent) (models.ComputedResult, error) {
	if err := ValidateIntent(intent); err != nil {
		return models.ComputedResult{}, err
	}
	normalized, err := r.normalize(intent)
	if err != nil {
		return models.ComputedResult{}, err
	}

	if r.opts.CacheResults {
		if out, ok := r.lookup(ctx, normalized); ok {
			return out, nil
		}
	}

	var out models.ComputedResult
	switch normalized.Operation {
	case models.OpFailureRate:
		out, err = r.failureRate(ctx, normalized)
	case models.OpAggregate:
		out, err = r.aggregate(ctx, normalized)
	case models.OpCompareSegments:
		out, err = r.compareSegments(ctx, normalized)
	case models.OpTimeSeries:
		out, err = r.timeSeries(ctx, normalized)
	case models.OpTopFailureCodes:
		out, err = r.topFailureCodes(ctx, normalized)
	case models.OpExecutiveSummary:
		out, err = r.executiveSummary(ctx, normalized)
	default:
		return models.ComputedResult{}, &models.UnsupportedOperationError{
			Reason: fmt.Sprintf("operation %s cannot be resolved", normalized.Operation),
		}
	}
	if err != nil {
		return models.ComputedResult{}, err
	}

	if r.opts.CacheResults {
		r.store(ctx, normalized, out)
	}
	return out, nil
}

// normalize applies defaults and clamps the time window to the data
// extent.
func (r *Resolver) normalize(in models.Intent) (models.Intent, error) {
	out := in
	if m, ok := schema.CanonicalMetric(in.Metric); ok {
		out.Metric = m
	}
	if out.Operation == models.OpFailureRate {
		out.Metric = schema.MetricFailureRate
		if len(out.GroupBy) > 0 {
			// A grouped failure rate is just a grouped aggregate.
			out.Operation = models.OpAggregate
		}
	}
	if out.Operation == models.OpTopFailureCodes && out.TopK == 0 {
		out.TopK = r.opts.TopK
	}
	if out.TimeRange != nil {
		tr, err := r.clampWindow(*out.TimeRange)
		if err != nil {
			return models.Intent{}, err
		}
		out.TimeRange = &tr
	}
	if out.Operation == models.OpTimeSeries && out.Granularity == "" {
		out.Granularity = r.inferGranularity(out.TimeRange)
	}
	return out, nil
}

// inferGranularity sizes time buckets to the window span. Windows up
// to a month bucket by day, up to a quarter by week, anything longer
// by month. An unbounded series spans the whole dataset extent.
func (r *Resolver) inferGranularity(tr *models.TimeRange) models.Granularity {
	start, end := r.data.Bounds()
	if tr != nil {
		start, end = tr.Start, tr.End
	}
	span := end.Sub(start)
	switch {
	case span <= 31*24*time.Hour:
		return models.GranularityDay
	case span <= 120*24*time.Hour:
		return models.GranularityWeek
	default:
		return models.GranularityMonth
	}
}

// clampWindow intersects the window with the dataset extent. A window
// lying entirely after the data keeps its span but is re-anchored to
// end at the newest transaction, so relative phrases stay useful on a
// fixed dataset.
func (r *Resolver) clampWindow(tr models.TimeRange) (models.TimeRange, error) {
	min, max := r.data.Bounds()
	upper := max.Add(time.Microsecond)

	start, end := tr.Start, tr.End
	if start.IsZero() {
		start = min
	}
	if end.IsZero() {
		end = upper
	}
	if start.After(max) {
		span := end.Sub(start)
		end = upper
		start = end.Add(-span)
		if start.Before(min) {
			start = min
		}
	} else {
		start, end = utils.ClampRange(start, end, min, upper)
	}
	if !start.Before(end) {
		return models.TimeRange{}, &models.InvalidFilterError{
			Reason: fmt.Sprintf("time range is outside the dataset coverage (%s to %s)",
				min.Format("2006-01-02"), max.Format("2006-01-02")),
		}
	}
	return models.TimeRange{Start: start, End: end}, nil
}

func (r *Resolver) failureRate(ctx context.Context, in models.Intent) (models.ComputedResult, error) {
	res, err := r.data.Execute(ctx, dataset.Request{
		Kind:      dataset.KindFailureRate,
		Filters:   in.Filters,
		TimeRange: in.TimeRange,
	})
	if err != nil {
		return models.ComputedResult{}, err
	}

	total := floatAt(res, 0, "total_transactions")
	failed := floatAt(res, 0, "failed_transactions")
	rate := floatAt(res, 0, "failure_rate_pct")
	if res.Empty() || total == 0 {
		return models.ComputedResult{}, baseEmptyError(in)
	}

	numbers := []models.NumberDetail{
		{
			Label:    "Failure Rate",
			Value:    formatRate(rate),
			RawValue: rate,
			Calculation: &models.Calculation{
				Formula:     "failed_transactions / total_transactions * 100",
				Numerator:   &failed,
				Denominator: &total,
				SampleSize:  int64(total),
			},
		},
		{Label: "Failed Transactions", Value: formatCount(failed), RawValue: failed},
		{Label: "Total Transactions", Value: formatCount(total), RawValue: total},
	}
	return models.ComputedResult{
		Operation:       models.OpFailureRate,
		Metric:          schema.MetricFailureRate,
		Numbers:         numbers,
		Traces:          []models.QueryTrace{res.Trace},
		ExecutionMillis: millis(res.Elapsed),
	}, nil
}

func (r *Resolver) aggregate(ctx context.Context, in models.Intent) (models.ComputedResult, error) {
	res, err := r.data.Execute(ctx, dataset.Request{
		Kind:      dataset.KindAggregate,
		Metric:    in.Metric,
		Filters:   in.Filters,
		TimeRange: in.TimeRange,
		GroupBy:   in.GroupBy,
	})
	if err != nil {
		return models.ComputedResult{}, err
	}
	label := metricLabel(in.Metric)

	if len(in.GroupBy) == 0 {
		sample := int64At(res, 0, "sample_size")
		if res.Empty() || sample == 0 {
			return models.ComputedResult{}, baseEmptyError(in)
		}
		value := floatAt(res, 0, "metric_value")
		return models.ComputedResult{
			Operation: models.OpAggregate,
			Metric:    in.Metric,
			Numbers: []models.NumberDetail{{
				Label:       label,
				Value:       formatMetricValue(in.Metric, value),
				RawValue:    value,
				Calculation: &models.Calculation{SampleSize: sample},
			}},
			Traces:          []models.QueryTrace{res.Trace},
			ExecutionMillis: millis(res.Elapsed),
		}, nil
	}

	if res.Empty() {
		return models.ComputedResult{}, baseEmptyError(in)
	}
	numbers := make([]models.NumberDetail, 0, len(res.Rows))
	points := make([]models.ChartPoint, 0, len(res.Rows))
	for i := range res.Rows {
		groupLabel := groupKey(res, i, in.GroupBy)
		value := floatAt(res, i, "metric_value")
		sample := int64At(res, i, "sample_size")
		numbers = append(numbers, models.NumberDetail{
			Label:       groupLabel,
			Value:       formatMetricValue(in.Metric, value),
			RawValue:    value,
			Calculation: &models.Calculation{SampleSize: sample},
		})
		points = append(points, models.ChartPoint{X: groupLabel, Y: value})
	}
	dims := strings.Join(in.GroupBy, ", ")
	return models.ComputedResult{
		Operation: models.OpAggregate,
		Metric:    in.Metric,
		Numbers:   numbers,
		Chart: &models.Chart{
			Type:   models.ChartBar,
			Title:  fmt.Sprintf("%s by %s", label, dims),
			XLabel: dims,
			YLabel: label,
			Points: points,
		},
		Traces:          []models.QueryTrace{res.Trace},
		ExecutionMillis: millis(res.Elapsed),
	}, nil
}

func (r *Resolver) compareSegments(ctx context.Context, in models.Intent) (models.ComputedResult, error) {
	var (
		numbers []models.NumberDetail
		points  []models.ChartPoint
		traces  []models.QueryTrace
		totalMs float64
		rawVals [2]float64
		samples [2]int64
	)

	for i, seg := range in.Segments {
		res, err := r.data.Execute(ctx, dataset.Request{
			Kind:      dataset.KindAggregate,
			Metric:    in.Metric,
			Filters:   mergeFilters(in.Filters, seg.Filters),
			TimeRange: in.TimeRange,
		})
		if err != nil {
			return models.ComputedResult{}, err
		}
		value := floatAt(res, 0, "metric_value")
		sample := int64At(res, 0, "sample_size")
		rawVals[i] = value
		samples[i] = sample

		detail := models.NumberDetail{
			Label:       fmt.Sprintf("%s (%s)", seg.Name, describeFilters(seg.Filters)),
			RawValue:    value,
			Calculation: &models.Calculation{SampleSize: sample},
		}
		if sample == 0 {
			detail.Insufficient = true
			detail.Value = "no data"
		} else {
			detail.Value = formatMetricValue(in.Metric, value)
			points = append(points, models.ChartPoint{X: seg.Name, Y: value})
		}
		numbers = append(numbers, detail)
		traces = append(traces, res.Trace)
		totalMs += millis(res.Elapsed)
	}

	if samples[0] == 0 && samples[1] == 0 {
		return models.ComputedResult{}, &models.InsufficientDataError{
			Detail: "neither segment matched any transactions",
		}
	}

	diff := models.NumberDetail{Label: "Difference"}
	if samples[0] == 0 || samples[1] == 0 {
		diff.Insufficient = true
		diff.Value = "not computable"
	} else {
		d := rawVals[0] - rawVals[1]
		pct := 0.0
		if rawVals[1] != 0 {
			pct = d / rawVals[1] * 100
		}
		diff.Value = signedDiff(d, pct)
		diff.RawValue = d
	}
	numbers = append(numbers, diff)

	return models.ComputedResult{
		Operation: models.OpCompareSegments,
		Metric:    in.Metric,
		Numbers:   numbers,
		Chart: &models.Chart{
			Type:   models.ChartBar,
			Title:  fmt.Sprintf("%s Comparison", metricLabel(in.Metric)),
			YLabel: metricLabel(in.Metric),
			Points: points,
		},
		Traces:          traces,
		ExecutionMillis: totalMs,
	}, nil
}

func (r *Resolver) timeSeries(ctx context.Context, in models.Intent) (models.ComputedResult, error) {
	res, err := r.data.Execute(ctx, dataset.Request{
		Kind:        dataset.KindTimeSeries,
		Metric:      in.Metric,
		Filters:     in.Filters,
		TimeRange:   in.TimeRange,
		GroupBy:     in.GroupBy,
		Granularity: in.Granularity,
	})
	if err != nil {
		return models.ComputedResult{}, err
	}
	if res.Empty() {
		return models.ComputedResult{}, baseEmptyError(in)
	}
	label := metricLabel(in.Metric)

	series := make([]models.SeriesPoint, 0, len(res.Rows))
	points := make([]models.ChartPoint, 0, len(res.Rows))
	for i := range res.Rows {
		raw, _ := res.Value(i, "time_bucket")
		bucket := formatBucket(raw, in.Granularity)
		value := floatAt(res, i, "metric_value")
		group := ""
		if len(in.GroupBy) > 0 {
			group = groupKey(res, i, in.GroupBy)
		}
		series = append(series, models.SeriesPoint{Bucket: bucket, Group: group, Value: value})
		points = append(points, models.ChartPoint{X: bucket, Y: value, Label: group})
	}

	numbers := make([]models.NumberDetail, 0, 20)
	for i, sp := range series {
		if i == 20 {
			break
		}
		nl := sp.Bucket
		if sp.Group != "" {
			nl = sp.Bucket + " " + sp.Group
		}
		numbers = append(numbers, models.NumberDetail{
			Label:    nl,
			Value:    formatMetricValue(in.Metric, sp.Value),
			RawValue: sp.Value,
		})
	}

	return models.ComputedResult{
		Operation: models.OpTimeSeries,
		Metric:    in.Metric,
		Numbers:   numbers,
		Series:    series,
		Chart: &models.Chart{
			Type:   models.ChartLine,
			Title:  fmt.Sprintf("%s over Time", label),
			XLabel: "Date",
			YLabel: label,
			Points: points,
		},
		Traces:          []models.QueryTrace{res.Trace},
		ExecutionMillis: millis(res.Elapsed),
	}, nil
}

func (r *Resolver) topFailureCodes(ctx context.Context, in models.Intent) (models.ComputedResult, error) {
	res, err := r.data.Execute(ctx, dataset.Request{
		Kind:      dataset.KindTopFailureCodes,
		Filters:   in.Filters,
		TimeRange: in.TimeRange,
		TopK:      in.TopK,
	})
	if err != nil {
		return models.ComputedResult{}, err
	}
	if res.Empty() {
		return models.ComputedResult{}, &models.InsufficientDataError{
			Detail: "no failed transactions match the requested filters",
		}
	}

	numbers := make([]models.NumberDetail, 0, len(res.Rows))
	points := make([]models.ChartPoint, 0, len(res.Rows))
	for i := range res.Rows {
		code := stringAt(res, i, "failure_code")
		count := floatAt(res, i, "code_count")
		share := floatAt(res, i, "share_pct")
		numbers = append(numbers, models.NumberDetail{
			Label:       code,
			Value:       fmt.Sprintf("%s (%s)", formatCount(count), formatRate(share)),
			RawValue:    count,
			Calculation: &models.Calculation{SampleSize: int64(count)},
		})
		points = append(points, models.ChartPoint{X: code, Y: count})
	}

	return models.ComputedResult{
		Operation: models.OpTopFailureCodes,
		Numbers:   numbers,
		Chart: &models.Chart{
			Type:   models.ChartBar,
			Title:  "Top Failure Codes",
			XLabel: "Failure Code",
			YLabel: "Count",
			Points: points,
		},
		Traces:          []models.QueryTrace{res.Trace},
		ExecutionMillis: millis(res.Elapsed),
	}, nil
}

func (r *Resolver) executiveSummary(ctx context.Context, in models.Intent) (models.ComputedResult, error) {
	res, err := r.data.Execute(ctx, dataset.Request{
		Kind:      dataset.KindSummary,
		Filters:   in.Filters,
		TimeRange: in.TimeRange,
	})
	if err != nil {
		return models.ComputedResult{}, err
	}
	total := floatAt(res, 0, "total_transactions")
	if res.Empty() || total == 0 {
		return models.ComputedResult{}, baseEmptyError(in)
	}

	numbers := []models.NumberDetail{
		{
			Label:       "Total Transactions",
			Value:       formatCount(total),
			RawValue:    total,
			Calculation: &models.Calculation{SampleSize: int64(total)},
		},
		{Label: "Total Volume", Value: formatAmount(floatAt(res, 0, "total_volume")), RawValue: floatAt(res, 0, "total_volume")},
		{Label: "Average Transaction", Value: formatAmount(floatAt(res, 0, "avg_transaction_amount")), RawValue: floatAt(res, 0, "avg_transaction_amount")},
		{Label: "Failure Rate", Value: formatRate(floatAt(res, 0, "failure_rate")), RawValue: floatAt(res, 0, "failure_rate")},
		{Label: "Fraud Rate", Value: formatRate(floatAt(res, 0, "fraud_rate")), RawValue: floatAt(res, 0, "fraud_rate")},
		{Label: "Review Rate", Value: formatRate(floatAt(res, 0, "review_rate")), RawValue: floatAt(res, 0, "review_rate")},
	}
	return models.ComputedResult{
		Operation:       models.OpExecutiveSummary,
		Numbers:         numbers,
		Traces:          []models.QueryTrace{res.Trace},
		ExecutionMillis: millis(res.Elapsed),
	}, nil
}

// cacheableIntent strips extraction metadata so the cache key covers
// only fields that change the computation.
type cacheableIntent struct {
	Version     string                   `json:"version"`
	Operation   models.Operation         `json:"operation"`
	Metric      string                   `json:"metric,omitempty"`
	Filters     map[string]models.Filter `json:"filters,omitempty"`
	GroupBy     []string                 `json:"group_by,omitempty"`
	TimeRange   *models.TimeRange        `json:"time_range,omitempty"`
	Granularity models.Granularity       `json:"granularity,omitempty"`
	Segments    []models.Segment         `json:"segments,omitempty"`
	TopK        int                      `json:"top_k,omitempty"`
}

func intentCacheKey(in models.Intent) (string, error) {
	payload, err := json.Marshal(cacheableIntent{
		Version:     schema.Version,
		Operation:   in.Operation,
		Metric:      in.Metric,
		Filters:     in.Filters,
		GroupBy:     in.GroupBy,
		TimeRange:   in.TimeRange,
		Granularity: in.Granularity,
		Segments:    in.Segments,
		TopK:        in.TopK,
	})
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return cache.ResultKey(hex.EncodeToString(sum[:])), nil
}

func (r *Resolver) lookup(ctx context.Context, in models.Intent) (models.ComputedResult, bool) {
	key, err := intentCacheKey(in)
	if err != nil {
		return models.ComputedResult{}, false
	}
	data, err := r.results.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			r.logger.Warn("result cache read failed", "error", err)
		}
		return models.ComputedResult{}, false
	}
	var out models.ComputedResult
	if err := json.Unmarshal(data, &out); err != nil {
		return models.ComputedResult{}, false
	}
	r.logger.Debug("result cache hit", "operation", string(in.Operation))
	return out, true
}

// store writes the result for its normalized intent. Identical intents
// compute identical results, so a concurrent writer that got there
// first is left in place.
func (r *Resolver) store(ctx context.Context, in models.Intent, res models.ComputedResult) {
	key, err := intentCacheKey(in)
	if err != nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if _, err := r.results.SetNX(ctx, key, data, r.opts.CacheTTL); err != nil {
		r.logger.Warn("result cache write failed", "error", err)
	}
}

func baseEmptyError(in models.Intent) error {
	if !in.HasFilters() && in.TimeRange == nil {
		return &models.InsufficientDataError{Detail: "the dataset has no transactions"}
	}
	return &models.InvalidFilterError{
		Columns: in.FilterColumns(),
		Reason:  "no transactions match the requested filters",
	}
}

func mergeFilters(global, segment map[string]models.Filter) map[string]models.Filter {
	out := make(map[string]models.Filter, len(global)+len(segment))
	for k, v := range global {
		out[k] = v
	}
	for k, v := range segment {
		out[k] = v
	}
	return out
}

func groupKey(res dataset.Result, i int, groupBy []string) string {
	parts := make([]string, 0, len(groupBy))
	for _, col := range groupBy {
		v, _ := res.Value(i, col)
		parts = append(parts, asString(v))
	}
	return strings.Join(parts, " / ")
}

func formatBucket(v any, g models.Granularity) string {
	t, ok := asTime(v)
	if !ok {
		return asString(v)
	}
	if g == models.GranularityMonth {
		return t.Format("2006-01")
	}
	return t.Format("2006-01-02")
}

func floatAt(res dataset.Result, i int, column string) float64 {
	v, ok := res.Value(i, column)
	if !ok {
		return 0
	}
	f, _ := asFloat(v)
	return f
}

func int64At(res dataset.Result, i int, column string) int64 {
	v, ok := res.Value(i, column)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func stringAt(res dataset.Result, i int, column string) string {
	v, ok := res.Value(i, column)
	if !ok {
		return ""
	}
	return asString(v)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func asTime(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	case time.Time:
		return s.Format("2006-01-02")
	}
	return fmt.Sprintf("%v", v)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
