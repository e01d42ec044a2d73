package engine

import (
	"fmt"
	"strings"

	"github.com/insightxstack/insightx-nlq/internal/models"
	"github.com/insightxstack/insightx-nlq/internal/schema"
)

// ValidateIntent checks an extracted intent against the dataset
// vocabulary and returns the precise taxonomy error for anything the
// resolver cannot honor. The extractor passes unknown terms through
// untouched so the diagnosis happens here, in one place.
func ValidateIntent(in models.Intent) error {
	if !in.Operation.Valid() {
		return &models.UnsupportedOperationError{
			Reason: fmt.Sprintf("unknown operation %q", in.Operation),
		}
	}
	if in.Operation == models.OpUnsupported {
		return &models.UnsupportedOperationError{Subject: in.Metric, Reason: in.Reason}
	}

	if err := validateMetric(in); err != nil {
		return err
	}
	if err := validateFilters(in.Filters); err != nil {
		return err
	}

	switch in.Operation {
	case models.OpFailureRate, models.OpAggregate, models.OpTimeSeries:
		for _, col := range in.GroupBy {
			if !schema.IsGroupable(col) {
				return &models.InvalidFilterError{
					Columns: []string{col},
					Reason:  "column cannot be grouped by",
				}
			}
		}
	case models.OpCompareSegments:
		if len(in.Segments) != 2 {
			return &models.UnsupportedOperationError{
				Reason: "a comparison needs exactly two segments",
			}
		}
		for _, seg := range in.Segments {
			if len(seg.Filters) == 0 {
				return &models.InvalidFilterError{
					Reason: fmt.Sprintf("segment %q has no filters", seg.Name),
				}
			}
			if err := validateFilters(seg.Filters); err != nil {
				return err
			}
		}
	}

	if in.Granularity != "" && !in.Granularity.Valid() {
		return &models.UnsupportedOperationError{
			Reason: fmt.Sprintf("unknown granularity %q", in.Granularity),
		}
	}
	if in.TopK < 0 || in.TopK > 20 {
		return &models.UnsupportedOperationError{
			Reason: fmt.Sprintf("top_k %d is out of range", in.TopK),
		}
	}
	return nil
}

func validateMetric(in models.Intent) error {
	switch in.Operation {
	case models.OpAggregate, models.OpTimeSeries, models.OpCompareSegments:
		if in.Metric == "" {
			return &models.UnsupportedOperationError{
				Reason: fmt.Sprintf("operation %s requires a metric", in.Operation),
			}
		}
		if _, ok := schema.CanonicalMetric(in.Metric); !ok {
			return &models.UnsupportedOperationError{
				Subject: in.Metric,
				Reason:  "metric is not in the catalog",
			}
		}
	}
	return nil
}

func validateFilters(filters map[string]models.Filter) error {
	for col, f := range filters {
		if col == schema.ColAmount {
			if f.Min == nil && f.Max == nil {
				return &models.InvalidFilterError{
					Columns: []string{col},
					Reason:  "amount filters need a min or max bound",
				}
			}
			if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
				return &models.InvalidFilterError{
					Columns: []string{col},
					Reason:  "amount min exceeds max",
				}
			}
			continue
		}
		if !schema.IsDimension(col) {
			return &models.InvalidFilterError{
				Columns: []string{col},
				Reason:  "unknown column",
			}
		}
		if len(f.Values) == 0 {
			return &models.InvalidFilterError{
				Columns: []string{col},
				Reason:  "filter has no values",
			}
		}
		for _, v := range f.Values {
			if _, ok := schema.CanonicalValue(col, v); !ok {
				known := schema.DimensionValues(col)
				return &models.InvalidFilterError{
					Columns: []string{col},
					Reason:  fmt.Sprintf("value %q is not one of %s", v, strings.Join(known, ", ")),
				}
			}
		}
	}
	return nil
}
