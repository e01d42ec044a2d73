package dataset

import (
	"fmt"
	"sort"
	"strings"

	"github.com/insightxstack/insightx-nlq/internal/models"
	"github.com/insightxstack/insightx-nlq/internal/schema"
)

// defaultGroupLimit caps grouped aggregate output, matching the most
// values a single bar chart stays readable at.
const defaultGroupLimit = 20

// Compile turns a Request into a parameterized statement. The same
// request always compiles to the same statement and argument list.
func Compile(req Request) (string, []any, error) {
	switch req.Kind {
	case KindFailureRate:
		return compileFailureRate(req)
	case KindAggregate:
		return compileAggregate(req)
	case KindTimeSeries:
		return compileTimeSeries(req)
	case KindTopFailureCodes:
		return compileTopFailureCodes(req)
	case KindSummary:
		return compileSummary(req)
	}
	return "", nil, fmt.Errorf("unknown request kind %q", req.Kind)
}

func metricExpr(metric string) (string, error) {
	switch metric {
	case schema.MetricVolume:
		return "COUNT(*)", nil
	case schema.MetricAvgAmount:
		return "ROUND(AVG(amount), 2)", nil
	case schema.MetricTotalAmount:
		return "ROUND(SUM(amount), 2)", nil
	case schema.MetricFailureRate:
		return "ROUND(100.0 * SUM(CASE WHEN status = 'Failed' THEN 1 ELSE 0 END) / NULLIF(COUNT(*), 0), 2)", nil
	case schema.MetricFraudRate:
		return "ROUND(100.0 * SUM(CASE WHEN fraud_flag = 1 THEN 1 ELSE 0 END) / NULLIF(COUNT(*), 0), 4)", nil
	case schema.MetricReviewRate:
		return "ROUND(100.0 * SUM(CASE WHEN review_flag = 1 THEN 1 ELSE 0 END) / NULLIF(COUNT(*), 0), 2)", nil
	}
	return "", fmt.Errorf("no expression for metric %q", metric)
}

// buildWhere renders the filter clauses in deterministic column order.
func buildWhere(filters map[string]models.Filter, tr *models.TimeRange) (string, []any, error) {
	conds := make([]string, 0, len(filters)+2)
	args := make([]any, 0, len(filters)+2)

	cols := make([]string, 0, len(filters))
	for c := range filters {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	for _, col := range cols {
		f := filters[col]
		switch {
		case len(f.Values) == 1:
			if !schema.IsDimension(col) {
				return "", nil, fmt.Errorf("cannot filter column %q by value", col)
			}
			conds = append(conds, fmt.Sprintf("%s = ?", col))
			args = append(args, f.Values[0])
		case len(f.Values) > 1:
			if !schema.IsDimension(col) {
				return "", nil, fmt.Errorf("cannot filter column %q by value", col)
			}
			vals := append([]string(nil), f.Values...)
			sort.Strings(vals)
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(vals)), ", ")
			conds = append(conds, fmt.Sprintf("%s IN (%s)", col, placeholders))
			for _, v := range vals {
				args = append(args, v)
			}
		case f.Min != nil || f.Max != nil:
			if !schema.IsNumeric(col) {
				return "", nil, fmt.Errorf("cannot range-filter column %q", col)
			}
			if f.Min != nil {
				conds = append(conds, fmt.Sprintf("%s >= ?", col))
				args = append(args, *f.Min)
			}
			if f.Max != nil {
				conds = append(conds, fmt.Sprintf("%s <= ?", col))
				args = append(args, *f.Max)
			}
		default:
			return "", nil, fmt.Errorf("empty filter on column %q", col)
		}
	}

	if tr != nil {
		conds = append(conds, "timestamp >= ?", "timestamp < ?")
		args = append(args, tr.Start, tr.End)
	}

	if len(conds) == 0 {
		return "1=1", nil, nil
	}
	return strings.Join(conds, " AND "), args, nil
}

func validateGroupBy(cols []string) error {
	for _, c := range cols {
		if !schema.IsGroupable(c) {
			return fmt.Errorf("cannot group by column %q", c)
		}
	}
	return nil
}

func compileFailureRate(req Request) (string, []any, error) {
	where, args, err := buildWhere(req.Filters, req.TimeRange)
	if err != nil {
		return "", nil, err
	}
	stmt := fmt.Sprintf(`SELECT COUNT(*) AS total_transactions,
  SUM(CASE WHEN status = 'Failed' THEN 1 ELSE 0 END) AS failed_transactions,
  ROUND(100.0 * SUM(CASE WHEN status = 'Failed' THEN 1 ELSE 0 END) / NULLIF(COUNT(*), 0), 2) AS failure_rate_pct
FROM %s
WHERE %s`, schema.TableName, where)
	return stmt, args, nil
}

func compileAggregate(req Request) (string, []any, error) {
	expr, err := metricExpr(req.Metric)
	if err != nil {
		return "", nil, err
	}
	where, args, err := buildWhere(req.Filters, req.TimeRange)
	if err != nil {
		return "", nil, err
	}

	if len(req.GroupBy) == 0 {
		stmt := fmt.Sprintf("SELECT %s AS metric_value, COUNT(*) AS sample_size FROM %s WHERE %s",
			expr, schema.TableName, where)
		return stmt, args, nil
	}

	if err := validateGroupBy(req.GroupBy); err != nil {
		return "", nil, err
	}
	limit := req.GroupLimit
	if limit <= 0 {
		limit = defaultGroupLimit
	}
	groupCols := strings.Join(req.GroupBy, ", ")
	stmt := fmt.Sprintf("SELECT %s, %s AS metric_value, COUNT(*) AS sample_size FROM %s WHERE %s GROUP BY %s ORDER BY metric_value DESC, %s LIMIT %d",
		groupCols, expr, schema.TableName, where, groupCols, groupCols, limit)
	return stmt, args, nil
}

func timeBucketExpr(g models.Granularity) (string, error) {
	switch g {
	case models.GranularityDay, "":
		return "CAST(timestamp AS DATE)", nil
	case models.GranularityWeek:
		return "DATE_TRUNC('week', CAST(timestamp AS DATE))", nil
	case models.GranularityMonth:
		return "DATE_TRUNC('month', CAST(timestamp AS DATE))", nil
	}
	return "", fmt.Errorf("unknown granularity %q", g)
}

func compileTimeSeries(req Request) (string, []any, error) {
	expr, err := metricExpr(req.Metric)
	if err != nil {
		return "", nil, err
	}
	bucket, err := timeBucketExpr(req.Granularity)
	if err != nil {
		return "", nil, err
	}
	where, args, err := buildWhere(req.Filters, req.TimeRange)
	if err != nil {
		return "", nil, err
	}

	if len(req.GroupBy) == 0 {
		stmt := fmt.Sprintf("SELECT %s AS time_bucket, %s AS metric_value FROM %s WHERE %s GROUP BY time_bucket ORDER BY time_bucket",
			bucket, expr, schema.TableName, where)
		return stmt, args, nil
	}

	if err := validateGroupBy(req.GroupBy); err != nil {
		return "", nil, err
	}
	groupCols := strings.Join(req.GroupBy, ", ")
	stmt := fmt.Sprintf("SELECT %s AS time_bucket, %s, %s AS metric_value FROM %s WHERE %s GROUP BY time_bucket, %s ORDER BY time_bucket, %s",
		bucket, groupCols, expr, schema.TableName, where, groupCols, groupCols)
	return stmt, args, nil
}

func compileTopFailureCodes(req Request) (string, []any, error) {
	where, args, err := buildWhere(req.Filters, req.TimeRange)
	if err != nil {
		return "", nil, err
	}
	k := req.TopK
	if k <= 0 {
		k = 5
	}
	stmt := fmt.Sprintf(`SELECT COALESCE(failure_code, 'Unknown') AS failure_code,
  COUNT(*) AS code_count,
  ROUND(100.0 * COUNT(*) / SUM(COUNT(*)) OVER (), 2) AS share_pct
FROM %s
WHERE %s AND status = '%s'
GROUP BY 1
ORDER BY code_count DESC, failure_code ASC
LIMIT %d`, schema.TableName, where, schema.StatusFailed, k)
	return stmt, args, nil
}

func compileSummary(req Request) (string, []any, error) {
	where, args, err := buildWhere(req.Filters, req.TimeRange)
	if err != nil {
		return "", nil, err
	}
	stmt := fmt.Sprintf(`SELECT COUNT(*) AS total_transactions,
  ROUND(SUM(amount), 2) AS total_volume,
  ROUND(AVG(amount), 2) AS avg_transaction_amount,
  ROUND(100.0 * SUM(CASE WHEN status = 'Failed' THEN 1 ELSE 0 END) / NULLIF(COUNT(*), 0), 2) AS failure_rate,
  ROUND(100.0 * SUM(CASE WHEN fraud_flag = 1 THEN 1 ELSE 0 END) / NULLIF(COUNT(*), 0), 4) AS fraud_rate,
  ROUND(100.0 * SUM(CASE WHEN review_flag = 1 THEN 1 ELSE 0 END) / NULLIF(COUNT(*), 0), 2) AS review_rate
FROM %s
WHERE %s`, schema.TableName, where)
	return stmt, args, nil
}
