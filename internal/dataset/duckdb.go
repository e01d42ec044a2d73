package dataset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/insightxstack/insightx-nlq/internal/metrics"
	"github.com/insightxstack/insightx-nlq/internal/models"
	"github.com/insightxstack/insightx-nlq/internal/schema"
	"github.com/insightxstack/insightx-nlq/internal/utils"
)

// requiredColumns must all be present in the loaded CSV.
var requiredColumns = []string{
	schema.ColTransactionID,
	schema.ColTimestamp,
	schema.ColAmount,
	schema.ColPaymentMethod,
	schema.ColDevice,
	schema.ColState,
	schema.ColAgeGroup,
	schema.ColNetwork,
	schema.ColCategory,
	schema.ColStatus,
	schema.ColFailureCode,
	schema.ColFraudFlag,
	schema.ColReviewFlag,
}

// Store runs compiled statements against an in-memory DuckDB instance
// holding the transactions CSV.
type Store struct {
	db           *sql.DB
	queryTimeout time.Duration
	logger       *slog.Logger

	rowCount int64
	minTime  time.Time
	maxTime  time.Time
}

// Open loads the CSV at path into DuckDB, validates the columns, and
// records the dataset's time extent.
func Open(ctx context.Context, path string, queryTimeout time.Duration, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, utils.NewAppError("dataset.open", "open duckdb", err)
	}

	create := fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM read_csv_auto(%s, header=true)",
		schema.TableName, quoteLiteral(path))
	if _, err := db.ExecContext(ctx, create); err != nil {
		_ = db.Close()
		return nil, utils.NewAppError("dataset.open", fmt.Sprintf("load csv %s", path), err)
	}

	s := &Store{db: db, queryTimeout: queryTimeout, logger: logger}
	if err := s.validateColumns(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.loadBounds(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("dataset loaded",
		"path", path,
		"rows", s.rowCount,
		"from", s.minTime.Format("2006-01-02"),
		"to", s.maxTime.Format("2006-01-02"))
	return s, nil
}

func (s *Store) validateColumns(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT column_name FROM information_schema.columns WHERE table_name = ?", schema.TableName)
	if err != nil {
		return utils.NewAppError("dataset.open", "inspect columns", err)
	}
	defer rows.Close()

	present := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return utils.NewAppError("dataset.open", "scan column name", err)
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return utils.NewAppError("dataset.open", "iterate columns", err)
	}

	var missing []string
	for _, col := range requiredColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return utils.NewAppError("dataset.open",
			fmt.Sprintf("csv missing required columns: %s", strings.Join(missing, ", ")), nil)
	}
	return nil
}

func (s *Store) loadBounds(ctx context.Context) error {
	var count int64
	var minTS, maxTS sql.NullTime
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*), MIN(timestamp), MAX(timestamp) FROM %s", schema.TableName))
	if err := row.Scan(&count, &minTS, &maxTS); err != nil {
		return utils.NewAppError("dataset.open", "read dataset bounds", err)
	}
	if count == 0 || !minTS.Valid || !maxTS.Valid {
		return utils.NewAppError("dataset.open", "dataset is empty", nil)
	}
	s.rowCount = count
	s.minTime = minTS.Time
	s.maxTime = maxTS.Time
	return nil
}

// Bounds returns the inclusive time extent of the loaded data.
func (s *Store) Bounds() (time.Time, time.Time) {
	return s.minTime, s.maxTime
}

// Execute compiles and runs one request under the store's query
// timeout.
func (s *Store) Execute(ctx context.Context, req Request) (Result, error) {
	stmt, args, err := Compile(req)
	if err != nil {
		return Result{}, err
	}

	qctx := ctx
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := s.db.QueryContext(qctx, stmt, args...)
	elapsed := time.Since(start)
	metrics.ObserveDatasetQuery(string(req.Kind), elapsed, err)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, &models.ResourceExhaustedError{Stage: "dataset", Timeout: s.queryTimeout, Cause: err}
		}
		return Result{}, fmt.Errorf("execute %s: %w", req.Kind, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("columns for %s: %w", req.Kind, err)
	}

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, fmt.Errorf("scan %s row: %w", req.Kind, err)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, &models.ResourceExhaustedError{Stage: "dataset", Timeout: s.queryTimeout, Cause: err}
		}
		return Result{}, fmt.Errorf("iterate %s rows: %w", req.Kind, err)
	}

	s.logger.Debug("dataset query",
		"kind", string(req.Kind),
		"rows", len(out),
		"elapsed", elapsed)

	return Result{
		Columns: cols,
		Rows:    out,
		Trace:   models.QueryTrace{Statement: stmt, Params: renderParams(args)},
		Elapsed: elapsed,
	}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func renderParams(args []any) []string {
	if len(args) == 0 {
		return nil
	}
	out := make([]string, 0, len(args))
	for _, a := range args {
		switch v := a.(type) {
		case time.Time:
			out = append(out, v.UTC().Format(time.RFC3339))
		case string:
			out = append(out, v)
		case float64:
			out = append(out, strconv.FormatFloat(v, 'f', -1, 64))
		default:
			out = append(out, fmt.Sprintf("%v", v))
		}
	}
	return out
}
