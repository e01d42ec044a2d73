// Package usage mines session history into query patterns: which
// operations and metrics a session keeps reaching for. The output is
// advisory, feeding popular-query followup suggestions.
package usage

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/insightxstack/insightx-nlq/internal/models"
)

// Store abstracts persistence for mined patterns.
type Store interface {
	StorePatterns(ctx context.Context, sessionID string, patterns []models.QueryPattern) error
}

// Miner mines frequency-based query patterns from session turns.
type Miner struct {
	store  Store
	logger *slog.Logger
}

// NewMiner constructs a Miner; store may be nil for dry runs.
func NewMiner(logger *slog.Logger, store Store) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{store: store, logger: logger}
}

// Mine aggregates turns into patterns keyed by operation and metric,
// ordered by prevalence. Ties break on the pattern id so output stays
// stable.
func (m *Miner) Mine(ctx context.Context, sessionID string, turns []models.Turn) ([]models.QueryPattern, error) {
	if len(turns) == 0 {
		return nil, nil
	}

	stats := make(map[string]*patternAggregate)
	for _, turn := range turns {
		op := turn.Intent.Operation
		if !op.Runnable() {
			continue
		}
		agg := ensureAggregate(stats, op, turn.Intent.Metric)
		agg.count++
		if turn.At.After(agg.lastSeen) {
			agg.lastSeen = turn.At
			agg.example = turn.Query
		}
		for _, col := range turn.Intent.GroupBy {
			agg.dimensionCounts[col]++
		}
		for _, col := range turn.Intent.FilterColumns() {
			agg.dimensionCounts[col]++
		}
	}
	if len(stats) == 0 {
		return nil, nil
	}

	patterns := make([]models.QueryPattern, 0, len(stats))
	for id, agg := range stats {
		patterns = append(patterns, models.QueryPattern{
			ID:         id,
			Operation:  agg.operation,
			Metric:     agg.metric,
			Count:      agg.count,
			Prevalence: float64(agg.count) / float64(len(turns)),
			LastSeen:   agg.lastSeen,
			Example:    agg.example,
			Dimensions: agg.topDimensions(3),
		})
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Prevalence != patterns[j].Prevalence {
			return patterns[i].Prevalence > patterns[j].Prevalence
		}
		return patterns[i].ID < patterns[j].ID
	})

	if m.store != nil {
		if err := m.store.StorePatterns(ctx, sessionID, patterns); err != nil {
			m.logger.Warn("pattern store failed", slog.Any("error", err))
		}
	}
	return patterns, nil
}

type patternAggregate struct {
	operation       models.Operation
	metric          string
	count           int
	lastSeen        time.Time
	example         string
	dimensionCounts map[string]int
}

func ensureAggregate(stats map[string]*patternAggregate, op models.Operation, metric string) *patternAggregate {
	id := string(op)
	if metric != "" {
		id += "/" + metric
	}
	agg, ok := stats[id]
	if !ok {
		agg = &patternAggregate{
			operation:       op,
			metric:          metric,
			dimensionCounts: make(map[string]int),
		}
		stats[id] = agg
	}
	return agg
}

func (agg *patternAggregate) topDimensions(limit int) []string {
	dims := make([]string, 0, len(agg.dimensionCounts))
	for col := range agg.dimensionCounts {
		dims = append(dims, col)
	}
	sort.Slice(dims, func(i, j int) bool {
		if agg.dimensionCounts[dims[i]] != agg.dimensionCounts[dims[j]] {
			return agg.dimensionCounts[dims[i]] > agg.dimensionCounts[dims[j]]
		}
		return dims[i] < dims[j]
	})
	if len(dims) > limit {
		dims = dims[:limit]
	}
	return dims
}
