package explain

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/insightxstack/insightx-nlq/internal/models"
	"github.com/insightxstack/insightx-nlq/internal/schema"
)

// FollowupEngine produces the suggested next questions for an answer.
// Suggestions come from an optional YAML rule pack plus a heuristic
// over dimensions the intent did not use. Both sources are
// deterministic, so followups stay safe even when narrative generation
// is skipped.
type FollowupEngine struct {
	rules  []FollowupRule
	max    int
	logger *slog.Logger
}

// FollowupRule maps intent shapes to canned suggestions.
type FollowupRule struct {
	ID          string            `yaml:"id"`
	Match       FollowupRuleMatch `yaml:"match"`
	Suggestions []string          `yaml:"suggestions"`
}

// FollowupRuleMatch defines optional attributes for rule matching. An
// empty attribute matches everything.
type FollowupRuleMatch struct {
	Operations []string `yaml:"operations"`
	Metrics    []string `yaml:"metrics"`
}

type followupRuleFile struct {
	Rules []FollowupRule `yaml:"rules"`
}

// NewFollowupEngine loads the rule pack from path. A missing file is
// not an error; the engine then runs on the heuristic alone.
func NewFollowupEngine(path string, max int, logger *slog.Logger) (*FollowupEngine, error) {
	if max <= 0 {
		max = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	engine := &FollowupEngine{max: max, logger: logger}
	if path == "" {
		return engine, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn("followup rule pack not found, using heuristics only", "path", path)
			return engine, nil
		}
		return nil, err
	}
	var file followupRuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	engine.rules = file.Rules
	return engine, nil
}

// Suggest returns up to max followups for an answered intent. Rule
// suggestions come first, then unused-dimension drilldowns, then a
// trend prompt when the question had no time angle.
func (e *FollowupEngine) Suggest(intent models.Intent, result models.ComputedResult) []string {
	if e == nil {
		return nil
	}
	suggestions := make([]string, 0, e.max)
	for _, rule := range e.rules {
		if !ruleMatches(rule.Match, intent) {
			continue
		}
		suggestions = appendUnique(suggestions, rule.Suggestions...)
	}
	for _, col := range unusedDimensions(intent) {
		suggestions = appendUnique(suggestions,
			fmt.Sprintf("How does this break down by %s?", humanizeColumn(col)))
	}
	if intent.TimeRange == nil && intent.Operation != models.OpTimeSeries {
		suggestions = appendUnique(suggestions, "How has this changed over the last 30 days?")
	}
	if len(suggestions) > e.max {
		suggestions = suggestions[:e.max]
	}
	return suggestions
}

// MergePopular fills remaining followup slots with popular phrasings
// from mined patterns. Patterns matching the question just answered are
// skipped so a followup never suggests repeating it.
func (e *FollowupEngine) MergePopular(existing []string, current models.Intent, patterns []models.QueryPattern) []string {
	if e == nil {
		return existing
	}
	for _, p := range patterns {
		if len(existing) >= e.max {
			break
		}
		if p.Example == "" {
			continue
		}
		if p.Operation == current.Operation && p.Metric == current.Metric {
			continue
		}
		existing = appendUnique(existing, p.Example)
	}
	if len(existing) > e.max {
		existing = existing[:e.max]
	}
	return existing
}

func ruleMatches(match FollowupRuleMatch, intent models.Intent) bool {
	if len(match.Operations) > 0 && !containsFold(match.Operations, string(intent.Operation)) {
		return false
	}
	if len(match.Metrics) > 0 && !containsFold(match.Metrics, intent.Metric) {
		return false
	}
	return true
}

// unusedDimensions lists groupable dimensions the intent neither
// grouped, filtered, nor segmented on, in catalog order.
func unusedDimensions(intent models.Intent) []string {
	used := make(map[string]bool)
	for _, col := range intent.GroupBy {
		used[col] = true
	}
	for col := range intent.Filters {
		used[col] = true
	}
	for _, seg := range intent.Segments {
		for col := range seg.Filters {
			used[col] = true
		}
	}
	var out []string
	for _, col := range schema.Dimensions() {
		if used[col] {
			continue
		}
		out = append(out, col)
	}
	return out
}

func humanizeColumn(col string) string {
	return strings.ReplaceAll(col, "_", " ")
}

func containsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}

func appendUnique(existing []string, additions ...string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		seen[s] = struct{}{}
	}
	for _, item := range additions {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		existing = append(existing, item)
		seen[item] = struct{}{}
	}
	return existing
}
