// Package explain turns computed results into user-facing answers.
// Narrative text is generated by the model but never trusted: every
// numeric token is verified against the computed result, with one
// corrective retry and a templated fallback. Followups and
// clarifications are fully deterministic.
package explain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/insightxstack/insightx-nlq/internal/llm"
	"github.com/insightxstack/insightx-nlq/internal/metrics"
	"github.com/insightxstack/insightx-nlq/internal/models"
)

const narrativeSystem = `You are InsightX, a payments analytics assistant writing the final answer for a leadership audience.

INPUT: the user's question and analysis_json holding deterministically computed results.

RULES:
1. Use ONLY numbers present in analysis_json. Never invent, estimate, or extrapolate a value.
2. Every number you mention must appear in the numbers array.
3. Lead with the key figure. Keep the summary to at most two sentences.

OUTPUT: Return JSON with exactly these keys:
{
  "summary": "one or two sentence conclusion containing the key numbers",
  "method": "1-2 sentences on how the result was computed, referencing the aggregation and filters"
}

Return valid JSON only, starting with { and ending with }.`

// SynthesizerOptions tune narrative generation.
type SynthesizerOptions struct {
	Temperature float64
	Timeout     time.Duration
	MaxTokens   int
}

// Synthesizer produces the analysis payload for a resolved intent.
type Synthesizer struct {
	client    llm.Client
	followups *FollowupEngine
	opts      SynthesizerOptions
	logger    *slog.Logger
}

// NewSynthesizer wires the narrative generator. followups may be nil.
func NewSynthesizer(client llm.Client, followups *FollowupEngine, opts SynthesizerOptions, logger *slog.Logger) *Synthesizer {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		client:    client,
		followups: followups,
		opts:      opts,
		logger:    logger,
	}
}

// Explain builds the final analysis for a computed result. The numbers,
// series, chart, and traces always come from the result verbatim; only
// the summary and method lines are generated, and only when they pass
// the grounding check. Explain never fails: an unusable narrative
// degrades to the templated summary.
func (s *Synthesizer) Explain(ctx context.Context, query string, intent models.Intent, result models.ComputedResult) models.Analysis {
	followups := s.followups.Suggest(intent, result)

	draft, ok := s.narrate(ctx, query, result)
	if !ok {
		return fallbackAnalysis(result, followups)
	}
	return models.Analysis{
		Summary:   draft.Summary,
		Numbers:   result.Numbers,
		Series:    result.Series,
		Chart:     result.Chart,
		Traces:    result.Traces,
		Method:    draft.Method,
		Followups: followups,
	}
}

type narrative struct {
	Summary string `json:"summary"`
	Method  string `json:"method"`
}

func (n narrative) text() string { return n.Summary + "\n" + n.Method }

// narrate generates a draft and verifies it, retrying once with the
// offending tokens named before giving up.
func (s *Synthesizer) narrate(ctx context.Context, query string, result models.ComputedResult) (narrative, bool) {
	draft, err := s.generate(ctx, query, result, nil)
	if err != nil {
		s.logger.Warn("narrative generation failed, using templated summary", "error", err)
		return narrative{}, false
	}
	ok, offending := verifyGrounding(draft.text(), result)
	if ok {
		return draft, true
	}
	metrics.IncGroundingRejection()
	s.logger.Warn("narrative failed grounding check, retrying",
		"offending", strings.Join(offending, " "))

	draft, err = s.generate(ctx, query, result, offending)
	if err != nil {
		s.logger.Warn("narrative retry failed, using templated summary", "error", err)
		return narrative{}, false
	}
	ok, offending = verifyGrounding(draft.text(), result)
	if !ok {
		metrics.IncGroundingRejection()
		s.logger.Warn("narrative failed grounding check twice, using templated summary",
			"offending", strings.Join(offending, " "))
		return narrative{}, false
	}
	return draft, true
}

func (s *Synthesizer) generate(ctx context.Context, query string, result models.ComputedResult, offending []string) (narrative, error) {
	payload, err := json.MarshalIndent(analysisPayload(result), "", "  ")
	if err != nil {
		return narrative{}, err
	}

	prompt := fmt.Sprintf("Original user question: %s\n\nAnalysis results (source of truth for all numbers):\n```json\n%s\n```\n\nWrite the explanation using ONLY the numbers from the analysis results above. Return JSON only.", query, payload)
	if len(offending) > 0 {
		prompt += fmt.Sprintf("\n\nYour previous draft mentioned numbers that are not in the analysis results: %s. Rewrite it using only values that appear above.", strings.Join(offending, ", "))
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := s.client.Complete(ctx, llm.CompletionRequest{
		System:      narrativeSystem,
		Prompt:      prompt,
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	})
	metrics.ObserveModelCall("narrate", time.Since(start), err)
	if err != nil {
		return narrative{}, err
	}

	var out narrative
	if err := json.Unmarshal([]byte(llm.StripFences(raw)), &out); err != nil {
		return narrative{}, fmt.Errorf("malformed narrative json: %w", err)
	}
	if strings.TrimSpace(out.Summary) == "" {
		return narrative{}, fmt.Errorf("narrative missing summary")
	}
	return out, nil
}

// analysisPayload shapes the prompt input. It carries only computed
// values, never raw rows.
func analysisPayload(result models.ComputedResult) map[string]any {
	queries := make([]string, 0, len(result.Traces))
	for _, tr := range result.Traces {
		queries = append(queries, tr.Statement)
	}
	return map[string]any{
		"operation":         result.Operation,
		"metric":            result.Metric,
		"numbers":           result.Numbers,
		"series":            result.Series,
		"queries_executed":  queries,
		"execution_time_ms": result.ExecutionMillis,
	}
}
