// Package extract turns natural-language questions into structured
// intents. The model's reply is validated against a closed JSON schema
// in a single shot; a reply the schema rejects fails the request
// rather than triggering a repair loop.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kaptinlin/jsonschema"

	"github.com/insightxstack/insightx-nlq/internal/llm"
	"github.com/insightxstack/insightx-nlq/internal/metrics"
	"github.com/insightxstack/insightx-nlq/internal/models"
	"github.com/insightxstack/insightx-nlq/internal/schema"
	"github.com/insightxstack/insightx-nlq/internal/utils"
)

// Extractor drives the extraction model call and conversion.
type Extractor struct {
	client    llm.Client
	contract  *jsonschema.Schema
	timeout   time.Duration
	maxTokens int
	logger    *slog.Logger
}

// New compiles the intent contract and returns a ready extractor.
func New(client llm.Client, timeout time.Duration, maxTokens int, logger *slog.Logger) (*Extractor, error) {
	compiler := jsonschema.NewCompiler()
	contract, err := compiler.Compile([]byte(intentSchemaJSON))
	if err != nil {
		return nil, utils.NewAppError("extract.new", "compile intent contract", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		client:    client,
		contract:  contract,
		timeout:   timeout,
		maxTokens: maxTokens,
		logger:    logger,
	}, nil
}

// Extract runs one model call and converts the reply into an Intent.
// now anchors relative time phrases.
func (e *Extractor) Extract(ctx context.Context, query, contextText string, now time.Time) (models.Intent, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := e.client.Complete(ctx, llm.CompletionRequest{
		System:      systemPrompt(),
		Prompt:      userPrompt(query, contextText),
		Temperature: 0,
		MaxTokens:   e.maxTokens,
	})
	metrics.ObserveModelCall("extract", time.Since(start), err)
	if err != nil {
		if llm.IsTimeout(err) {
			return models.Intent{}, &models.ResourceExhaustedError{Stage: "model", Timeout: e.timeout, Cause: err}
		}
		return models.Intent{}, &models.ExtractionFailedError{Detail: "model call failed", Cause: err}
	}

	text := llm.StripFences(raw)
	result := e.contract.ValidateJSON([]byte(text))
	if !result.IsValid() {
		e.logger.Warn("intent contract rejected model output", "errors", fmt.Sprintf("%v", result.Errors))
		return models.Intent{}, &models.ExtractionFailedError{
			Detail: fmt.Sprintf("contract violation: %v", result.Errors),
		}
	}

	var wire wireIntent
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return models.Intent{}, &models.ExtractionFailedError{Detail: "malformed json", Cause: err}
	}
	return convert(wire, now)
}

// convert maps the validated wire payload onto the internal intent,
// canonicalizing vocabulary values and resolving time to absolute
// instants. Unknown columns and values pass through for the resolver
// to reject with a precise diagnosis.
func convert(wire wireIntent, now time.Time) (models.Intent, error) {
	intent := models.Intent{
		Operation:          models.Operation(wire.Operation),
		Metric:             wire.Metric,
		GroupBy:            wire.GroupBy,
		Granularity:        models.Granularity(wire.Granularity),
		TopK:               wire.TopK,
		Confidence:         clamp01(wire.Confidence),
		Reason:             wire.Reason,
		NeedsClarification: wire.NeedsClarification,
	}

	if m, ok := schema.CanonicalMetric(wire.Metric); ok {
		intent.Metric = m
	}

	intent.Filters = convertFilters(wire.Filters, wire.AmountRange)

	if len(wire.Segments) > 0 {
		intent.Segments = make([]models.Segment, 0, len(wire.Segments))
		for i, seg := range wire.Segments {
			name := seg.Name
			if name == "" {
				name = fmt.Sprintf("Segment %c", 'A'+i)
			}
			intent.Segments = append(intent.Segments, models.Segment{
				Name:    name,
				Filters: convertFilters(seg.Filters, nil),
			})
		}
	}

	if wire.Time != nil {
		tr, err := resolveTime(*wire.Time, now)
		if err != nil {
			return models.Intent{}, err
		}
		intent.TimeRange = tr
	}

	return intent, nil
}

func convertFilters(raw map[string][]string, amount *wireRange) map[string]models.Filter {
	if len(raw) == 0 && amount == nil {
		return nil
	}
	out := make(map[string]models.Filter, len(raw)+1)
	for col, vals := range raw {
		canon := make([]string, 0, len(vals))
		for _, v := range vals {
			if cv, ok := schema.CanonicalValue(col, v); ok {
				canon = append(canon, cv)
			} else {
				canon = append(canon, v)
			}
		}
		out[col] = models.Filter{Values: canon}
	}
	if amount != nil && (amount.Min != nil || amount.Max != nil) {
		out[schema.ColAmount] = models.Filter{Min: amount.Min, Max: amount.Max}
	}
	return out
}

// resolveTime turns the wire time block into a half-open absolute
// range. Explicit "to" dates are inclusive of that whole day.
func resolveTime(wt wireTime, now time.Time) (*models.TimeRange, error) {
	if wt.Period != "" {
		start, end, ok := utils.LookbackRange(wt.Period, now)
		if !ok {
			start, end, _ = utils.LookbackRange(utils.PeriodLast30Days, now)
		}
		return &models.TimeRange{Start: start, End: end}, nil
	}

	var tr models.TimeRange
	if wt.From != "" {
		from, err := utils.ParseDay(wt.From)
		if err != nil {
			return nil, &models.ExtractionFailedError{Detail: "invalid from date", Cause: err}
		}
		tr.Start = from
	}
	if wt.To != "" {
		to, err := utils.ParseDay(wt.To)
		if err != nil {
			return nil, &models.ExtractionFailedError{Detail: "invalid to date", Cause: err}
		}
		tr.End = to.AddDate(0, 0, 1)
	} else if wt.From != "" {
		tr.End = now
	}
	if tr.Start.IsZero() && tr.End.IsZero() {
		return nil, nil
	}
	return &tr, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
