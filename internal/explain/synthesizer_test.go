package explain

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/insightxstack/insightx-nlq/internal/llm"
	"github.com/insightxstack/insightx-nlq/internal/models"
)

type scriptedClient struct {
	replies []string
	err     error
	prompts []string
}

func (c *scriptedClient) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	c.prompts = append(c.prompts, req.Prompt)
	if c.err != nil {
		return "", c.err
	}
	if len(c.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return reply, nil
}

func TestExplainUsesGroundedNarrative(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"summary": "The failure rate is 3.45%, 345 out of 10,000 transactions.", "method": "Counted failed transactions over the full population."}`,
	}}
	s := NewSynthesizer(client, nil, SynthesizerOptions{}, nil)

	analysis := s.Explain(context.Background(), "failure rate?", models.Intent{Operation: models.OpFailureRate}, failureRateResult())
	if !strings.Contains(analysis.Summary, "3.45%") {
		t.Fatalf("expected generated summary kept, got %q", analysis.Summary)
	}
	if len(analysis.Numbers) != 3 {
		t.Fatalf("expected result numbers carried verbatim, got %d", len(analysis.Numbers))
	}
	if len(client.prompts) != 1 {
		t.Fatalf("expected a single model call, got %d", len(client.prompts))
	}
}

func TestExplainRetriesUngroundedNarrative(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"summary": "The failure rate is 99%.", "method": "Counted."}`,
		`{"summary": "The failure rate is 3.45%.", "method": "Counted failed transactions."}`,
	}}
	s := NewSynthesizer(client, nil, SynthesizerOptions{}, nil)

	analysis := s.Explain(context.Background(), "failure rate?", models.Intent{}, failureRateResult())
	if !strings.Contains(analysis.Summary, "3.45%") {
		t.Fatalf("expected retry draft used, got %q", analysis.Summary)
	}
	if len(client.prompts) != 2 {
		t.Fatalf("expected retry call, got %d calls", len(client.prompts))
	}
	if !strings.Contains(client.prompts[1], "99") {
		t.Fatalf("expected offending token named in retry prompt, got %q", client.prompts[1])
	}
}

func TestExplainFallsBackWhenRetryFails(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"summary": "The failure rate is 99%.", "method": "Counted."}`,
		`{"summary": "Actually it is 42%.", "method": "Counted."}`,
	}}
	s := NewSynthesizer(client, nil, SynthesizerOptions{}, nil)

	result := failureRateResult()
	result.Traces = []models.QueryTrace{{Statement: "SELECT COUNT(*) FROM transactions"}}
	analysis := s.Explain(context.Background(), "failure rate?", models.Intent{}, result)
	if analysis.Summary != "Failure Rate: 3.45%" {
		t.Fatalf("expected templated summary, got %q", analysis.Summary)
	}
	if !strings.HasPrefix(analysis.Method, "Computed with: SELECT") {
		t.Fatalf("expected templated method, got %q", analysis.Method)
	}
}

func TestExplainFallsBackOnModelError(t *testing.T) {
	client := &scriptedClient{err: errors.New("upstream unreachable")}
	s := NewSynthesizer(client, nil, SynthesizerOptions{}, nil)

	analysis := s.Explain(context.Background(), "failure rate?", models.Intent{}, failureRateResult())
	if analysis.Summary != "Failure Rate: 3.45%" {
		t.Fatalf("expected templated summary, got %q", analysis.Summary)
	}
	if len(client.prompts) != 1 {
		t.Fatalf("expected no retry after transport error, got %d calls", len(client.prompts))
	}
}

func TestExplainFallsBackOnMalformedNarrative(t *testing.T) {
	client := &scriptedClient{replies: []string{"The failure rate is 3.45%.", "still not json"}}
	s := NewSynthesizer(client, nil, SynthesizerOptions{}, nil)

	analysis := s.Explain(context.Background(), "failure rate?", models.Intent{}, failureRateResult())
	if analysis.Summary != "Failure Rate: 3.45%" {
		t.Fatalf("expected templated summary, got %q", analysis.Summary)
	}
}

func TestExplainFallbackSkipsInsufficientHeadline(t *testing.T) {
	client := &scriptedClient{err: errors.New("model down")}
	s := NewSynthesizer(client, nil, SynthesizerOptions{}, nil)

	result := models.ComputedResult{
		Operation: models.OpCompareSegments,
		Metric:    "failure_rate",
		Numbers: []models.NumberDetail{
			{Label: "failure_rate (5G)", Value: "no data", Insufficient: true},
			{Label: "failure_rate (4G)", Value: "2.10%", RawValue: 2.1},
		},
	}
	analysis := s.Explain(context.Background(), "compare 5G and 4G", models.Intent{}, result)
	if !strings.HasPrefix(analysis.Summary, "failure_rate (4G): 2.10%") {
		t.Fatalf("expected the populated figure to lead, got %q", analysis.Summary)
	}
	if !strings.Contains(analysis.Summary, "no matching transactions") {
		t.Fatalf("expected partial-data note, got %q", analysis.Summary)
	}
}

func TestExplainFallbackNamesEmptyResult(t *testing.T) {
	client := &scriptedClient{err: errors.New("model down")}
	s := NewSynthesizer(client, nil, SynthesizerOptions{}, nil)

	result := models.ComputedResult{
		Operation: models.OpAggregate,
		Metric:    "avg_amount",
		Numbers: []models.NumberDetail{
			{Label: "avg_amount (Web)", Value: "no data", Insufficient: true},
		},
	}
	analysis := s.Explain(context.Background(), "average amount on web", models.Intent{}, result)
	if analysis.Summary != "No matching transactions were found for this analysis." {
		t.Fatalf("unexpected summary %q", analysis.Summary)
	}
}

func TestExplainAttachesDeterministicFollowups(t *testing.T) {
	client := &scriptedClient{err: errors.New("model down")}
	engine, err := NewFollowupEngine("", 3, nil)
	if err != nil {
		t.Fatalf("new followup engine: %v", err)
	}
	s := NewSynthesizer(client, engine, SynthesizerOptions{}, nil)

	analysis := s.Explain(context.Background(), "failure rate?", models.Intent{Operation: models.OpFailureRate}, failureRateResult())
	if len(analysis.Followups) != 3 {
		t.Fatalf("expected followups on the fallback path, got %v", analysis.Followups)
	}
	if analysis.Followups[0] != "How does this break down by payment method?" {
		t.Fatalf("unexpected first followup %q", analysis.Followups[0])
	}
}
