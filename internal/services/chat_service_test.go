package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/insightxstack/insightx-nlq/internal/explain"
	"github.com/insightxstack/insightx-nlq/internal/models"
	"github.com/insightxstack/insightx-nlq/internal/usage"
)

type sessionStub struct {
	state   models.SessionState
	rateErr error
	getErr  error
	appends []models.Turn
	resets  []string
}

func (s *sessionStub) Get(_ context.Context, id string) (models.SessionState, error) {
	if s.getErr != nil {
		return models.SessionState{}, s.getErr
	}
	state := s.state
	state.SessionID = id
	return state, nil
}

func (s *sessionStub) CheckAndRecord(_ context.Context, _ string) error { return s.rateErr }

func (s *sessionStub) Append(_ context.Context, _ string, turn models.Turn) error {
	s.appends = append(s.appends, turn)
	return nil
}

func (s *sessionStub) Reset(_ context.Context, id string) error {
	s.resets = append(s.resets, id)
	return nil
}

func (s *sessionStub) ContextText(state models.SessionState) string {
	if len(state.Turns) == 0 {
		return ""
	}
	return "User: earlier question"
}

type extractorStub struct {
	intent      models.Intent
	err         error
	calls       int
	lastContext string
}

func (e *extractorStub) Extract(_ context.Context, _ string, contextText string, _ time.Time) (models.Intent, error) {
	e.calls++
	e.lastContext = contextText
	return e.intent, e.err
}

type resolverStub struct {
	result models.ComputedResult
	err    error
	calls  int
}

func (r *resolverStub) Resolve(_ context.Context, _ models.Intent) (models.ComputedResult, error) {
	r.calls++
	return r.result, r.err
}

type synthStub struct {
	analysis models.Analysis
	calls    int
}

func (s *synthStub) Explain(_ context.Context, _ string, _ models.Intent, _ models.ComputedResult) models.Analysis {
	s.calls++
	return s.analysis
}

func runnableIntent() models.Intent {
	return models.Intent{
		Operation:  models.OpFailureRate,
		Metric:     "failure_rate",
		Confidence: 0.9,
	}
}

func newService(sessions *sessionStub, extractor *extractorStub, resolver *resolverStub, synth *synthStub) *ChatService {
	return NewChatService(nil, Deps{
		Sessions:    sessions,
		Extractor:   extractor,
		Resolver:    resolver,
		Synthesizer: synth,
	}, Options{})
}

func TestChatSuccessAppendsExactlyOneTurn(t *testing.T) {
	sessions := &sessionStub{}
	extractor := &extractorStub{intent: runnableIntent()}
	resolver := &resolverStub{result: models.ComputedResult{
		Numbers: []models.NumberDetail{{Label: "Failure Rate", Value: "3.45%"}},
	}}
	synth := &synthStub{analysis: models.Analysis{Summary: "The failure rate was 3.45%."}}
	svc := newService(sessions, extractor, resolver, synth)

	answer, err := svc.Chat(context.Background(), "s-1", "what is the failure rate?")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if answer.Type != models.AnswerAnalysis || answer.Analysis == nil {
		t.Fatalf("expected analysis answer, got %+v", answer)
	}
	if answer.Analysis.Summary != "The failure rate was 3.45%." {
		t.Fatalf("unexpected summary %q", answer.Analysis.Summary)
	}
	if answer.SessionID != "s-1" || answer.RequestID == "" {
		t.Fatalf("expected identifiers set, got %+v", answer)
	}
	if len(sessions.appends) != 1 {
		t.Fatalf("expected exactly one turn appended, got %d", len(sessions.appends))
	}
	turn := sessions.appends[0]
	if turn.Query != "what is the failure rate?" || turn.Summary != "The failure rate was 3.45%." {
		t.Fatalf("unexpected turn %+v", turn)
	}
	if extractor.calls != 1 || resolver.calls != 1 || synth.calls != 1 {
		t.Fatalf("expected each stage called once, got extract=%d resolve=%d explain=%d",
			extractor.calls, resolver.calls, synth.calls)
	}
	if svc.LatencyP95() <= 0 {
		t.Fatalf("expected the answered request tracked in latency window")
	}
}

func TestChatRateLimitedSkipsPipelineAndAppend(t *testing.T) {
	sessions := &sessionStub{rateErr: &models.RateLimitedError{
		SessionID: "s-1", Limit: 10, Window: time.Minute, RetryAfter: 20 * time.Second,
	}}
	extractor := &extractorStub{intent: runnableIntent()}
	resolver := &resolverStub{}
	svc := newService(sessions, extractor, resolver, &synthStub{})

	answer, err := svc.Chat(context.Background(), "s-1", "what is the failure rate?")
	var limited *models.RateLimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if answer.Type != models.AnswerClarification || answer.Clarification == nil {
		t.Fatalf("expected clarification answer, got %+v", answer)
	}
	if answer.Clarification.Question != explain.RateLimitMessage {
		t.Fatalf("unexpected rate limit text %q", answer.Clarification.Question)
	}
	if extractor.calls != 0 {
		t.Fatalf("expected no model call for a limited session, got %d", extractor.calls)
	}
	if len(sessions.appends) != 0 {
		t.Fatalf("expected no turn appended, got %d", len(sessions.appends))
	}
}

func TestChatGeneratesSessionIDWhenMissing(t *testing.T) {
	sessions := &sessionStub{}
	svc := newService(sessions, &extractorStub{intent: runnableIntent()}, &resolverStub{}, &synthStub{})

	answer, err := svc.Chat(context.Background(), "", "what is the failure rate?")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if answer.SessionID == "" {
		t.Fatalf("expected generated session id")
	}
}

func TestChatEmptyMessageAsksClarification(t *testing.T) {
	sessions := &sessionStub{}
	extractor := &extractorStub{intent: runnableIntent()}
	svc := newService(sessions, extractor, &resolverStub{}, &synthStub{})

	answer, err := svc.Chat(context.Background(), "s-1", "   ")
	if err != nil {
		t.Fatalf("expected clarification without error, got %v", err)
	}
	if answer.Type != models.AnswerClarification {
		t.Fatalf("expected clarification, got %+v", answer)
	}
	if extractor.calls != 0 {
		t.Fatalf("expected no extraction for an empty message, got %d", extractor.calls)
	}
	if len(sessions.appends) != 1 {
		t.Fatalf("expected the exchange recorded, got %d appends", len(sessions.appends))
	}
}

func TestChatLowConfidenceRoutesToClarification(t *testing.T) {
	intent := runnableIntent()
	intent.Confidence = 0.3
	intent.Reason = "ambiguous metric"
	sessions := &sessionStub{}
	resolver := &resolverStub{}
	svc := newService(sessions, &extractorStub{intent: intent}, resolver, &synthStub{})

	answer, err := svc.Chat(context.Background(), "s-1", "how are things")
	if err != nil {
		t.Fatalf("expected clarification without error, got %v", err)
	}
	if answer.Type != models.AnswerClarification || answer.Clarification == nil {
		t.Fatalf("expected clarification, got %+v", answer)
	}
	if !strings.Contains(answer.Clarification.Question, "Which metric") {
		t.Fatalf("expected metric prompt, got %q", answer.Clarification.Question)
	}
	if resolver.calls != 0 {
		t.Fatalf("expected no resolution for a low-confidence intent, got %d", resolver.calls)
	}
}

func TestChatHonorsExplicitClarificationRequest(t *testing.T) {
	intent := runnableIntent()
	intent.NeedsClarification = true
	intent.Reason = "which time period?"
	resolver := &resolverStub{}
	svc := newService(&sessionStub{}, &extractorStub{intent: intent}, resolver, &synthStub{})

	answer, err := svc.Chat(context.Background(), "s-1", "show me the numbers")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if answer.Type != models.AnswerClarification {
		t.Fatalf("expected clarification, got %+v", answer)
	}
	if resolver.calls != 0 {
		t.Fatalf("expected no resolution, got %d calls", resolver.calls)
	}
}

func TestChatUnsupportedOperationClarifiesWithoutError(t *testing.T) {
	resolver := &resolverStub{err: &models.UnsupportedOperationError{
		Subject: "refund_rate", Reason: "refunds are not recorded",
	}}
	sessions := &sessionStub{}
	synth := &synthStub{}
	svc := newService(sessions, &extractorStub{intent: runnableIntent()}, resolver, synth)

	answer, err := svc.Chat(context.Background(), "s-1", "what is the refund rate?")
	if err != nil {
		t.Fatalf("expected recovered clarification, got %v", err)
	}
	if answer.Type != models.AnswerClarification || answer.Clarification == nil {
		t.Fatalf("expected clarification, got %+v", answer)
	}
	if !strings.Contains(answer.Clarification.Question, "refund_rate") {
		t.Fatalf("expected subject named, got %q", answer.Clarification.Question)
	}
	if synth.calls != 0 {
		t.Fatalf("expected no narrative call for an unsupported metric, got %d", synth.calls)
	}
	if len(sessions.appends) != 1 {
		t.Fatalf("expected the exchange recorded, got %d appends", len(sessions.appends))
	}
}

func TestChatInvalidFilterNamesColumns(t *testing.T) {
	resolver := &resolverStub{err: &models.InvalidFilterError{
		Columns: []string{"payment_method"}, Reason: "no transactions match",
	}}
	svc := newService(&sessionStub{}, &extractorStub{intent: runnableIntent()}, resolver, &synthStub{})

	answer, err := svc.Chat(context.Background(), "s-1", "failure rate for crypto payments")
	if err != nil {
		t.Fatalf("expected recovered clarification, got %v", err)
	}
	if !strings.Contains(answer.Clarification.Question, "payment_method") {
		t.Fatalf("expected offending column named, got %q", answer.Clarification.Question)
	}
}

func TestChatInsufficientDataUsesCapabilityMessage(t *testing.T) {
	resolver := &resolverStub{err: &models.InsufficientDataError{Detail: "empty result"}}
	svc := newService(&sessionStub{}, &extractorStub{intent: runnableIntent()}, resolver, &synthStub{})

	answer, err := svc.Chat(context.Background(), "s-1", "average shipment weight")
	if err != nil {
		t.Fatalf("expected recovered clarification, got %v", err)
	}
	if answer.Clarification.Question != explain.InsufficientDataMessage {
		t.Fatalf("expected capability message, got %q", answer.Clarification.Question)
	}
}

func TestChatModelTimeoutReturnsCause(t *testing.T) {
	extractor := &extractorStub{err: &models.ResourceExhaustedError{
		Stage: "model", Timeout: 8 * time.Second, Cause: context.DeadlineExceeded,
	}}
	sessions := &sessionStub{}
	svc := newService(sessions, extractor, &resolverStub{}, &synthStub{})

	answer, err := svc.Chat(context.Background(), "s-1", "failure rate")
	var exhausted *models.ResourceExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Stage != "model" {
		t.Fatalf("expected model timeout cause, got %v", err)
	}
	if answer.Type != models.AnswerClarification {
		t.Fatalf("expected clarification answer, got %+v", answer)
	}
	if !strings.Contains(answer.Clarification.Question, "language model") {
		t.Fatalf("expected model timeout text, got %q", answer.Clarification.Question)
	}
	if len(sessions.appends) != 1 {
		t.Fatalf("expected the exchange recorded, got %d appends", len(sessions.appends))
	}
}

func TestChatExtractionFailureReturnsCause(t *testing.T) {
	extractor := &extractorStub{err: &models.ExtractionFailedError{Detail: "reply was not JSON"}}
	svc := newService(&sessionStub{}, extractor, &resolverStub{}, &synthStub{})

	answer, err := svc.Chat(context.Background(), "s-1", "failure rate")
	var failed *models.ExtractionFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected extraction cause, got %v", err)
	}
	if !strings.Contains(answer.Clarification.Question, "rephrase") {
		t.Fatalf("expected rephrase prompt, got %q", answer.Clarification.Question)
	}
}

func TestChatPassesSessionContextToExtractor(t *testing.T) {
	sessions := &sessionStub{state: models.SessionState{
		Turns: []models.Turn{{Query: "earlier question"}},
	}}
	extractor := &extractorStub{intent: runnableIntent()}
	svc := newService(sessions, extractor, &resolverStub{}, &synthStub{})

	if _, err := svc.Chat(context.Background(), "s-1", "and for UPI?"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if extractor.lastContext != "User: earlier question" {
		t.Fatalf("expected session context forwarded, got %q", extractor.lastContext)
	}
}

func TestChatMergesPopularFollowups(t *testing.T) {
	followups, err := explain.NewFollowupEngine("", 3, nil)
	if err != nil {
		t.Fatalf("new followup engine: %v", err)
	}
	sessions := &sessionStub{state: models.SessionState{
		Turns: []models.Turn{
			{
				Query:  "how many transactions this week?",
				Intent: models.Intent{Operation: models.OpAggregate, Metric: "volume"},
				At:     time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
			},
		},
	}}
	extractor := &extractorStub{intent: runnableIntent()}
	synth := &synthStub{analysis: models.Analysis{
		Summary:   "The failure rate was 3.45%.",
		Followups: []string{"What are the top failure codes?"},
	}}
	svc := NewChatService(nil, Deps{
		Sessions:    sessions,
		Extractor:   extractor,
		Resolver:    &resolverStub{},
		Synthesizer: synth,
		Followups:   followups,
		Miner:       usage.NewMiner(nil, nil),
	}, Options{})

	answer, err := svc.Chat(context.Background(), "s-1", "what is the failure rate?")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	found := false
	for _, f := range answer.Analysis.Followups {
		if f == "how many transactions this week?" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected popular question merged, got %v", answer.Analysis.Followups)
	}
	if len(answer.Analysis.Followups) > 3 {
		t.Fatalf("expected followup cap enforced, got %v", answer.Analysis.Followups)
	}
}

func TestResetSessionDelegates(t *testing.T) {
	sessions := &sessionStub{}
	svc := newService(sessions, &extractorStub{}, &resolverStub{}, &synthStub{})

	if err := svc.ResetSession(context.Background(), "s-9"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(sessions.resets) != 1 || sessions.resets[0] != "s-9" {
		t.Fatalf("expected reset forwarded, got %v", sessions.resets)
	}
}
