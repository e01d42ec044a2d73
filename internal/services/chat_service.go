// Package services hosts the chat orchestrator: the state machine that
// turns one inbound message into exactly one Answer and one session
// append, recovering every typed failure into a well-formed response.
package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/insightxstack/insightx-nlq/internal/explain"
	"github.com/insightxstack/insightx-nlq/internal/metrics"
	"github.com/insightxstack/insightx-nlq/internal/models"
	"github.com/insightxstack/insightx-nlq/internal/usage"
	"github.com/insightxstack/insightx-nlq/internal/utils"
)

// IntentExtractor turns a question plus session context into an Intent.
type IntentExtractor interface {
	Extract(ctx context.Context, query, contextText string, now time.Time) (models.Intent, error)
}

// IntentResolver validates an Intent and computes its result.
type IntentResolver interface {
	Resolve(ctx context.Context, intent models.Intent) (models.ComputedResult, error)
}

// AnswerSynthesizer narrates a computed result. It never fails; an
// unusable narrative degrades internally to a templated summary.
type AnswerSynthesizer interface {
	Explain(ctx context.Context, query string, intent models.Intent, result models.ComputedResult) models.Analysis
}

// SessionStore is the session capability the orchestrator consumes.
type SessionStore interface {
	Get(ctx context.Context, id string) (models.SessionState, error)
	CheckAndRecord(ctx context.Context, id string) error
	Append(ctx context.Context, id string, turn models.Turn) error
	Reset(ctx context.Context, id string) error
	ContextText(state models.SessionState) string
}

// Options tune orchestration decisions.
type Options struct {
	// ConfidenceThreshold routes low-confidence intents to a
	// clarification instead of a forced guess.
	ConfidenceThreshold float64
}

// Deps collects the pipeline stages the orchestrator drives.
type Deps struct {
	Sessions    SessionStore
	Extractor   IntentExtractor
	Resolver    IntentResolver
	Synthesizer AnswerSynthesizer
	Followups   *explain.FollowupEngine
	Miner       *usage.Miner
	Clock       clockwork.Clock
}

// ChatService orchestrates one request through rate check, extraction,
// resolution, and explanation.
type ChatService struct {
	logger    *slog.Logger
	deps      Deps
	opts      Options
	latencies *utils.LatencyTracker
}

// NewChatService constructs the chat orchestrator facade.
func NewChatService(logger *slog.Logger, deps Deps, opts Options) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = 0.5
	}
	return &ChatService{
		logger:    logger,
		deps:      deps,
		opts:      opts,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Chat answers one message. The returned Answer is always well-formed;
// the error, when non-nil, is the typed failure the answer recovered
// from, so the transport can pick a status code.
func (s *ChatService) Chat(ctx context.Context, sessionID, message string) (models.Answer, error) {
	start := time.Now()
	requestID := uuid.NewString()
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	message = strings.TrimSpace(message)

	if s.deps.Sessions == nil || s.deps.Extractor == nil || s.deps.Resolver == nil || s.deps.Synthesizer == nil {
		err := utils.NewAppError("chat.Chat", "pipeline not configured", nil)
		s.logger.Error("chat pipeline misconfigured")
		answer := s.clarificationAnswer(sessionID, requestID, explain.ExtractionFailedClarification())
		metrics.ObserveRequest(time.Since(start), metrics.OutcomeError)
		return answer, err
	}

	// Rate check runs before anything that costs a model call. A
	// limited session gets an answer but no turn append.
	if err := s.deps.Sessions.CheckAndRecord(ctx, sessionID); err != nil {
		var limited *models.RateLimitedError
		if errors.As(err, &limited) {
			s.logger.Warn("session rate limited",
				slog.String("session_id", sessionID),
				slog.Duration("retry_after", limited.RetryAfter))
			answer := s.clarificationAnswer(sessionID, requestID, explain.RateLimitedClarification())
			metrics.ObserveRequest(time.Since(start), metrics.OutcomeError)
			return answer, limited
		}
		s.logger.Warn("rate check failed, continuing", slog.Any("error", err))
	}

	state, err := s.deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		s.logger.Warn("session load failed, answering without context", slog.Any("error", err))
		state = models.SessionState{SessionID: sessionID}
	}

	if message == "" {
		cl := explain.AmbiguousClarification("the message was empty")
		return s.respond(ctx, responseArgs{
			sessionID: sessionID, requestID: requestID, message: message,
			clarification: &cl, start: start, outcome: metrics.OutcomeClarification,
		})
	}

	intent, err := s.deps.Extractor.Extract(ctx, message, s.deps.Sessions.ContextText(state), s.deps.Clock.Now())
	if err != nil {
		return s.recoverFailure(ctx, sessionID, requestID, message, models.Intent{}, start, err)
	}

	if intent.NeedsClarification || intent.Confidence < s.opts.ConfidenceThreshold {
		s.logger.Debug("intent routed to clarification",
			slog.String("session_id", sessionID),
			slog.Float64("confidence", intent.Confidence),
			slog.Bool("requested", intent.NeedsClarification))
		cl := explain.AmbiguousClarification(intent.Reason)
		return s.respond(ctx, responseArgs{
			sessionID: sessionID, requestID: requestID, message: message, intent: intent,
			clarification: &cl, start: start, outcome: metrics.OutcomeClarification,
		})
	}

	result, err := s.deps.Resolver.Resolve(ctx, intent)
	if err != nil {
		return s.recoverFailure(ctx, sessionID, requestID, message, intent, start, err)
	}

	analysis := s.deps.Synthesizer.Explain(ctx, message, intent, result)
	if s.deps.Miner != nil && s.deps.Followups != nil {
		patterns, merr := s.deps.Miner.Mine(ctx, sessionID, state.Turns)
		if merr != nil {
			s.logger.Warn("usage mining failed", slog.Any("error", merr))
		} else if len(patterns) > 0 {
			analysis.Followups = s.deps.Followups.MergePopular(analysis.Followups, intent, patterns)
		}
	}

	return s.respond(ctx, responseArgs{
		sessionID: sessionID, requestID: requestID, message: message, intent: intent,
		analysis: &analysis, start: start, outcome: metrics.OutcomeSuccess,
	})
}

// ResetSession clears one session's state and budget.
func (s *ChatService) ResetSession(ctx context.Context, sessionID string) error {
	if s.deps.Sessions == nil {
		return utils.NewAppError("chat.ResetSession", "session store not configured", nil)
	}
	return s.deps.Sessions.Reset(ctx, sessionID)
}

// LatencyP95 returns the current p95 answer latency.
func (s *ChatService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}

// recoverFailure maps a typed pipeline failure to its clarification
// answer. The typed error travels back so the transport can map a
// status, but the answer is complete either way.
func (s *ChatService) recoverFailure(ctx context.Context, sessionID, requestID, message string, intent models.Intent, start time.Time, cause error) (models.Answer, error) {
	var (
		unsupported  *models.UnsupportedOperationError
		invalid      *models.InvalidFilterError
		insufficient *models.InsufficientDataError
		exhausted    *models.ResourceExhaustedError
		extraction   *models.ExtractionFailedError
	)

	args := responseArgs{
		sessionID: sessionID, requestID: requestID, message: message,
		intent: intent, start: start,
	}
	switch {
	case errors.As(cause, &unsupported):
		cl := explain.UnsupportedClarification(unsupported.Subject, unsupported.Reason)
		args.clarification, args.outcome = &cl, metrics.OutcomeClarification
	case errors.As(cause, &invalid):
		cl := explain.InvalidFilterClarification(invalid)
		args.clarification, args.outcome = &cl, metrics.OutcomeClarification
	case errors.As(cause, &insufficient):
		cl := explain.InsufficientDataClarification()
		args.clarification, args.outcome = &cl, metrics.OutcomeClarification
	case errors.As(cause, &exhausted):
		s.logger.Error("stage timed out",
			slog.String("stage", exhausted.Stage), slog.Any("error", cause))
		cl := explain.TimeoutClarification(exhausted.Stage)
		args.clarification, args.outcome, args.cause = &cl, metrics.OutcomeError, cause
	case errors.As(cause, &extraction):
		s.logger.Error("intent extraction failed", slog.Any("error", cause))
		cl := explain.ExtractionFailedClarification()
		args.clarification, args.outcome, args.cause = &cl, metrics.OutcomeError, cause
	default:
		s.logger.Error("chat pipeline failed", slog.Any("error", cause))
		cl := models.Clarification{
			Question: "Something went wrong running that analysis. Please try again.",
		}
		args.clarification, args.outcome, args.cause = &cl, metrics.OutcomeError, cause
	}
	return s.respond(ctx, args)
}

type responseArgs struct {
	sessionID, requestID, message string
	intent                        models.Intent
	clarification                 *models.Clarification
	analysis                      *models.Analysis
	start                         time.Time
	outcome                       string
	cause                         error
}

// respond finalizes a terminal state: builds the answer, appends the
// turn, and records the request metrics.
func (s *ChatService) respond(ctx context.Context, args responseArgs) (models.Answer, error) {
	answer := models.Answer{
		SessionID: args.sessionID,
		RequestID: args.requestID,
	}
	summary := ""
	switch {
	case args.analysis != nil:
		answer.Type = models.AnswerAnalysis
		answer.Analysis = args.analysis
		summary = args.analysis.Summary
	case args.clarification != nil:
		answer.Type = models.AnswerClarification
		answer.Clarification = args.clarification
		summary = args.clarification.Question
	}

	turn := models.Turn{
		Query:   args.message,
		Intent:  args.intent,
		Summary: summary,
		At:      s.deps.Clock.Now(),
	}
	if err := s.deps.Sessions.Append(ctx, args.sessionID, turn); err != nil {
		s.logger.Error("session append failed",
			slog.String("session_id", args.sessionID), slog.Any("error", err))
	}

	duration := time.Since(args.start)
	metrics.ObserveRequest(duration, args.outcome)
	if args.outcome == metrics.OutcomeSuccess {
		s.latencies.Observe(duration)
		if total := s.latencies.Total(); total >= 20 && total%20 == 0 {
			s.logger.Info("chat latency",
				slog.Duration("p95", s.latencies.Percentile(95)),
				slog.Uint64("samples", total))
		}
	}
	return answer, args.cause
}

func (s *ChatService) clarificationAnswer(sessionID, requestID string, cl models.Clarification) models.Answer {
	return models.Answer{
		Type:          models.AnswerClarification,
		SessionID:     sessionID,
		RequestID:     requestID,
		Clarification: &cl,
	}
}
