package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/insightxstack/insightx-nlq/internal/models"
)

// Chatter is the orchestration capability the HTTP layer fronts.
type Chatter interface {
	Chat(ctx context.Context, sessionID, message string) (models.Answer, error)
	ResetSession(ctx context.Context, sessionID string) error
}

// Handler serves the chat API routes.
type Handler struct {
	chat           Chatter
	requestTimeout time.Duration
	logger         *slog.Logger
}

// NewHandler builds the route set for the chat API.
func NewHandler(chat Chatter, requestTimeout time.Duration, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{chat: chat, requestTimeout: requestTimeout, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat", h.handleChat)
	mux.HandleFunc("POST /v1/sessions/{id}/reset", h.handleReset)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	return mux
}

type chatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}

	ctx := r.Context()
	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}

	answer, err := h.chat.Chat(ctx, req.SessionID, req.Message)
	if err != nil {
		var limited *models.RateLimitedError
		if errors.As(err, &limited) && limited.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(limited.RetryAfter.Seconds())+1))
		}
	}
	writeJSON(w, statusFor(err), answer)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "session id is required"})
		return
	}
	if err := h.chat.ResetSession(r.Context(), id); err != nil {
		h.logger.Error("session reset failed", slog.String("session_id", id), slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "reset failed"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps the typed failure behind an answer to its HTTP status.
// The body is the recovered Answer either way.
func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var (
		limited    *models.RateLimitedError
		exhausted  *models.ResourceExhaustedError
		extraction *models.ExtractionFailedError
	)
	switch {
	case errors.As(err, &limited):
		return http.StatusTooManyRequests
	case errors.As(err, &exhausted):
		return http.StatusGatewayTimeout
	case errors.As(err, &extraction):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
