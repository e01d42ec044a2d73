// Command mock-model fakes the Gemini generateContent endpoint so the
// engine can run locally without an API key. Point the engine at it
// with INSIGHTX_LLM_BASE_URL=http://localhost:9090.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"
)

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents          []content `json:"contents"`
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/v1beta/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeCandidate(w, respondTo(req))
	})

	logger := log.New(log.Writer(), "model-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":9090",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :9090")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

// respondTo picks a canned reply: intent JSON for extraction calls,
// a numberless narrative for everything else.
func respondTo(req generateRequest) string {
	system := ""
	if req.SystemInstruction != nil && len(req.SystemInstruction.Parts) > 0 {
		system = req.SystemInstruction.Parts[0].Text
	}
	prompt := ""
	if len(req.Contents) > 0 && len(req.Contents[0].Parts) > 0 {
		prompt = req.Contents[0].Parts[0].Text
	}

	if strings.Contains(system, "intent extractor") {
		return cannedIntent(strings.ToLower(prompt))
	}
	return `{"summary": "The requested metric stayed within its usual range for the selected period, with no segment standing out.", "method": "Aggregated the matching transactions and computed the requested metric."}`
}

func cannedIntent(q string) string {
	switch {
	case strings.Contains(q, "compare"):
		return `{"operation": "compare_segments", "metric": "failure_rate", "segments": [{"name": "UPI", "filters": {"payment_method": ["UPI"]}}, {"name": "Card", "filters": {"payment_method": ["Card"]}}], "confidence": 0.9}`
	case strings.Contains(q, "trend"), strings.Contains(q, "over time"), strings.Contains(q, "daily"):
		return `{"operation": "time_series", "metric": "failure_rate", "granularity": "day", "time": {"period": "last_30_days"}, "confidence": 0.9}`
	case strings.Contains(q, "top"), strings.Contains(q, "failure code"), strings.Contains(q, "error code"):
		return `{"operation": "top_failure_codes", "top_k": 5, "confidence": 0.9}`
	case strings.Contains(q, "overview"), strings.Contains(q, "executive"), strings.Contains(q, "how are"):
		return `{"operation": "executive_summary", "confidence": 0.9}`
	case strings.Contains(q, "average"):
		return `{"operation": "aggregate", "metric": "avg_amount", "confidence": 0.9}`
	case strings.Contains(q, " by "):
		return `{"operation": "aggregate", "metric": "volume", "group_by": ["payment_method"], "confidence": 0.9}`
	case strings.Contains(q, "fail"):
		return `{"operation": "failure_rate", "metric": "failure_rate", "confidence": 0.9}`
	default:
		return `{"operation": "aggregate", "metric": "volume", "confidence": 0.85}`
	}
}

func writeCandidate(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []part{{Text: text}}}},
		},
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
