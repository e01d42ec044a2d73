// Package llm wraps the language model providers behind one narrow
// interface. The model is only ever asked for two things: structured
// intent extraction and narrative text over already-computed numbers.
package llm

import (
	"context"
	"errors"
	"net"
	"strings"
)

// CompletionRequest describes one model invocation.
type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Client abstracts the language model provider.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// IsTimeout reports whether err represents an exhausted time budget
// rather than a malformed exchange.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// StripFences removes a wrapping markdown code block from model
// output, tolerating an optional json language tag.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = text[len("```json"):]
	} else if strings.HasPrefix(text, "```") {
		text = text[len("```"):]
	}
	if strings.HasSuffix(text, "```") {
		text = text[:len(text)-len("```")]
	}
	return strings.TrimSpace(text)
}
