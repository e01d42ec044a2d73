package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestStripFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"json fence", "```json\n{\"operation\":\"failure_rate\"}\n```", `{"operation":"failure_rate"}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"surrounding whitespace", "  \n{\"a\":1}\n ", `{"a":1}`},
		{"unterminated fence", "```json\n{\"a\":1}", `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripFences(tc.in); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestIsTimeout(t *testing.T) {
	if IsTimeout(nil) {
		t.Fatalf("expected nil error not a timeout")
	}
	if IsTimeout(errors.New("boom")) {
		t.Fatalf("expected plain error not a timeout")
	}
	if !IsTimeout(context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded recognized")
	}
	if !IsTimeout(fmt.Errorf("request failed: %w", context.DeadlineExceeded)) {
		t.Fatalf("expected wrapped deadline recognized")
	}
}
