package models

import "time"

// MaxTurnTextLen caps the stored query and summary of a turn. Longer
// text is truncated before persistence so context windows stay small.
const MaxTurnTextLen = 500

// Turn is one completed exchange in a session.
type Turn struct {
	Query   string    `json:"query"`
	Intent  Intent    `json:"intent"`
	Summary string    `json:"summary,omitempty"`
	At      time.Time `json:"at"`
}

// SessionState is the persisted conversation state for one session.
// RequestStamps backs the sliding-window rate limiter and records
// every accepted request, including rate-limited ones' predecessors.
type SessionState struct {
	SessionID     string      `json:"session_id"`
	Turns         []Turn      `json:"turns"`
	RequestStamps []time.Time `json:"request_stamps,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	LastSeenAt    time.Time   `json:"last_seen_at"`
}

// TruncateTurnText trims s to MaxTurnTextLen runes.
func TruncateTurnText(s string) string {
	r := []rune(s)
	if len(r) <= MaxTurnTextLen {
		return s
	}
	return string(r[:MaxTurnTextLen])
}
