package models

// AnswerType discriminates the two response shapes a chat request can
// produce.
type AnswerType string

const (
	AnswerAnalysis      AnswerType = "analysis"
	AnswerClarification AnswerType = "clarification"
)

// Clarification asks the user to restate or narrow an ambiguous or
// unsupported query. Its text is always templated, never generated.
type Clarification struct {
	Question   string   `json:"question"`
	Candidates []string `json:"candidates,omitempty"`
}

// Analysis is the full payload for a resolved query.
type Analysis struct {
	Summary   string         `json:"summary"`
	Numbers   []NumberDetail `json:"numbers"`
	Series    []SeriesPoint  `json:"series,omitempty"`
	Chart     *Chart         `json:"chart,omitempty"`
	Traces    []QueryTrace   `json:"traces,omitempty"`
	Method    string         `json:"method,omitempty"`
	Followups []string       `json:"followups,omitempty"`
}

// Answer is the single response envelope every chat request produces,
// regardless of which path the request took.
type Answer struct {
	Type      AnswerType `json:"type"`
	SessionID string     `json:"session_id"`
	RequestID string     `json:"request_id"`

	// Exactly one of the two is set, matching Type.
	Clarification *Clarification `json:"clarification,omitempty"`
	Analysis      *Analysis      `json:"analysis,omitempty"`
}
