package explain

import (
	"fmt"
	"strings"

	"github.com/insightxstack/insightx-nlq/internal/models"
	"github.com/insightxstack/insightx-nlq/internal/schema"
)

// InsufficientDataMessage is returned when no computation can answer
// the question from the data on hand.
const InsufficientDataMessage = `I can't answer that question from the available data. The dataset contains transaction records with the following attributes:
- Device type (Android, iOS, Web)
- Payment method (UPI, Card, NetBanking)
- Transaction category (Food, Entertainment, Travel, Utilities, Others)
- Network type (4G, 5G, WiFi, 3G)
- Age groups (<25, 25-34, 35-44, 45+)
- Indian states
- Transaction status and failure codes

Would you like me to:
1. Show the overall failure rate or transaction summary?
2. Compare metrics across different segments?
3. Analyze trends over time?`

// RateLimitMessage is returned without any model call when a session
// exceeds its per-minute budget.
const RateLimitMessage = `I'm currently processing many requests. Please wait a moment and try again.

In the meantime, you can review the previous analysis or try a simpler query.`

// AmbiguousClarification builds the templated question for a vague or
// low-confidence query.
func AmbiguousClarification(reason string) models.Clarification {
	question := "Which metric would you like to analyze: failure rate, transaction volume, or average amount? You can also name a segment (device, payment method, state) or a time period."
	if r := sentence(reason); r != "" {
		question = r + " " + question
	}
	return models.Clarification{Question: question, Candidates: operationCandidates()}
}

// UnsupportedClarification names what could not be answered and lists
// the metrics that can.
func UnsupportedClarification(subject, reason string) models.Clarification {
	lead := "That isn't something I can compute from the transaction data."
	if subject != "" {
		lead = fmt.Sprintf("I can't compute %q from the transaction data.", subject)
	}
	if r := sentence(reason); r != "" {
		lead += " " + r
	}
	names := schema.Metrics()
	described := make([]string, 0, len(names))
	for _, m := range names {
		described = append(described, fmt.Sprintf("%s (%s)", m, schema.MetricDescription(m)))
	}
	return models.Clarification{
		Question:   fmt.Sprintf("%s Available metrics: %s. Which one should I analyze?", lead, strings.Join(described, ", ")),
		Candidates: names,
	}
}

// InvalidFilterClarification points at the offending filter columns and
// offers the known values where the column has a closed vocabulary.
func InvalidFilterClarification(e *models.InvalidFilterError) models.Clarification {
	var candidates []string
	for _, col := range e.Columns {
		candidates = append(candidates, schema.DimensionValues(col)...)
	}
	var question string
	if len(e.Columns) > 0 {
		question = fmt.Sprintf("I couldn't apply the filter on %s: %s. Try one of the known values or drop the filter.",
			strings.Join(e.Columns, ", "), e.Reason)
	} else {
		question = fmt.Sprintf("I couldn't run that analysis: %s. Try adjusting the filters or the time range.", e.Reason)
	}
	return models.Clarification{Question: question, Candidates: candidates}
}

// InsufficientDataClarification is the response for questions the data
// genuinely cannot answer.
func InsufficientDataClarification() models.Clarification {
	return models.Clarification{Question: InsufficientDataMessage, Candidates: schema.Metrics()}
}

// ExtractionFailedClarification is the response when the model could
// not produce a usable intent.
func ExtractionFailedClarification() models.Clarification {
	return models.Clarification{
		Question:   "I'm having trouble understanding your request. Could you rephrase it?",
		Candidates: operationCandidates(),
	}
}

// RateLimitedClarification is the response for a throttled session.
func RateLimitedClarification() models.Clarification {
	return models.Clarification{Question: RateLimitMessage}
}

// TimeoutClarification is the polite failure for an exhausted model or
// dataset budget.
func TimeoutClarification(stage string) models.Clarification {
	question := "That took longer than expected to compute. Try narrowing the time range or simplifying the question."
	if stage == "model" {
		question = "The language model took too long to respond. Please try again in a moment."
	}
	return models.Clarification{Question: question}
}

// fallbackAnalysis builds the templated explanation used when narrative
// generation fails or cannot be verified. Every value comes straight
// from the computed numbers.
func fallbackAnalysis(result models.ComputedResult, followups []string) models.Analysis {
	summary := "Analysis complete."
	switch {
	case result.Insufficient():
		summary = "No matching transactions were found for this analysis."
	case len(result.Numbers) > 0:
		headline := result.Numbers[0]
		for _, n := range result.Numbers {
			if !n.Insufficient {
				headline = n
				break
			}
		}
		summary = fmt.Sprintf("%s: %s", headline.Label, headline.Value)
		if result.PartiallyInsufficient() {
			summary += " (some segments had no matching transactions)"
		}
	}
	method := "Aggregation query on transaction data."
	if len(result.Traces) > 0 {
		method = "Computed with: " + truncateStatement(result.Traces[0].Statement, 100)
	}
	return models.Analysis{
		Summary:   summary,
		Numbers:   result.Numbers,
		Series:    result.Series,
		Chart:     result.Chart,
		Traces:    result.Traces,
		Method:    method,
		Followups: followups,
	}
}

func truncateStatement(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func operationCandidates() []string {
	ops := models.SupportedOperations()
	out := make([]string, 0, len(ops))
	for _, op := range ops {
		out = append(out, string(op))
	}
	return out
}

func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	r := []rune(s)
	out := strings.ToUpper(string(r[0])) + string(r[1:])
	if !strings.HasSuffix(out, ".") && !strings.HasSuffix(out, "?") && !strings.HasSuffix(out, "!") {
		out += "."
	}
	return out
}
