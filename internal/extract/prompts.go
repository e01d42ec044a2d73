package extract

import (
	"fmt"
	"strings"

	"github.com/insightxstack/insightx-nlq/internal/schema"
)

func systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a strict intent extractor for a payment transactions analytics engine. ")
	b.WriteString("Read one user question plus short session context and emit a single JSON object describing the requested computation.\n\n")
	b.WriteString(schema.PromptSummary())
	b.WriteString("\n\nOutput JSON fields:\n")
	b.WriteString(`- operation: one of "failure_rate", "aggregate", "compare_segments", "time_series", "top_failure_codes", "executive_summary", "unsupported"
- metric: canonical metric name when the operation needs one
- filters: object mapping a column name to the list of values it must match
- amount_range: {"min": number, "max": number} for constraints on the transaction amount
- group_by: array of columns to break the result down by
- time: {"period": "last_7_days"|"last_30_days"|"last_90_days"} for relative phrases, or {"from": "YYYY-MM-DD", "to": "YYYY-MM-DD"} for explicit dates
- granularity: "day"|"week"|"month" for time_series
- segments: exactly two {"name", "filters"} objects for compare_segments
- top_k: integer for top_failure_codes
- confidence: your confidence in this reading, between 0 and 1
- needs_clarification: true when the question is ambiguous between operations or missing a required slot
- reason: short grounds when needs_clarification is true or operation is "unsupported"

Rules:
1. Return JSON only. No explanation, no markdown, starting with { and ending with }.
2. "last week" means period last_7_days, "last month" means last_30_days, "last quarter" means last_90_days.
3. Map wording onto metrics: "transactions" or "how many" means volume, "average amount" means avg_amount, "failures" or "failure rate" means failure_rate, "total spend" means total_amount.
4. Questions about anything outside the dataset (refund reasons, merchant names, customer identities) get operation "unsupported" with a reason.
5. Vague questions ("tell me something interesting") get needs_clarification true.
6. Use only column names and values from the dataset description above.`)
	return b.String()
}

func userPrompt(query, context string) string {
	if strings.TrimSpace(context) == "" {
		context = "No previous context."
	}
	return fmt.Sprintf(`User question: %s

Session context (previous conversation):
%s

Extract the intent from the user question above. Return JSON only.`, query, context)
}
