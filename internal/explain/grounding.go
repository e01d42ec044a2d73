package explain

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/insightxstack/insightx-nlq/internal/models"
)

var (
	// numberToken matches integers with optional thousands separators
	// and optional decimals, e.g. 345, 10,000, 3.45.
	numberToken = regexp.MustCompile(`-?\d{1,3}(?:,\d{3})+(?:\.\d+)?|-?\d+(?:\.\d+)?`)

	// isoDate strips calendar references before token scanning. Dates
	// are labels, not computed values.
	isoDate = regexp.MustCompile(`\d{4}-\d{2}(?:-\d{2})?`)
)

// groundingTolerance absorbs display rounding. Tokens further from
// every known value than this are treated as invented.
const groundingTolerance = 0.005

// verifyGrounding checks every numeric token of text against the
// values present in the computed result. It returns the offending
// tokens when the check fails.
func verifyGrounding(text string, result models.ComputedResult) (bool, []string) {
	allowed := allowedValues(result)
	var offending []string
	for _, tok := range numberToken.FindAllString(isoDate.ReplaceAllString(text, " "), -1) {
		v, ok := parseNumber(tok)
		if !ok {
			continue
		}
		if !matchesAny(math.Abs(v), allowed) {
			offending = append(offending, tok)
		}
	}
	return len(offending) == 0, offending
}

// allowedValues collects every numeric value a generated explanation
// may legitimately mention: the headline numbers, their calculation
// fields, the series values, and the counts of both.
func allowedValues(result models.ComputedResult) []float64 {
	var out []float64
	add := func(v float64) { out = append(out, math.Abs(v)) }
	addText := func(s string) {
		for _, tok := range numberToken.FindAllString(isoDate.ReplaceAllString(s, " "), -1) {
			if v, ok := parseNumber(tok); ok {
				add(v)
			}
		}
	}

	for _, n := range result.Numbers {
		add(n.RawValue)
		addText(n.Label)
		addText(n.Value)
		if c := n.Calculation; c != nil {
			if c.Numerator != nil {
				add(*c.Numerator)
			}
			if c.Denominator != nil {
				add(*c.Denominator)
			}
			add(float64(c.SampleSize))
		}
	}
	for _, sp := range result.Series {
		add(sp.Value)
	}
	add(float64(len(result.Numbers)))
	add(float64(len(result.Series)))
	return out
}

func matchesAny(v float64, allowed []float64) bool {
	for _, a := range allowed {
		if math.Abs(v-a) <= groundingTolerance {
			return true
		}
	}
	return false
}

func parseNumber(tok string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(tok, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
