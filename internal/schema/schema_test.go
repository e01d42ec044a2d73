package schema

import (
	"strings"
	"testing"
)

func TestCanonicalMetricAliases(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"failure_rate", MetricFailureRate},
		{"Failure Rate", MetricFailureRate},
		{"transaction_count", MetricVolume},
		{"COUNT", MetricVolume},
		{"average_amount", MetricAvgAmount},
		{"avg-amount", MetricAvgAmount},
		{"gmv", MetricTotalAmount},
		{" fraud_rate ", MetricFraudRate},
	}
	for _, tc := range cases {
		got, ok := CanonicalMetric(tc.raw)
		if !ok || got != tc.want {
			t.Fatalf("CanonicalMetric(%q) = %q, %v; want %q", tc.raw, got, ok, tc.want)
		}
	}

	if _, ok := CanonicalMetric("churn_rate"); ok {
		t.Fatalf("expected unknown metric refused")
	}
	if _, ok := CanonicalMetric(""); ok {
		t.Fatalf("expected empty metric refused")
	}
}

func TestCanonicalValueClosedDimensions(t *testing.T) {
	got, ok := CanonicalValue(ColPaymentMethod, "upi")
	if !ok || got != "UPI" {
		t.Fatalf("expected upi canonicalized to UPI, got %q, %v", got, ok)
	}
	got, ok = CanonicalValue(ColDevice, " ios ")
	if !ok || got != "iOS" {
		t.Fatalf("expected ios canonicalized to iOS, got %q, %v", got, ok)
	}
	if _, ok := CanonicalValue(ColPaymentMethod, "Crypto"); ok {
		t.Fatalf("expected out-of-vocabulary value refused")
	}
}

func TestCanonicalValueOpenDimensions(t *testing.T) {
	got, ok := CanonicalValue(ColState, " Maharashtra ")
	if !ok || got != "Maharashtra" {
		t.Fatalf("expected open dimension trimmed and accepted, got %q, %v", got, ok)
	}
	got, ok = CanonicalValue(ColFailureCode, "E102")
	if !ok || got != "E102" {
		t.Fatalf("expected failure code accepted, got %q, %v", got, ok)
	}
	if _, ok := CanonicalValue("merchant_name", "anything"); ok {
		t.Fatalf("expected unknown dimension refused")
	}
}

func TestDimensionPredicates(t *testing.T) {
	if !IsDimension(ColPaymentMethod) || IsDimension(ColAmount) {
		t.Fatalf("unexpected dimension classification")
	}
	if !IsGroupable(ColFailureCode) || IsGroupable(ColAmount) {
		t.Fatalf("unexpected groupable classification")
	}
	if !IsNumeric(ColAmount) || IsNumeric(ColDevice) {
		t.Fatalf("unexpected numeric classification")
	}
}

func TestIsRate(t *testing.T) {
	for _, m := range []string{MetricFailureRate, MetricFraudRate, MetricReviewRate} {
		if !IsRate(m) {
			t.Fatalf("expected %s treated as a rate", m)
		}
	}
	for _, m := range []string{MetricVolume, MetricAvgAmount, MetricTotalAmount} {
		if IsRate(m) {
			t.Fatalf("expected %s not treated as a rate", m)
		}
	}
}

func TestDimensionValuesCopies(t *testing.T) {
	vals := DimensionValues(ColPaymentMethod)
	if len(vals) != 3 {
		t.Fatalf("unexpected payment methods %v", vals)
	}
	vals[0] = "mutated"
	if DimensionValues(ColPaymentMethod)[0] != "UPI" {
		t.Fatalf("expected vocabulary insulated from caller mutation")
	}
	if DimensionValues(ColState) != nil {
		t.Fatalf("expected open dimension to report no value set")
	}
}

func TestPromptSummaryIsDeterministic(t *testing.T) {
	first := PromptSummary()
	for i := 0; i < 5; i++ {
		if PromptSummary() != first {
			t.Fatalf("expected stable prompt summary")
		}
	}
	for _, want := range []string{"payment_method: UPI, Card, NetBanking", "state: open set", "failure_rate"} {
		if !strings.Contains(first, want) {
			t.Fatalf("expected %q in prompt summary:\n%s", want, first)
		}
	}
}
