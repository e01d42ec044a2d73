package explain

import (
	"testing"

	"github.com/insightxstack/insightx-nlq/internal/models"
)

func failureRateResult() models.ComputedResult {
	failed, total := 345.0, 10000.0
	return models.ComputedResult{
		Operation: models.OpFailureRate,
		Metric:    "failure_rate",
		Numbers: []models.NumberDetail{
			{
				Label:    "Failure Rate",
				Value:    "3.45%",
				RawValue: 3.45,
				Calculation: &models.Calculation{
					Numerator:   &failed,
					Denominator: &total,
					SampleSize:  10000,
				},
			},
			{Label: "Failed Transactions", Value: "345", RawValue: 345},
			{Label: "Total Transactions", Value: "10,000", RawValue: 10000},
		},
	}
}

func TestVerifyGroundingAcceptsResultNumbers(t *testing.T) {
	ok, offending := verifyGrounding(
		"The failure rate is 3.45%, with 345 failures out of 10,000 transactions.",
		failureRateResult())
	if !ok {
		t.Fatalf("expected grounded text accepted, offending: %v", offending)
	}
}

func TestVerifyGroundingCatchesInventedNumbers(t *testing.T) {
	ok, offending := verifyGrounding(
		"The failure rate is 3.45%, roughly 12% higher than last month.",
		failureRateResult())
	if ok {
		t.Fatalf("expected invented comparison rejected")
	}
	if len(offending) != 1 || offending[0] != "12" {
		t.Fatalf("expected the invented token named, got %v", offending)
	}
}

func TestVerifyGroundingToleratesRounding(t *testing.T) {
	result := models.ComputedResult{
		Numbers: []models.NumberDetail{{Label: "Average", Value: "₹152.75", RawValue: 152.7512}},
	}
	ok, offending := verifyGrounding("The average amount is 152.75 rupees.", result)
	if !ok {
		t.Fatalf("expected rounded value accepted, offending: %v", offending)
	}
}

func TestVerifyGroundingIgnoresDates(t *testing.T) {
	result := models.ComputedResult{
		Numbers: []models.NumberDetail{{Label: "2024-01-15", Value: "420", RawValue: 420}},
	}
	ok, offending := verifyGrounding("On 2024-01-15 there were 420 transactions.", result)
	if !ok {
		t.Fatalf("expected date treated as label, offending: %v", offending)
	}
}

func TestVerifyGroundingAllowsSeriesValues(t *testing.T) {
	result := models.ComputedResult{
		Series: []models.SeriesPoint{
			{Bucket: "2024-01-01", Value: 410},
			{Bucket: "2024-01-02", Value: 385},
		},
	}
	ok, offending := verifyGrounding("Volume moved from 410 to 385 across 2 days.", result)
	if !ok {
		t.Fatalf("expected series values accepted, offending: %v", offending)
	}
}

func TestVerifyGroundingHandlesCommaSeparators(t *testing.T) {
	ok, offending := verifyGrounding("Out of 10,000 transactions, 345 failed.", failureRateResult())
	if !ok {
		t.Fatalf("expected comma-grouped token matched, offending: %v", offending)
	}
}

func TestVerifyGroundingPassesWithoutNumbers(t *testing.T) {
	ok, _ := verifyGrounding("Failures held steady across the period.", failureRateResult())
	if !ok {
		t.Fatalf("expected numberless text accepted")
	}
}
