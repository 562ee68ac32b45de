package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/underwriter/internal/domain"
)

func band(id string, priority int, loading float64, score int, c domain.Condition) *domain.RiskBand {
	return &domain.RiskBand{
		ID:                id,
		Name:              id,
		Category:          "test",
		Condition:         c,
		LoadingPercentage: loading,
		RiskScore:         score,
		Priority:          priority,
		IsEnabled:         true,
	}
}

func standardBands() []*domain.RiskBand {
	return []*domain.RiskBand{
		band("age-25-35", 10, 0, 0, domain.Condition{Field: "applicant_age", Operator: domain.OpBetween, Value: 25, Value2: 35}),
		band("smoker", 20, 25, 20, cond("is_smoker", domain.OpEquals, true)),
		band("bmi-obese", 30, 25, 15, cond("bmi", domain.OpGreaterThanOrEqual, 30)),
		band("occupation-high", 40, 50, 30, cond("occupation_risk", domain.OpEquals, "high")),
	}
}

func TestRiskLoadingIndependence(t *testing.T) {
	e := NewEvaluator()
	r := record(map[string]any{
		"applicant_age":   30.0,
		"is_smoker":       true,
		"bmi":             32.5,
		"occupation_risk": "low",
	})

	result := e.ComputeRiskLoading(r, domain.ProductTermLife, 25000, standardBands())

	assert.Equal(t, 50.0, result.TotalLoadingPercentage)
	assert.Equal(t, 37500.0, result.LoadedPremium)
	assert.Equal(t, 25000.0, result.BasePremium)
	assert.Equal(t, 35, result.TotalRiskScore)

	require.Len(t, result.AppliedBands, 3)
	assert.Equal(t, "age-25-35", result.AppliedBands[0].BandID)
	assert.Equal(t, "smoker", result.AppliedBands[1].BandID)
	assert.Equal(t, "bmi-obese", result.AppliedBands[2].BandID)
	assert.Equal(t, "bmi", result.AppliedBands[2].ConditionField)
	assert.Equal(t, 32.5, result.AppliedBands[2].FieldValue)
}

func TestRiskLoadingSkipsNilFields(t *testing.T) {
	e := NewEvaluator()
	bands := []*domain.RiskBand{
		band("bmi-not-above", 10, 10, 1, cond("bmi", domain.OpNotEquals, 40)),
		band("bmi-missing", 20, 5, 1, cond("bmi", domain.OpIsEmpty, nil)),
	}

	result := e.ComputeRiskLoading(record(map[string]any{"bmi": nil}), domain.ProductTermLife, 1000, bands)

	require.Len(t, result.AppliedBands, 1, "only emptiness checks see nil fields")
	assert.Equal(t, "bmi-missing", result.AppliedBands[0].BandID)
	assert.Equal(t, 1050.0, result.LoadedPremium)
}

func TestRiskLoadingProductsAndEnabled(t *testing.T) {
	e := NewEvaluator()
	ulipOnly := band("ulip", 10, 10, 1, cond("is_smoker", domain.OpEquals, true))
	ulipOnly.Products = []string{domain.ProductULIP}
	disabled := band("off", 20, 10, 1, cond("is_smoker", domain.OpEquals, true))
	disabled.IsEnabled = false

	r := record(map[string]any{"is_smoker": true})
	bands := []*domain.RiskBand{ulipOnly, disabled, nil}

	term := e.ComputeRiskLoading(r, domain.ProductTermLife, 1000, bands)
	assert.Empty(t, term.AppliedBands)
	assert.NotNil(t, term.AppliedBands)
	assert.Equal(t, 1000.0, term.LoadedPremium)

	ulip := e.ComputeRiskLoading(r, domain.ProductULIP, 1000, bands)
	require.Len(t, ulip.AppliedBands, 1)
	assert.Equal(t, 1100.0, ulip.LoadedPremium)
}

func TestRiskLoadingRounding(t *testing.T) {
	e := NewEvaluator()
	bands := []*domain.RiskBand{
		band("odd", 1, 12.345, 0, cond("is_smoker", domain.OpEquals, true)),
	}

	result := e.ComputeRiskLoading(record(map[string]any{"is_smoker": true}), domain.ProductTermLife, 333.33, bands)

	assert.Equal(t, 374.48, result.LoadedPremium)
}

func TestRiskLoadingOrdersByPriority(t *testing.T) {
	e := NewEvaluator()
	always := cond("is_smoker", domain.OpEquals, true)
	bands := []*domain.RiskBand{
		band("third", 30, 1, 0, always),
		band("first", 10, 1, 0, always),
		band("second", 20, 1, 0, always),
	}

	result := e.ComputeRiskLoading(record(map[string]any{"is_smoker": true}), domain.ProductTermLife, 100, bands)

	require.Len(t, result.AppliedBands, 3)
	assert.Equal(t, "first", result.AppliedBands[0].BandID)
	assert.Equal(t, "second", result.AppliedBands[1].BandID)
	assert.Equal(t, "third", result.AppliedBands[2].BandID)
	assert.Equal(t, "third", bands[0].ID, "input order is preserved")
}
