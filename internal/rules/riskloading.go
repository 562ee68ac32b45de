package rules

import (
	"math"
	"slices"
	"sort"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// ComputeRiskLoading evaluates every enabled, applicable risk band and sums
// the matches. Bands never short-circuit each other; priority only orders
// the applied list.
func (e *Evaluator) ComputeRiskLoading(record domain.Record, productType string, basePremium float64, bands []*domain.RiskBand) domain.RiskLoadingResult {
	ordered := make([]*domain.RiskBand, 0, len(bands))
	for _, b := range bands {
		if b != nil && b.IsEnabled {
			ordered = append(ordered, b)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	result := domain.RiskLoadingResult{
		BasePremium:  basePremium,
		AppliedBands: []domain.AppliedRiskBand{},
	}

	for _, band := range ordered {
		if len(band.Products) > 0 && !slices.Contains(band.Products, productType) {
			continue
		}

		value := record.Get(band.Condition.Field)
		if value == nil && !checksEmptiness(band.Condition.Operator) {
			continue
		}

		if !e.EvaluateCondition(band.Condition, record) {
			continue
		}

		result.TotalRiskScore += band.RiskScore
		result.TotalLoadingPercentage += band.LoadingPercentage
		result.AppliedBands = append(result.AppliedBands, domain.AppliedRiskBand{
			BandID:            band.ID,
			BandName:          band.Name,
			Category:          band.Category,
			LoadingPercentage: band.LoadingPercentage,
			RiskScore:         band.RiskScore,
			ConditionField:    band.Condition.Field,
			FieldValue:        value,
		})
	}

	result.LoadedPremium = roundTo(basePremium*(1+result.TotalLoadingPercentage/100), 2)
	return result
}

func checksEmptiness(op domain.Operator) bool {
	return op == domain.OpIsEmpty || op == domain.OpIsNotEmpty
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
