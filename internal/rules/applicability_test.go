package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/opensource-finance/underwriter/internal/domain"
)

func TestIsApplicable(t *testing.T) {
	past := fixedNow.Add(-24 * time.Hour)
	future := fixedNow.Add(24 * time.Hour)

	base := func() *domain.DecisionRule {
		return &domain.DecisionRule{ID: "r", Name: "r", IsEnabled: true}
	}

	tests := []struct {
		name     string
		mutate   func(r *domain.DecisionRule)
		product  string
		caseType int
		want     bool
	}{
		{"unrestricted", func(*domain.DecisionRule) {}, domain.ProductTermLife, 0, true},
		{"disabled", func(r *domain.DecisionRule) { r.IsEnabled = false }, domain.ProductTermLife, 0, false},
		{"not yet effective", func(r *domain.DecisionRule) { r.EffectiveFrom = &future }, domain.ProductTermLife, 0, false},
		{"effective", func(r *domain.DecisionRule) { r.EffectiveFrom = &past; r.EffectiveTo = &future }, domain.ProductTermLife, 0, true},
		{"expired", func(r *domain.DecisionRule) { r.EffectiveTo = &past }, domain.ProductTermLife, 0, false},
		{"effective boundary", func(r *domain.DecisionRule) { r.EffectiveFrom = &fixedNow; r.EffectiveTo = &fixedNow }, domain.ProductTermLife, 0, true},
		{"product match", func(r *domain.DecisionRule) { r.Products = []string{domain.ProductTermLife, domain.ProductULIP} }, domain.ProductULIP, 0, true},
		{"product mismatch", func(r *domain.DecisionRule) { r.Products = []string{domain.ProductEndowment} }, domain.ProductTermLife, 0, false},
		{"empty products list", func(r *domain.DecisionRule) { r.Products = []string{} }, domain.ProductEndowment, 0, true},
		{"case type match", func(r *domain.DecisionRule) { r.CaseTypes = []int{1, 3} }, domain.ProductTermLife, 3, true},
		{"case type mismatch", func(r *domain.DecisionRule) { r.CaseTypes = []int{3} }, domain.ProductTermLife, 0, false},
		{"direct fail case type", func(r *domain.DecisionRule) { r.CaseTypes = []int{-1} }, domain.ProductTermLife, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base()
			tt.mutate(r)
			assert.Equal(t, tt.want, IsApplicable(r, tt.product, tt.caseType, fixedNow))
		})
	}

	assert.False(t, IsApplicable(nil, domain.ProductTermLife, 0, fixedNow))
}
