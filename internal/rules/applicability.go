package rules

import (
	"slices"
	"time"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// IsApplicable reports whether rule may run for the given product type and
// the case type the pipeline currently holds.
func IsApplicable(rule *domain.DecisionRule, productType string, currentCaseType int, now time.Time) bool {
	if rule == nil || !rule.IsEnabled {
		return false
	}
	if rule.EffectiveFrom != nil && now.Before(*rule.EffectiveFrom) {
		return false
	}
	if rule.EffectiveTo != nil && now.After(*rule.EffectiveTo) {
		return false
	}
	if len(rule.Products) > 0 && !slices.Contains(rule.Products, productType) {
		return false
	}
	if len(rule.CaseTypes) > 0 && !slices.Contains(rule.CaseTypes, currentCaseType) {
		return false
	}
	return true
}
