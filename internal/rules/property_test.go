package rules_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/rules"
)

func scoreRule(id string, priority, impact int, threshold float64) *domain.DecisionRule {
	return &domain.DecisionRule{
		ID:       id,
		Name:     id,
		Category: domain.CategoryScorecard,
		ConditionGroup: domain.ConditionGroup{
			LogicalOperator: domain.LogicalAnd,
			Conditions: []domain.ConditionNode{
				domain.Condition{Field: "applicant_age", Operator: domain.OpGreaterThan, Value: threshold},
			},
		},
		Action:    domain.RuleAction{ScoreImpact: &impact, ReasonCode: id},
		Priority:  priority,
		IsEnabled: true,
	}
}

// TestPipelineDeterminism verifies repeated execution yields the same outcome.
// Property: Execute(x) == Execute(x) ignoring timings
func TestPipelineDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := rules.NewPipeline(rules.NewEvaluator(), rules.WithClock(func() time.Time { return now }))

	properties.Property("pipeline execution is deterministic", prop.ForAll(
		func(age float64, impacts []int) bool {
			ruleset := make([]*domain.DecisionRule, 0, len(impacts))
			for i, impact := range impacts {
				ruleset = append(ruleset, scoreRule(string(rune('A'+i%26)), i%3, impact, float64(i*7)))
			}
			record := domain.NewRecord(map[string]any{"applicant_age": age})

			a := p.Execute(record, domain.ProductTermLife, ruleset, nil)
			b := p.Execute(record, domain.ProductTermLife, ruleset, nil)

			return a.Decision == b.Decision &&
				a.CaseType == b.CaseType &&
				a.ScorecardValue == b.ScorecardValue &&
				reflect.DeepEqual(a.ReasonCodes, b.ReasonCodes) &&
				reflect.DeepEqual(a.TriggeredRules, b.TriggeredRules)
		},
		gen.Float64Range(0, 100),
		gen.SliceOfN(10, gen.IntRange(-50, 50)),
	))

	// Property: scorecard == sum of impacts of triggered rules
	properties.Property("scorecard is the sum of triggered impacts", prop.ForAll(
		func(age float64, impacts []int) bool {
			ruleset := make([]*domain.DecisionRule, 0, len(impacts))
			want := 0
			for i, impact := range impacts {
				threshold := float64(i * 7)
				ruleset = append(ruleset, scoreRule(string(rune('a'+i%26)), i, impact, threshold))
				if age > threshold {
					want += impact
				}
			}

			out := p.Execute(domain.NewRecord(map[string]any{"applicant_age": age}), domain.ProductTermLife, ruleset, nil)
			return out.ScorecardValue == want
		},
		gen.Float64Range(0, 100),
		gen.SliceOfN(10, gen.IntRange(-50, 50)),
	))

	properties.TestingRun(t)
}

// TestRiskLoadingMonotone verifies loaded premium never drops below base for
// non-negative loadings.
func TestRiskLoadingMonotone(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	e := rules.NewEvaluator()

	properties.Property("loaded premium >= base premium", prop.ForAll(
		func(base float64, loadings []float64) bool {
			bands := make([]*domain.RiskBand, 0, len(loadings))
			for i, l := range loadings {
				bands = append(bands, &domain.RiskBand{
					ID:                string(rune('a' + i%26)),
					Name:              "band",
					Condition:         domain.Condition{Field: "is_smoker", Operator: domain.OpEquals, Value: true},
					LoadingPercentage: l,
					Priority:          i,
					IsEnabled:         true,
				})
			}
			out := e.ComputeRiskLoading(domain.NewRecord(map[string]any{"is_smoker": true}), domain.ProductTermLife, base, bands)
			return out.LoadedPremium >= base-0.005 && len(out.AppliedBands) == len(bands)
		},
		gen.Float64Range(0, 1000000),
		gen.SliceOfN(5, gen.Float64Range(0, 100)),
	))

	properties.TestingRun(t)
}
