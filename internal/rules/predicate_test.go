package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/underwriter/internal/domain"
)

func record(fields map[string]any) domain.Record {
	return domain.NewRecord(fields)
}

func cond(field string, op domain.Operator, value any) domain.Condition {
	return domain.Condition{Field: field, Operator: op, Value: value}
}

func TestEvaluateCondition(t *testing.T) {
	e := NewEvaluator()
	r := record(map[string]any{
		"applicant_age":    30.0,
		"applicant_gender": "Male",
		"occupation_code":  "ENG-01",
		"income_text":      "750000",
		"is_smoker":        false,
		"bmi":              nil,
		"pincode":          "",
	})

	tests := []struct {
		name string
		cond domain.Condition
		want bool
	}{
		{"equals string", cond("applicant_gender", domain.OpEquals, "Male"), true},
		{"equals is case sensitive", cond("applicant_gender", domain.OpEquals, "male"), false},
		{"equals number to integral float", cond("applicant_age", domain.OpEquals, 30), true},
		{"equals numeric string to float", cond("applicant_age", domain.OpEquals, "30"), true},
		{"equals bool", cond("is_smoker", domain.OpEquals, false), true},
		{"equals bool string", cond("is_smoker", domain.OpEquals, "false"), true},
		{"equals nil field", cond("bmi", domain.OpEquals, "x"), false},
		{"equals missing field to nil", cond("missing", domain.OpEquals, nil), true},
		{"not equals", cond("applicant_gender", domain.OpNotEquals, "Female"), true},

		{"greater than", cond("applicant_age", domain.OpGreaterThan, 25), true},
		{"greater than numeric string field", cond("income_text", domain.OpGreaterThan, 500000), true},
		{"greater than unparseable", cond("applicant_gender", domain.OpGreaterThan, 1), false},
		{"greater than nil field", cond("bmi", domain.OpGreaterThan, 1), false},
		{"greater than bool field", cond("is_smoker", domain.OpGreaterThan, -1), false},
		{"less than", cond("applicant_age", domain.OpLessThan, 18), false},
		{"greater or equal boundary", cond("applicant_age", domain.OpGreaterThanOrEqual, 30), true},
		{"less or equal boundary", cond("applicant_age", domain.OpLessThanOrEqual, 30.0), true},

		{"in list", cond("applicant_gender", domain.OpIn, []any{"Female", "Male"}), true},
		{"in list of numbers", cond("applicant_age", domain.OpIn, []any{29, 30, 31}), true},
		{"in scalar", cond("applicant_gender", domain.OpIn, "Male"), true},
		{"in nil field", cond("bmi", domain.OpIn, []any{"a"}), false},
		{"not in", cond("applicant_gender", domain.OpNotIn, []string{"Female"}), true},

		{"contains case insensitive", cond("occupation_code", domain.OpContains, "eng"), true},
		{"contains nil field", cond("bmi", domain.OpContains, "1"), false},
		{"starts with", cond("occupation_code", domain.OpStartsWith, "ENG"), true},
		{"starts with miss", cond("occupation_code", domain.OpStartsWith, "01"), false},

		{"is empty nil", cond("bmi", domain.OpIsEmpty, nil), true},
		{"is empty blank string", cond("pincode", domain.OpIsEmpty, nil), true},
		{"is empty missing", cond("missing", domain.OpIsEmpty, nil), true},
		{"is empty zero", cond("applicant_age", domain.OpIsEmpty, nil), false},
		{"is not empty", cond("applicant_gender", domain.OpIsNotEmpty, nil), true},

		{"unknown operator", cond("applicant_age", "approximately", 30), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.EvaluateCondition(tt.cond, r))
		})
	}
}

func TestBetween(t *testing.T) {
	e := NewEvaluator()
	r := record(map[string]any{"applicant_age": 35.0})

	between := func(lo, hi any) domain.Condition {
		return domain.Condition{Field: "applicant_age", Operator: domain.OpBetween, Value: lo, Value2: hi}
	}

	assert.True(t, e.EvaluateCondition(between(25, 45), r))
	assert.True(t, e.EvaluateCondition(between(35, 35), r), "bounds are inclusive")
	assert.False(t, e.EvaluateCondition(between(36, 45), r))
	assert.False(t, e.EvaluateCondition(between(25, nil), r), "missing upper bound fails closed")
	assert.False(t, e.EvaluateCondition(between("low", 45), r))
}

func TestEqualsCanonicalForm(t *testing.T) {
	e := NewEvaluator()

	// Integral floats render without a fraction, so "5" equals 5.0.
	assert.True(t, e.EvaluateCondition(cond("n", domain.OpEquals, "5"), record(map[string]any{"n": 5.0})))
	// Non-integral floats keep their shortest form.
	assert.True(t, e.EvaluateCondition(cond("n", domain.OpEquals, "5.5"), record(map[string]any{"n": 5.5})))
	// Trailing zeros in a string operand are not normalised.
	assert.False(t, e.EvaluateCondition(cond("n", domain.OpEquals, "5.0"), record(map[string]any{"n": 5.0})))
}

func TestEvaluateGroup(t *testing.T) {
	e := NewEvaluator()
	r := record(map[string]any{
		"applicant_age": 40.0,
		"is_smoker":     true,
		"sum_assured":   6000000.0,
	})

	t.Run("AndAllTrue", func(t *testing.T) {
		g := &domain.ConditionGroup{
			LogicalOperator: domain.LogicalAnd,
			Conditions: []domain.ConditionNode{
				cond("is_smoker", domain.OpEquals, true),
				cond("sum_assured", domain.OpGreaterThan, 5000000),
			},
		}
		assert.True(t, e.EvaluateGroup(g, r))
	})

	t.Run("AndOneFalse", func(t *testing.T) {
		g := &domain.ConditionGroup{
			LogicalOperator: domain.LogicalAnd,
			Conditions: []domain.ConditionNode{
				cond("is_smoker", domain.OpEquals, true),
				cond("applicant_age", domain.OpLessThan, 30),
			},
		}
		assert.False(t, e.EvaluateGroup(g, r))
	})

	t.Run("OrAnyTrue", func(t *testing.T) {
		g := &domain.ConditionGroup{
			LogicalOperator: "or",
			Conditions: []domain.ConditionNode{
				cond("applicant_age", domain.OpLessThan, 30),
				cond("is_smoker", domain.OpEquals, true),
			},
		}
		assert.True(t, e.EvaluateGroup(g, r))
	})

	t.Run("Negated", func(t *testing.T) {
		g := &domain.ConditionGroup{
			LogicalOperator: domain.LogicalAnd,
			IsNegated:       true,
			Conditions: []domain.ConditionNode{
				cond("is_smoker", domain.OpEquals, true),
			},
		}
		assert.False(t, e.EvaluateGroup(g, r))
	})

	t.Run("Nested", func(t *testing.T) {
		g := &domain.ConditionGroup{
			LogicalOperator: domain.LogicalAnd,
			Conditions: []domain.ConditionNode{
				cond("applicant_age", domain.OpGreaterThan, 18),
				&domain.ConditionGroup{
					LogicalOperator: domain.LogicalOr,
					Conditions: []domain.ConditionNode{
						cond("sum_assured", domain.OpGreaterThan, 10000000),
						cond("is_smoker", domain.OpEquals, true),
					},
				},
			},
		}
		assert.True(t, e.EvaluateGroup(g, r))
	})

	t.Run("EmptyGroupIsVacuouslyTrue", func(t *testing.T) {
		assert.True(t, e.EvaluateGroup(&domain.ConditionGroup{LogicalOperator: domain.LogicalAnd}, r))
		assert.True(t, e.EvaluateGroup(&domain.ConditionGroup{LogicalOperator: domain.LogicalOr}, r))
	})

	t.Run("EmptyNegatedGroupIsFalse", func(t *testing.T) {
		assert.False(t, e.EvaluateGroup(&domain.ConditionGroup{IsNegated: true}, r))
	})

	t.Run("UnknownOperatorFailsClosedInsideOr", func(t *testing.T) {
		g := &domain.ConditionGroup{
			LogicalOperator: domain.LogicalOr,
			Conditions: []domain.ConditionNode{
				cond("applicant_age", "bogus", 40),
				cond("applicant_age", domain.OpEquals, 40),
			},
		}
		assert.True(t, e.EvaluateGroup(g, r))
	})
}

func TestEvaluateNilNode(t *testing.T) {
	e := NewEvaluator()
	var g *domain.ConditionGroup
	assert.False(t, e.Evaluate(g, record(nil)))
	assert.False(t, e.Evaluate(nil, record(nil)))
}

func TestConditionGroupJSON(t *testing.T) {
	raw := `{
		"logical_operator": "AND",
		"conditions": [
			{"field": "applicant_age", "operator": "between", "value": 25, "value2": 45},
			{"logical_operator": "OR", "is_negated": true, "conditions": [
				{"field": "is_smoker", "operator": "equals", "value": true}
			]},
			{"conditions": []}
		]
	}`

	var g domain.ConditionGroup
	require.NoError(t, json.Unmarshal([]byte(raw), &g))
	require.Len(t, g.Conditions, 3)

	leaf, ok := g.Conditions[0].(domain.Condition)
	require.True(t, ok)
	assert.Equal(t, domain.OpBetween, leaf.Operator)

	nested, ok := g.Conditions[1].(*domain.ConditionGroup)
	require.True(t, ok)
	assert.True(t, nested.IsNegated)
	require.Len(t, nested.Conditions, 1)

	empty, ok := g.Conditions[2].(*domain.ConditionGroup)
	require.True(t, ok)
	assert.Empty(t, empty.Conditions)

	assert.Equal(t, []string{"applicant_age", "is_smoker"}, g.Fields())

	e := NewEvaluator()
	r := record(map[string]any{"applicant_age": 30.0, "is_smoker": false})
	assert.True(t, e.EvaluateGroup(&g, r))

	// Round trip keeps the shape.
	data, err := json.Marshal(g)
	require.NoError(t, err)
	var again domain.ConditionGroup
	require.NoError(t, json.Unmarshal(data, &again))
	assert.Equal(t, e.EvaluateGroup(&g, r), e.EvaluateGroup(&again, r))
}
