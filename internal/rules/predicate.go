// Package rules implements the underwriting decision engine: predicate
// evaluation, rule applicability, the staged rule pipeline, risk loading,
// and CEL-derived record fields.
package rules

import (
	"log/slog"
	"strings"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// Evaluator evaluates conditions and condition groups against a record.
// It holds only a read-only operator table and is safe for concurrent use.
type Evaluator struct {
	operators map[domain.Operator]operatorFunc
}

// NewEvaluator creates an evaluator with the built-in operator set.
func NewEvaluator() *Evaluator {
	return &Evaluator{operators: builtinOperators()}
}

// Supports reports whether op is a known operator.
func (e *Evaluator) Supports(op domain.Operator) bool {
	_, ok := e.operators[op]
	return ok
}

// Evaluate dispatches on the node variant. Unknown variants are false.
func (e *Evaluator) Evaluate(node domain.ConditionNode, record domain.Record) bool {
	switch n := node.(type) {
	case domain.Condition:
		return e.EvaluateCondition(n, record)
	case *domain.Condition:
		if n == nil {
			return false
		}
		return e.EvaluateCondition(*n, record)
	case *domain.ConditionGroup:
		if n == nil {
			return false
		}
		return e.EvaluateGroup(n, record)
	default:
		return false
	}
}

// EvaluateGroup combines every child with the group's logical operator and
// then applies negation. A group with no children is true before negation.
func (e *Evaluator) EvaluateGroup(group *domain.ConditionGroup, record domain.Record) bool {
	var result bool
	if len(group.Conditions) == 0 {
		result = true
	} else {
		results := make([]bool, len(group.Conditions))
		for i, child := range group.Conditions {
			results[i] = e.Evaluate(child, record)
		}
		if isOr(group.LogicalOperator) {
			result = anyTrue(results)
		} else {
			result = allTrue(results)
		}
	}

	if group.IsNegated {
		return !result
	}
	return result
}

// EvaluateCondition applies a single operator. It never panics: unknown
// operators and operator failures evaluate to false.
func (e *Evaluator) EvaluateCondition(cond domain.Condition, record domain.Record) (result bool) {
	op, ok := e.operators[cond.Operator]
	if !ok {
		slog.Debug("unknown operator", "operator", cond.Operator, "field", cond.Field)
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("condition evaluation failed",
				"field", cond.Field,
				"operator", cond.Operator,
				"error", r,
			)
			result = false
		}
	}()

	return op(record.Get(cond.Field), cond.Value, cond.Value2)
}

func isOr(op domain.LogicalOperator) bool {
	return strings.EqualFold(string(op), string(domain.LogicalOr))
}

func allTrue(results []bool) bool {
	for _, r := range results {
		if !r {
			return false
		}
	}
	return true
}

func anyTrue(results []bool) bool {
	for _, r := range results {
		if r {
			return true
		}
	}
	return false
}
