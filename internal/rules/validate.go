package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// ErrInvalidRule is returned for configuration the engine could not interpret
// as intended. The engine itself never rejects configuration at run time;
// these checks guard the write path.
var ErrInvalidRule = errors.New("invalid rule configuration")

// ValidateRule checks a rule's identity, action, and condition tree.
func (e *Evaluator) ValidateRule(rule *domain.DecisionRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule is required", ErrInvalidRule)
	}
	if rule.ID == "" || rule.Name == "" {
		return fmt.Errorf("%w: id and name are required", ErrInvalidRule)
	}
	if rule.Action.Decision != "" && !isFail(rule.Action) {
		return fmt.Errorf("%w: unsupported decision %q", ErrInvalidRule, rule.Action.Decision)
	}
	if rule.EffectiveFrom != nil && rule.EffectiveTo != nil && rule.EffectiveTo.Before(*rule.EffectiveFrom) {
		return fmt.Errorf("%w: effective_to precedes effective_from", ErrInvalidRule)
	}
	return e.validateGroup(&rule.ConditionGroup, "condition_group")
}

// ValidateRiskBand checks a band's single condition.
func (e *Evaluator) ValidateRiskBand(band *domain.RiskBand) error {
	if band == nil {
		return fmt.Errorf("%w: risk band is required", ErrInvalidRule)
	}
	if band.ID == "" || band.Name == "" {
		return fmt.Errorf("%w: id and name are required", ErrInvalidRule)
	}
	return e.validateCondition(band.Condition, "condition")
}

func (e *Evaluator) validateGroup(g *domain.ConditionGroup, path string) error {
	switch strings.ToUpper(string(g.LogicalOperator)) {
	case "", string(domain.LogicalAnd), string(domain.LogicalOr):
	default:
		return fmt.Errorf("%w: %s: unsupported logical operator %q", ErrInvalidRule, path, g.LogicalOperator)
	}
	for i, child := range g.Conditions {
		childPath := fmt.Sprintf("%s.conditions[%d]", path, i)
		switch c := child.(type) {
		case domain.Condition:
			if err := e.validateCondition(c, childPath); err != nil {
				return err
			}
		case *domain.ConditionGroup:
			if c == nil {
				return fmt.Errorf("%w: %s: empty node", ErrInvalidRule, childPath)
			}
			if err := e.validateGroup(c, childPath); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %s: unknown node", ErrInvalidRule, childPath)
		}
	}
	return nil
}

func (e *Evaluator) validateCondition(c domain.Condition, path string) error {
	if c.Field == "" {
		return fmt.Errorf("%w: %s: field is required", ErrInvalidRule, path)
	}
	if !e.Supports(c.Operator) {
		return fmt.Errorf("%w: %s: unsupported operator %q", ErrInvalidRule, path, c.Operator)
	}
	if c.Operator == domain.OpBetween && (c.Value == nil || c.Value2 == nil) {
		return fmt.Errorf("%w: %s: between requires value and value2", ErrInvalidRule, path)
	}
	return nil
}
