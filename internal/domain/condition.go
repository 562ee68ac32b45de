package domain

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Operator names a leaf comparison.
type Operator string

// Supported operators.
const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "not_equals"
	OpGreaterThan        Operator = "greater_than"
	OpLessThan           Operator = "less_than"
	OpGreaterThanOrEqual Operator = "greater_than_or_equal"
	OpLessThanOrEqual    Operator = "less_than_or_equal"
	OpBetween            Operator = "between"
	OpIn                 Operator = "in"
	OpNotIn              Operator = "not_in"
	OpContains           Operator = "contains"
	OpStartsWith         Operator = "starts_with"
	OpIsEmpty            Operator = "is_empty"
	OpIsNotEmpty         Operator = "is_not_empty"
)

// LogicalOperator combines the children of a group.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// ConditionNode is either a Condition or a *ConditionGroup.
type ConditionNode interface {
	conditionNode()
}

// Condition is a single leaf predicate. Value2 is only read by between.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
	Value2   any      `json:"value2,omitempty" yaml:"value2,omitempty"`
}

func (Condition) conditionNode() {}

// ConditionGroup combines nested nodes with AND or OR, optionally negated.
// An empty group evaluates to true before negation.
type ConditionGroup struct {
	LogicalOperator LogicalOperator `json:"logical_operator" yaml:"logical_operator"`
	Conditions      []ConditionNode `json:"conditions" yaml:"conditions"`
	IsNegated       bool            `json:"is_negated" yaml:"is_negated"`
}

func (*ConditionGroup) conditionNode() {}

// Fields returns every field referenced in the tree, in first-seen order.
func (g *ConditionGroup) Fields() []string {
	if g == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	var walk func(nodes []ConditionNode)
	walk = func(nodes []ConditionNode) {
		for _, n := range nodes {
			switch c := n.(type) {
			case Condition:
				if !seen[c.Field] {
					seen[c.Field] = true
					out = append(out, c.Field)
				}
			case *Condition:
				if c != nil && !seen[c.Field] {
					seen[c.Field] = true
					out = append(out, c.Field)
				}
			case *ConditionGroup:
				if c != nil {
					walk(c.Conditions)
				}
			}
		}
	}
	walk(g.Conditions)
	return out
}

// UnmarshalJSON decodes children by shape: objects carrying "conditions" or
// "logical_operator" are groups, anything else is a leaf condition.
func (g *ConditionGroup) UnmarshalJSON(data []byte) error {
	var raw struct {
		LogicalOperator LogicalOperator   `json:"logical_operator"`
		Conditions      []json.RawMessage `json:"conditions"`
		IsNegated       bool              `json:"is_negated"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	g.LogicalOperator = raw.LogicalOperator
	g.IsNegated = raw.IsNegated
	g.Conditions = make([]ConditionNode, 0, len(raw.Conditions))

	for i, child := range raw.Conditions {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(child, &probe); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
		_, hasConditions := probe["conditions"]
		_, hasLogical := probe["logical_operator"]
		if hasConditions || hasLogical {
			var sub ConditionGroup
			if err := json.Unmarshal(child, &sub); err != nil {
				return fmt.Errorf("condition %d: %w", i, err)
			}
			g.Conditions = append(g.Conditions, &sub)
			continue
		}
		var c Condition
		if err := json.Unmarshal(child, &c); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
		g.Conditions = append(g.Conditions, c)
	}
	return nil
}

// UnmarshalYAML applies the same shape rule as UnmarshalJSON.
func (g *ConditionGroup) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		LogicalOperator LogicalOperator `yaml:"logical_operator"`
		Conditions      []yaml.Node     `yaml:"conditions"`
		IsNegated       bool            `yaml:"is_negated"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	g.LogicalOperator = raw.LogicalOperator
	g.IsNegated = raw.IsNegated
	g.Conditions = make([]ConditionNode, 0, len(raw.Conditions))

	for i := range raw.Conditions {
		child := &raw.Conditions[i]
		if yamlHasKey(child, "conditions", "logical_operator") {
			var sub ConditionGroup
			if err := child.Decode(&sub); err != nil {
				return fmt.Errorf("condition %d: %w", i, err)
			}
			g.Conditions = append(g.Conditions, &sub)
			continue
		}
		var c Condition
		if err := child.Decode(&c); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
		g.Conditions = append(g.Conditions, c)
	}
	return nil
}

func yamlHasKey(n *yaml.Node, keys ...string) bool {
	if n.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		for _, k := range keys {
			if n.Content[i].Value == k {
				return true
			}
		}
	}
	return false
}
