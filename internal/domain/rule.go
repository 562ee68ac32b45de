package domain

import "time"

// RuleCategory groups decision rules by the concern they cover.
type RuleCategory string

const (
	CategorySTPDecision    RuleCategory = "stp_decision"
	CategoryCaseType       RuleCategory = "case_type"
	CategoryReasonFlag     RuleCategory = "reason_flag"
	CategoryScorecard      RuleCategory = "scorecard"
	CategoryIncomeSAGrid   RuleCategory = "income_sa_grid"
	CategoryBMIGrid        RuleCategory = "bmi_grid"
	CategoryOccupation     RuleCategory = "occupation"
	CategoryAgentChannel   RuleCategory = "agent_channel"
	CategoryAddressPincode RuleCategory = "address_pincode"
	CategoryValidation     RuleCategory = "validation"
)

// DecisionFail is the only decision a rule action can set.
const DecisionFail = "FAIL"

// DecisionRule is a configured underwriting rule.
type DecisionRule struct {
	ID          string       `json:"id" yaml:"id"`
	TenantID    string       `json:"tenant_id,omitempty" yaml:"-"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Category    RuleCategory `json:"category" yaml:"category"`

	// StageID is empty for rules that run in the trailing unassigned stage.
	StageID string `json:"stage_id,omitempty" yaml:"stage_id,omitempty"`

	ConditionGroup ConditionGroup `json:"condition_group" yaml:"condition_group"`
	Action         RuleAction     `json:"action" yaml:"action"`

	// Lower runs earlier within its stage
	Priority  int  `json:"priority" yaml:"priority"`
	IsEnabled bool `json:"is_enabled" yaml:"is_enabled"`

	EffectiveFrom *time.Time `json:"effective_from,omitempty" yaml:"effective_from,omitempty"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" yaml:"effective_to,omitempty"`

	// Empty means unrestricted
	Products  []string `json:"products" yaml:"products"`
	CaseTypes []int    `json:"case_types" yaml:"case_types"`

	Version   int       `json:"version" yaml:"version"`
	CreatedAt time.Time `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// RuleAction is applied when a rule's condition group is satisfied.
type RuleAction struct {
	Decision      string `json:"decision,omitempty" yaml:"decision,omitempty"`
	ScoreImpact   *int   `json:"score_impact,omitempty" yaml:"score_impact,omitempty"`
	CaseType      *int   `json:"case_type,omitempty" yaml:"case_type,omitempty"`
	ReasonCode    string `json:"reason_code,omitempty" yaml:"reason_code,omitempty"`
	ReasonMessage string `json:"reason_message,omitempty" yaml:"reason_message,omitempty"`
	IsHardStop    bool   `json:"is_hard_stop" yaml:"is_hard_stop"`
}

// ExecutionStage is an ordered group of rules.
type ExecutionStage struct {
	ID             string    `json:"id" yaml:"id"`
	TenantID       string    `json:"tenant_id,omitempty" yaml:"-"`
	Name           string    `json:"name" yaml:"name"`
	Description    string    `json:"description,omitempty" yaml:"description,omitempty"`
	ExecutionOrder int       `json:"execution_order" yaml:"execution_order"`
	StopOnFail     bool      `json:"stop_on_fail" yaml:"stop_on_fail"`
	IsEnabled      bool      `json:"is_enabled" yaml:"is_enabled"`
	CreatedAt      time.Time `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt      time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// RiskBand is an independent, cumulative premium loading factor.
// Bands hold a single leaf condition, never a group.
type RiskBand struct {
	ID                string    `json:"id" yaml:"id"`
	TenantID          string    `json:"tenant_id,omitempty" yaml:"-"`
	Name              string    `json:"name" yaml:"name"`
	Description       string    `json:"description,omitempty" yaml:"description,omitempty"`
	Category          string    `json:"category" yaml:"category"`
	Condition         Condition `json:"condition" yaml:"condition"`
	LoadingPercentage float64   `json:"loading_percentage" yaml:"loading_percentage"`
	RiskScore         int       `json:"risk_score" yaml:"risk_score"`
	Products          []string  `json:"products" yaml:"products"`
	Priority          int       `json:"priority" yaml:"priority"`
	IsEnabled         bool      `json:"is_enabled" yaml:"is_enabled"`
	CreatedAt         time.Time `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt         time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// Snapshot is the configuration handed to one evaluation.
type Snapshot struct {
	Rules     []*DecisionRule   `json:"rules"`
	Stages    []*ExecutionStage `json:"stages"`
	RiskBands []*RiskBand       `json:"risk_bands"`
}
