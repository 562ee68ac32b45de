package domain

import (
	"time"
)

// Case types route a proposal after evaluation.
const (
	CaseTypeNormal       = 0
	CaseTypeDirectAccept = 1
	CaseTypeDirectFail   = -1
	CaseTypeGCRP         = 3
)

// CaseTypeLabel returns the display label for a case type.
func CaseTypeLabel(caseType int) string {
	switch caseType {
	case CaseTypeNormal:
		return "Normal Case"
	case CaseTypeDirectAccept:
		return "Direct Accept"
	case CaseTypeDirectFail:
		return "Direct Fail"
	case CaseTypeGCRP:
		return "GCRP Case"
	default:
		return "Unknown"
	}
}

// STP decisions
const (
	DecisionPass = "PASS"
)

// StageStatus is the terminal state of a stage in one evaluation.
type StageStatus string

const (
	StagePassed  StageStatus = "passed"
	StageFailed  StageStatus = "failed"
	StageSkipped StageStatus = "skipped"
)

// UnassignedStageID identifies the synthetic trailing stage.
const UnassignedStageID = "unassigned"

// EvaluationResult is the complete outcome of underwriting one proposal.
type EvaluationResult struct {
	ID         string `json:"id,omitempty"`
	TenantID   string `json:"tenant_id,omitempty"`
	ProposalID string `json:"proposal_id"`
	TraceID    string `json:"trace_id,omitempty"`

	STPDecision      string   `json:"stp_decision"`
	CaseType         int      `json:"case_type"`
	CaseTypeLabel    string   `json:"case_type_label"`
	ReasonFlag       int      `json:"reason_flag"`
	ScorecardValue   int      `json:"scorecard_value"`
	TriggeredRules   []string `json:"triggered_rules"`
	ValidationErrors []string `json:"validation_errors"`
	ReasonCodes      []string `json:"reason_codes"`
	ReasonMessages   []string `json:"reason_messages"`

	RuleTrace   []RuleTrace        `json:"rule_trace"`
	StageTrace  []StageTrace       `json:"stage_trace"`
	RiskLoading *RiskLoadingResult `json:"risk_loading"`

	EvaluationTimeMs float64   `json:"evaluation_time_ms"`
	EvaluatedAt      time.Time `json:"evaluated_at"`
}

// RuleTrace records one evaluated rule.
type RuleTrace struct {
	RuleID          string         `json:"rule_id"`
	RuleName        string         `json:"rule_name"`
	Category        RuleCategory   `json:"category"`
	StageID         string         `json:"stage_id"`
	Triggered       bool           `json:"triggered"`
	InputValues     map[string]any `json:"input_values"`
	ConditionResult bool           `json:"condition_result"`
	ActionApplied   *RuleAction    `json:"action_applied"`
	ExecutionTimeMs float64        `json:"execution_time_ms"`
}

// StageTrace records one stage, including skipped ones.
type StageTrace struct {
	StageID             string      `json:"stage_id"`
	StageName           string      `json:"stage_name"`
	ExecutionOrder      int         `json:"execution_order"`
	Status              StageStatus `json:"status"`
	RulesExecuted       []RuleTrace `json:"rules_executed"`
	TriggeredRulesCount int         `json:"triggered_rules_count"`
	ExecutionTimeMs     float64     `json:"execution_time_ms"`
}

// AppliedRiskBand records a band that matched the proposal.
type AppliedRiskBand struct {
	BandID            string  `json:"band_id"`
	BandName          string  `json:"band_name"`
	Category          string  `json:"category"`
	LoadingPercentage float64 `json:"loading_percentage"`
	RiskScore         int     `json:"risk_score"`
	ConditionField    string  `json:"condition_field"`
	FieldValue        any     `json:"field_value"`
}

// RiskLoadingResult is the cumulative outcome of all matching risk bands.
type RiskLoadingResult struct {
	TotalRiskScore         int               `json:"total_risk_score"`
	TotalLoadingPercentage float64           `json:"total_loading_percentage"`
	BasePremium            float64           `json:"base_premium"`
	LoadedPremium          float64           `json:"loaded_premium"`
	AppliedBands           []AppliedRiskBand `json:"applied_bands"`
}

// IsReferral reports whether the result needs manual underwriting attention.
func (r *EvaluationResult) IsReferral() bool {
	return r.STPDecision == DecisionFail || r.CaseType == CaseTypeGCRP
}

// EvaluationFilter narrows evaluation history queries.
type EvaluationFilter struct {
	STPDecision string
	ProposalID  string
	Limit       int
}
