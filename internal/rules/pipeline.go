package rules

import (
	"sort"
	"strings"
	"time"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// Pipeline runs decision rules stage by stage.
// It is stateless between calls and safe for concurrent use.
type Pipeline struct {
	evaluator *Evaluator
	now       func() time.Time
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithClock overrides the clock used for effective-date checks.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		p.now = now
	}
}

// NewPipeline creates a stage pipeline backed by evaluator.
func NewPipeline(evaluator *Evaluator, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		evaluator: evaluator,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PipelineOutcome is the folded result of all stages. Reason lists are in
// emission order and not yet deduplicated.
type PipelineOutcome struct {
	Decision         string
	CaseType         int
	ReasonFlag       int
	ScorecardValue   int
	TriggeredRules   []string
	ValidationErrors []string
	ReasonCodes      []string
	ReasonMessages   []string
	RuleTrace        []domain.RuleTrace
	StageTrace       []domain.StageTrace
	Halted           bool
}

// accumulator carries the running state of one Execute call.
type accumulator struct {
	decision   string
	caseType   int
	reasonFlag int
	score      int
	halted     bool

	triggered        []string
	validationErrors []string
	reasonCodes      []string
	reasonMessages   []string

	ruleTrace  []domain.RuleTrace
	stageTrace []domain.StageTrace
}

type stagePlan struct {
	id         string
	name       string
	order      int
	stopOnFail bool
	rules      []*domain.DecisionRule
}

// Execute runs rules through stages in execution order, followed by the
// unassigned stage. Once a stage halts the pipeline, later stages are
// recorded as skipped.
func (p *Pipeline) Execute(record domain.Record, productType string, rules []*domain.DecisionRule, stages []*domain.ExecutionStage) PipelineOutcome {
	now := p.now()

	acc := accumulator{
		decision:         domain.DecisionPass,
		caseType:         domain.CaseTypeNormal,
		triggered:        []string{},
		validationErrors: []string{},
		reasonCodes:      []string{},
		reasonMessages:   []string{},
		ruleTrace:        []domain.RuleTrace{},
		stageTrace:       []domain.StageTrace{},
	}

	for _, plan := range planStages(rules, stages) {
		if acc.halted {
			acc.stageTrace = append(acc.stageTrace, domain.StageTrace{
				StageID:        plan.id,
				StageName:      plan.name,
				ExecutionOrder: plan.order,
				Status:         domain.StageSkipped,
				RulesExecuted:  []domain.RuleTrace{},
			})
			continue
		}
		acc = p.runStage(acc, plan, record, productType, now)
	}

	return PipelineOutcome{
		Decision:         acc.decision,
		CaseType:         acc.caseType,
		ReasonFlag:       acc.reasonFlag,
		ScorecardValue:   acc.score,
		TriggeredRules:   acc.triggered,
		ValidationErrors: acc.validationErrors,
		ReasonCodes:      acc.reasonCodes,
		ReasonMessages:   acc.reasonMessages,
		RuleTrace:        acc.ruleTrace,
		StageTrace:       acc.stageTrace,
		Halted:           acc.halted,
	}
}

func (p *Pipeline) runStage(acc accumulator, plan stagePlan, record domain.Record, productType string, now time.Time) accumulator {
	start := time.Now()
	trace := domain.StageTrace{
		StageID:        plan.id,
		StageName:      plan.name,
		ExecutionOrder: plan.order,
		Status:         domain.StagePassed,
		RulesExecuted:  []domain.RuleTrace{},
	}

	failed := false
	hardStop := false

	for _, rule := range plan.rules {
		// Case type may have been changed by an earlier rule.
		if !IsApplicable(rule, productType, acc.caseType, now) {
			continue
		}

		ruleStart := time.Now()
		matched := p.evaluator.EvaluateGroup(&rule.ConditionGroup, record)

		rt := domain.RuleTrace{
			RuleID:          rule.ID,
			RuleName:        rule.Name,
			Category:        rule.Category,
			StageID:         plan.id,
			Triggered:       matched,
			InputValues:     inputValues(rule, record),
			ConditionResult: matched,
		}

		if matched {
			action := rule.Action
			rt.ActionApplied = &action
			acc = applyAction(acc, rule)
			trace.TriggeredRulesCount++
			if isFail(rule.Action) || rule.Action.IsHardStop {
				failed = true
			}
		}

		rt.ExecutionTimeMs = elapsedMs(ruleStart)
		trace.RulesExecuted = append(trace.RulesExecuted, rt)
		acc.ruleTrace = append(acc.ruleTrace, rt)

		if matched && rule.Action.IsHardStop {
			hardStop = true
			break
		}
	}

	if failed {
		trace.Status = domain.StageFailed
		if plan.stopOnFail || hardStop {
			acc.halted = true
		}
	}

	trace.ExecutionTimeMs = elapsedMs(start)
	acc.stageTrace = append(acc.stageTrace, trace)
	return acc
}

// applyAction folds a triggered rule's action into the accumulator.
func applyAction(acc accumulator, rule *domain.DecisionRule) accumulator {
	action := rule.Action

	if rule.Category == domain.CategoryValidation && action.ReasonMessage != "" {
		acc.validationErrors = append(acc.validationErrors, action.ReasonMessage)
	}

	if isFail(action) {
		acc.decision = domain.DecisionFail
		acc.reasonFlag = 1
	}

	if action.CaseType != nil {
		acc.caseType = *action.CaseType
	}

	if action.ScoreImpact != nil {
		acc.score += *action.ScoreImpact
	}

	if action.ReasonCode != "" {
		acc.reasonCodes = append(acc.reasonCodes, action.ReasonCode)
	}
	if action.ReasonMessage != "" {
		acc.reasonMessages = append(acc.reasonMessages, action.ReasonMessage)
	}

	name := rule.Name
	if name == "" {
		name = rule.ID
	}
	acc.triggered = append(acc.triggered, name)

	if action.IsHardStop {
		acc.decision = domain.DecisionFail
		acc.caseType = domain.CaseTypeDirectFail
		acc.reasonFlag = 1
		acc.halted = true
	}

	return acc
}

// planStages orders enabled stages by execution order and assigns rules to
// them by priority. Rules without a known stage go to a trailing
// unassigned stage.
func planStages(rules []*domain.DecisionRule, stages []*domain.ExecutionStage) []stagePlan {
	enabled := make([]*domain.ExecutionStage, 0, len(stages))
	for _, s := range stages {
		if s != nil && s.IsEnabled {
			enabled = append(enabled, s)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].ExecutionOrder < enabled[j].ExecutionOrder
	})

	plans := make([]stagePlan, len(enabled))
	index := make(map[string]int, len(enabled))
	for i, s := range enabled {
		plans[i] = stagePlan{
			id:         s.ID,
			name:       s.Name,
			order:      s.ExecutionOrder,
			stopOnFail: s.StopOnFail,
		}
		index[s.ID] = i
	}

	var unassigned []*domain.DecisionRule
	for _, r := range rules {
		if r == nil {
			continue
		}
		if i, ok := index[r.StageID]; ok && r.StageID != "" {
			plans[i].rules = append(plans[i].rules, r)
			continue
		}
		unassigned = append(unassigned, r)
	}

	if len(unassigned) > 0 {
		order := 0
		if len(plans) > 0 {
			order = plans[len(plans)-1].order + 1
		}
		plans = append(plans, stagePlan{
			id:    domain.UnassignedStageID,
			name:  "Unassigned Rules",
			order: order,
			rules: unassigned,
		})
	}

	for i := range plans {
		byPriority(plans[i].rules)
	}
	return plans
}

func byPriority(rules []*domain.DecisionRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})
}

func isFail(action domain.RuleAction) bool {
	return strings.EqualFold(action.Decision, domain.DecisionFail)
}

func inputValues(rule *domain.DecisionRule, record domain.Record) map[string]any {
	fields := rule.ConditionGroup.Fields()
	values := make(map[string]any, len(fields))
	for _, f := range fields {
		values[f] = record.Get(f)
	}
	return values
}

func elapsedMs(since time.Time) float64 {
	return float64(time.Since(since).Microseconds()) / 1000
}
