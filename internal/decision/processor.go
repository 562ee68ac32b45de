// Package decision turns a proposal and a configuration snapshot into an
// underwriting decision, and hosts the service that persists and announces it.
package decision

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/rules"
)

// Processor runs the stage pipeline and risk loading for one proposal.
// It holds no per-call state and is safe for concurrent use.
type Processor struct {
	evaluator *rules.Evaluator
	pipeline  *rules.Pipeline
	derived   *rules.DerivedFields
	now       func() time.Time
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithDerivedFields adds CEL-derived fields to every record.
func WithDerivedFields(d *rules.DerivedFields) ProcessorOption {
	return func(p *Processor) {
		p.derived = d
	}
}

// WithProcessorClock overrides the evaluation timestamp source.
func WithProcessorClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		p.now = now
	}
}

// NewProcessor creates a processor. A nil pipeline uses the evaluator with
// the wall clock.
func NewProcessor(evaluator *rules.Evaluator, pipeline *rules.Pipeline, opts ...ProcessorOption) *Processor {
	if evaluator == nil {
		evaluator = rules.NewEvaluator()
	}
	if pipeline == nil {
		pipeline = rules.NewPipeline(evaluator)
	}
	p := &Processor{
		evaluator: evaluator,
		pipeline:  pipeline,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate produces a result for proposal against snapshot. An invalid
// proposal is rejected with domain.ErrInvalidProposal and no result; an STP
// FAIL is a normal result.
func (p *Processor) Evaluate(ctx context.Context, proposal *domain.Proposal, snapshot *domain.Snapshot) (*domain.EvaluationResult, error) {
	start := time.Now()

	if err := proposal.Validate(); err != nil {
		return nil, err
	}
	if snapshot == nil {
		snapshot = &domain.Snapshot{}
	}

	record := p.derived.Apply(domain.NewRecord(proposal.Fields()))

	outcome := p.pipeline.Execute(record, proposal.ProductType, snapshot.Rules, snapshot.Stages)

	// Risk loading runs regardless of the pipeline outcome.
	loading := p.evaluator.ComputeRiskLoading(record, proposal.ProductType, proposal.Premium, snapshot.RiskBands)

	result := &domain.EvaluationResult{
		ID:               uuid.New().String(),
		ProposalID:       proposal.ProposalID,
		STPDecision:      outcome.Decision,
		CaseType:         outcome.CaseType,
		CaseTypeLabel:    domain.CaseTypeLabel(outcome.CaseType),
		ReasonFlag:       outcome.ReasonFlag,
		ScorecardValue:   outcome.ScorecardValue,
		TriggeredRules:   dedupe(outcome.TriggeredRules),
		ValidationErrors: dedupe(outcome.ValidationErrors),
		ReasonCodes:      dedupe(outcome.ReasonCodes),
		ReasonMessages:   dedupe(outcome.ReasonMessages),
		RuleTrace:        outcome.RuleTrace,
		StageTrace:       outcome.StageTrace,
		RiskLoading:      &loading,
		EvaluatedAt:      p.now().UTC(),
	}
	result.EvaluationTimeMs = float64(time.Since(start).Microseconds()) / 1000

	return result, nil
}

// dedupe keeps the first occurrence of each value.
func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
