package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/underwriter/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("underwriter-decision")

// Service evaluates proposals against the tenant's current configuration and
// records the outcome. Only the repository is required; cache and bus may be nil.
type Service struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	processor *Processor
	resultTTL time.Duration
}

// NewService creates a decision service.
func NewService(repo domain.Repository, cache domain.Cache, bus domain.EventBus, processor *Processor, resultTTL time.Duration) *Service {
	if resultTTL <= 0 {
		resultTTL = time.Hour
	}
	return &Service{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		processor: processor,
		resultTTL: resultTTL,
	}
}

// Evaluate loads a fresh snapshot, evaluates proposal, and stores, caches, and
// publishes the result. Only snapshot and proposal errors fail the call.
func (s *Service) Evaluate(ctx context.Context, tenantID, traceID string, proposal *domain.Proposal) (*domain.EvaluationResult, error) {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "decision.Evaluate",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
	defer span.End()

	if proposal != nil {
		span.SetAttributes(attribute.String("proposal.id", proposal.ProposalID))
	}

	// Configuration is read per call and never cached.
	snapshot, err := s.repo.LoadSnapshot(ctx, tenantID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "snapshot load failed")
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	result, err := s.processor.Evaluate(ctx, proposal, snapshot)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "proposal rejected")
		return nil, err
	}

	result.TenantID = tenantID
	result.TraceID = traceID

	span.SetAttributes(
		attribute.String("stp.decision", result.STPDecision),
		attribute.Int("case.type", result.CaseType),
		attribute.Int("scorecard.value", result.ScorecardValue),
	)

	if err := s.repo.SaveEvaluation(ctx, tenantID, result); err != nil {
		slog.Error("failed to save evaluation",
			"proposal_id", result.ProposalID,
			"tenant_id", tenantID,
			"error", err,
		)
	}

	if s.cache != nil {
		if err := s.cache.SetEvaluation(ctx, tenantID, result, s.resultTTL); err != nil {
			slog.Warn("failed to cache evaluation",
				"evaluation_id", result.ID,
				"error", err,
			)
		}
	}

	s.publish(ctx, tenantID, result)

	slog.Info("proposal evaluated",
		"proposal_id", result.ProposalID,
		"tenant_id", tenantID,
		"trace_id", traceID,
		"stp_decision", result.STPDecision,
		"case_type", result.CaseType,
		"scorecard_value", result.ScorecardValue,
		"rules_triggered", len(result.TriggeredRules),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}

func (s *Service) publish(ctx context.Context, tenantID string, result *domain.EvaluationResult) {
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		slog.Error("failed to encode evaluation", "evaluation_id", result.ID, "error", err)
		return
	}

	if err := s.bus.Publish(ctx, tenantID, domain.TopicDecision, payload); err != nil {
		slog.Error("failed to publish decision",
			"proposal_id", result.ProposalID,
			"error", err,
		)
	}

	if result.IsReferral() {
		if err := s.bus.Publish(ctx, tenantID, domain.TopicReferral, payload); err != nil {
			slog.Error("failed to publish referral",
				"proposal_id", result.ProposalID,
				"error", err,
			)
		}
	}
}

// Get returns a stored evaluation, preferring the cache.
func (s *Service) Get(ctx context.Context, tenantID, evalID string) (*domain.EvaluationResult, error) {
	if s.cache != nil {
		cached, err := s.cache.GetEvaluation(ctx, tenantID, evalID)
		if err != nil {
			slog.Debug("evaluation cache lookup failed", "evaluation_id", evalID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	eval, err := s.repo.GetEvaluation(ctx, tenantID, evalID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetEvaluation(ctx, tenantID, eval, s.resultTTL); err != nil {
			slog.Debug("failed to backfill evaluation cache", "evaluation_id", evalID, "error", err)
		}
	}
	return eval, nil
}

// List returns evaluation history for a tenant.
func (s *Service) List(ctx context.Context, tenantID string, filter domain.EvaluationFilter) ([]*domain.EvaluationResult, error) {
	return s.repo.ListEvaluations(ctx, tenantID, filter)
}
