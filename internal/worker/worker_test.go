package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/underwriter/internal/bus"
	"github.com/opensource-finance/underwriter/internal/decision"
	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/repository"
	"github.com/opensource-finance/underwriter/internal/rules"
)

// stubEvaluator records calls and returns a fixed decision.
type stubEvaluator struct {
	mu      sync.Mutex
	calls   []string
	fail    error
	results chan *domain.EvaluationResult
}

func newStubEvaluator() *stubEvaluator {
	return &stubEvaluator{results: make(chan *domain.EvaluationResult, 10)}
}

func (s *stubEvaluator) Evaluate(ctx context.Context, tenantID, traceID string, p *domain.Proposal) (*domain.EvaluationResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, tenantID+"/"+traceID)
	s.mu.Unlock()

	if s.fail != nil {
		return nil, s.fail
	}
	result := &domain.EvaluationResult{
		ID:          "eval-" + p.ProposalID,
		TenantID:    tenantID,
		TraceID:     traceID,
		ProposalID:  p.ProposalID,
		STPDecision: domain.DecisionPass,
	}
	s.results <- result
	return result, nil
}

func (s *stubEvaluator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func proposalPayload(t *testing.T, tenantID, traceID, proposalID string) []byte {
	t.Helper()
	payload, err := json.Marshal(ProposalMessage{
		TenantID: tenantID,
		TraceID:  traceID,
		Proposal: &domain.Proposal{
			ProposalID:   proposalID,
			ProductType:  domain.ProductTermLife,
			ApplicantAge: 30,
			SumAssured:   5000000,
			Premium:      25000,
		},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return payload
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	ctx := context.Background()

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, newStubEvaluator())

		if err := w.Start(domain.WorkerConfig{TenantIDs: []string{"tenant-001", "tenant-002"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions, got %d", stats.SubscriptionCount)
		}
		if stats.Topics[0] != domain.TopicProposalSubmitted {
			t.Errorf("unexpected topic %s", stats.Topics[0])
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if w.GetStats().SubscriptionCount != 0 {
			t.Error("expected no subscriptions after stop")
		}
	})

	t.Run("ProcessProposal", func(t *testing.T) {
		stub := newStubEvaluator()
		w := NewWorker(eventBus, stub)
		if err := w.Start(domain.WorkerConfig{TenantIDs: []string{"tenant-test"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		err := eventBus.Publish(ctx, "tenant-test", domain.TopicProposalSubmitted, proposalPayload(t, "", "trace-001", "P-001"))
		if err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		select {
		case result := <-stub.results:
			if result.ProposalID != "P-001" {
				t.Errorf("expected P-001, got %s", result.ProposalID)
			}
			if result.TenantID != "tenant-test" || result.TraceID != "trace-001" {
				t.Errorf("unexpected tenant/trace %s/%s", result.TenantID, result.TraceID)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for evaluation")
		}
	})

	t.Run("GlobalSubscriptionUsesPayloadTenant", func(t *testing.T) {
		stub := newStubEvaluator()
		w := NewWorker(eventBus, stub)
		if err := w.Start(domain.WorkerConfig{}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		eventBus.Publish(ctx, globalTenant, domain.TopicProposalSubmitted, proposalPayload(t, "tenant-x", "trace-x", "P-X"))

		select {
		case result := <-stub.results:
			if result.TenantID != "tenant-x" {
				t.Errorf("expected payload tenant, got %s", result.TenantID)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for evaluation")
		}
	})

	t.Run("SnakeCaseWireKeys", func(t *testing.T) {
		stub := newStubEvaluator()
		w := NewWorker(eventBus, stub)
		if err := w.Start(domain.WorkerConfig{}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		raw := []byte(`{"tenant_id":"tenant-wire","trace_id":"trace-wire","proposal":{"proposal_id":"P-WIRE","product_type":"term_life","applicant_age":30,"sum_assured":5000000,"premium":25000}}`)
		eventBus.Publish(ctx, globalTenant, domain.TopicProposalSubmitted, raw)

		select {
		case result := <-stub.results:
			if result.TenantID != "tenant-wire" || result.TraceID != "trace-wire" {
				t.Errorf("expected tenant-wire/trace-wire, got %s/%s", result.TenantID, result.TraceID)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for evaluation")
		}
	})

	t.Run("GlobalMessageWithoutTenantIsRejected", func(t *testing.T) {
		stub := newStubEvaluator()
		w := NewWorker(eventBus, stub)
		w.Start(domain.WorkerConfig{})
		defer w.Stop()

		reqCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()

		reply, err := eventBus.Request(reqCtx, globalTenant, domain.TopicProposalSubmitted, proposalPayload(t, "", "", "P-Y"))
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}

		var e errorReply
		if err := json.Unmarshal(reply, &e); err != nil || e.Error == "" {
			t.Errorf("expected error reply, got %s", reply)
		}
		if n := stub.callCount(); n != 0 {
			t.Errorf("evaluator should not run, got %d calls", n)
		}
	})

	t.Run("EvaluationErrorReplies", func(t *testing.T) {
		stub := newStubEvaluator()
		stub.fail = errors.New("boom")
		w := NewWorker(eventBus, stub)
		w.Start(domain.WorkerConfig{TenantIDs: []string{"tenant-err"}})
		defer w.Stop()

		reqCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()

		reply, err := eventBus.Request(reqCtx, "tenant-err", domain.TopicProposalSubmitted, proposalPayload(t, "", "", "P-E"))
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}

		var e errorReply
		json.Unmarshal(reply, &e)
		if e.Error != "boom" {
			t.Errorf("expected 'boom', got %q", e.Error)
		}
	})

	t.Run("TraceDefaultsToMessageID", func(t *testing.T) {
		stub := newStubEvaluator()
		w := NewWorker(eventBus, stub)
		w.Start(domain.WorkerConfig{TenantIDs: []string{"tenant-trace"}})
		defer w.Stop()

		eventBus.Publish(ctx, "tenant-trace", domain.TopicProposalSubmitted, proposalPayload(t, "", "", "P-T"))

		select {
		case result := <-stub.results:
			if result.TraceID == "" {
				t.Error("expected message id as trace id")
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for evaluation")
		}
	})
}

func TestWorkerEndToEnd(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-e2e"

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: ":memory:"})
	if err != nil {
		t.Fatalf("repository: %v", err)
	}
	defer repo.Close()

	repo.SaveStage(ctx, tenantID, &domain.ExecutionStage{ID: "stp", Name: "STP", ExecutionOrder: 1, IsEnabled: true})
	repo.SaveRule(ctx, tenantID, &domain.DecisionRule{
		ID: "STP001", Name: "High Sum Assured", Category: domain.CategorySTPDecision, StageID: "stp",
		ConditionGroup: domain.ConditionGroup{Conditions: []domain.ConditionNode{
			domain.Condition{Field: "sum_assured", Operator: domain.OpGreaterThan, Value: 1000000.0},
		}},
		Action:    domain.RuleAction{Decision: domain.DecisionFail, ReasonCode: "SA_HIGH"},
		Priority:  10,
		IsEnabled: true,
	})

	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	evaluator := rules.NewEvaluator()
	svc := decision.NewService(repo, nil, eventBus, decision.NewProcessor(evaluator, rules.NewPipeline(evaluator)), time.Minute)

	w := NewWorker(eventBus, svc)
	if err := w.Start(domain.WorkerConfig{TenantIDs: []string{tenantID}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	var referrals atomic.Int32
	eventBus.Subscribe(ctx, tenantID, domain.TopicReferral, func(ctx context.Context, msg *domain.Message) error {
		referrals.Add(1)
		return nil
	})

	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	reply, err := eventBus.Request(reqCtx, tenantID, domain.TopicProposalSubmitted, proposalPayload(t, "", "trace-e2e", "P-E2E"))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	var result domain.EvaluationResult
	if err := json.Unmarshal(reply, &result); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if result.STPDecision != domain.DecisionFail {
		t.Errorf("expected FAIL, got %s", result.STPDecision)
	}

	stored, err := repo.GetEvaluation(ctx, tenantID, result.ID)
	if err != nil {
		t.Fatalf("evaluation not stored: %v", err)
	}
	if stored.TraceID != "trace-e2e" {
		t.Errorf("expected trace-e2e, got %s", stored.TraceID)
	}

	time.Sleep(50 * time.Millisecond)
	if referrals.Load() != 1 {
		t.Errorf("expected 1 referral, got %d", referrals.Load())
	}
}
