// Package worker evaluates proposals submitted over the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/underwriter/internal/bus"
	"github.com/opensource-finance/underwriter/internal/domain"
)

// globalTenant is subscribed when no tenants are configured. Messages on it
// carry their tenant in the payload.
const globalTenant = "_global"

// Evaluator runs one proposal through the decision pipeline.
type Evaluator interface {
	Evaluate(ctx context.Context, tenantID, traceID string, proposal *domain.Proposal) (*domain.EvaluationResult, error)
}

// Worker consumes underwriter.proposal.submitted messages.
type Worker struct {
	bus       domain.EventBus
	evaluator Evaluator

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// ProposalMessage is the payload of a submitted proposal.
type ProposalMessage struct {
	TenantID string           `json:"tenant_id,omitempty"`
	TraceID  string           `json:"trace_id,omitempty"`
	Proposal *domain.Proposal `json:"proposal"`
}

// errorReply is sent back to a requester whose proposal could not be evaluated.
type errorReply struct {
	Error string `json:"error"`
}

// NewWorker creates a new async worker.
func NewWorker(eventBus domain.EventBus, evaluator Evaluator) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       eventBus,
		evaluator: evaluator,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes for every configured tenant, or the global tenant when none are set.
func (w *Worker) Start(cfg domain.WorkerConfig) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{globalTenant}
	}

	started := 0
	for _, tenantID := range tenants {
		if err := w.subscribe(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		started++
	}

	if started == 0 {
		return fmt.Errorf("no worker subscriptions could be started")
	}

	slog.Info("workers started",
		"tenant_count", started,
		"topic", domain.TopicProposalSubmitted,
	)
	return nil
}

func (w *Worker) subscribe(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicProposalSubmitted, func(ctx context.Context, msg *domain.Message) error {
		return w.handle(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()
	return nil
}

// handle evaluates one submitted proposal. The payload's tenant wins over
// the subscription's, which only matters on the global subscription.
func (w *Worker) handle(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var pm ProposalMessage
	if err := json.Unmarshal(msg.Payload, &pm); err != nil {
		slog.Error("failed to parse proposal message",
			"message_id", msg.ID,
			"error", err,
		)
		w.replyError(ctx, msg, err)
		return err
	}

	if pm.TenantID != "" {
		tenantID = pm.TenantID
	}
	if tenantID == globalTenant {
		err := errors.New("proposal message has no tenant")
		w.replyError(ctx, msg, err)
		return err
	}

	traceID := pm.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	result, err := w.evaluator.Evaluate(ctx, tenantID, traceID, pm.Proposal)
	if err != nil {
		slog.Error("proposal evaluation failed",
			"tenant_id", tenantID,
			"trace_id", traceID,
			"error", err,
		)
		w.replyError(ctx, msg, err)
		return err
	}

	if payload, err := json.Marshal(result); err == nil {
		if err := bus.Reply(ctx, w.bus, msg, payload); err != nil {
			slog.Warn("failed to reply", "evaluation_id", result.ID, "error", err)
		}
	}

	slog.Debug("queued proposal processed",
		"proposal_id", result.ProposalID,
		"tenant_id", tenantID,
		"stp_decision", result.STPDecision,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (w *Worker) replyError(ctx context.Context, msg *domain.Message, cause error) {
	payload, _ := json.Marshal(errorReply{Error: cause.Error()})
	if err := bus.Reply(ctx, w.bus, msg, payload); err != nil {
		slog.Warn("failed to reply", "message_id", msg.ID, "error", err)
	}
}

// Stop unsubscribes every worker.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
