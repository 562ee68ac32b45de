// Package bus provides event bus implementations for Underwriter.
package bus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// subjectRoot is the namespace every tenant subject lives under.
const subjectRoot = "underwriter"

// metaReplyTo names the metadata key a request's reply address travels in.
const metaReplyTo = "reply_to"

var propagator = propagation.TraceContext{}

// New creates a new event bus based on configuration.
// For Community tier: returns ChannelBus.
// For Pro tier: returns NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// newMessage builds an envelope carrying the caller's trace context.
func newMessage(ctx context.Context, tenantID, topic string, payload []byte) *domain.Message {
	msg := &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
	propagator.Inject(ctx, propagation.MapCarrier(msg.Metadata))
	return msg
}

// handlerContext restores the publisher's trace context for a handler.
func handlerContext(ctx context.Context, msg *domain.Message) context.Context {
	if len(msg.Metadata) == 0 {
		return ctx
	}
	return propagator.Extract(ctx, propagation.MapCarrier(msg.Metadata))
}

// subject maps a tenant and topic onto underwriter.<tenant>.<rest>.
func subject(tenantID, topic string) string {
	rest := strings.TrimPrefix(topic, subjectRoot+".")
	return subjectRoot + "." + tenantID + "." + rest
}

// Replier is implemented by buses that can answer a Request.
type Replier interface {
	Reply(ctx context.Context, msg *domain.Message, payload []byte) error
}

// Reply answers msg if it came from a Request. It is a no-op otherwise.
func Reply(ctx context.Context, b domain.EventBus, msg *domain.Message, payload []byte) error {
	if msg.Metadata[metaReplyTo] == "" {
		return nil
	}
	r, ok := b.(Replier)
	if !ok {
		return fmt.Errorf("event bus %T cannot reply", b)
	}
	return r.Reply(ctx, msg, payload)
}
