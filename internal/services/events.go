package services

import (
	"context"
	"log/slog"

	"trade-market/internal/observability"
	"trade-market/internal/telemetry"
)

const (
	RoutingConversationCreated = "conversations.created"
	RoutingMessageCreated      = "messages.created"
	RoutingTradeCreated        = "trades.created"
	RoutingTradeUpdated        = "trades.updated"
	RoutingTradeDeleted        = "trades.deleted"
)

// EventPublisher is satisfied by rabbitmq.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Auditor is satisfied by telemetry.AuditEmitter.
type Auditor interface {
	Emit(ctx context.Context, rec telemetry.AuditRecord)
}

type eventSink struct {
	publisher EventPublisher
	log       *slog.Logger
}

// emit never fails the caller; broker trouble is logged and counted by the publisher.
func (s eventSink) emit(ctx context.Context, routingKey, eventType string, payload any) {
	if s.publisher == nil {
		return
	}
	envelope := observability.NewEnvelope(ctx, eventType, routingKey, payload)
	if err := s.publisher.Publish(ctx, routingKey, envelope); err != nil {
		s.log.Warn("event publish failed", "routing_key", routingKey, "request_id", envelope.RequestID, "error", err)
	}
}
