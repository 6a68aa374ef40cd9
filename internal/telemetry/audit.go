// Package telemetry publishes audit records of actions taken on market resources.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"trade-market/internal/observability"
)

// Audited resources.
const (
	ResourceTrade        = "trade"
	ResourceConversation = "conversation"
	ResourceService      = "service"
)

// Outcomes of an audited action.
const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// AuditRecord is one action by ActorID on a resource. ActorID zero means anonymous.
type AuditRecord struct {
	Action     string
	Resource   string
	ResourceID int64
	ActorID    int64
	Outcome    string
	Detail     string
}

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	log         *slog.Logger
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	TraceID       string       `json:"trace_id,omitempty"`
	ActorID       *int64       `json:"actor_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level      string `json:"level"`
	Action     string `json:"action"`
	Resource   string `json:"resource"`
	ResourceID int64  `json:"resource_id,omitempty"`
	Outcome    string `json:"outcome"`
	Detail     string `json:"detail,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, log *slog.Logger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		log:         log,
	}
}

// Emit publishes an audit_log envelope. Denied actions are logged at WARN.
// A nil emitter is a no-op.
func (e *AuditEmitter) Emit(ctx context.Context, rec AuditRecord) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := e.envelope(ctx, rec)
	e.log.Debug("audit emit", "action", rec.Action, "resource", rec.Resource, "resource_id", rec.ResourceID,
		"outcome", envelope.Payload.Outcome, "request_id", envelope.RequestID)

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		e.log.Warn("audit publish failed", "action", rec.Action, "error", err)
	}
}

func (e *AuditEmitter) envelope(ctx context.Context, rec AuditRecord) AuditEnvelope {
	outcome := rec.Outcome
	if outcome == "" {
		outcome = OutcomeAllowed
	}
	level := "INFO"
	if outcome == OutcomeDenied {
		level = "WARN"
	}
	var actor *int64
	if rec.ActorID != 0 {
		id := rec.ActorID
		actor = &id
	}
	return AuditEnvelope{
		SchemaVersion: 2,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     observability.RequestIDFromContext(ctx),
		TraceID:       observability.TraceIDFromContext(ctx),
		ActorID:       actor,
		Payload: AuditPayload{
			Level:      level,
			Action:     rec.Action,
			Resource:   rec.Resource,
			ResourceID: rec.ResourceID,
			Outcome:    outcome,
			Detail:     rec.Detail,
		},
	}
}
