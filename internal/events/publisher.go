// Package events implements a transactional outbox. Emit writes an event in
// the caller's transaction; the Relay later delivers unpublished events to
// Kafka.
package events

import (
	"context"
	"fmt"
	"log/slog"

	"vcissuer/internal/events/metrics"
	"vcissuer/pkg/requestcontext"
)

// Store persists outbox events.
type Store interface {
	// Append writes e, joining the transaction in ctx when there is one.
	Append(ctx context.Context, e Event) error
	// PublishPending hands up to limit unpublished events, oldest first, to
	// publish and marks every event it accepted as published. Delivery stops
	// at the first publish error.
	PublishPending(ctx context.Context, limit int, publish func(context.Context, Event) error) (int, error)
}

// Publisher emits domain events into the outbox. Emission is fail-closed:
// an error must fail the operation that raised the event.
type Publisher struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit writes one event to the outbox.
func (p *Publisher) Emit(ctx context.Context, eventType Type, aggregateID string, payload any) error {
	event, err := NewEvent(eventType, aggregateID, payload, requestcontext.Now(ctx))
	if err != nil {
		return err
	}
	if err := p.store.Append(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "outbox append failed",
			"request_id", requestcontext.RequestID(ctx),
			"event_type", eventType,
			"aggregate_id", aggregateID,
			"error", err,
		)
		return fmt.Errorf("emit %s: %w", eventType, err)
	}
	p.metrics.IncrementEmitted(string(eventType))
	return nil
}
