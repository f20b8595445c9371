package events

import (
	"context"
	"log/slog"
	"time"

	"vcissuer/internal/events/metrics"
	"vcissuer/internal/platform/kafka"
)

// Sink receives outbox events. *kafka.Producer satisfies it.
type Sink interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// Relay polls the outbox and forwards unpublished events to a Sink. Without a
// sink, events are logged and marked published.
type Relay struct {
	store     Store
	sink      Sink
	topic     string
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type RelayOption func(*Relay)

func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithRelayMetrics(m *metrics.Metrics) RelayOption {
	return func(r *Relay) {
		r.metrics = m
	}
}

// WithSink sets the delivery target.
func WithSink(sink Sink, topic string) RelayOption {
	return func(r *Relay) {
		r.sink = sink
		r.topic = topic
	}
}

func NewRelay(store Store, interval time.Duration, batchSize int, opts ...RelayOption) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	r := &Relay{
		store:     store,
		interval:  interval,
		batchSize: batchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.logger.WarnContext(ctx, "outbox relay batch failed", "error", err)
			}
		}
	}
}

// Flush delivers one batch and returns how many events were published.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	n, err := r.store.PublishPending(ctx, r.batchSize, r.deliver)
	r.metrics.AddPublished(n)
	if err != nil {
		r.metrics.IncrementPublishFailures()
		return n, err
	}
	return n, nil
}

func (r *Relay) deliver(ctx context.Context, e Event) error {
	if r.sink == nil {
		r.logger.InfoContext(ctx, "outbox event",
			"event_id", e.ID,
			"event_type", e.Type,
			"aggregate_id", e.AggregateID,
		)
		return nil
	}
	return r.sink.Publish(ctx, kafka.Message{
		Topic: r.topic,
		Key:   []byte(e.AggregateID),
		Value: e.Payload,
		Headers: map[string]string{
			"event_id":   e.ID.String(),
			"event_type": string(e.Type),
			"created_at": e.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	})
}
