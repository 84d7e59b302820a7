// Package relay runs the consume loop that moves events from the source
// into the fan-out hub.
package relay

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	errspkg "github.com/drblury/fluxnotify/internal/runtime/errors"
	"github.com/drblury/fluxnotify/internal/runtime/event"
	"github.com/drblury/fluxnotify/internal/runtime/hub"
	loggingpkg "github.com/drblury/fluxnotify/internal/runtime/logging"
	"github.com/drblury/fluxnotify/internal/runtime/metrics"
	"github.com/drblury/fluxnotify/internal/runtime/source"
)

const tracerName = "fluxnotify-relay"

// Relay decodes, publishes and acknowledges messages one at a time.
type Relay struct {
	consumer source.Consumer
	hub      *hub.Hub[event.DomainEvent]
	logger   loggingpkg.ServiceLogger
	metrics  *metrics.Metrics
}

// New builds a relay. A nil collector set is replaced by an unregistered one.
func New(consumer source.Consumer, h *hub.Hub[event.DomainEvent], logger loggingpkg.ServiceLogger, m *metrics.Metrics) (*Relay, error) {
	if consumer == nil {
		return nil, errspkg.ErrSourceRequired
	}
	if h == nil {
		return nil, errspkg.ErrHubRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Relay{consumer: consumer, hub: h, logger: logger, metrics: m}, nil
}

// Run consumes until ctx is cancelled or the source ends. Per-message
// failures are logged and counted, never returned.
func (r *Relay) Run(ctx context.Context) error {
	messages, err := r.consumer.Messages(ctx)
	if err != nil {
		return err
	}
	return r.Consume(ctx, messages)
}

// Consume is Run for a stream that was already taken from the source.
func (r *Relay) Consume(ctx context.Context, messages <-chan source.RawMessage) error {
	r.logger.Info("Relay started", loggingpkg.LogFields{"hub_capacity": r.hub.Capacity()})
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Relay stopped", nil)
			return nil
		case msg, ok := <-messages:
			if !ok {
				r.logger.Info("Event source ended", nil)
				return nil
			}
			r.process(ctx, msg)
		}
	}
}

// process acknowledges msg only after the decode and publish step is done,
// whatever its outcome.
func (r *Relay) process(ctx context.Context, msg source.RawMessage) {
	start := time.Now()
	r.metrics.MessageReceived()

	_, span := otel.Tracer(tracerName).Start(ctx, "RelayMessage")
	defer span.End()

	payload := msg.Payload()
	span.SetAttributes(attribute.Int("message.size", len(payload)))

	ev, err := event.Decode(payload)
	if err != nil {
		r.metrics.DecodeFailed()
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		r.logger.Error("Failed to decode event", err, loggingpkg.LogFields{"payload_size": len(payload)})
	} else {
		span.SetAttributes(
			attribute.String("event.kind", ev.Kind()),
			attribute.String("event.stream_id", ev.StreamID()),
		)
		r.publish(ev)
	}

	if err := msg.Ack(); err != nil {
		r.metrics.AckFailed()
		span.RecordError(err)
		r.logger.Error("Failed to acknowledge message", err, nil)
	}
	r.metrics.MessageProcessed(time.Since(start))
}

func (r *Relay) publish(ev event.DomainEvent) {
	err := r.hub.Publish(ev)
	switch {
	case err == nil:
		r.metrics.EventPublished()
	case errors.Is(err, errspkg.ErrNoSubscribers):
		r.metrics.EventUnobserved()
		r.logger.Trace("No sessions connected, event dropped", loggingpkg.LogFields{"kind": ev.Kind()})
	default:
		r.logger.Error("Failed to publish event", err, loggingpkg.LogFields{"kind": ev.Kind()})
	}
}
