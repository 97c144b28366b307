package gateway

import (
	"context"

	"github.com/koscakluka/ema-screening/core/events"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-screening/core/gateway"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

type gatewayMetrics struct {
	frames        metric.Int64Counter
	droppedEvents metric.Int64Counter
}

func newGatewayMetrics() gatewayMetrics {
	frames, err := meter.Int64Counter("screening.gateway.frames",
		metric.WithDescription("Number of inbound client frames"))
	if err != nil {
		logger.Warn("failed to create frames counter", "error", err)
	}
	dropped, err := meter.Int64Counter("screening.gateway.dropped_events",
		metric.WithDescription("Number of outbound events that could not be delivered"))
	if err != nil {
		logger.Warn("failed to create dropped events counter", "error", err)
	}
	return gatewayMetrics{frames: frames, droppedEvents: dropped}
}

func (m gatewayMetrics) frame(ctx context.Context, frameType string) {
	if m.frames != nil {
		m.frames.Add(ctx, 1, metric.WithAttributes(attribute.String("frame.type", frameType)))
	}
}

func (m gatewayMetrics) dropped(ctx context.Context, kind events.Kind, reason string) {
	if m.droppedEvents != nil {
		m.droppedEvents.Add(ctx, 1, metric.WithAttributes(
			attribute.String("event.kind", string(kind)),
			attribute.String("reason", reason),
		))
	}
}
