package orchestration

import (
	"context"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-screening/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

type orchestratorMetrics struct {
	turns metric.Int64Counter
}

func newOrchestratorMetrics() orchestratorMetrics {
	turns, err := meter.Int64Counter("screening.turns",
		metric.WithDescription("Number of patient turns by outcome"))
	if err != nil {
		logger.Warn("failed to create turns counter", "error", err)
	}
	return orchestratorMetrics{turns: turns}
}

func (m orchestratorMetrics) turn(ctx context.Context, outcome string) {
	if m.turns == nil {
		return
	}
	m.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("turn.outcome", outcome)))
}
