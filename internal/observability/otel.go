// Package observability installs the OpenTelemetry providers the library
// packages report to.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

type Config struct {
	ServiceName string
	Environment string
	Version     string
	// Endpoint of an OTLP/HTTP collector. Spans are printed to stdout when
	// empty.
	Endpoint string
	Insecure bool
	// Traces disables span export when false, logs are always exported.
	Traces bool
	// LogLevel is the lowest exported log severity: debug, info, warn or
	// error. Empty means info.
	LogLevel string
}

// Setup installs the global tracer and logger providers. The returned
// function flushes and stops both.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "screening"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(cfg.Version),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		slog.WarnContext(ctx, "otel resource init failed, continuing", "error", err)
	}

	var shutdowns []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdowns {
			errs = append(errs, fn(ctx))
		}
		return errors.Join(errs...)
	}

	logExporter, err := stdoutlog.New()
	if err != nil {
		return shutdown, err
	}
	logProcessor, err := withMinSeverity(sdklog.NewBatchProcessor(logExporter), cfg.LogLevel)
	if err != nil {
		return shutdown, err
	}
	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(logProcessor),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(loggerProvider)
	shutdowns = append(shutdowns, loggerProvider.Shutdown)

	if !cfg.Traces {
		return shutdown, nil
	}

	traceExporter, err := traceExporter(ctx, cfg)
	if err != nil {
		return shutdown, err
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	shutdowns = append(shutdowns, tracerProvider.Shutdown)

	return shutdown, nil
}

func traceExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.New(ctx, opts...)
}

// withMinSeverity drops records below level before they reach processor.
func withMinSeverity(processor sdklog.Processor, level string) (sdklog.Processor, error) {
	var severity minsev.Severity
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		severity = minsev.SeverityDebug
	case "", "info":
		severity = minsev.SeverityInfo
	case "warn", "warning":
		severity = minsev.SeverityWarn
	case "error":
		severity = minsev.SeverityError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return minsev.NewLogProcessor(processor, severity), nil
}
