package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/koscakluka/ema-screening/config"
	orchestration "github.com/koscakluka/ema-screening/core"
	"github.com/koscakluka/ema-screening/core/events"
	"github.com/koscakluka/ema-screening/core/gateway"
	"github.com/koscakluka/ema-screening/core/jobs"
	"github.com/koscakluka/ema-screening/internal/httpserver"
	"github.com/koscakluka/ema-screening/internal/observability"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

var logger = otelslog.NewLogger("github.com/koscakluka/ema-screening/cmd/screening-server")

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := observability.Setup(ctx, observability.Config{
		ServiceName: httpserver.ServiceName,
		Environment: cfg.Environment.Name,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Traces:      cfg.Telemetry.Enabled,
		LogLevel:    cfg.Logger.Level,
	})
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Warn("failed to flush telemetry", "error", err)
		}
	}()

	providerOptions, err := providerOptions(cfg)
	if err != nil {
		return err
	}

	pool := jobs.NewPool(jobs.WithWorkers(cfg.Pipeline.Workers))
	defer pool.Close()

	var gw *gateway.Gateway
	options := append(providerOptions,
		orchestration.WithWorkerPool(pool),
		orchestration.WithRetryPolicy(cfg.Pipeline.RetryAttempts, cfg.Pipeline.RetryBaseDelay),
		orchestration.WithTimeouts(orchestration.Timeouts{
			Transcribe: cfg.Pipeline.Timeouts.Transcribe,
			Generate:   cfg.Pipeline.Timeouts.Generate,
			Synthesize: cfg.Pipeline.Timeouts.Synthesize,
			Avatar:     cfg.Pipeline.Timeouts.Avatar,
			Analyze:    cfg.Pipeline.Timeouts.Analyze,
		}),
		orchestration.WithSessionLimits(cfg.Sessions.IdleTimeout, cfg.Sessions.Capacity),
		orchestration.WithPredicate(minLengthPredicate(cfg.Assessment.MinAnswerLength)),
		orchestration.WithWindowSize(cfg.Assessment.WindowSize),
		orchestration.WithEmitter(orchestration.EmitterFunc(func(sessionID string, event events.Event) {
			gw.Deliver(sessionID, event)
		})),
	)
	orchestrator := orchestration.NewOrchestrator(options...)
	defer orchestrator.Close()

	gw = gateway.New(orchestrator,
		gateway.WithAllowedOrigins(cfg.HTTPServer.AllowedOrigins...),
		gateway.WithFrameRate(cfg.Gateway.FramesPerSecond, cfg.Gateway.FrameBurst),
	)

	srv, err := httpserver.New(httpserver.Config{
		Port:           cfg.HTTPServer.Port,
		Mode:           cfg.HTTPServer.Mode,
		Environment:    cfg.Environment.Name,
		AllowedOrigins: cfg.HTTPServer.AllowedOrigins,
		Pipeline:       orchestrator,
		Sockets:        gw,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize http server: %w", err)
	}

	logger.InfoContext(ctx, "starting screening server",
		"environment", cfg.Environment.Name,
		"llm_provider", cfg.LLM.Provider,
		"tts_provider", cfg.TTS.Provider,
		"avatar", cfg.HeyGen.APIKey != "")
	if err := srv.Run(ctx); err != nil {
		return err
	}

	logger.InfoContext(ctx, "server stopped gracefully")
	return nil
}
