// Package httpserver exposes the screening pipeline over HTTP and
// websockets.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/koscakluka/ema-screening/core/sessions"
	"github.com/koscakluka/ema-screening/core/stages"
)

const ServiceName = "ema-screening"

const shutdownTimeout = 10 * time.Second

// Pipeline is the part of the orchestrator the HTTP routes use.
type Pipeline interface {
	StartSession(ctx context.Context) (sessions.Session, error)
	Session(sessionID string) (sessions.Session, error)
	EndSession(ctx context.Context, sessionID string) error
}

type WebSocketHandler interface {
	ServeWebSocket(w http.ResponseWriter, r *http.Request, sessionID string)
}

type HTTPServer struct {
	gin         *gin.Engine
	port        int
	environment string

	pipeline Pipeline
	sockets  WebSocketHandler
	catalog  *stages.Catalog
}

// Config is the dependency bag passed to New.
type Config struct {
	Port           int
	Mode           string
	Environment    string
	AllowedOrigins []string

	Pipeline Pipeline
	Sockets  WebSocketHandler
	Catalog  *stages.Catalog
}

func New(cfg Config) (*HTTPServer, error) {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	if cfg.Catalog == nil {
		cfg.Catalog = stages.Default()
	}

	srv := &HTTPServer{
		gin:         gin.New(),
		port:        cfg.Port,
		environment: cfg.Environment,
		pipeline:    cfg.Pipeline,
		sockets:     cfg.Sockets,
		catalog:     cfg.Catalog,
	}
	if err := srv.validate(); err != nil {
		return nil, err
	}

	srv.mapHandlers(cfg.AllowedOrigins)
	return srv, nil
}

func (srv *HTTPServer) validate() error {
	if srv.pipeline == nil {
		return errors.New("pipeline is required")
	}
	if srv.sockets == nil {
		return errors.New("websocket handler is required")
	}
	if srv.port <= 0 {
		return errors.New("port is required")
	}
	return nil
}

func (srv *HTTPServer) Handler() http.Handler {
	return srv.gin
}

// Run serves until ctx is done and then shuts down gracefully.
func (srv *HTTPServer) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", srv.port),
		Handler:           srv.gin,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "http server listening", "port", srv.port, "environment", srv.environment)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}
