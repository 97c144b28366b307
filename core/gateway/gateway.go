// Package gateway connects websocket clients to the screening pipeline. It
// turns inbound frames into pipeline calls and streams pipeline events back.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-screening/core/events"
	"github.com/koscakluka/ema-screening/core/sessions"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Pipeline is what the gateway drives. *orchestration.Orchestrator
// implements it.
type Pipeline interface {
	RenewSession(ctx context.Context, sessionID string) (sessions.Session, error)
	SubmitAudio(ctx context.Context, sessionID string, audio []byte) (string, error)
	SpeakText(ctx context.Context, sessionID string, text string) error
	EndSession(ctx context.Context, sessionID string) error
	ReleaseConnection(sessionID string)
}

type Gateway struct {
	pipeline Pipeline
	upgrader websocket.Upgrader

	allowedOrigins []string
	frameRate      rate.Limit
	frameBurst     int
	outboundBuffer int
	maxFrameBytes  int64
	pingInterval   time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration

	mu    sync.Mutex
	conns map[string]*connection

	metrics gatewayMetrics
}

func New(pipeline Pipeline, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		pipeline:       pipeline,
		frameRate:      DefaultFramesPerSecond,
		frameBurst:     DefaultFrameBurst,
		outboundBuffer: DefaultOutboundBuffer,
		maxFrameBytes:  DefaultMaxFrameBytes,
		pingInterval:   defaultPingInterval,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		conns:          map[string]*connection{},
		metrics:        newGatewayMetrics(),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if len(g.allowedOrigins) > 0 {
		g.upgrader.CheckOrigin = g.checkOrigin
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Non-browser clients do not send an origin.
	if origin == "" {
		return true
	}
	return slices.Contains(g.allowedOrigins, origin)
}

// ServeWebSocket upgrades the request and serves the connection of
// sessionID until it closes.
func (g *Gateway) ServeWebSocket(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnContext(r.Context(), "websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	if err := g.ServeConn(r.Context(), sessionID, conn); err != nil {
		logger.InfoContext(r.Context(), "connection closed with error", "session_id", sessionID, "error", err)
	}
}

// ServeConn reads frames from conn until it closes or ctx is done. A newer
// connection for the same session replaces this one.
func (g *Gateway) ServeConn(ctx context.Context, sessionID string, conn Conn) error {
	if _, err := g.pipeline.RenewSession(ctx, sessionID); err != nil {
		conn.Close()
		return fmt.Errorf("failed to open session: %w", err)
	}

	c := g.register(ctx, sessionID, conn)
	defer g.disconnect(c)
	go g.write(c)

	conn.SetReadLimit(g.maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(g.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(g.readTimeout))
	})

	logger.InfoContext(ctx, "client connected", "session_id", sessionID)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("failed to read frame: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(g.readTimeout))

		if !c.limiter.Allow() {
			g.metrics.frame(c.ctx, "rate_limited")
			g.Deliver(sessionID, events.NewError("Too many messages, slow down."))
			continue
		}

		frame, err := ParseFrame(messageType, data)
		if err != nil {
			g.metrics.frame(c.ctx, "invalid")
			g.Deliver(sessionID, events.NewError(fmt.Sprintf("Invalid message: %v", err)))
			continue
		}
		g.OnFrame(c.ctx, sessionID, frame)
	}
}

// OnFrame handles one inbound frame. Failures are reported to the client as
// error events.
func (g *Gateway) OnFrame(ctx context.Context, sessionID string, frame Frame) {
	kind := frame.Type
	if frame.IsAudio() {
		kind = "audio"
	}
	ctx, span := tracer.Start(ctx, "gateway frame", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("frame.type", kind),
	))
	defer span.End()
	g.metrics.frame(ctx, kind)

	var err error
	switch {
	case frame.IsAudio():
		var taskID string
		err = g.renewing(ctx, sessionID, func() error {
			var err error
			taskID, err = g.pipeline.SubmitAudio(ctx, sessionID, frame.Audio)
			return err
		})
		if err == nil {
			g.Deliver(sessionID, events.NewTaskStarted(taskID))
		}
	case frame.Type == FramePing:
		g.Deliver(sessionID, events.NewPong())
	case frame.Type == FrameSpeakText:
		err = g.renewing(ctx, sessionID, func() error {
			return g.pipeline.SpeakText(ctx, sessionID, frame.Text)
		})
	case frame.Type == FrameEndSession:
		err = g.pipeline.EndSession(ctx, sessionID)
	default:
		g.Deliver(sessionID, events.NewError(fmt.Sprintf("Unknown message type %q", frame.Type)))
		return
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WarnContext(ctx, "failed to handle frame", "session_id", sessionID, "frame_type", kind, "error", err)
		g.Deliver(sessionID, events.NewError("Your message could not be processed."))
	}
}

// renewing runs call and, when the session is gone, renews it and runs call
// one more time.
func (g *Gateway) renewing(ctx context.Context, sessionID string, call func() error) error {
	err := call()
	if !errors.Is(err, sessions.ErrSessionNotFound) {
		return err
	}

	logger.InfoContext(ctx, "session not found, renewing", "session_id", sessionID)
	if _, err := g.pipeline.RenewSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to renew session: %w", err)
	}
	return call()
}

// OnDisconnect drops the connection of sessionID. The session itself stays
// with the pipeline.
func (g *Gateway) OnDisconnect(sessionID string) {
	g.mu.Lock()
	c := g.conns[sessionID]
	g.mu.Unlock()
	if c != nil {
		g.disconnect(c)
	}
}

// Deliver sends event to the client of sessionID. It never blocks, events
// for sessions without a connection or with a full buffer are dropped.
func (g *Gateway) Deliver(sessionID string, event events.Event) {
	g.mu.Lock()
	c := g.conns[sessionID]
	g.mu.Unlock()

	if c == nil {
		g.metrics.dropped(context.Background(), event.Kind(), "no_connection")
		logger.Warn("dropping event, no connection", "session_id", sessionID, "event", string(event.Kind()))
		return
	}

	data, err := events.Encode(event)
	if err != nil {
		logger.Error("failed to encode event", "session_id", sessionID, "event", string(event.Kind()), "error", err)
		return
	}
	if !c.enqueue(data) {
		g.metrics.dropped(c.ctx, event.Kind(), "buffer_full")
		logger.Warn("dropping event, connection is not keeping up", "session_id", sessionID, "event", string(event.Kind()))
	}
}

// Connected reports whether sessionID has a live connection.
func (g *Gateway) Connected(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.conns[sessionID]
	return ok
}

func (g *Gateway) register(ctx context.Context, sessionID string, conn Conn) *connection {
	connCtx, cancel := context.WithCancel(ctx)
	c := &connection{
		sessionID: sessionID,
		conn:      conn,
		outbound:  make(chan []byte, g.outboundBuffer),
		limiter:   rate.NewLimiter(g.frameRate, g.frameBurst),
		ctx:       connCtx,
		cancel:    cancel,
		written:   make(chan struct{}),
	}

	g.mu.Lock()
	previous := g.conns[sessionID]
	g.conns[sessionID] = c
	g.mu.Unlock()

	if previous != nil {
		logger.InfoContext(ctx, "replacing connection", "session_id", sessionID)
		previous.close()
	}
	return c
}

// disconnect closes c. The pipeline is only told when c was still the
// current connection of its session.
func (g *Gateway) disconnect(c *connection) {
	g.mu.Lock()
	current := g.conns[c.sessionID] == c
	if current {
		delete(g.conns, c.sessionID)
	}
	g.mu.Unlock()

	c.close()
	<-c.written

	if current {
		g.pipeline.ReleaseConnection(c.sessionID)
		logger.Info("client disconnected", "session_id", c.sessionID)
	}
}
