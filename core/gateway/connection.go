package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Conn is the part of a websocket connection the gateway relies on.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

type connection struct {
	sessionID string
	conn      Conn
	outbound  chan []byte
	limiter   *rate.Limiter

	ctx     context.Context
	cancel  context.CancelFunc
	written chan struct{}

	closeOnce sync.Once
}

func (c *connection) close() {
	c.closeOnce.Do(c.cancel)
}

// enqueue never blocks. It reports false when the frame was dropped.
func (c *connection) enqueue(data []byte) bool {
	if c.ctx.Err() != nil {
		return false
	}
	select {
	case c.outbound <- data:
		return true
	default:
		return false
	}
}

// write is the only goroutine writing data frames to the connection. It
// pings the client on an interval and closes the connection when done.
func (g *Gateway) write(c *connection) {
	defer close(c.written)
	defer c.conn.Close()

	ticker := time.NewTicker(g.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			deadline := time.Now().Add(g.writeTimeout)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(g.writeTimeout)); err != nil {
				logger.Debug("ping failed", "session_id", c.sessionID, "error", err)
				c.close()
				return
			}
		case data := <-c.outbound:
			if err := c.conn.SetWriteDeadline(time.Now().Add(g.writeTimeout)); err != nil {
				c.close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Info("write failed, closing connection", "session_id", c.sessionID, "error", err)
				c.close()
				return
			}
		}
	}
}
