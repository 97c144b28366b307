package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-screening/core/events"
	"github.com/koscakluka/ema-screening/internal/httpserver"
)

const writeTimeout = 5 * time.Second

// client talks to a screening server on behalf of one session.
type client struct {
	sessionID string
	welcome   string
	conn      *websocket.Conn

	mu sync.Mutex
}

func connect(ctx context.Context, serverURL string) (*client, error) {
	base, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base.String()+"/api/sessions", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("failed to start session: %s", resp.Status)
	}

	var started httpserver.StartSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		return nil, fmt.Errorf("error decoding session: %w", err)
	}

	wsURL := *base
	wsURL.Scheme = "ws"
	if base.Scheme == "https" {
		wsURL.Scheme = "wss"
	}
	wsURL.Path = started.WebSocketPath

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open websocket: %w", err)
	}

	return &client{sessionID: started.SessionID, welcome: started.WelcomeMessage, conn: conn}, nil
}

// listen passes every server message to onMessage until the connection
// closes.
func (c *client) listen(onMessage func(events.Message), onClose func(error)) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			onClose(err)
			return
		}
		message, err := events.Decode(data)
		if err != nil {
			continue
		}
		onMessage(message)
	}
}

func (c *client) sendAudio(wav []byte) error {
	return c.write(websocket.BinaryMessage, wav)
}

func (c *client) sendControl(frameType string, text string) error {
	data, err := json.Marshal(events.Message{Type: frameType, Text: text})
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, data)
}

func (c *client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

func (c *client) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
	return c.conn.Close()
}
