package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// conn wraps one WebSocket client. gorilla/websocket allows a single
// concurrent writer, so every write goes through mu.
type conn struct {
	id string
	ws *websocket.Conn
	mu sync.Mutex
}

func newConn(id string, ws *websocket.Conn) *conn {
	return &conn{id: id, ws: ws}
}

// emit sends one event envelope.
func (c *conn) emit(event string, data any) error {
	payload, err := json.Marshal(outbound{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// keepalive pings the peer every period until the returned stop func is
// called or a ping fails.
func (c *conn) keepalive(period time.Duration) (stop func()) {
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.mu.Lock()
				err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				c.mu.Unlock()
				if err != nil {
					slog.Debug("ping failed", "conn", c.id, "error", err)
					return
				}
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = c.ws.Close()
}
