// internal/websocket/client.go
package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"glasstrace-service/internal/domain/auth"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	identityID int64
	logger     *zap.Logger

	closeOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, identityID int64, logger *zap.Logger) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, 64),
		identityID: identityID,
		logger:     logger,
	}
}

// SendEvent queues an event for this connection; a full buffer drops the
// connection rather than blocking the hub.
func (c *Client) SendEvent(event *auth.AuthEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("failed to marshal auth event", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
	default:
		c.logger.Warn("ws send buffer full, dropping client", zap.Int64("identity_id", c.identityID))
		c.hub.unregister <- c
	}
}

// Close shuts the underlying connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

// ReadPump drains (and discards) inbound frames so control messages are
// processed, and unregisters the client when the connection drops.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("ws read error", zap.Error(err))
			}
			return
		}
	}
}

// WritePump writes queued events and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
