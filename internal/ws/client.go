package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JeffZl/frontenduas/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// ReadMarker is the part of the read-state tracker the socket exposes.
type ReadMarker interface {
	MarkRead(ctx context.Context, conversationID, requesterID string) (int64, error)
}

// Client is one websocket connection of an authenticated user.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
	log    *zap.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, userID string, log *zap.Logger) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
		log:    log.With(zap.String("user_id", userID)),
	}
}

type inbound struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
}

// reply queues a frame for this connection only.
func (c *Client) reply(v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if _, ok := c.hub.clients[c.userID][c]; !ok {
		return
	}
	select {
	case c.send <- frame:
	default:
		c.hub.removeLocked(c)
	}
}

func (c *Client) replyError(err error) {
	c.reply(map[string]string{
		"type":    "error",
		"code":    domain.Code(err),
		"message": domain.ErrorMessage(err, "request failed"),
	})
}

// readPump handles client frames until the connection fails. It runs on the
// handler goroutine.
func (c *Client) readPump(ctx context.Context, reads ReadMarker) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "ping":
			c.reply(map[string]string{"type": "pong"})

		case "mark_read":
			if msg.ConversationID == "" {
				c.replyError(domain.Validation("conversationId is required"))
				continue
			}
			if _, err := reads.MarkRead(ctx, msg.ConversationID, c.userID); err != nil {
				c.log.Debug("websocket mark_read failed", zap.String("conversation_id", msg.ConversationID), zap.Error(err))
				c.replyError(err)
			}

		default:
			c.replyError(domain.Validationf("unknown frame type %q", msg.Type))
		}
	}
}

// writePump drains the send channel and keeps the connection alive with
// pings. It exits when the hub closes the channel or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
