package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JeffZl/frontenduas/internal/domain"
	"github.com/JeffZl/frontenduas/internal/events"
)

// sendBuffer bounds the per-connection backlog. A client that falls this far
// behind is disconnected and resynchronises over HTTP after reconnecting.
const sendBuffer = 32

// Payload is the JSON frame pushed to websocket clients.
type Payload struct {
	Type           events.Type     `json:"type"`
	ConversationID string          `json:"conversationId,omitempty"`
	ActorID        string          `json:"actorId,omitempty"`
	Message        *domain.Message `json:"message,omitempty"`
	At             time.Time       `json:"at"`
}

// Hub keeps the live websocket clients keyed by user id and fans bus events
// out to the participants they concern.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	log     *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		log:     log,
	}
}

// Run subscribes the hub to bus. Delivery stops when ctx is cancelled.
func (h *Hub) Run(ctx context.Context, bus events.Bus) error {
	return bus.Subscribe(ctx, h.Deliver)
}

// Register adds a client for its user.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
}

// Unregister removes a client and closes its send channel. Calling it for a
// client already dropped is a no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	conns, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := conns[c]; !ok {
		return
	}
	delete(conns, c)
	close(c.send)
	if len(conns) == 0 {
		delete(h.clients, c.userID)
	}
}

// Connected returns how many live connections userID has.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Deliver pushes e to every connection of its recipients. It never blocks:
// clients whose buffer is full are dropped.
func (h *Hub) Deliver(e events.Event) {
	frame, err := json.Marshal(Payload{
		Type:           e.Type,
		ConversationID: e.ConversationID,
		ActorID:        e.ActorID,
		Message:        e.Message,
		At:             e.At,
	})
	if err != nil {
		h.log.Error("encode push frame", zap.Error(err))
		return
	}
	h.SendToUsers(e.RecipientIDs, frame)
}

// SendToUsers queues an encoded frame for every connection of userIDs.
func (h *Hub) SendToUsers(userIDs []string, frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, uid := range userIDs {
		for c := range h.clients[uid] {
			select {
			case c.send <- frame:
			default:
				h.log.Warn("dropping slow websocket client", zap.String("user_id", uid))
				h.removeLocked(c)
			}
		}
	}
}
