// Package events carries change notifications from the write path to the
// push channel. Delivery is best effort: the HTTP read endpoints remain the
// source of truth and clients refresh through them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/JeffZl/frontenduas/internal/domain"
)

type Type string

const (
	MessageCreated      Type = "message.created"
	ConversationCreated Type = "conversation.created"
	MessagesRead        Type = "messages.read"
)

type Event struct {
	Type           Type            `json:"type"`
	ConversationID string          `json:"conversationId"`
	ActorID        string          `json:"actorId"`
	RecipientIDs   []string        `json:"recipientIds"`
	Message        *domain.Message `json:"message,omitempty"`
	At             time.Time       `json:"at"`
}

func (e Event) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return b, nil
}

func Decode(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Handler func(Event)

// Bus fans events out to every subscriber, possibly across processes.
// Subscribe returns once the subscription is live; delivery stops when ctx
// is cancelled.
type Bus interface {
	Publisher
	Subscribe(ctx context.Context, h Handler) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error     { return nil }
func (Nop) Subscribe(context.Context, Handler) error { return nil }
func (Nop) Close() error                             { return nil }

// MemoryBus delivers synchronously inside one process. Handlers must not
// block.
type MemoryBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[int]Handler)}
}

func (b *MemoryBus) Publish(_ context.Context, e Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, h := range b.handlers {
		h(e)
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, h Handler) error {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.handlers = make(map[int]Handler)
	b.mu.Unlock()
	return nil
}
