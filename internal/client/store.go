package client

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/JeffZl/frontenduas/internal/domain"
	"github.com/JeffZl/frontenduas/internal/service"
)

// ErrNoConversation is returned by Send when no conversation is open.
var ErrNoConversation = errors.New("no conversation is open")

// State is what a messaging view renders: the conversation list and, when
// one is open, its messages.
type State struct {
	Conversations      []service.ConversationResponse
	OpenConversationID string
	Messages           []service.MessageResponse
}

// Store holds client-side state and notifies subscribers when a refresh
// changes it. It is safe for concurrent use.
type Store struct {
	api API
	log *zap.Logger

	mu      sync.Mutex
	state   State
	subs    map[int]func(State)
	nextSub int

	views chan string
}

func NewStore(api API, log *zap.Logger) *Store {
	return &Store{
		api:   api,
		log:   log,
		subs:  make(map[int]func(State)),
		views: make(chan string, 1),
	}
}

// Subscribe registers fn for state changes. Call the returned func to stop.
func (s *Store) Subscribe(fn func(State)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *Store) copyLocked() State {
	return State{
		Conversations:      append([]service.ConversationResponse(nil), s.state.Conversations...),
		OpenConversationID: s.state.OpenConversationID,
		Messages:           append([]service.MessageResponse(nil), s.state.Messages...),
	}
}

// update applies fn under the lock and notifies subscribers when it reports
// a change. Subscribers run outside the lock.
func (s *Store) update(fn func(st *State) bool) {
	s.mu.Lock()
	if !fn(&s.state) {
		s.mu.Unlock()
		return
	}
	snap := s.copyLocked()
	subs := make([]func(State), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
}

// Open switches the view to conversationID. Messages of the previous
// conversation are dropped immediately.
func (s *Store) Open(conversationID string) {
	changed := false
	s.update(func(st *State) bool {
		if st.OpenConversationID == conversationID {
			return false
		}
		st.OpenConversationID = conversationID
		st.Messages = nil
		changed = true
		return true
	})
	if changed {
		s.announceView(conversationID)
	}
}

// CloseConversation leaves the conversation view.
func (s *Store) CloseConversation() {
	s.Open("")
}

func (s *Store) openID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.OpenConversationID
}

// announceView hands the latest view to the poller, replacing any value it
// has not picked up yet.
func (s *Store) announceView(id string) {
	for {
		select {
		case s.views <- id:
			return
		default:
		}
		select {
		case <-s.views:
		default:
		}
	}
}

// RefreshConversations refetches the conversation list.
func (s *Store) RefreshConversations(ctx context.Context) error {
	convs, err := s.api.ListConversations(ctx)
	if err != nil {
		return err
	}
	s.update(func(st *State) bool {
		if sameConversations(st.Conversations, convs) {
			return false
		}
		st.Conversations = convs
		return true
	})
	return nil
}

// RefreshMessages refetches the open conversation. A response that arrives
// after the view moved on is discarded.
func (s *Store) RefreshMessages(ctx context.Context) error {
	id := s.openID()
	if id == "" {
		return nil
	}
	return s.refreshMessagesFor(ctx, id)
}

func (s *Store) refreshMessagesFor(ctx context.Context, id string) error {
	msgs, err := s.api.ListMessages(ctx, id)
	if err != nil {
		return err
	}
	s.update(func(st *State) bool {
		if st.OpenConversationID != id || sameMessages(st.Messages, msgs) {
			return false
		}
		st.Messages = msgs
		return true
	})
	return nil
}

// Refresh refetches both lists.
func (s *Store) Refresh(ctx context.Context) error {
	return errors.Join(s.RefreshConversations(ctx), s.RefreshMessages(ctx))
}

// MarkOpenRead marks the open conversation read when it has unread
// messages.
func (s *Store) MarkOpenRead(ctx context.Context) error {
	id := s.openID()
	if id == "" {
		return nil
	}
	return s.api.MarkRead(ctx, id)
}

// Send posts to the open conversation and refreshes both lists right away.
// Send errors are returned as-is and never retried.
func (s *Store) Send(ctx context.Context, content string, media []domain.Media) (*service.MessageResponse, error) {
	id := s.openID()
	if id == "" {
		return nil, ErrNoConversation
	}
	msg, err := s.api.SendMessage(ctx, id, content, media)
	if err != nil {
		return nil, err
	}
	if err := s.Refresh(ctx); err != nil {
		s.log.Warn("refresh after send failed", zap.String("conversation_id", id), zap.Error(err))
	}
	return msg, nil
}

func sameConversations(a, b []service.ConversationResponse) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ID != y.ID || x.UnreadCount != y.UnreadCount || !x.LastActivityAt.Equal(y.LastActivityAt) {
			return false
		}
		if (x.LastMessage == nil) != (y.LastMessage == nil) {
			return false
		}
		if x.LastMessage != nil && x.LastMessage.ID != y.LastMessage.ID {
			return false
		}
	}
	return true
}

func sameMessages(a, b []service.MessageResponse) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].IsRead != b[i].IsRead {
			return false
		}
	}
	return true
}
