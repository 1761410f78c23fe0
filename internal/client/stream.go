package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// PushEvent is a change notification received over the websocket.
type PushEvent struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversationId"`
	ActorID        string    `json:"actorId"`
	At             time.Time `json:"at"`
}

// Stream listens on the server's websocket and refreshes the Store whenever
// something changed. The polling contract stays the source of truth; the
// stream only shortens the delay. It reconnects with exponential backoff.
type Stream struct {
	client *Client
	store  *Store
	log    *zap.Logger
	dialer *websocket.Dialer

	// OnEvent, when set, is called for every frame after the refresh.
	OnEvent func(PushEvent)

	MaxBackoff time.Duration
}

func NewStream(c *Client, store *Store, log *zap.Logger) *Stream {
	return &Stream{
		client:     c,
		store:      store,
		log:        log,
		dialer:     websocket.DefaultDialer,
		MaxBackoff: 30 * time.Second,
	}
}

// Run keeps a connection open until ctx is cancelled.
func (s *Stream) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = s.MaxBackoff
	b.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		err := s.session(ctx, b)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		s.log.Warn("push stream disconnected", zap.Error(err), zap.Duration("retry_in", next))
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ctx.Err()
	}
	return err
}

// session runs one connection. It returns when the connection drops.
func (s *Stream) session(ctx context.Context, b backoff.BackOff) error {
	conn, resp, err := s.dialer.DialContext(ctx, s.client.StreamURL(), s.client.AuthHeader())
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return backoff.Permanent(&APIError{Status: resp.StatusCode, Code: "UNAUTHENTICATED", Message: "session rejected"})
		}
		return err
	}
	defer conn.Close()
	b.Reset()
	s.log.Debug("push stream connected")

	// Catch up on anything missed while disconnected.
	if err := s.store.Refresh(ctx); err != nil {
		s.log.Warn("refresh on connect failed", zap.Error(err))
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var ev PushEvent
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &ev); err != nil {
			s.log.Debug("ignoring malformed push frame", zap.Error(err))
			continue
		}
		if ev.Type == "pong" || ev.Type == "error" {
			continue
		}
		if err := s.store.Refresh(ctx); err != nil {
			s.log.Warn("refresh after push failed", zap.String("type", ev.Type), zap.Error(err))
		}
		if s.OnEvent != nil {
			s.OnEvent(ev)
		}
	}
}
