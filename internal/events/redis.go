package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus fans events out over a Redis pub/sub channel so every server
// instance sees every event.
type RedisBus struct {
	client  *redis.Client
	channel string
	log     *zap.Logger
}

func NewRedisBus(ctx context.Context, addr, password string, db int, channel string, log *zap.Logger) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisBus{client: client, channel: channel, log: log}, nil
}

func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	payload, err := e.Encode()
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, h Handler) error {
	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("redis subscribe %s: %w", b.channel, err)
	}

	go func() {
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				e, err := Decode([]byte(msg.Payload))
				if err != nil {
					b.log.Warn("dropping malformed event", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				h(e)
			}
		}
	}()
	return nil
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
