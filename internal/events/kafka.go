package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const readRetryDelay = time.Second

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// KafkaBus writes events to a topic keyed by conversation id. Each process
// reads with its own consumer group so that every instance sees every event.
type KafkaBus struct {
	writer  *kafka.Writer
	brokers []string
	topic   string
	groupID string
	log     *zap.Logger
}

func NewKafkaBus(brokers []string, topic, groupID string, log *zap.Logger) (*KafkaBus, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &KafkaBus{writer: w, brokers: brokers, topic: topic, groupID: groupID, log: log}, nil
}

func (b *KafkaBus) Publish(ctx context.Context, e Event) error {
	payload, err := e.Encode()
	if err != nil {
		return err
	}
	if err := b.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.ConversationID),
		Value: payload,
		Time:  time.Now(),
	}); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

func (b *KafkaBus) Subscribe(ctx context.Context, h Handler) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     b.brokers,
		Topic:       b.topic,
		GroupID:     b.groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})

	go func() {
		defer r.Close()
		for {
			m, err := r.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				b.log.Warn("kafka read failed", zap.String("topic", b.topic), zap.Error(err))
				if !sleepCtx(ctx, readRetryDelay) {
					return
				}
				continue
			}
			e, err := Decode(m.Value)
			if err != nil {
				b.log.Warn("dropping malformed event", zap.String("key", string(m.Key)), zap.Error(err))
				continue
			}
			h(e)
		}
	}()
	return nil
}

func (b *KafkaBus) Close() error {
	return b.writer.Close()
}
