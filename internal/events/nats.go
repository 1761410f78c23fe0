package events

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const headerEventType = "Event-Type"

// NatsBus publishes events on a core NATS subject. Every subscriber gets
// every event (no queue group).
type NatsBus struct {
	nc      *nats.Conn
	subject string
	log     *zap.Logger
}

func NewNatsBus(url, subject, name string, log *zap.Logger) (*NatsBus, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return &NatsBus{nc: nc, subject: subject, log: log}, nil
}

func (b *NatsBus) Publish(_ context.Context, e Event) error {
	payload, err := e.Encode()
	if err != nil {
		return err
	}
	msg := nats.NewMsg(b.subject)
	msg.Data = payload
	msg.Header.Set(headerEventType, string(e.Type))
	if err := b.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (b *NatsBus) Subscribe(ctx context.Context, h Handler) error {
	sub, err := b.nc.Subscribe(b.subject, func(m *nats.Msg) {
		e, err := Decode(m.Data)
		if err != nil {
			b.log.Warn("dropping malformed event",
				zap.String("subject", m.Subject),
				zap.String("type", m.Header.Get(headerEventType)),
				zap.Error(err))
			return
		}
		h(e)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", b.subject, err)
	}
	if err := b.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("nats flush: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

func (b *NatsBus) Close() error {
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return err
	}
	return nil
}
