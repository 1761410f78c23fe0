package events

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/JeffZl/frontenduas/internal/config"
	"github.com/JeffZl/frontenduas/internal/domain"
)

// New builds the bus selected by EVENT_BROKER.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (Bus, error) {
	switch cfg.EventBroker {
	case "", "none":
		return Nop{}, nil
	case "memory":
		return NewMemoryBus(), nil
	case "redis":
		return NewRedisBus(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisChannel, log)
	case "nats":
		return NewNatsBus(cfg.NatsURL, cfg.NatsSubject, cfg.AppName, log)
	case "kafka":
		group := cfg.KafkaGroupID
		if group == "" {
			group = instanceGroupID()
		}
		return NewKafkaBus(cfg.KafkaBrokerList(), cfg.KafkaTopic, group, log)
	}
	return nil, fmt.Errorf("unsupported EVENT_BROKER %q", cfg.EventBroker)
}

func instanceGroupID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = domain.NewID()
	}
	return "dm-push-" + host
}
