package events_test

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JeffZl/frontenduas/internal/config"
	"github.com/JeffZl/frontenduas/internal/domain"
	"github.com/JeffZl/frontenduas/internal/events"
)

func TestEncodeDecode(t *testing.T) {
	e := events.Event{
		Type:           events.MessageCreated,
		ConversationID: "c1",
		ActorID:        "u1",
		RecipientIDs:   []string{"u1", "u2"},
		Message:        &domain.Message{ID: "m1", Content: "hi", Media: []domain.Media{}},
		At:             domain.Now(),
	}
	b, err := e.Encode()
	require.NoError(t, err)

	got, err := events.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, e.Type, got.Type)
	assert.Equal(t, e.RecipientIDs, got.RecipientIDs)
	assert.Equal(t, "hi", got.Message.Content)
	assert.True(t, e.At.Equal(got.At))

	_, err = events.Decode([]byte("{"))
	assert.Error(t, err)
}

func TestMemoryBus(t *testing.T) {
	bus := events.NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())

	var (
		mu  sync.Mutex
		got []events.Event
	)
	require.NoError(t, bus.Subscribe(ctx, func(e events.Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	}))

	require.NoError(t, bus.Publish(context.Background(), events.Event{Type: events.MessagesRead, ConversationID: "c1"}))
	mu.Lock()
	assert.Len(t, got, 1)
	mu.Unlock()

	cancel()
	assert.Eventually(t, func() bool {
		mu.Lock()
		before := len(got)
		mu.Unlock()
		_ = bus.Publish(context.Background(), events.Event{Type: events.MessagesRead})
		mu.Lock()
		defer mu.Unlock()
		return len(got) == before
	}, time.Second, 10*time.Millisecond)
}

func TestNewSelectsBroker(t *testing.T) {
	log := zap.NewNop()

	bus, err := events.New(context.Background(), &config.Config{EventBroker: "none"}, log)
	require.NoError(t, err)
	assert.IsType(t, events.Nop{}, bus)

	bus, err = events.New(context.Background(), &config.Config{EventBroker: "memory"}, log)
	require.NoError(t, err)
	assert.IsType(t, &events.MemoryBus{}, bus)

	_, err = events.New(context.Background(), &config.Config{EventBroker: "carrier-pigeon"}, log)
	assert.Error(t, err)
}

func TestRedisBus(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, err := events.NewRedisBus(ctx, addr, "", 0, "dm:events:test", zap.NewNop())
	require.NoError(t, err)
	defer bus.Close()

	received := make(chan events.Event, 1)
	require.NoError(t, bus.Subscribe(ctx, func(e events.Event) { received <- e }))
	require.NoError(t, bus.Publish(ctx, events.Event{Type: events.ConversationCreated, ConversationID: "c9"}))

	select {
	case e := <-received:
		assert.Equal(t, "c9", e.ConversationID)
	case <-time.After(3 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestNatsBus(t *testing.T) {
	url := os.Getenv("TEST_NATS_URL")
	if url == "" {
		t.Skip("TEST_NATS_URL not set")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, err := events.NewNatsBus(url, "dm.events.test", "dm-test", zap.NewNop())
	require.NoError(t, err)
	defer bus.Close()

	received := make(chan events.Event, 1)
	require.NoError(t, bus.Subscribe(ctx, func(e events.Event) { received <- e }))
	require.NoError(t, bus.Publish(ctx, events.Event{Type: events.MessageCreated, ConversationID: "c7"}))

	select {
	case e := <-received:
		assert.Equal(t, events.MessageCreated, e.Type)
	case <-time.After(3 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestKafkaBus(t *testing.T) {
	brokers := os.Getenv("TEST_KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("TEST_KAFKA_BROKERS not set")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, err := events.NewKafkaBus(strings.Split(brokers, ","), "dm-events-test", "dm-test-"+time.Now().Format("150405.000"), zap.NewNop())
	require.NoError(t, err)
	defer bus.Close()

	received := make(chan events.Event, 16)
	require.NoError(t, bus.Subscribe(ctx, func(e events.Event) { received <- e }))

	// The reader starts at the latest offset once its group joins, so keep
	// publishing until one event makes it through.
	deadline := time.After(30 * time.Second)
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()
	for {
		require.NoError(t, bus.Publish(ctx, events.Event{Type: events.MessagesRead, ConversationID: "c5"}))
		select {
		case e := <-received:
			assert.Equal(t, events.MessagesRead, e.Type)
			assert.Equal(t, "c5", e.ConversationID)
			return
		case <-tick.C:
		case <-deadline:
			t.Fatal("event not delivered")
		}
	}
}
