package client

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultListInterval         = 5 * time.Second
	DefaultConversationInterval = 3 * time.Second
)

// Poller keeps a Store fresh: the conversation list on one timer and the
// open conversation on another. Switching conversations cancels the old
// conversation timer. Poll failures are logged and retried on the next tick.
type Poller struct {
	store *Store
	log   *zap.Logger

	ListInterval         time.Duration
	ConversationInterval time.Duration
}

func NewPoller(store *Store, log *zap.Logger) *Poller {
	return &Poller{
		store:                store,
		log:                  log,
		ListInterval:         DefaultListInterval,
		ConversationInterval: DefaultConversationInterval,
	}
}

// Run polls until ctx is cancelled. Every timer it started is stopped
// before it returns.
func (p *Poller) Run(ctx context.Context) error {
	listTicker := time.NewTicker(p.ListInterval)
	defer listTicker.Stop()

	var (
		stopConversation context.CancelFunc
		watching         string
	)
	watch := func(id string) {
		if id == watching {
			return
		}
		watching = id
		if stopConversation != nil {
			stopConversation()
			stopConversation = nil
		}
		if id == "" {
			return
		}
		cctx, cancel := context.WithCancel(ctx)
		stopConversation = cancel
		go p.pollConversation(cctx, id)
	}
	defer func() {
		if stopConversation != nil {
			stopConversation()
		}
	}()

	p.refreshList(ctx)
	watch(p.store.openID())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-listTicker.C:
			p.refreshList(ctx)
		case id := <-p.store.views:
			watch(id)
		}
	}
}

func (p *Poller) refreshList(ctx context.Context) {
	if err := p.store.RefreshConversations(ctx); err != nil && ctx.Err() == nil {
		p.log.Warn("poll conversations failed", zap.Error(err))
	}
}

func (p *Poller) pollConversation(ctx context.Context, id string) {
	ticker := time.NewTicker(p.ConversationInterval)
	defer ticker.Stop()

	for {
		if err := p.store.refreshMessagesFor(ctx, id); err != nil && ctx.Err() == nil {
			p.log.Warn("poll conversation failed", zap.String("conversation_id", id), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
