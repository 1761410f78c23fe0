package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/JeffZl/frontenduas/internal/domain"
	"github.com/JeffZl/frontenduas/internal/events"
)

// ReadService tracks per-message read state for the receiving participant.
type ReadService struct {
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	events        events.Publisher
	log           *zap.Logger
}

func NewReadService(
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	publisher events.Publisher,
	log *zap.Logger,
) *ReadService {
	return &ReadService{
		conversations: conversations,
		messages:      messages,
		events:        publisher,
		log:           log,
	}
}

// MarkRead marks every unread message the other participant sent as read.
// It is idempotent and returns how many messages changed state.
func (s *ReadService) MarkRead(ctx context.Context, conversationID, requesterID string) (int64, error) {
	conv, err := participantConversation(ctx, s.conversations, conversationID, requesterID)
	if err != nil {
		return 0, err
	}
	at := domain.Now()
	n, err := s.messages.MarkConversationRead(ctx, conv.ID, requesterID, at)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		publish(ctx, s.events, s.log, events.Event{
			Type:           events.MessagesRead,
			ConversationID: conv.ID,
			ActorID:        requesterID,
			RecipientIDs:   conv.Participants,
			At:             at,
		})
	}
	return n, nil
}

// MarkMessageRead marks a single message read. Reading one's own message is
// a no-op.
func (s *ReadService) MarkMessageRead(ctx context.Context, messageID, requesterID string) (bool, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return false, err
	}
	conv, err := participantConversation(ctx, s.conversations, msg.ConversationID, requesterID)
	if err != nil {
		return false, err
	}
	if msg.SenderID == requesterID || msg.IsRead {
		return false, nil
	}

	at := domain.Now()
	flipped, err := s.messages.MarkRead(ctx, msg.ID, at)
	if err != nil {
		return false, err
	}
	if flipped {
		publish(ctx, s.events, s.log, events.Event{
			Type:           events.MessagesRead,
			ConversationID: conv.ID,
			ActorID:        requesterID,
			RecipientIDs:   conv.Participants,
			At:             at,
		})
	}
	return flipped, nil
}
