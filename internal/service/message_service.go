package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/JeffZl/frontenduas/internal/domain"
	"github.com/JeffZl/frontenduas/internal/events"
)

type MessageService struct {
	users         domain.UserRepository
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	events        events.Publisher
	log           *zap.Logger

	MaxMessageLength int
}

func NewMessageService(
	users domain.UserRepository,
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	publisher events.Publisher,
	log *zap.Logger,
	maxMessageLength int,
) *MessageService {
	return &MessageService{
		users:            users,
		conversations:    conversations,
		messages:         messages,
		events:           publisher,
		log:              log,
		MaxMessageLength: maxMessageLength,
	}
}

type MessageCreateInput struct {
	ConversationID string
	Content        string
	Media          []domain.Media
}

// participantConversation loads the conversation and checks membership.
func participantConversation(ctx context.Context, repo domain.ConversationRepository, conversationID, userID string) (*domain.Conversation, error) {
	conv, err := repo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, domain.Forbidden("you are not a participant in this conversation")
	}
	return conv, nil
}

// ListMessages returns the full history of a conversation, oldest first.
func (s *MessageService) ListMessages(ctx context.Context, conversationID, requesterID string) ([]*MessageResponse, error) {
	conv, err := participantConversation(ctx, s.conversations, conversationID, requesterID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListForConversation(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	users := map[string]*domain.User{}
	if list, err := s.users.ListByIDs(ctx, conv.Participants); err != nil {
		s.log.Warn("load message senders failed", zap.String("conversation_id", conv.ID), zap.Error(err))
	} else {
		for _, u := range list {
			users[u.ID] = u
		}
	}

	res := make([]*MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		var sender *ParticipantResponse
		if u, ok := users[m.SenderID]; ok {
			p := toParticipant(u)
			sender = &p
		}
		res = append(res, toMessageResponse(m, sender))
	}
	return res, nil
}

// SendMessage appends a message and advances the conversation's
// last-message pointer. The two writes are not atomic: a failed pointer
// update is logged and later repaired when the conversation is read.
func (s *MessageService) SendMessage(ctx context.Context, in MessageCreateInput, senderID string) (*MessageResponse, error) {
	msg := &domain.Message{
		ConversationID: in.ConversationID,
		SenderID:       senderID,
		Content:        in.Content,
		Media:          in.Media,
	}
	if err := msg.Validate(s.MaxMessageLength); err != nil {
		return nil, err
	}

	conv, err := participantConversation(ctx, s.conversations, in.ConversationID, senderID)
	if err != nil {
		return nil, err
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.conversations.SetLastMessage(ctx, conv.ID, msg); err != nil {
		s.log.Warn("advance last-message pointer failed",
			zap.String("conversation_id", conv.ID),
			zap.String("message_id", msg.ID),
			zap.Error(err))
	}

	var sender *ParticipantResponse
	if u, err := s.users.GetByID(ctx, senderID); err == nil {
		p := toParticipant(u)
		sender = &p
	} else {
		s.log.Warn("load sender failed", zap.String("user_id", senderID), zap.Error(err))
	}

	publish(ctx, s.events, s.log, events.Event{
		Type:           events.MessageCreated,
		ConversationID: conv.ID,
		ActorID:        senderID,
		RecipientIDs:   conv.Participants,
		Message:        msg,
		At:             msg.CreatedAt,
	})
	return toMessageResponse(msg, sender), nil
}
