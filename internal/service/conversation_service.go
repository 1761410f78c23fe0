package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/JeffZl/frontenduas/internal/domain"
	"github.com/JeffZl/frontenduas/internal/events"
)

// ConversationService is the conversation directory: get-or-create between
// two users and the caller-relative listing.
type ConversationService struct {
	users         domain.UserRepository
	conversations domain.ConversationRepository
	events        events.Publisher
	log           *zap.Logger
}

func NewConversationService(
	users domain.UserRepository,
	conversations domain.ConversationRepository,
	publisher events.Publisher,
	log *zap.Logger,
) *ConversationService {
	return &ConversationService{
		users:         users,
		conversations: conversations,
		events:        publisher,
		log:           log,
	}
}

// GetOrCreate returns the conversation between callerID and the user owning
// handle, creating it when absent. created reports whether this call
// inserted it.
func (s *ConversationService) GetOrCreate(ctx context.Context, callerID, handle string) (*ConversationResponse, bool, error) {
	handle = domain.NormalizeHandle(handle)
	if handle == "" {
		return nil, false, domain.Validation("participantHandle is required")
	}

	other, err := s.users.GetByHandle(ctx, handle)
	if err != nil {
		return nil, false, err
	}
	if other.ID == callerID {
		return nil, false, domain.InvalidOperation("cannot start a conversation with yourself")
	}

	existing, err := s.conversations.FindByParticipants(ctx, callerID, other.ID)
	switch {
	case err == nil:
		resp, err := s.summaryFor(ctx, existing.ID, callerID, toParticipant(other))
		return resp, false, err
	case !errors.Is(err, domain.ErrNotFound):
		return nil, false, fmt.Errorf("find conversation: %w", err)
	}

	conv := &domain.Conversation{Participants: []string{callerID, other.ID}}
	created, err := s.conversations.CreateOrGet(ctx, conv)
	if err != nil {
		return nil, false, err
	}
	if !created {
		resp, err := s.summaryFor(ctx, conv.ID, callerID, toParticipant(other))
		return resp, false, err
	}

	publish(ctx, s.events, s.log, events.Event{
		Type:           events.ConversationCreated,
		ConversationID: conv.ID,
		ActorID:        callerID,
		RecipientIDs:   conv.Participants,
		At:             conv.CreatedAt,
	})
	return toConversationResponse(&domain.ConversationSummary{Conversation: *conv}, toParticipant(other)), true, nil
}

func (s *ConversationService) summaryFor(ctx context.Context, conversationID, callerID string, other ParticipantResponse) (*ConversationResponse, error) {
	sum, err := s.conversations.GetSummary(ctx, conversationID, callerID)
	if err != nil {
		return nil, err
	}
	s.repair(ctx, sum)
	return toConversationResponse(sum, other), nil
}

// List returns every conversation callerID participates in, most recent
// activity first.
func (s *ConversationService) List(ctx context.Context, callerID string) ([]*ConversationResponse, error) {
	sums, err := s.conversations.ListForUser(ctx, callerID)
	if err != nil {
		return nil, err
	}

	repaired := false
	otherIDs := make([]string, 0, len(sums))
	for _, sum := range sums {
		if s.repair(ctx, sum) {
			repaired = true
		}
		otherIDs = append(otherIDs, sum.Other(callerID))
	}
	if repaired {
		sort.SliceStable(sums, func(i, j int) bool {
			if !sums[i].LastMessageAt.Equal(sums[j].LastMessageAt) {
				return sums[i].LastMessageAt.After(sums[j].LastMessageAt)
			}
			return sums[i].ID > sums[j].ID
		})
	}

	users, err := s.usersByID(ctx, otherIDs)
	if err != nil {
		return nil, err
	}
	res := make([]*ConversationResponse, 0, len(sums))
	for _, sum := range sums {
		res = append(res, toConversationResponse(sum, participantFor(sum.Other(callerID), users)))
	}
	return res, nil
}

// Get returns one conversation seen from callerID.
func (s *ConversationService) Get(ctx context.Context, conversationID, callerID string) (*ConversationResponse, error) {
	sum, err := s.conversations.GetSummary(ctx, conversationID, callerID)
	if err != nil {
		return nil, err
	}
	if !sum.HasParticipant(callerID) {
		return nil, domain.Forbidden("you are not a participant in this conversation")
	}
	s.repair(ctx, sum)

	users, err := s.usersByID(ctx, []string{sum.Other(callerID)})
	if err != nil {
		return nil, err
	}
	return toConversationResponse(sum, participantFor(sum.Other(callerID), users)), nil
}

// repair fixes a last-message pointer that lags behind the messages
// collection, which happens when a send inserted the message but failed to
// advance the pointer. Failures are logged; the stale value is served.
func (s *ConversationService) repair(ctx context.Context, sum *domain.ConversationSummary) bool {
	if !sum.PointerStale() {
		return false
	}
	latest, err := s.conversations.RepairLastMessage(ctx, sum.ID)
	if err != nil {
		s.log.Warn("repair last message failed", zap.String("conversation_id", sum.ID), zap.Error(err))
		return false
	}
	if latest == nil {
		return false
	}
	s.log.Info("repaired stale last-message pointer",
		zap.String("conversation_id", sum.ID),
		zap.String("message_id", latest.ID))
	sum.LastMessage = latest
	sum.LastMessageID = &latest.ID
	sum.LastMessageAt = latest.CreatedAt
	return true
}

func (s *ConversationService) usersByID(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	users, err := s.users.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	byID := make(map[string]*domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID, nil
}

func publish(ctx context.Context, pub events.Publisher, log *zap.Logger, e events.Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, e); err != nil {
		log.Warn("publish event failed",
			zap.String("type", string(e.Type)),
			zap.String("conversation_id", e.ConversationID),
			zap.Error(err))
	}
}
