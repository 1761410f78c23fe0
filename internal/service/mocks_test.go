package service_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/JeffZl/frontenduas/internal/domain"
	"github.com/JeffZl/frontenduas/internal/events"
)

var nopLog = zap.NewNop()

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) GetByHandle(ctx context.Context, handle string) (*domain.User, error) {
	args := m.Called(ctx, handle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) ListByIDs(ctx context.Context, ids []string) ([]*domain.User, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.User), args.Error(1)
}

type MockConversationRepo struct {
	mock.Mock
}

func (m *MockConversationRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockConversationRepo) FindByParticipants(ctx context.Context, a, b string) (*domain.Conversation, error) {
	args := m.Called(ctx, a, b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockConversationRepo) CreateOrGet(ctx context.Context, c *domain.Conversation) (bool, error) {
	args := m.Called(ctx, c)
	return args.Bool(0), args.Error(1)
}

func (m *MockConversationRepo) ListForUser(ctx context.Context, userID string) ([]*domain.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ConversationSummary), args.Error(1)
}

func (m *MockConversationRepo) GetSummary(ctx context.Context, conversationID, viewerID string) (*domain.ConversationSummary, error) {
	args := m.Called(ctx, conversationID, viewerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ConversationSummary), args.Error(1)
}

func (m *MockConversationRepo) SetLastMessage(ctx context.Context, conversationID string, msg *domain.Message) error {
	args := m.Called(ctx, conversationID, msg)
	return args.Error(0)
}

func (m *MockConversationRepo) RepairLastMessage(ctx context.Context, conversationID string) (*domain.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) ListForConversation(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) MarkConversationRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error) {
	args := m.Called(ctx, conversationID, readerID, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageRepo) MarkRead(ctx context.Context, messageID string, at time.Time) (bool, error) {
	args := m.Called(ctx, messageID, at)
	return args.Bool(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, e events.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

var (
	alice = &domain.User{ID: "u-alice", Handle: "alice", Name: "Alice"}
	bob   = &domain.User{ID: "u-bob", Handle: "bob", Name: "Bob"}
	carol = &domain.User{ID: "u-carol", Handle: "carol", Name: "Carol"}
)

func conversationOf(id string, a, b *domain.User) *domain.Conversation {
	now := domain.Now()
	return &domain.Conversation{
		ID:            id,
		Participants:  []string{a.ID, b.ID},
		LastMessageAt: now,
		CreatedAt:     now,
	}
}
