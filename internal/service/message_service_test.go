package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JeffZl/frontenduas/internal/domain"
	"github.com/JeffZl/frontenduas/internal/events"
	"github.com/JeffZl/frontenduas/internal/service"
)

type messageFixture struct {
	svc   *service.MessageService
	users *MockUserRepo
	convs *MockConversationRepo
	msgs  *MockMessageRepo
	pub   *MockPublisher
}

func newMessageService(maxLen int) messageFixture {
	f := messageFixture{
		users: new(MockUserRepo),
		convs: new(MockConversationRepo),
		msgs:  new(MockMessageRepo),
		pub:   new(MockPublisher),
	}
	f.svc = service.NewMessageService(f.users, f.convs, f.msgs, f.pub, nopLog, maxLen)
	return f
}

// stampOnCreate mimics a repository assigning id and timestamp.
func stampOnCreate(id string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		m := args.Get(1).(*domain.Message)
		m.ID = id
		m.CreatedAt = domain.Now()
	}
}

func TestSendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newMessageService(5000)
		conv := conversationOf("c1", alice, bob)
		f.convs.On("GetByID", mock.Anything, "c1").Return(conv, nil)
		f.msgs.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.Message) bool {
			return m.Content == "hello" && m.SenderID == alice.ID && !m.IsRead
		})).Run(stampOnCreate("m1")).Return(nil)
		f.convs.On("SetLastMessage", mock.Anything, "c1", mock.MatchedBy(func(m *domain.Message) bool {
			return m.ID == "m1"
		})).Return(nil)
		f.users.On("GetByID", mock.Anything, alice.ID).Return(alice, nil)
		f.pub.On("Publish", mock.Anything, mock.MatchedBy(func(e events.Event) bool {
			return e.Type == events.MessageCreated &&
				e.ConversationID == "c1" &&
				e.Message != nil && e.Message.ID == "m1" &&
				assert.ObjectsAreEqual([]string{alice.ID, bob.ID}, e.RecipientIDs)
		})).Return(nil)

		resp, err := f.svc.SendMessage(ctx, service.MessageCreateInput{ConversationID: "c1", Content: "  hello  "}, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "m1", resp.ID)
		assert.Equal(t, "  hello  ", resp.Content)
		assert.False(t, resp.IsRead)
		assert.NotNil(t, resp.Media)
		require.NotNil(t, resp.Sender)
		assert.Equal(t, "alice", resp.Sender.Handle)
		f.convs.AssertExpectations(t)
		f.pub.AssertExpectations(t)
	})

	t.Run("MediaOnly", func(t *testing.T) {
		f := newMessageService(5000)
		conv := conversationOf("c1", alice, bob)
		media := []domain.Media{{URL: "https://cdn.example.com/a.png", Kind: domain.MediaImage}}
		f.convs.On("GetByID", mock.Anything, "c1").Return(conv, nil)
		f.msgs.On("Create", mock.Anything, mock.Anything).Run(stampOnCreate("m2")).Return(nil)
		f.convs.On("SetLastMessage", mock.Anything, "c1", mock.Anything).Return(nil)
		f.users.On("GetByID", mock.Anything, alice.ID).Return(alice, nil)
		f.pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

		resp, err := f.svc.SendMessage(ctx, service.MessageCreateInput{ConversationID: "c1", Media: media}, alice.ID)
		require.NoError(t, err)
		assert.Empty(t, resp.Content)
		assert.Len(t, resp.Media, 1)
	})

	t.Run("EmptyIsRejectedBeforeLookup", func(t *testing.T) {
		f := newMessageService(5000)

		_, err := f.svc.SendMessage(ctx, service.MessageCreateInput{ConversationID: "c1"}, alice.ID)
		assert.ErrorIs(t, err, domain.ErrValidation)
		f.convs.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
		f.msgs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("TooLong", func(t *testing.T) {
		f := newMessageService(10)

		_, err := f.svc.SendMessage(ctx, service.MessageCreateInput{ConversationID: "c1", Content: strings.Repeat("x", 11)}, alice.ID)
		assert.ErrorIs(t, err, domain.ErrValidation)
		f.msgs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("NonParticipant", func(t *testing.T) {
		f := newMessageService(5000)
		f.convs.On("GetByID", mock.Anything, "c1").Return(conversationOf("c1", alice, bob), nil)

		_, err := f.svc.SendMessage(ctx, service.MessageCreateInput{ConversationID: "c1", Content: "hi"}, carol.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)
		f.msgs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("UnknownConversation", func(t *testing.T) {
		f := newMessageService(5000)
		f.convs.On("GetByID", mock.Anything, "nope").Return(nil, domain.NotFound("conversation not found"))

		_, err := f.svc.SendMessage(ctx, service.MessageCreateInput{ConversationID: "nope", Content: "hi"}, alice.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("PointerFailureStillSucceeds", func(t *testing.T) {
		f := newMessageService(5000)
		f.convs.On("GetByID", mock.Anything, "c1").Return(conversationOf("c1", alice, bob), nil)
		f.msgs.On("Create", mock.Anything, mock.Anything).Run(stampOnCreate("m3")).Return(nil)
		f.convs.On("SetLastMessage", mock.Anything, "c1", mock.Anything).Return(errors.New("write conflict"))
		f.users.On("GetByID", mock.Anything, alice.ID).Return(alice, nil)
		f.pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

		resp, err := f.svc.SendMessage(ctx, service.MessageCreateInput{ConversationID: "c1", Content: "hi"}, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "m3", resp.ID)
	})

	t.Run("CreateFailure", func(t *testing.T) {
		f := newMessageService(5000)
		f.convs.On("GetByID", mock.Anything, "c1").Return(conversationOf("c1", alice, bob), nil)
		f.msgs.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full"))

		_, err := f.svc.SendMessage(ctx, service.MessageCreateInput{ConversationID: "c1", Content: "hi"}, alice.ID)
		assert.Error(t, err)
		f.convs.AssertNotCalled(t, "SetLastMessage", mock.Anything, mock.Anything, mock.Anything)
		f.pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})
}

func TestListMessages(t *testing.T) {
	ctx := context.Background()

	t.Run("ChronologicalWithSenders", func(t *testing.T) {
		f := newMessageService(5000)
		conv := conversationOf("c1", alice, bob)
		first := &domain.Message{ID: "m1", ConversationID: "c1", SenderID: alice.ID, Content: "hi", CreatedAt: domain.Now()}
		second := &domain.Message{ID: "m2", ConversationID: "c1", SenderID: bob.ID, Content: "hey", CreatedAt: domain.Now()}

		f.convs.On("GetByID", mock.Anything, "c1").Return(conv, nil)
		f.msgs.On("ListForConversation", mock.Anything, "c1").Return([]*domain.Message{first, second}, nil)
		f.users.On("ListByIDs", mock.Anything, conv.Participants).Return([]*domain.User{alice, bob}, nil)

		list, err := f.svc.ListMessages(ctx, "c1", bob.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "m1", list[0].ID)
		assert.Equal(t, "alice", list[0].Sender.Handle)
		assert.Equal(t, "m2", list[1].ID)
		assert.Equal(t, "bob", list[1].Sender.Handle)
	})

	t.Run("EmptyConversation", func(t *testing.T) {
		f := newMessageService(5000)
		conv := conversationOf("c1", alice, bob)
		f.convs.On("GetByID", mock.Anything, "c1").Return(conv, nil)
		f.msgs.On("ListForConversation", mock.Anything, "c1").Return([]*domain.Message{}, nil)
		f.users.On("ListByIDs", mock.Anything, conv.Participants).Return([]*domain.User{alice, bob}, nil)

		list, err := f.svc.ListMessages(ctx, "c1", alice.ID)
		require.NoError(t, err)
		assert.NotNil(t, list)
		assert.Empty(t, list)
	})

	t.Run("SenderLookupFailureOmitsSender", func(t *testing.T) {
		f := newMessageService(5000)
		conv := conversationOf("c1", alice, bob)
		f.convs.On("GetByID", mock.Anything, "c1").Return(conv, nil)
		f.msgs.On("ListForConversation", mock.Anything, "c1").Return([]*domain.Message{
			{ID: "m1", ConversationID: "c1", SenderID: alice.ID, Content: "hi", CreatedAt: domain.Now()},
		}, nil)
		f.users.On("ListByIDs", mock.Anything, conv.Participants).Return(nil, errors.New("timeout"))

		list, err := f.svc.ListMessages(ctx, "c1", alice.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Nil(t, list[0].Sender)
	})

	t.Run("Forbidden", func(t *testing.T) {
		f := newMessageService(5000)
		f.convs.On("GetByID", mock.Anything, "c1").Return(conversationOf("c1", alice, bob), nil)

		_, err := f.svc.ListMessages(ctx, "c1", carol.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)
		f.msgs.AssertNotCalled(t, "ListForConversation", mock.Anything, mock.Anything)
	})

	t.Run("NotFound", func(t *testing.T) {
		f := newMessageService(5000)
		f.convs.On("GetByID", mock.Anything, "nope").Return(nil, domain.NotFound("conversation not found"))

		_, err := f.svc.ListMessages(ctx, "nope", alice.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
