package domain

import (
	"context"
	"time"
)

// UserRepository defines persistence operations for users.
// Lookups of missing users return an error wrapping ErrNotFound.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByHandle(ctx context.Context, handle string) (*User, error)
	ListByIDs(ctx context.Context, ids []string) ([]*User, error)
}

// ConversationRepository defines persistence operations for conversations.
type ConversationRepository interface {
	GetByID(ctx context.Context, id string) (*Conversation, error)
	// FindByParticipants returns the conversation both users belong to.
	FindByParticipants(ctx context.Context, userA, userB string) (*Conversation, error)
	// CreateOrGet inserts c unless a conversation for the same pair exists,
	// in which case c is overwritten with the stored row and created is false.
	CreateOrGet(ctx context.Context, c *Conversation) (created bool, err error)
	// ListForUser returns summaries ordered by LastMessageAt, newest first.
	ListForUser(ctx context.Context, userID string) ([]*ConversationSummary, error)
	GetSummary(ctx context.Context, conversationID, viewerID string) (*ConversationSummary, error)
	// SetLastMessage advances the pointer; older messages leave it unchanged.
	SetLastMessage(ctx context.Context, conversationID string, m *Message) error
	// RepairLastMessage recomputes the pointer from the messages collection.
	RepairLastMessage(ctx context.Context, conversationID string) (*Message, error)
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	// ListForConversation returns messages ascending by (CreatedAt, ID).
	ListForConversation(ctx context.Context, conversationID string) ([]*Message, error)
	// MarkConversationRead flips every unread message not sent by readerID.
	MarkConversationRead(ctx context.Context, conversationID, readerID string, at time.Time) (int64, error)
	// MarkRead flips one message; false when it was already read.
	MarkRead(ctx context.Context, messageID string, at time.Time) (bool, error)
}
