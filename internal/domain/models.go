package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// User mirrors the users table. Users are owned by the identity system;
// this service only reads them for lookups and display attributes.
type User struct {
	ID        string    `json:"id"`
	Handle    string    `json:"handle"`
	Name      string    `json:"name"`
	AvatarURL *string   `json:"avatarUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NormalizeHandle lower-cases and trims a handle before lookup.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(handle), "@")))
}

// Conversation is a private channel between exactly two users.
type Conversation struct {
	ID            string    `json:"id"`
	Participants  []string  `json:"participants"`
	LastMessageID *string   `json:"lastMessageId,omitempty"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Validate checks the two-participant rule before anything is persisted.
func (c *Conversation) Validate() error {
	if len(c.Participants) != 2 {
		return Validation("a conversation must have exactly 2 participants")
	}
	if c.Participants[0] == "" || c.Participants[1] == "" {
		return Validation("participant id must not be empty")
	}
	if c.Participants[0] == c.Participants[1] {
		return Validation("a conversation needs two distinct participants")
	}
	return nil
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// CanonicalPair orders two user ids so that a < b. Stores key the
// uniqueness constraint on this pair.
func CanonicalPair(x, y string) (a, b string) {
	if x < y {
		return x, y
	}
	return y, x
}

// ConversationSummary is a conversation as seen by one participant in a
// listing: the denormalised last message plus derived read state.
type ConversationSummary struct {
	Conversation
	LastMessage *Message
	// LatestMessageID is the id of the newest stored message, read alongside
	// the pointer so that a stale pointer can be detected.
	LatestMessageID *string
	UnreadCount     int
}

// PointerStale reports whether the denormalised pointer lags behind the
// messages collection.
func (s *ConversationSummary) PointerStale() bool {
	if s.LatestMessageID == nil {
		return false
	}
	return s.LastMessageID == nil || *s.LastMessageID != *s.LatestMessageID
}

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaFile  MediaKind = "file"
)

func (k MediaKind) Valid() bool {
	switch k {
	case MediaImage, MediaVideo, MediaFile:
		return true
	}
	return false
}

// Media is an attachment reference. The bytes live in an external media host.
type Media struct {
	URL  string    `json:"url" bson:"url"`
	Kind MediaKind `json:"kind" bson:"kind"`
	Size int64     `json:"size,omitempty" bson:"size,omitempty"`
	Name string    `json:"name,omitempty" bson:"name,omitempty"`
}

// Message is immutable apart from the read-state fields.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	Content        string     `json:"content"`
	Media          []Media    `json:"media"`
	IsRead         bool       `json:"isRead"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Validate enforces the content-or-media rule. maxLen <= 0 disables the
// length check.
func (m *Message) Validate(maxLen int) error {
	if m.Content == "" && len(m.Media) == 0 {
		return Validation("message content or media is required")
	}
	if maxLen > 0 && utf8.RuneCountInString(m.Content) > maxLen {
		return Validationf("message content exceeds %d characters", maxLen)
	}
	for i, md := range m.Media {
		if strings.TrimSpace(md.URL) == "" {
			return Validationf("media[%d]: url is required", i)
		}
		if !md.Kind.Valid() {
			return Validationf("media[%d]: unsupported kind %q", i, md.Kind)
		}
	}
	return nil
}
