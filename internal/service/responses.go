package service

import (
	"time"

	"github.com/JeffZl/frontenduas/internal/domain"
)

// ParticipantResponse is the public projection of a user.
type ParticipantResponse struct {
	ID        string  `json:"id"`
	Handle    string  `json:"handle"`
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

type LastMessageResponse struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	SenderID  string    `json:"senderId"`
	CreatedAt time.Time `json:"createdAt"`
}

// ConversationResponse is a conversation seen from one caller: the other
// participant, the last message and the caller's unread count.
type ConversationResponse struct {
	ID             string               `json:"id"`
	Participant    ParticipantResponse  `json:"participant"`
	LastMessage    *LastMessageResponse `json:"lastMessage"`
	LastActivityAt time.Time            `json:"lastActivityAt"`
	CreatedAt      time.Time            `json:"createdAt"`
	UnreadCount    int                  `json:"unreadCount"`
}

// MessageResponse mirrors the API response expected by the frontend.
type MessageResponse struct {
	ID             string               `json:"id"`
	ConversationID string               `json:"conversationId"`
	SenderID       string               `json:"senderId"`
	Sender         *ParticipantResponse `json:"sender,omitempty"`
	Content        string               `json:"content"`
	Media          []domain.Media       `json:"media"`
	IsRead         bool                 `json:"isRead"`
	ReadAt         *time.Time           `json:"readAt,omitempty"`
	CreatedAt      time.Time            `json:"createdAt"`
}

func toParticipant(u *domain.User) ParticipantResponse {
	return ParticipantResponse{ID: u.ID, Handle: u.Handle, Name: u.Name, AvatarURL: u.AvatarURL}
}

// participantFor falls back to the bare id when the directory no longer
// knows the user.
func participantFor(id string, users map[string]*domain.User) ParticipantResponse {
	if u, ok := users[id]; ok {
		return toParticipant(u)
	}
	return ParticipantResponse{ID: id}
}

func toConversationResponse(s *domain.ConversationSummary, other ParticipantResponse) *ConversationResponse {
	resp := &ConversationResponse{
		ID:             s.ID,
		Participant:    other,
		LastActivityAt: s.LastMessageAt,
		CreatedAt:      s.CreatedAt,
		UnreadCount:    s.UnreadCount,
	}
	if s.LastMessage != nil {
		resp.LastMessage = &LastMessageResponse{
			ID:        s.LastMessage.ID,
			Content:   s.LastMessage.Content,
			SenderID:  s.LastMessage.SenderID,
			CreatedAt: s.LastMessage.CreatedAt,
		}
	}
	return resp
}

func toMessageResponse(m *domain.Message, sender *ParticipantResponse) *MessageResponse {
	media := m.Media
	if media == nil {
		media = []domain.Media{}
	}
	return &MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Sender:         sender,
		Content:        m.Content,
		Media:          media,
		IsRead:         m.IsRead,
		ReadAt:         m.ReadAt,
		CreatedAt:      m.CreatedAt,
	}
}
