package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JeffZl/frontenduas/internal/service"
)

type conversationCreateRequest struct {
	ParticipantHandle string `json:"participantHandle"`
}

type conversationResponse struct {
	Conversation *service.ConversationResponse `json:"conversation"`
}

type conversationListResponse struct {
	Conversations []*service.ConversationResponse `json:"conversations"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// @Summary      Get or create a conversation
// @Description  Returns the conversation between the caller and participantHandle, creating it when absent
// @Tags         conversations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body conversationCreateRequest true "Other participant"
// @Success      200  {object}  conversationResponse
// @Success      201  {object}  conversationResponse
// @Failure      400  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /conversations [post]
func handleCreateConversation(convSvc *service.ConversationService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req conversationCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, log, err)
			return
		}

		conv, created, err := convSvc.GetOrCreate(r.Context(), CurrentUser(r).ID, req.ParticipantHandle)
		if err != nil {
			writeError(w, log, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, conversationResponse{Conversation: conv})
	}
}

// @Summary      List conversations
// @Description  Conversations of the caller, most recent activity first
// @Tags         conversations
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  conversationListResponse
// @Failure      401  {object}  errorResponse
// @Router       /conversations [get]
func handleListConversations(convSvc *service.ConversationService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		convs, err := convSvc.List(r.Context(), CurrentUser(r).ID)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, conversationListResponse{Conversations: convs})
	}
}

// @Summary      Get a conversation
// @Tags         conversations
// @Security     BearerAuth
// @Produce      json
// @Param        conversationID path string true "Conversation ID"
// @Success      200  {object}  conversationResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /conversations/{conversationID} [get]
func handleGetConversation(convSvc *service.ConversationService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, err := convSvc.Get(r.Context(), chi.URLParam(r, "conversationID"), CurrentUser(r).ID)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, conversationResponse{Conversation: conv})
	}
}

// @Summary      Mark conversation read
// @Description  Marks every unread message from the other participant as read
// @Tags         conversations
// @Security     BearerAuth
// @Produce      json
// @Param        conversationID path string true "Conversation ID"
// @Success      200  {object}  statusResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /conversations/{conversationID}/read [post]
func handleMarkConversationRead(readSvc *service.ReadService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := readSvc.MarkRead(r.Context(), chi.URLParam(r, "conversationID"), CurrentUser(r).ID); err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
	}
}
