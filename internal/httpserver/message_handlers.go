package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JeffZl/frontenduas/internal/domain"
	"github.com/JeffZl/frontenduas/internal/service"
)

type messageCreateRequest struct {
	Content string         `json:"content"`
	Media   []domain.Media `json:"media"`
}

type messageResponse struct {
	Message *service.MessageResponse `json:"message"`
}

type messageListResponse struct {
	Messages []*service.MessageResponse `json:"messages"`
}

type markReadRequest struct {
	ConversationID string `json:"conversationId"`
}

// @Summary      Send a message
// @Tags         messages
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        conversationID path string true "Conversation ID"
// @Param        input body messageCreateRequest true "Content and/or media"
// @Success      201  {object}  messageResponse
// @Failure      400  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      429  {object}  errorResponse
// @Router       /conversations/{conversationID}/messages [post]
func handleCreateMessage(msgSvc *service.MessageService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req messageCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, log, err)
			return
		}

		msg, err := msgSvc.SendMessage(r.Context(), service.MessageCreateInput{
			ConversationID: chi.URLParam(r, "conversationID"),
			Content:        req.Content,
			Media:          req.Media,
		}, CurrentUser(r).ID)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, messageResponse{Message: msg})
	}
}

// @Summary      List messages
// @Description  Full history of a conversation, oldest first
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        conversationID path string true "Conversation ID"
// @Success      200  {object}  messageListResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /conversations/{conversationID}/messages [get]
func handleListMessages(msgSvc *service.MessageService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs, err := msgSvc.ListMessages(r.Context(), chi.URLParam(r, "conversationID"), CurrentUser(r).ID)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, messageListResponse{Messages: msgs})
	}
}

// @Summary      Mark one message read
// @Tags         messages
// @Security     BearerAuth
// @Produce      json
// @Param        messageID path string true "Message ID"
// @Success      200  {object}  statusResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /messages/{messageID}/read [put]
func handleMarkMessageRead(readSvc *service.ReadService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := readSvc.MarkMessageRead(r.Context(), chi.URLParam(r, "messageID"), CurrentUser(r).ID); err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
	}
}

// @Summary      Mark conversation read
// @Description  Body form of POST /conversations/{conversationID}/read
// @Tags         messages
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        input body markReadRequest true "Conversation"
// @Success      200  {object}  statusResponse
// @Failure      400  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Router       /messages/read [post]
func handleMarkReadByBody(readSvc *service.ReadService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req markReadRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, log, err)
			return
		}
		if req.ConversationID == "" {
			writeError(w, log, domain.Validation("conversationId is required"))
			return
		}
		if _, err := readSvc.MarkRead(r.Context(), req.ConversationID, CurrentUser(r).ID); err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
	}
}
