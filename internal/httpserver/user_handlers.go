package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JeffZl/frontenduas/internal/service"
)

// @Summary      Look up a user
// @Description  Public profile by handle, used to start a conversation
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        handle path string true "Handle"
// @Success      200  {object}  service.ParticipantResponse
// @Failure      404  {object}  errorResponse
// @Router       /users/{handle} [get]
func handleGetUser(userSvc *service.UserService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := userSvc.GetByHandle(r.Context(), chi.URLParam(r, "handle"))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}
