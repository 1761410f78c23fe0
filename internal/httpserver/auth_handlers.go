package httpserver

import (
	"net/http"
)

type meResponse struct {
	ID        string  `json:"id"`
	Handle    string  `json:"handle"`
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

// @Summary      Get Current User
// @Description  The user the session token belongs to
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  meResponse
// @Failure      401  {object}  errorResponse
// @Router       /auth/me [get]
func handleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		writeJSON(w, http.StatusOK, meResponse{
			ID:        user.ID,
			Handle:    user.Handle,
			Name:      user.Name,
			AvatarURL: user.AvatarURL,
		})
	}
}
