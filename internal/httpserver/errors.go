package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JeffZl/frontenduas/internal/domain"
)

// errorResponse is the body of every non-2xx JSON reply.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidOperation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// writeError maps err onto the HTTP error contract. Unclassified errors are
// logged and reported as a generic 500.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	status := statusFor(err)
	msg := domain.ErrorMessage(err, http.StatusText(status))
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		msg = "internal server error"
	} else if !errors.As(err, new(*domain.Error)) {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: domain.Code(err)})
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.Validation("invalid JSON body")
	}
	return nil
}
