package httpserver

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JeffZl/frontenduas/internal/domain"
	"github.com/JeffZl/frontenduas/internal/security"
)

type contextKey string

const userContextKey contextKey = "currentUser"

// WithUser returns a new context carrying the current user.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// CurrentUser extracts the current user from context, if any.
func CurrentUser(r *http.Request) *domain.User {
	if v := r.Context().Value(userContextKey); v != nil {
		if u, ok := v.(*domain.User); ok {
			return u
		}
	}
	return nil
}

// AuthMiddleware verifies the session token (cookie or Bearer header) and
// attaches the user to the context. Every failure is a 401.
func AuthMiddleware(tokens *security.TokenService, users domain.UserRepository, cookieName string, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := security.TokenFromRequest(r, cookieName)
			if tokenStr == "" {
				writeError(w, log, domain.Unauthenticated("missing session token"))
				return
			}

			userID, err := tokens.UserID(tokenStr)
			if err != nil {
				log.Debug("rejecting session token", zap.Error(err))
				writeError(w, log, domain.Unauthenticated("invalid session token"))
				return
			}

			user, err := users.GetByID(r.Context(), userID)
			if err != nil {
				if !errors.Is(err, domain.ErrNotFound) {
					log.Error("load session user", zap.String("user_id", userID), zap.Error(err))
				}
				writeError(w, log, domain.Unauthenticated("user not found"))
				return
			}

			ctx := WithUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
