package ws

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JeffZl/frontenduas/internal/domain"
	"github.com/JeffZl/frontenduas/internal/security"
)

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

// makeCheckOrigin accepts requests without an Origin header (native
// clients) and browser requests from an allowed origin.
func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	_, wildcard := allowed["*"]

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" || wildcard {
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		_, ok := allowed[strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))]
		return ok
	}
}

// MakeHandler returns the /ws endpoint. The session is checked before the
// upgrade, the same way the JSON API checks it. Pushed frames are change
// notifications; clients refetch state over HTTP.
//
// Accepted client frames:
//   - ping       -> pong
//   - mark_read  -> marks the conversation read for the caller
func MakeHandler(
	hub *Hub,
	tokens *security.TokenService,
	users domain.UserRepository,
	reads ReadMarker,
	cookieName string,
	allowedOrigins []string,
	log *zap.Logger,
) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(allowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin:  checkOrigin,
		Subprotocols: []string{"bearer"},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr := security.TokenFromRequest(r, cookieName)
		if tokenStr == "" {
			http.Error(w, "missing session token", http.StatusUnauthorized)
			return
		}
		userID, err := tokens.UserID(tokenStr)
		if err != nil {
			http.Error(w, "invalid session token", http.StatusUnauthorized)
			return
		}
		user, err := users.GetByID(r.Context(), userID)
		if err != nil {
			http.Error(w, "user not found", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug("websocket upgrade failed", zap.Error(err))
			return
		}

		c := newClient(hub, conn, user.ID, log)
		hub.Register(c)
		log.Debug("websocket connected", zap.String("user_id", user.ID))
		defer func() {
			hub.Unregister(c)
			log.Debug("websocket disconnected", zap.String("user_id", user.ID))
		}()

		go c.writePump()
		c.readPump(r.Context(), reads)
	}
}
