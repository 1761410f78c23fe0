package security

import (
	"net/http"
	"strings"
)

// TokenFromRequest finds the session token on an HTTP or websocket upgrade
// request. It checks, in order, the Authorization bearer header, the session
// cookie and the "bearer, <token>" Sec-WebSocket-Protocol pair browsers use
// when they cannot set headers.
func TokenFromRequest(r *http.Request, cookieName string) string {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		if token := strings.TrimSpace(authHeader[len("Bearer "):]); token != "" {
			return token
		}
	}

	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			return c.Value
		}
	}

	if protocolHeader := r.Header.Get("Sec-WebSocket-Protocol"); protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	return ""
}
