package httputil

import (
	"net/http"
	"strings"
)

// AccessTokenCookie is the cookie the member web app stores the bridge token in.
const AccessTokenCookie = "access_token"

// BearerToken extracts the identity token from a request.
// Checks the Authorization header first. Plain requests fall back to the
// access_token cookie. Websocket upgrades fall back to the access_token query
// parameter instead: browsers attach cookies to cross-site upgrades and the
// Origin check cannot be relied on, so an upgrade must name its token.
func BearerToken(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && parts[1] != "" {
			return parts[1], true
		}
	}

	if IsWebSocketUpgrade(r) {
		if token := r.URL.Query().Get(AccessTokenCookie); token != "" {
			return token, true
		}
		return "", false
	}

	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}
	return "", false
}

// IsWebSocketUpgrade checks if the request asks for a websocket upgrade.
func IsWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}
