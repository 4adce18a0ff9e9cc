package middleware

import (
	"context"
	"net/http"

	"github.com/tendant/gymkeeper/internal/httputil"
	"github.com/tendant/gymkeeper/pkg/auth"
)

type contextKey string

// IdentityKey is the context key for the authenticated caller.
const IdentityKey contextKey = "identity"

// TokenValidator validates identity bridge tokens.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Identity, error)
}

// Auth creates middleware that validates identity bridge tokens.
// Checks Authorization header first, then falls back to cookie for web clients.
// Websocket upgrades never authenticate from the cookie.
func Auth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := httputil.BearerToken(r)
			if !ok {
				httputil.Error(w, http.StatusUnauthorized, "missing authorization")
				return
			}

			identity, err := validator.ValidateToken(tokenString)
			if err != nil {
				httputil.Error(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithIdentity stores identity in ctx.
func WithIdentity(ctx context.Context, identity *auth.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// GetIdentity extracts the authenticated caller from the request context.
func GetIdentity(ctx context.Context) (*auth.Identity, bool) {
	identity, ok := ctx.Value(IdentityKey).(*auth.Identity)
	return identity, ok && identity != nil
}

// GetMemberID extracts the authenticated member id from the request context.
func GetMemberID(ctx context.Context) (string, bool) {
	identity, ok := GetIdentity(ctx)
	if !ok {
		return "", false
	}
	return identity.MemberID, true
}
