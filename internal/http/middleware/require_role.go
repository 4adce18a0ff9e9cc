package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tendant/gymkeeper/internal/httputil"
	"github.com/tendant/gymkeeper/pkg/domain"
)

// RequireRole rejects callers holding none of roles.
// This middleware should be applied AFTER the Auth middleware.
//
// Example usage:
//
//	r.With(middleware.Auth(identity)).
//	  With(middleware.RequireRole(domain.RoleStaff, domain.RoleAdmin)).
//	  Post("/v1/access/scan", accessHandler.Scan)
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := GetIdentity(r.Context())
			if !ok {
				httputil.Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !identity.HasRole(roles...) {
				httputil.Error(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSelfOrRole lets members reach their own {param} resources and
// callers holding roles reach anyone's.
// This middleware should be applied AFTER the Auth middleware.
func RequireSelfOrRole(param string, roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := GetIdentity(r.Context())
			if !ok {
				httputil.Error(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if identity.MemberID != chi.URLParam(r, param) && !identity.HasRole(roles...) {
				httputil.Error(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
