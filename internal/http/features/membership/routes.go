package membership

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tendant/gymkeeper/internal/http/middleware"
	"github.com/tendant/gymkeeper/pkg/domain"
)

// RegisterRoutes registers membership routes. Auth must already be applied.
// Renewals are staff-only; members may read their own records.
func (h *Handler) RegisterRoutes(r chi.Router, ledgerLimit, readLimit func(http.Handler) http.Handler) {
	r.With(ledgerLimit, middleware.RequireRole(domain.RoleStaff, domain.RoleAdmin)).
		Post("/v1/members/{memberID}/renewals", h.Renew)

	r.Group(func(r chi.Router) {
		r.Use(readLimit)
		r.Use(middleware.RequireSelfOrRole("memberID", domain.RoleStaff, domain.RoleAdmin))
		r.Get("/v1/members/{memberID}/entitlement", h.Entitlement)
		r.Get("/v1/members/{memberID}/membership", h.Membership)
		r.Get("/v1/members/{memberID}/renewals", h.Renewals)
	})
}
