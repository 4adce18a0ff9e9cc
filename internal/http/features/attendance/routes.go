package attendance

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tendant/gymkeeper/internal/http/middleware"
	"github.com/tendant/gymkeeper/pkg/domain"
)

// RegisterRoutes registers attendance routes. Auth must already be applied.
func (h *Handler) RegisterRoutes(r chi.Router, ledgerLimit, readLimit func(http.Handler) http.Handler) {
	r.With(ledgerLimit, middleware.RequireRole(domain.RoleStaff, domain.RoleAdmin)).
		Post("/v1/attendance", h.Record)

	r.Group(func(r chi.Router) {
		r.Use(readLimit)
		r.Use(middleware.RequireSelfOrRole("memberID", domain.RoleStaff, domain.RoleAdmin))
		r.Get("/v1/members/{memberID}/attendance", h.History)
		r.Get("/v1/members/{memberID}/stats", h.Stats)
	})
}
