package credential

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers credential routes. Auth must already be applied.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/v1/me/credential", h.Get)
	r.Get("/v1/me/credential/stream", h.Stream)
}
