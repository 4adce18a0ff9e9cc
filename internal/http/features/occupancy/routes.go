package occupancy

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers occupancy routes. Auth must already be applied.
func (h *Handler) RegisterRoutes(r chi.Router, readLimit func(http.Handler) http.Handler) {
	r.With(readLimit).Get("/v1/locations/{locationID}/occupancy", h.Get)
	r.Get("/v1/locations/{locationID}/occupancy/stream", h.Stream)
}
