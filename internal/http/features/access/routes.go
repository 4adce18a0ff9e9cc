package access

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers scan routes. Auth and the staff role check must
// already be applied; scanLimit and manualLimit wrap their routes.
func (h *Handler) RegisterRoutes(r chi.Router, scanLimit, manualLimit func(http.Handler) http.Handler) {
	r.With(scanLimit).Post("/v1/access/scan", h.Scan)
	r.With(manualLimit).Post("/v1/access/manual", h.Manual)
}
