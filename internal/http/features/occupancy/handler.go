// Package occupancy exposes the live headcount per location.
package occupancy

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tendant/gymkeeper/internal/httputil"
	"github.com/tendant/gymkeeper/pkg/occupancy"
)

// Handler handles occupancy endpoints.
type Handler struct {
	logger    *slog.Logger
	counter   *occupancy.Counter
	upgrader  *websocket.Upgrader
	locations map[string]bool
}

// NewHandler creates a new occupancy handler serving the given locations.
func NewHandler(logger *slog.Logger, counter *occupancy.Counter, upgrader *websocket.Upgrader, locations []string) *Handler {
	known := make(map[string]bool, len(locations))
	for _, l := range locations {
		known[l] = true
	}
	return &Handler{logger: logger, counter: counter, upgrader: upgrader, locations: known}
}

// Get returns the current headcount.
// GET /v1/locations/{locationID}/occupancy
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	locationID, ok := h.location(w, r)
	if !ok {
		return
	}

	st, err := h.counter.Current(r.Context(), locationID)
	if err != nil {
		httputil.DomainError(w, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, st)
}

// Stream pushes the current headcount and every change over a websocket.
// GET /v1/locations/{locationID}/occupancy/stream
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	locationID, ok := h.location(w, r)
	if !ok {
		return
	}

	// Subscribe before upgrading so a store failure is still a plain 503.
	updates, cancel, err := h.counter.Subscribe(r.Context(), locationID)
	if err != nil {
		httputil.DomainError(w, h.logger, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("occupancy stream upgrade failed", "location_id", locationID, "error", err)
		return
	}

	if err := httputil.Stream(r.Context(), conn, updates); err != nil {
		h.logger.Debug("occupancy stream ended", "location_id", locationID, "error", err)
	}
}

func (h *Handler) location(w http.ResponseWriter, r *http.Request) (string, bool) {
	locationID := chi.URLParam(r, "locationID")
	if !h.locations[locationID] {
		httputil.Error(w, http.StatusNotFound, "unknown location")
		return "", false
	}
	return locationID, true
}
