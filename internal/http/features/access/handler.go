// Package access exposes the front-desk scan endpoints.
package access

import (
	"log/slog"
	"net/http"

	"github.com/tendant/gymkeeper/internal/http/middleware"
	"github.com/tendant/gymkeeper/internal/httputil"
	"github.com/tendant/gymkeeper/pkg/access"
	"github.com/tendant/gymkeeper/pkg/domain"
)

// Handler handles scan endpoints.
type Handler struct {
	logger    *slog.Logger
	gate      *access.Gate
	locations domain.Locations
}

// NewHandler creates a new access handler. The first location is used when a
// scanner omits location_id.
func NewHandler(logger *slog.Logger, gate *access.Gate, locations []string) *Handler {
	return &Handler{logger: logger, gate: gate, locations: domain.NewLocations(locations)}
}

// ScanRequest represents a credential scan.
type ScanRequest struct {
	Credential string `json:"credential"`
	Kind       string `json:"kind"`
	LocationID string `json:"location_id"`
}

// ManualRequest represents a typed-in fallback code.
type ManualRequest struct {
	MemberID   string `json:"member_id"`
	Code       string `json:"code"`
	Kind       string `json:"kind"`
	LocationID string `json:"location_id"`
}

// Scan verifies a scanned credential and admits or releases the member.
// POST /v1/access/scan
//
// Rejections (invalid, expired, inactive) are outcomes and answer 200 with
// the status in the body.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	staffID, ok := middleware.GetMemberID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ScanRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.Credential == "" {
		httputil.Error(w, http.StatusBadRequest, "credential is required")
		return
	}
	locationID, err := h.locations.Resolve(req.LocationID)
	if err != nil {
		httputil.DomainError(w, h.logger, err)
		return
	}

	result, err := h.gate.Scan(r.Context(), access.ScanRequest{
		Credential: req.Credential,
		Kind:       domain.AttendanceKind(req.Kind),
		StaffID:    staffID,
		LocationID: locationID,
	})
	if err != nil {
		httputil.DomainError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Manual runs the scan flow for a typed-in fallback code.
// POST /v1/access/manual
func (h *Handler) Manual(w http.ResponseWriter, r *http.Request) {
	staffID, ok := middleware.GetMemberID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ManualRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.Code == "" {
		httputil.Error(w, http.StatusBadRequest, "code is required")
		return
	}
	locationID, err := h.locations.Resolve(req.LocationID)
	if err != nil {
		httputil.DomainError(w, h.logger, err)
		return
	}

	result, err := h.gate.Manual(r.Context(), access.ManualRequest{
		MemberID:   req.MemberID,
		Code:       req.Code,
		Kind:       domain.AttendanceKind(req.Kind),
		StaffID:    staffID,
		LocationID: locationID,
	})
	if err != nil {
		httputil.DomainError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}
