// Package attendance exposes attendance recording and history.
package attendance

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tendant/gymkeeper/internal/http/middleware"
	"github.com/tendant/gymkeeper/internal/httputil"
	"github.com/tendant/gymkeeper/pkg/access"
	"github.com/tendant/gymkeeper/pkg/domain"
	"github.com/tendant/gymkeeper/pkg/ledger"
)

const (
	dateLayout        = "2006-01-02"
	defaultHistoryLen = 30 * 24 * time.Hour
)

// Handler handles attendance endpoints.
type Handler struct {
	logger          *slog.Logger
	gate            *access.Gate
	service         *ledger.AttendanceService
	clock           domain.Clock
	locations       domain.Locations
}

// NewHandler creates a new attendance handler.
func NewHandler(logger *slog.Logger, gate *access.Gate, service *ledger.AttendanceService, clock domain.Clock, locations []string) *Handler {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Handler{
		logger:          logger,
		gate:            gate,
		service:         service,
		clock:           clock,
		locations:       domain.NewLocations(locations),
	}
}

// RecordRequest represents a staff-keyed attendance event.
type RecordRequest struct {
	MemberID   string `json:"member_id"`
	Kind       string `json:"kind"`
	LocationID string `json:"location_id"`
}

// DayResponse is one local day of a member's history.
type DayResponse struct {
	Date            string                  `json:"date"`
	CheckIn         *domain.AttendanceEvent `json:"check_in,omitempty"`
	CheckOut        *domain.AttendanceEvent `json:"check_out,omitempty"`
	DurationSeconds *int64                  `json:"duration_seconds,omitempty"`
}

// StatsResponse aggregates a member's attendance.
type StatsResponse struct {
	TotalVisitDays         int    `json:"total_visit_days"`
	TotalDurationSeconds   int64  `json:"total_duration_seconds"`
	AverageDurationSeconds int64  `json:"average_duration_seconds"`
	MostFrequentWeekday    string `json:"most_frequent_weekday,omitempty"`
	VisitsThisWeek         int    `json:"visits_this_week"`
	VisitsThisMonth        int    `json:"visits_this_month"`
}

// Record appends an event keyed in by staff and adjusts occupancy.
// POST /v1/attendance
func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	staffID, ok := middleware.GetMemberID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req RecordRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	locationID, err := h.locations.Resolve(req.LocationID)
	if err != nil {
		httputil.DomainError(w, h.logger, err)
		return
	}

	result, err := h.gate.Record(r.Context(), access.RecordRequest{
		MemberID:   req.MemberID,
		Kind:       domain.AttendanceKind(req.Kind),
		StaffID:    staffID,
		LocationID: locationID,
	})
	if err != nil {
		httputil.DomainError(w, h.logger, err)
		return
	}

	status := http.StatusOK
	if result.Granted() {
		status = http.StatusCreated
	}
	httputil.JSON(w, status, result)
}

// History returns the member's day views.
// GET /v1/members/{memberID}/attendance?from=2024-01-01&to=2024-01-31
//
// Both bounds are local dates and inclusive. Defaults to the last 30 days.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	loc := h.service.Location()
	now := h.clock.Now().In(loc)

	to := h.service.StartOfDay(now).AddDate(0, 0, 1)
	from := to.Add(-defaultHistoryLen)

	if v := r.URL.Query().Get("from"); v != "" {
		d, err := time.ParseInLocation(dateLayout, v, loc)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "from must be YYYY-MM-DD")
			return
		}
		from = d
	}
	if v := r.URL.Query().Get("to"); v != "" {
		d, err := time.ParseInLocation(dateLayout, v, loc)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "to must be YYYY-MM-DD")
			return
		}
		to = d.AddDate(0, 0, 1)
	}
	if !to.After(from) {
		httputil.Error(w, http.StatusBadRequest, "to must not be before from")
		return
	}

	days, err := h.service.Days(r.Context(), chi.URLParam(r, "memberID"), from, to)
	if err != nil {
		httputil.DomainError(w, h.logger, err)
		return
	}

	resp := make([]DayResponse, 0, len(days))
	for _, d := range days {
		day := DayResponse{Date: d.Date, CheckIn: d.CheckIn, CheckOut: d.CheckOut}
		if d.Duration != nil {
			secs := int64(d.Duration.Seconds())
			day.DurationSeconds = &secs
		}
		resp = append(resp, day)
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// Stats returns the member's aggregate attendance.
// GET /v1/members/{memberID}/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), chi.URLParam(r, "memberID"))
	if err != nil {
		httputil.DomainError(w, h.logger, err)
		return
	}

	resp := StatsResponse{
		TotalVisitDays:         stats.TotalVisitDays,
		TotalDurationSeconds:   int64(stats.TotalDuration.Seconds()),
		AverageDurationSeconds: int64(stats.AverageDuration.Seconds()),
		VisitsThisWeek:         stats.VisitsThisWeek,
		VisitsThisMonth:        stats.VisitsThisMonth,
	}
	if stats.MostFrequentWeekday != nil {
		resp.MostFrequentWeekday = stats.MostFrequentWeekday.String()
	}
	httputil.JSON(w, http.StatusOK, resp)
}
