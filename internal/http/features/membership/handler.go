// Package membership exposes the renewal ledger.
package membership

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tendant/gymkeeper/internal/http/middleware"
	"github.com/tendant/gymkeeper/internal/httputil"
	"github.com/tendant/gymkeeper/pkg/domain"
	"github.com/tendant/gymkeeper/pkg/ledger"
)

// Handler handles membership endpoints.
type Handler struct {
	logger  *slog.Logger
	service *ledger.MembershipService
}

// NewHandler creates a new membership handler.
func NewHandler(logger *slog.Logger, service *ledger.MembershipService) *Handler {
	return &Handler{logger: logger, service: service}
}

// RenewRequest represents a front-desk renewal. Amount is a decimal string
// such as "450.00".
type RenewRequest struct {
	PlanKind      string `json:"plan_kind"`
	PaymentMethod string `json:"payment_method"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency,omitempty"`
	StaffName     string `json:"staff_name"`
}

// RenewalResponse represents one renewal record.
type RenewalResponse struct {
	ID            string    `json:"id"`
	MemberID      string    `json:"member_id"`
	StaffID       string    `json:"staff_id"`
	StaffName     string    `json:"staff_name"`
	PlanKind      string    `json:"plan_kind"`
	PaymentMethod string    `json:"payment_method"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	PeriodStart   time.Time `json:"period_start"`
	PeriodEnd     time.Time `json:"period_end"`
	Timestamp     time.Time `json:"timestamp"`
}

// EntitlementResponse answers whether a member may enter now.
type EntitlementResponse struct {
	MemberID string `json:"member_id"`
	Entitled bool   `json:"entitled"`
}

// Renew records a payment and extends the member's period.
// POST /v1/members/{memberID}/renewals
func (h *Handler) Renew(w http.ResponseWriter, r *http.Request) {
	staffID, ok := middleware.GetMemberID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req RenewRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	plan, err := domain.ParsePlanKind(req.PlanKind)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	method, err := domain.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := h.service.Renew(r.Context(), ledger.RenewInput{
		MemberID:      chi.URLParam(r, "memberID"),
		StaffID:       staffID,
		StaffName:     req.StaffName,
		PlanKind:      plan,
		PaymentMethod: method,
		Amount:        amount,
		Currency:      req.Currency,
	})
	if err != nil {
		httputil.DomainError(w, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusCreated, toRenewalResponse(record))
}

// Entitlement reports whether the member may enter now.
// GET /v1/members/{memberID}/entitlement
func (h *Handler) Entitlement(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")
	entitled, err := h.service.IsEntitled(r.Context(), memberID)
	if err != nil {
		httputil.DomainError(w, h.logger, err)
		return
	}
	httputil.JSON(w, http.StatusOK, EntitlementResponse{MemberID: memberID, Entitled: entitled})
}

// Membership returns the member's current period.
// GET /v1/members/{memberID}/membership
func (h *Handler) Membership(w http.ResponseWriter, r *http.Request) {
	period, err := h.service.GetMembership(r.Context(), chi.URLParam(r, "memberID"))
	if err != nil {
		httputil.DomainError(w, h.logger, err)
		return
	}
	if period == nil {
		httputil.Error(w, http.StatusNotFound, "no membership on record")
		return
	}
	httputil.JSON(w, http.StatusOK, period)
}

// Renewals returns the member's renewal history, newest first.
// GET /v1/members/{memberID}/renewals
func (h *Handler) Renewals(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.RenewalHistory(r.Context(), chi.URLParam(r, "memberID"))
	if err != nil {
		httputil.DomainError(w, h.logger, err)
		return
	}

	resp := make([]RenewalResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, toRenewalResponse(rec))
	}
	httputil.JSON(w, http.StatusOK, resp)
}

func toRenewalResponse(r *domain.RenewalRecord) RenewalResponse {
	return RenewalResponse{
		ID:            r.ID.String(),
		MemberID:      r.MemberID,
		StaffID:       r.StaffID,
		StaffName:     r.StaffName,
		PlanKind:      string(r.PlanKind),
		PaymentMethod: string(r.PaymentMethod),
		Amount:        domain.FormatAmount(r.Amount),
		Currency:      r.Currency,
		PeriodStart:   r.PeriodStart,
		PeriodEnd:     r.PeriodEnd,
		Timestamp:     r.Timestamp,
	}
}
