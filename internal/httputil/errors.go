package httputil

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tendant/gymkeeper/pkg/domain"
)

// DomainError maps a service error onto an HTTP status and writes it.
// Validation errors carry their message; anything unexpected is logged and
// answered with a generic 500.
func DomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrMissingField),
		errors.Is(err, domain.ErrInvalidPlanKind),
		errors.Is(err, domain.ErrInvalidPaymentMethod),
		errors.Is(err, domain.ErrInvalidAttendanceKind),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidCurrency),
		errors.Is(err, domain.ErrUnknownLocation):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrMemberNotFound):
		Error(w, http.StatusNotFound, "member not found")
	case errors.Is(err, domain.ErrInvalidToken):
		Error(w, http.StatusUnauthorized, "invalid or expired token")
	case errors.Is(err, domain.ErrTooManyAttempts):
		Error(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		logger.Error("store unavailable", "error", err)
		w.Header().Set("Retry-After", "1")
		Error(w, http.StatusServiceUnavailable, "service temporarily unavailable, please retry")
	case errors.Is(err, domain.ErrInvalidRecord):
		logger.Error("invalid stored record", "error", err)
		Error(w, http.StatusInternalServerError, "stored record is invalid")
	default:
		logger.Error("unexpected error", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
