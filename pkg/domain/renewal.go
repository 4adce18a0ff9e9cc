package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// DefaultCurrency is used when a renewal omits the currency.
const DefaultCurrency = "MXN"

// RenewalRecord is the immutable audit entry written once per renewal.
// Amount is stored in minor units (cents).
type RenewalRecord struct {
	ID            uuid.UUID     `json:"id"`
	MemberID      string        `json:"member_id"`
	StaffID       string        `json:"staff_id"`
	StaffName     string        `json:"staff_name"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Amount        int64         `json:"amount"`
	Currency      string        `json:"currency"`
	PlanKind      PlanKind      `json:"plan_kind"`
	PeriodStart   time.Time     `json:"period_start"`
	PeriodEnd     time.Time     `json:"period_end"`
	Timestamp     time.Time     `json:"timestamp"`
}

// Validate checks a renewal record at the store boundary.
func (r *RenewalRecord) Validate() error {
	switch {
	case r.ID == uuid.Nil:
		return fmt.Errorf("%w: renewal id", ErrMissingField)
	case r.MemberID == "":
		return fmt.Errorf("%w: renewal member_id", ErrMissingField)
	case r.StaffID == "":
		return fmt.Errorf("%w: renewal staff_id", ErrMissingField)
	case r.Timestamp.IsZero():
		return fmt.Errorf("%w: renewal timestamp", ErrMissingField)
	case r.Amount < 0:
		return ErrInvalidAmount
	}
	if !r.PlanKind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPlanKind, r.PlanKind)
	}
	if _, err := ParsePaymentMethod(string(r.PaymentMethod)); err != nil {
		return err
	}
	if _, err := NormalizeCurrency(r.Currency); err != nil {
		return err
	}
	if !r.PeriodEnd.After(r.PeriodStart) {
		return fmt.Errorf("%w: period_end must follow period_start", ErrInvalidRecord)
	}
	return nil
}

// ParseAmount converts a decimal string with at most two fractional digits
// ("200", "199.5", "199.50") into minor units.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if hasFrac && (len(frac) == 0 || len(frac) > 2) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !isDigits(whole) || (hasFrac && !isDigits(frac)) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if units > (1<<62)/100 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return units*100 + cents, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FormatAmount renders minor units as a decimal string with two digits.
func FormatAmount(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

// NormalizeCurrency upper-cases a three-letter currency code and defaults an
// empty one to DefaultCurrency.
func NormalizeCurrency(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return DefaultCurrency, nil
	}
	if len(s) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, s)
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, s)
		}
	}
	return s, nil
}

// CleanStaffName trims a display name, drops control characters and caps its
// length at 120 runes.
func CleanStaffName(name string) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	if runes := []rune(name); len(runes) > 120 {
		name = string(runes[:120])
	}
	return name
}
