package domain

import (
	"fmt"
	"strings"
	"time"
)

// PlanKind is the membership plan purchased at renewal.
type PlanKind string

const (
	PlanWeekly     PlanKind = "weekly"
	PlanBiweekly   PlanKind = "biweekly"
	PlanMonthly    PlanKind = "monthly"
	PlanQuarterly  PlanKind = "quarterly"
	PlanSemiannual PlanKind = "semiannual"
	PlanAnnual     PlanKind = "annual"
)

// ParsePlanKind parses a plan name, case-insensitively.
func ParsePlanKind(s string) (PlanKind, error) {
	p := PlanKind(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPlanKind, s)
	}
	return p, nil
}

// Valid reports whether p is a known plan.
func (p PlanKind) Valid() bool {
	switch p {
	case PlanWeekly, PlanBiweekly, PlanMonthly, PlanQuarterly, PlanSemiannual, PlanAnnual:
		return true
	}
	return false
}

// months returns the calendar-month length of month-based plans and 0 for
// day-based ones.
func (p PlanKind) months() int {
	switch p {
	case PlanMonthly:
		return 1
	case PlanQuarterly:
		return 3
	case PlanSemiannual:
		return 6
	case PlanAnnual:
		return 12
	}
	return 0
}

func (p PlanKind) days() int {
	switch p {
	case PlanWeekly:
		return 7
	case PlanBiweekly:
		return 15
	}
	return 0
}

// TenureUnits is the month-equivalent credited to continuous tenure. Sub-month
// plans count as one unit.
func (p PlanKind) TenureUnits() int {
	if m := p.months(); m > 0 {
		return m
	}
	return 1
}

// PeriodEnd returns the end of a period of plan p that starts at start.
// Month-based plans use calendar-month addition, clamped to the last day of
// the target month (Jan 31 + 1 month = Feb 28/29). Sub-month plans add a fixed
// number of days.
func (p PlanKind) PeriodEnd(start time.Time) time.Time {
	if m := p.months(); m > 0 {
		return AddMonths(start, m)
	}
	return start.AddDate(0, 0, p.days())
}

// AddMonths adds n calendar months to t, keeping the time of day and clamping
// the day of month instead of overflowing into the following month.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	target := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(target.Year(), target.Month(), t.Location()); d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// PaymentMethod is how a renewal was paid at the front desk.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentOther    PaymentMethod = "other"
)

// ParsePaymentMethod parses a payment method name, case-insensitively.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case PaymentCash, PaymentCard, PaymentTransfer, PaymentOther:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, s)
}
