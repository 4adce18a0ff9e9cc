package ledger

import (
	"time"

	"github.com/tendant/gymkeeper/pkg/domain"
)

// RenewalPlan is the outcome of applying a plan to a member's prior period.
type RenewalPlan struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	TenureUnits int
	// Stacked is true when the new period starts at the prior expiration.
	Stacked bool
	// LapsedCarryOver is true when tenure was carried across a lapse.
	LapsedCarryOver bool
}

// PlanRenewal computes the next period. An entitled period is extended from
// its expiration so remaining time is never lost; a lapsed or missing one
// starts at now. Tenure always accumulates, including across a lapse.
// Calendar arithmetic happens in now's location.
func PlanRenewal(prev *domain.MembershipPeriod, plan domain.PlanKind, now time.Time) RenewalPlan {
	var p RenewalPlan
	prevTenure := 0
	if prev != nil {
		prevTenure = prev.ContinuousTenureUnits
	}

	if prev.IsEntitled(now) {
		p.PeriodStart = prev.ExpirationDate.In(now.Location())
		p.Stacked = true
	} else {
		p.PeriodStart = now
		p.LapsedCarryOver = prev != nil && prevTenure > 0
	}

	p.PeriodEnd = plan.PeriodEnd(p.PeriodStart)
	p.TenureUnits = prevTenure + plan.TenureUnits()
	return p
}
