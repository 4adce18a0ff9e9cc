package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role is a flat role consumed from the identity bridge.
type Role string

const (
	RoleMember Role = "member"
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
)

// DefaultRoles is applied when a stored member or identity token carries no roles.
var DefaultRoles = []Role{RoleMember}

// ParseRoles converts raw role names, dropping unknown ones. An empty result
// falls back to DefaultRoles.
func ParseRoles(raw []string) []Role {
	roles := make([]Role, 0, len(raw))
	for _, r := range raw {
		switch role := Role(strings.ToLower(strings.TrimSpace(r))); role {
		case RoleMember, RoleStaff, RoleAdmin:
			roles = append(roles, role)
		}
	}
	if len(roles) == 0 {
		return append([]Role(nil), DefaultRoles...)
	}
	return roles
}

// Member is the document stored per member id. The membership period is
// embedded and replaced on each renewal.
type Member struct {
	ID         string            `json:"id"`
	Roles      []Role            `json:"roles,omitempty"`
	Membership *MembershipPeriod `json:"membership,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Validate checks a member document read from or written to the store.
func (m *Member) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: member id", ErrMissingField)
	}
	if m.CreatedAt.IsZero() {
		return fmt.Errorf("%w: member created_at", ErrMissingField)
	}
	if m.Membership != nil {
		if err := m.Membership.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// MembershipPeriod is the materialized view of the latest renewal plus
// accumulated tenure.
type MembershipPeriod struct {
	Active                bool          `json:"active"`
	PlanKind              PlanKind      `json:"plan_kind"`
	StartDate             time.Time     `json:"start_date"`
	ExpirationDate        time.Time     `json:"expiration_date"`
	ContinuousTenureUnits int           `json:"continuous_tenure_units"`
	LastRenewalDate       *time.Time    `json:"last_renewal_date,omitempty"`
	LastRenewedByStaffID  string        `json:"last_renewed_by_staff_id,omitempty"`
	PaymentMethod         PaymentMethod `json:"payment_method,omitempty"`
}

// IsEntitled reports whether the period allows entry at now. The stored Active
// flag alone is never enough.
func (p *MembershipPeriod) IsEntitled(now time.Time) bool {
	return p != nil && p.Active && p.ExpirationDate.After(now)
}

// Validate checks required fields and ordering.
func (p *MembershipPeriod) Validate() error {
	if !p.PlanKind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPlanKind, p.PlanKind)
	}
	if p.StartDate.IsZero() {
		return fmt.Errorf("%w: membership start_date", ErrMissingField)
	}
	if p.ExpirationDate.IsZero() {
		return fmt.Errorf("%w: membership expiration_date", ErrMissingField)
	}
	if !p.ExpirationDate.After(p.StartDate) {
		return fmt.Errorf("%w: expiration_date must follow start_date", ErrInvalidRecord)
	}
	if p.ContinuousTenureUnits < 0 {
		return fmt.Errorf("%w: negative tenure", ErrInvalidRecord)
	}
	if p.PaymentMethod != "" {
		if _, err := ParsePaymentMethod(string(p.PaymentMethod)); err != nil {
			return err
		}
	}
	return nil
}
