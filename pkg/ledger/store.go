// Package ledger owns membership entitlement, renewal bookkeeping and the
// attendance log.
package ledger

import (
	"context"
	"time"

	"github.com/tendant/gymkeeper/pkg/domain"
)

// MemberStore reads member documents.
type MemberStore interface {
	// GetMember returns domain.ErrMemberNotFound when no document exists.
	GetMember(ctx context.Context, memberID string) (*domain.Member, error)
}

// RenewalStore persists renewals.
type RenewalStore interface {
	MemberStore
	// CommitRenewal writes the updated member document and appends record in
	// a single transaction. Either both are stored or neither is.
	CommitRenewal(ctx context.Context, member *domain.Member, record *domain.RenewalRecord) error
	// ListRenewals returns a member's renewals, newest first.
	ListRenewals(ctx context.Context, memberID string) ([]*domain.RenewalRecord, error)
	// ExpireLapsed clears the active flag of every period expired at now and
	// returns how many members changed.
	ExpireLapsed(ctx context.Context, now time.Time) (int, error)
}

// AttendanceStore persists the append-only attendance log.
type AttendanceStore interface {
	AppendAttendance(ctx context.Context, event *domain.AttendanceEvent) error
	// ListAttendance returns a member's events in [from, to), oldest first.
	// A zero bound is open.
	ListAttendance(ctx context.Context, memberID string, from, to time.Time) ([]*domain.AttendanceEvent, error)
	// ListLocationSince returns every event at locationID since the given
	// time, oldest first.
	ListLocationSince(ctx context.Context, locationID string, since time.Time) ([]*domain.AttendanceEvent, error)
}

// Publisher announces ledger changes to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Routing keys of published ledger events.
const (
	EventMembershipRenewed  = "membership.renewed"
	EventAttendanceRecorded = "attendance.recorded"
)

// DefaultStoreTimeout bounds each store call when no timeout is configured.
const DefaultStoreTimeout = 5 * time.Second
