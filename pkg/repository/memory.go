package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tendant/gymkeeper/pkg/domain"
)

// MemoryStore keeps every collection in process memory. It backs the
// "memory" store driver used in development and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	members    map[string]*domain.Member
	renewals   []*domain.RenewalRecord
	attendance []*domain.AttendanceEvent
	occupancy  map[string]domain.OccupancyState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		members:   make(map[string]*domain.Member),
		occupancy: make(map[string]domain.OccupancyState),
	}
}

// GetMember returns a copy of the stored member document.
func (s *MemoryStore) GetMember(ctx context.Context, memberID string) (*domain.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[memberID]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}
	return copyMember(m), nil
}

// PutMember stores a member document as-is.
func (s *MemoryStore) PutMember(ctx context.Context, member *domain.Member) error {
	if err := member.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[member.ID] = copyMember(member)
	return nil
}

// CommitRenewal replaces the member document and appends the record under one lock.
func (s *MemoryStore) CommitRenewal(ctx context.Context, member *domain.Member, record *domain.RenewalRecord) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	if err := member.Validate(); err != nil {
		return err
	}
	if err := record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[member.ID] = copyMember(member)
	r := *record
	s.renewals = append(s.renewals, &r)
	return nil
}

// ListRenewals returns a member's renewals, newest first.
func (s *MemoryStore) ListRenewals(ctx context.Context, memberID string) ([]*domain.RenewalRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.RenewalRecord
	for i := len(s.renewals) - 1; i >= 0; i-- {
		if r := s.renewals[i]; r.MemberID == memberID {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

// ExpireLapsed clears the active flag of periods expired at now.
func (s *MemoryStore) ExpireLapsed(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.members {
		if p := m.Membership; p != nil && p.Active && !p.ExpirationDate.After(now) {
			p.Active = false
			m.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// AppendAttendance appends an event.
func (s *MemoryStore) AppendAttendance(ctx context.Context, event *domain.AttendanceEvent) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	if err := event.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := *event
	s.attendance = append(s.attendance, &e)
	return nil
}

// ListAttendance returns a member's events in [from, to), oldest first.
func (s *MemoryStore) ListAttendance(ctx context.Context, memberID string, from, to time.Time) ([]*domain.AttendanceEvent, error) {
	return s.filterAttendance(ctx, func(e *domain.AttendanceEvent) bool {
		return e.MemberID == memberID && inRange(e.Timestamp, from, to)
	})
}

// ListLocationSince returns every event at locationID since the given time.
func (s *MemoryStore) ListLocationSince(ctx context.Context, locationID string, since time.Time) ([]*domain.AttendanceEvent, error) {
	return s.filterAttendance(ctx, func(e *domain.AttendanceEvent) bool {
		return e.LocationID == locationID && !e.Timestamp.Before(since)
	})
}

func (s *MemoryStore) filterAttendance(ctx context.Context, keep func(*domain.AttendanceEvent) bool) ([]*domain.AttendanceEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.AttendanceEvent
	for _, e := range s.attendance {
		if keep(e) {
			c := *e
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// ApplyDelta adds delta to the location's count, clamping at zero, and bumps
// the version.
func (s *MemoryStore) ApplyDelta(ctx context.Context, locationID string, delta int64, now time.Time) (domain.OccupancyState, error) {
	if err := ctx.Err(); err != nil {
		return domain.OccupancyState{}, unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.occupancy[locationID]
	st.LocationID = locationID
	st.Count += delta
	if st.Count < 0 {
		st.Count = 0
	}
	st.Version++
	st.LastUpdated = now
	s.occupancy[locationID] = st
	return st, nil
}

// GetOccupancy returns the location's state; unknown locations read as zero.
func (s *MemoryStore) GetOccupancy(ctx context.Context, locationID string) (domain.OccupancyState, error) {
	if err := ctx.Err(); err != nil {
		return domain.OccupancyState{}, unavailable(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.occupancy[locationID]
	if !ok {
		return domain.OccupancyState{LocationID: locationID}, nil
	}
	return st, nil
}

// SetOccupancy overwrites the count, used by reconciliation.
func (s *MemoryStore) SetOccupancy(ctx context.Context, locationID string, count int64, now time.Time) (domain.OccupancyState, error) {
	if err := ctx.Err(); err != nil {
		return domain.OccupancyState{}, unavailable(err)
	}
	if count < 0 {
		count = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.occupancy[locationID]
	st.LocationID = locationID
	st.Count = count
	st.Version++
	st.LastUpdated = now
	s.occupancy[locationID] = st
	return st, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func copyMember(m *domain.Member) *domain.Member {
	c := *m
	c.Roles = append([]domain.Role(nil), m.Roles...)
	if m.Membership != nil {
		p := *m.Membership
		if m.Membership.LastRenewalDate != nil {
			t := *m.Membership.LastRenewalDate
			p.LastRenewalDate = &t
		}
		c.Membership = &p
	}
	return &c
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
