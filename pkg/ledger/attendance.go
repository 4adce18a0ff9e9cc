package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/gymkeeper/pkg/domain"
)

// AttendanceConfig holds attendance ledger configuration.
type AttendanceConfig struct {
	Location     *time.Location
	StoreTimeout time.Duration
}

// RecordInput is one entry or exit to append.
type RecordInput struct {
	MemberID   string
	Kind       domain.AttendanceKind
	StaffID    string
	LocationID string
}

// AttendanceService records the raw event log and derives day views and
// stats from it.
type AttendanceService struct {
	config    AttendanceConfig
	store     AttendanceStore
	publisher Publisher
	clock     domain.Clock
	logger    *slog.Logger
}

// NewAttendanceService creates an attendance ledger. publisher may be nil.
func NewAttendanceService(config AttendanceConfig, store AttendanceStore, publisher Publisher, clock domain.Clock, logger *slog.Logger) *AttendanceService {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = DefaultStoreTimeout
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AttendanceService{config: config, store: store, publisher: publisher, clock: clock, logger: logger}
}

// Location returns the gym time zone used for day grouping.
func (s *AttendanceService) Location() *time.Location {
	return s.config.Location
}

// Record appends an event. Entry/exit pairing is not enforced.
func (s *AttendanceService) Record(ctx context.Context, in RecordInput) (*domain.AttendanceEvent, error) {
	switch {
	case in.MemberID == "":
		return nil, fmt.Errorf("%w: member_id", domain.ErrMissingField)
	case in.StaffID == "":
		return nil, fmt.Errorf("%w: staff_id", domain.ErrMissingField)
	case in.LocationID == "":
		return nil, fmt.Errorf("%w: location_id", domain.ErrMissingField)
	}
	if _, err := domain.ParseAttendanceKind(string(in.Kind)); err != nil {
		return nil, err
	}

	event := &domain.AttendanceEvent{
		ID:                uuid.New(),
		MemberID:          in.MemberID,
		Kind:              in.Kind,
		Timestamp:         s.clock.Now(),
		RecordedByStaffID: in.StaffID,
		LocationID:        in.LocationID,
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	if err := s.store.AppendAttendance(ctx, event); err != nil {
		return nil, storeErr(err)
	}

	s.logger.Debug("attendance recorded",
		"member_id", event.MemberID,
		"kind", event.Kind,
		"location_id", event.LocationID,
	)
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, EventAttendanceRecorded, event); err != nil {
			s.logger.Warn("failed to publish ledger event", "routing_key", EventAttendanceRecorded, "error", err)
		}
	}
	return event, nil
}

// History returns a member's events in [from, to), oldest first.
func (s *AttendanceService) History(ctx context.Context, memberID string, from, to time.Time) ([]*domain.AttendanceEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	events, err := s.store.ListAttendance(ctx, memberID, from, to)
	if err != nil {
		return nil, storeErr(err)
	}
	return events, nil
}

// Days returns the member's day views in [from, to).
func (s *AttendanceService) Days(ctx context.Context, memberID string, from, to time.Time) ([]domain.DayAttendance, error) {
	events, err := s.History(ctx, memberID, from, to)
	if err != nil {
		return nil, err
	}
	return GroupByDay(events, s.config.Location), nil
}

// Stats aggregates the member's full history.
func (s *AttendanceService) Stats(ctx context.Context, memberID string) (domain.AttendanceStats, error) {
	events, err := s.History(ctx, memberID, time.Time{}, time.Time{})
	if err != nil {
		return domain.AttendanceStats{}, err
	}
	return ComputeStats(events, s.clock.Now(), s.config.Location), nil
}

// InsideSince returns how many members at locationID are currently inside
// according to the log since the given time: members whose latest event is
// an entry.
func (s *AttendanceService) InsideSince(ctx context.Context, locationID string, since time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	events, err := s.store.ListLocationSince(ctx, locationID, since)
	if err != nil {
		return 0, storeErr(err)
	}

	last := make(map[string]domain.AttendanceKind)
	for _, e := range chronological(events) {
		last[e.MemberID] = e.Kind
	}
	var inside int64
	for _, k := range last {
		if k == domain.AttendanceEntry {
			inside++
		}
	}
	return inside, nil
}

// StartOfDay returns local midnight of t in the gym time zone.
func (s *AttendanceService) StartOfDay(t time.Time) time.Time {
	y, m, d := t.In(s.config.Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.config.Location)
}
