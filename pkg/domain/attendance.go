package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AttendanceKind distinguishes entry and exit scans.
type AttendanceKind string

const (
	AttendanceEntry AttendanceKind = "entry"
	AttendanceExit  AttendanceKind = "exit"
)

// ParseAttendanceKind parses "entry" or "exit".
func ParseAttendanceKind(s string) (AttendanceKind, error) {
	k := AttendanceKind(strings.ToLower(strings.TrimSpace(s)))
	if k != AttendanceEntry && k != AttendanceExit {
		return "", fmt.Errorf("%w: %q", ErrInvalidAttendanceKind, s)
	}
	return k, nil
}

// AttendanceEvent is one append-only scan record.
type AttendanceEvent struct {
	ID                uuid.UUID      `json:"id"`
	MemberID          string         `json:"member_id"`
	Kind              AttendanceKind `json:"kind"`
	Timestamp         time.Time      `json:"timestamp"`
	RecordedByStaffID string         `json:"recorded_by_staff_id"`
	LocationID        string         `json:"location_id"`
}

// Validate checks an event at the store boundary.
func (e *AttendanceEvent) Validate() error {
	switch {
	case e.ID == uuid.Nil:
		return fmt.Errorf("%w: attendance id", ErrMissingField)
	case e.MemberID == "":
		return fmt.Errorf("%w: attendance member_id", ErrMissingField)
	case e.LocationID == "":
		return fmt.Errorf("%w: attendance location_id", ErrMissingField)
	case e.Timestamp.IsZero():
		return fmt.Errorf("%w: attendance timestamp", ErrMissingField)
	}
	if _, err := ParseAttendanceKind(string(e.Kind)); err != nil {
		return err
	}
	return nil
}

// DayAttendance is the visit window of one local calendar day.
type DayAttendance struct {
	Date     string           `json:"date"`
	CheckIn  *AttendanceEvent `json:"check_in,omitempty"`
	CheckOut *AttendanceEvent `json:"check_out,omitempty"`
	// Duration is nil unless both check-in and a later check-out exist.
	Duration *time.Duration `json:"-"`
}

// AttendanceStats aggregates a member's attendance log.
type AttendanceStats struct {
	TotalVisitDays      int
	TotalDuration       time.Duration
	AverageDuration     time.Duration
	MostFrequentWeekday *time.Weekday
	VisitsThisWeek      int
	VisitsThisMonth     int
}
