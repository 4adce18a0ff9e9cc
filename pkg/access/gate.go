// Package access runs the front-desk scan flow: verify the credential, check
// entitlement, record the event and adjust occupancy.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendant/gymkeeper/pkg/domain"
	"github.com/tendant/gymkeeper/pkg/ledger"
)

// Status is the operator-facing scan outcome.
type Status string

const (
	StatusGranted  Status = "granted"
	StatusInvalid  Status = "invalid"
	StatusExpired  Status = "expired"
	StatusInactive Status = "inactive"
)

// Operator messages. Malformed and forged codes share one message.
const (
	MessageGranted  = "access granted"
	MessageInvalid  = "invalid code"
	MessageExpired  = "code expired"
	MessageInactive = "membership inactive"
)

// CredentialVerifier checks scanned credentials.
type CredentialVerifier interface {
	Verify(raw string, now time.Time) domain.VerifyResult
}

// ManualCodeVerifier checks typed-in fallback codes.
type ManualCodeVerifier interface {
	Verify(memberID, code string) error
}

// Entitlement answers whether a member may enter.
type Entitlement interface {
	IsEntitled(ctx context.Context, memberID string) (bool, error)
}

// AttendanceRecorder appends attendance events.
type AttendanceRecorder interface {
	Record(ctx context.Context, in ledger.RecordInput) (*domain.AttendanceEvent, error)
}

// OccupancyCounter adjusts the live headcount.
type OccupancyCounter interface {
	Increment(ctx context.Context, locationID string) (domain.OccupancyState, error)
	Decrement(ctx context.Context, locationID string) (domain.OccupancyState, error)
}

// Observer is notified of every scan outcome.
type Observer interface {
	ObserveScan(status, reason string)
}

// ScanRequest is one scan at the front desk.
type ScanRequest struct {
	Credential string
	Kind       domain.AttendanceKind
	StaffID    string
	LocationID string
}

// ManualRequest is a typed-in fallback code for a known member.
type ManualRequest struct {
	MemberID   string
	Code       string
	Kind       domain.AttendanceKind
	StaffID    string
	LocationID string
}

// ScanResult is returned to the scanning operator.
type ScanResult struct {
	Status    Status                  `json:"status"`
	Message   string                  `json:"message"`
	MemberID  string                  `json:"member_id,omitempty"`
	Event     *domain.AttendanceEvent `json:"event,omitempty"`
	Occupancy *domain.OccupancyState  `json:"occupancy,omitempty"`
	// Reason is the internal cause, for logs and metrics only.
	Reason string `json:"-"`
}

// Granted reports whether the scan let the member through.
func (r ScanResult) Granted() bool {
	return r.Status == StatusGranted
}

// Gate runs scans. Scans of the same member are serialized end to end so a
// double tap cannot count twice.
type Gate struct {
	verifier    CredentialVerifier
	manual      ManualCodeVerifier
	entitlement Entitlement
	attendance  AttendanceRecorder
	occupancy   OccupancyCounter
	observer    Observer
	clock       domain.Clock
	logger      *slog.Logger
	locks       *keyedMutex
}

// NewGate creates a gate. manual and observer may be nil.
func NewGate(verifier CredentialVerifier, manual ManualCodeVerifier, entitlement Entitlement, attendance AttendanceRecorder, occupancy OccupancyCounter, observer Observer, clock domain.Clock, logger *slog.Logger) *Gate {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		verifier:    verifier,
		manual:      manual,
		entitlement: entitlement,
		attendance:  attendance,
		occupancy:   occupancy,
		observer:    observer,
		clock:       clock,
		logger:      logger,
		locks:       newKeyedMutex(),
	}
}

// Scan verifies a scanned credential and, if it passes, admits or releases
// the member. Credential failures are returned as results, never errors; an
// error means a store failure and the scan may be retried.
func (g *Gate) Scan(ctx context.Context, req ScanRequest) (ScanResult, error) {
	if err := validateKind(req.Kind, req.StaffID, req.LocationID); err != nil {
		return ScanResult{}, err
	}

	v := g.verifier.Verify(req.Credential, g.clock.Now())
	switch v.Status {
	case domain.VerifyInvalid:
		return g.reject(StatusInvalid, MessageInvalid, "", v.Reason), nil
	case domain.VerifyExpired:
		return g.reject(StatusExpired, MessageExpired, "", v.Reason), nil
	}

	return g.admit(ctx, v.MemberID, req.Kind, req.StaffID, req.LocationID, "")
}

// Manual runs the same flow for a typed-in fallback code.
func (g *Gate) Manual(ctx context.Context, req ManualRequest) (ScanResult, error) {
	if g.manual == nil {
		return ScanResult{}, errors.New("manual entry disabled")
	}
	if req.MemberID == "" {
		return ScanResult{}, fmt.Errorf("%w: member_id", domain.ErrMissingField)
	}
	if err := validateKind(req.Kind, req.StaffID, req.LocationID); err != nil {
		return ScanResult{}, err
	}

	if err := g.manual.Verify(req.MemberID, req.Code); err != nil {
		if errors.Is(err, domain.ErrTooManyAttempts) {
			return ScanResult{}, err
		}
		return g.reject(StatusInvalid, MessageInvalid, req.MemberID, "manual code"), nil
	}

	return g.admit(ctx, req.MemberID, req.Kind, req.StaffID, req.LocationID, "manual")
}

// RecordRequest is an attendance event keyed in by staff without a code.
type RecordRequest struct {
	MemberID   string
	Kind       domain.AttendanceKind
	StaffID    string
	LocationID string
}

// Record runs the admit flow for a staff-keyed event. Entries still require
// entitlement; only the credential check is skipped.
func (g *Gate) Record(ctx context.Context, req RecordRequest) (ScanResult, error) {
	if req.MemberID == "" {
		return ScanResult{}, fmt.Errorf("%w: member_id", domain.ErrMissingField)
	}
	if err := validateKind(req.Kind, req.StaffID, req.LocationID); err != nil {
		return ScanResult{}, err
	}
	return g.admit(ctx, req.MemberID, req.Kind, req.StaffID, req.LocationID, "staff")
}

func (g *Gate) admit(ctx context.Context, memberID string, kind domain.AttendanceKind, staffID, locationID, via string) (ScanResult, error) {
	unlock := g.locks.Lock(memberID)
	defer unlock()

	// Exits are never blocked by an expired membership.
	if kind == domain.AttendanceEntry {
		ok, err := g.entitlement.IsEntitled(ctx, memberID)
		if err != nil {
			g.logger.Error("entitlement check failed", "member_id", memberID, "error", err)
			return ScanResult{}, err
		}
		if !ok {
			return g.reject(StatusInactive, MessageInactive, memberID, "not entitled"), nil
		}
	}

	event, err := g.attendance.Record(ctx, ledger.RecordInput{
		MemberID:   memberID,
		Kind:       kind,
		StaffID:    staffID,
		LocationID: locationID,
	})
	if err != nil {
		g.logger.Error("failed to record attendance", "member_id", memberID, "error", err)
		return ScanResult{}, err
	}

	var st domain.OccupancyState
	if kind == domain.AttendanceEntry {
		st, err = g.occupancy.Increment(ctx, locationID)
	} else {
		st, err = g.occupancy.Decrement(ctx, locationID)
	}
	if err != nil {
		// The event is stored but the counter is not; reconciliation repairs it.
		g.logger.Error("occupancy update failed after attendance was recorded",
			"member_id", memberID,
			"event_id", event.ID,
			"location_id", locationID,
			"error", err,
		)
		return ScanResult{}, fmt.Errorf("%w: occupancy not updated for event %s: %w", domain.ErrStoreUnavailable, event.ID, err)
	}

	g.logger.Info("access granted",
		"member_id", memberID,
		"kind", kind,
		"location_id", locationID,
		"occupancy", st.Count,
		"via", via,
	)
	g.observe(StatusGranted, "")
	return ScanResult{
		Status:    StatusGranted,
		Message:   MessageGranted,
		MemberID:  memberID,
		Event:     event,
		Occupancy: &st,
	}, nil
}

func (g *Gate) reject(status Status, message, memberID, reason string) ScanResult {
	g.logger.Info("scan rejected", "status", status, "reason", reason, "member_id", memberID)
	g.observe(status, reason)
	return ScanResult{Status: status, Message: message, MemberID: memberID, Reason: reason}
}

func (g *Gate) observe(status Status, reason string) {
	if g.observer != nil {
		g.observer.ObserveScan(string(status), reason)
	}
}

func validateKind(kind domain.AttendanceKind, staffID, locationID string) error {
	if _, err := domain.ParseAttendanceKind(string(kind)); err != nil {
		return err
	}
	if staffID == "" {
		return fmt.Errorf("%w: staff_id", domain.ErrMissingField)
	}
	if locationID == "" {
		return fmt.Errorf("%w: location_id", domain.ErrMissingField)
	}
	return nil
}
