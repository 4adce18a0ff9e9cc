package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tendant/gymkeeper/pkg/domain"
)

// AttendanceRepository persists the append-only attendance log.
type AttendanceRepository struct {
	db     *sql.DB
	tracer trace.Tracer
}

// NewAttendanceRepository creates a new attendance repository.
func NewAttendanceRepository(db *sql.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db, tracer: tracer()}
}

// AppendAttendance inserts an event.
func (r *AttendanceRepository) AppendAttendance(ctx context.Context, event *domain.AttendanceEvent) (err error) {
	ctx, span := r.tracer.Start(ctx, "attendance.append",
		trace.WithAttributes(
			attribute.String("member.id", event.MemberID),
			attribute.String("location.id", event.LocationID),
			attribute.String("attendance.kind", string(event.Kind)),
		),
	)
	defer func() { finish(span, err) }()

	if err := event.Validate(); err != nil {
		return err
	}
	doc, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode attendance event: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO attendance_events (id, member_id, location_id, occurred_at, doc)
		VALUES ($1, $2, $3, $4, $5)
	`, event.ID, event.MemberID, event.LocationID, event.Timestamp, doc)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// ListAttendance returns a member's events in [from, to), oldest first. Zero
// bounds are open.
func (r *AttendanceRepository) ListAttendance(ctx context.Context, memberID string, from, to time.Time) (events []*domain.AttendanceEvent, err error) {
	ctx, span := r.tracer.Start(ctx, "attendance.list_member",
		trace.WithAttributes(attribute.String("member.id", memberID)),
	)
	defer func() { finish(span, err) }()

	query := strings.Builder{}
	query.WriteString(`SELECT doc FROM attendance_events WHERE member_id = $1`)
	args := []any{memberID}
	if !from.IsZero() {
		args = append(args, from)
		fmt.Fprintf(&query, ` AND occurred_at >= $%d`, len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		fmt.Fprintf(&query, ` AND occurred_at < $%d`, len(args))
	}
	query.WriteString(` ORDER BY occurred_at`)

	events, err = r.query(ctx, query.String(), args...)
	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, err
}

// ListLocationSince returns every event at locationID since the given time,
// oldest first.
func (r *AttendanceRepository) ListLocationSince(ctx context.Context, locationID string, since time.Time) (events []*domain.AttendanceEvent, err error) {
	ctx, span := r.tracer.Start(ctx, "attendance.list_location",
		trace.WithAttributes(attribute.String("location.id", locationID)),
	)
	defer func() { finish(span, err) }()

	return r.query(ctx, `
		SELECT doc FROM attendance_events
		WHERE location_id = $1 AND occurred_at >= $2
		ORDER BY occurred_at
	`, locationID, since)
}

func (r *AttendanceRepository) query(ctx context.Context, query string, args ...any) ([]*domain.AttendanceEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var events []*domain.AttendanceEvent
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, unavailable(err)
		}
		e := &domain.AttendanceEvent{}
		if err := json.Unmarshal(doc, e); err != nil {
			return nil, fmt.Errorf("%w: attendance event: %w", domain.ErrInvalidRecord, err)
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("%w: attendance event %s: %w", domain.ErrInvalidRecord, e.ID, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return events, nil
}
