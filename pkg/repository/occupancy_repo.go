package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tendant/gymkeeper/pkg/domain"
)

// OccupancyChannel is the NOTIFY channel carrying occupancy changes.
const OccupancyChannel = "occupancy_changed"

// OccupancyRepository stores one counter row per location. Every write is a
// single atomic statement.
type OccupancyRepository struct {
	db     *sql.DB
	tracer trace.Tracer
}

// NewOccupancyRepository creates a new occupancy repository.
func NewOccupancyRepository(db *sql.DB) *OccupancyRepository {
	return &OccupancyRepository{db: db, tracer: tracer()}
}

// ApplyDelta adds delta to the counter, clamped at zero, and notifies
// listeners in the same statement.
func (r *OccupancyRepository) ApplyDelta(ctx context.Context, locationID string, delta int64, now time.Time) (st domain.OccupancyState, err error) {
	ctx, span := r.tracer.Start(ctx, "occupancy.apply_delta",
		trace.WithAttributes(
			attribute.String("location.id", locationID),
			attribute.Int64("delta", delta),
		),
	)
	defer func() { finish(span, err) }()

	return r.write(ctx, `
		WITH updated AS (
			INSERT INTO occupancy (location_id, count, version, last_updated)
			VALUES ($1, GREATEST($2::bigint, 0), 1, $3)
			ON CONFLICT (location_id) DO UPDATE
			SET count = GREATEST(occupancy.count + $2::bigint, 0),
			    version = occupancy.version + 1,
			    last_updated = EXCLUDED.last_updated
			RETURNING location_id, count, version, last_updated
		)
		SELECT u.location_id, u.count, u.version, u.last_updated,
		       pg_notify('`+OccupancyChannel+`', json_build_object(
		           'location_id', u.location_id, 'count', u.count,
		           'version', u.version, 'last_updated', u.last_updated)::text)
		FROM updated u
	`, locationID, delta, now)
}

// SetOccupancy overwrites the counter, used by reconciliation.
func (r *OccupancyRepository) SetOccupancy(ctx context.Context, locationID string, count int64, now time.Time) (st domain.OccupancyState, err error) {
	ctx, span := r.tracer.Start(ctx, "occupancy.set",
		trace.WithAttributes(
			attribute.String("location.id", locationID),
			attribute.Int64("count", count),
		),
	)
	defer func() { finish(span, err) }()

	if count < 0 {
		count = 0
	}
	return r.write(ctx, `
		WITH updated AS (
			INSERT INTO occupancy (location_id, count, version, last_updated)
			VALUES ($1, $2::bigint, 1, $3)
			ON CONFLICT (location_id) DO UPDATE
			SET count = EXCLUDED.count,
			    version = occupancy.version + 1,
			    last_updated = EXCLUDED.last_updated
			RETURNING location_id, count, version, last_updated
		)
		SELECT u.location_id, u.count, u.version, u.last_updated,
		       pg_notify('`+OccupancyChannel+`', json_build_object(
		           'location_id', u.location_id, 'count', u.count,
		           'version', u.version, 'last_updated', u.last_updated)::text)
		FROM updated u
	`, locationID, count, now)
}

func (r *OccupancyRepository) write(ctx context.Context, query string, args ...any) (domain.OccupancyState, error) {
	var st domain.OccupancyState
	var notified sql.NullString
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&st.LocationID, &st.Count, &st.Version, &st.LastUpdated, &notified)
	if err != nil {
		return domain.OccupancyState{}, unavailable(err)
	}
	return st, nil
}

// GetOccupancy reads the counter; unknown locations read as zero.
func (r *OccupancyRepository) GetOccupancy(ctx context.Context, locationID string) (st domain.OccupancyState, err error) {
	ctx, span := r.tracer.Start(ctx, "occupancy.get",
		trace.WithAttributes(attribute.String("location.id", locationID)),
	)
	defer func() { finish(span, err) }()

	st.LocationID = locationID
	err = r.db.QueryRowContext(ctx, `
		SELECT count, version, last_updated FROM occupancy WHERE location_id = $1
	`, locationID).Scan(&st.Count, &st.Version, &st.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OccupancyState{LocationID: locationID}, nil
	}
	if err != nil {
		return domain.OccupancyState{}, unavailable(err)
	}
	return st, nil
}

// OccupancyListener relays NOTIFY payloads from other instances.
type OccupancyListener struct {
	listener *pq.Listener
	logger   *slog.Logger
}

// NewOccupancyListener subscribes to OccupancyChannel.
func NewOccupancyListener(cfg Config, logger *slog.Logger) (*OccupancyListener, error) {
	report := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("occupancy listener event", "event", ev, "error", err)
		}
	}
	l := pq.NewListener(cfg.DSN(), 10*time.Second, time.Minute, report)
	if err := l.Listen(OccupancyChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("listen %s: %w", OccupancyChannel, err)
	}
	return &OccupancyListener{listener: l, logger: logger}, nil
}

// Run delivers each received state to fn until ctx is cancelled.
func (l *OccupancyListener) Run(ctx context.Context, fn func(domain.OccupancyState)) {
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-l.listener.Notify:
			// nil after a reconnect
			if n == nil {
				continue
			}
			var st domain.OccupancyState
			if err := json.Unmarshal([]byte(n.Extra), &st); err != nil {
				l.logger.Warn("invalid occupancy notification", "payload", n.Extra, "error", err)
				continue
			}
			fn(st)
		case <-ping.C:
			if err := l.listener.Ping(); err != nil {
				l.logger.Warn("occupancy listener ping failed", "error", err)
			}
		}
	}
}

// Close stops listening.
func (l *OccupancyListener) Close() error {
	return l.listener.Close()
}
