// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/tendant/gymkeeper/pkg/domain"
)

// AttendanceLog answers who is inside according to the event log.
type AttendanceLog interface {
	InsideSince(ctx context.Context, locationID string, since time.Time) (int64, error)
	StartOfDay(t time.Time) time.Time
}

// OccupancyReconciler overwrites a location's count.
type OccupancyReconciler interface {
	Reconcile(ctx context.Context, locationID string, count int64) (domain.OccupancyState, error)
}

// MembershipExpirer clears stale active flags.
type MembershipExpirer interface {
	ExpireLapsed(ctx context.Context) (int, error)
}

// LimiterPruner drops idle per-member rate limiters.
type LimiterPruner interface {
	Prune(olderThan time.Duration) int
}

// Config holds job configuration.
type Config struct {
	Locations       []string
	JobTimeout      time.Duration
	LimiterIdleTime time.Duration
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	attendance AttendanceLog
	occupancy  OccupancyReconciler
	membership MembershipExpirer
	limiters   LimiterPruner
	clock      domain.Clock
	logger     *slog.Logger
	config     Config
}

// NewJobs creates a new Jobs runner. limiters may be nil.
func NewJobs(attendance AttendanceLog, occupancy OccupancyReconciler, membership MembershipExpirer, limiters LimiterPruner, clock domain.Clock, logger *slog.Logger, cfg Config) *Jobs {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = time.Minute
	}
	if cfg.LimiterIdleTime <= 0 {
		cfg.LimiterIdleTime = time.Hour
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &Jobs{
		attendance: attendance,
		occupancy:  occupancy,
		membership: membership,
		limiters:   limiters,
		clock:      clock,
		logger:     logger,
		config:     cfg,
	}
}

// ReconcileOccupancy recomputes each location's count from today's events
// and overwrites the counter where it drifted.
func (j *Jobs) ReconcileOccupancy() {
	j.logger.Info("starting occupancy reconciliation job")
	ctx, cancel := context.WithTimeout(context.Background(), j.config.JobTimeout)
	defer cancel()

	since := j.attendance.StartOfDay(j.clock.Now())
	for _, loc := range j.config.Locations {
		inside, err := j.attendance.InsideSince(ctx, loc, since)
		if err != nil {
			j.logger.Error("failed to count members inside", "location_id", loc, "error", err)
			continue
		}
		if _, err := j.occupancy.Reconcile(ctx, loc, inside); err != nil {
			j.logger.Error("failed to reconcile occupancy", "location_id", loc, "error", err)
		}
	}

	j.logger.Info("occupancy reconciliation job finished")
}

// ExpireMemberships clears the active flag on lapsed periods.
func (j *Jobs) ExpireMemberships() {
	j.logger.Info("starting membership expiry job")
	ctx, cancel := context.WithTimeout(context.Background(), j.config.JobTimeout)
	defer cancel()

	n, err := j.membership.ExpireLapsed(ctx)
	if err != nil {
		j.logger.Error("failed to expire memberships", "error", err)
		return
	}
	j.logger.Info("membership expiry job finished", "expired", n)
}

// PruneLimiters drops idle manual-code rate limiters.
func (j *Jobs) PruneLimiters() {
	if j.limiters == nil {
		return
	}
	n := j.limiters.Prune(j.config.LimiterIdleTime)
	j.logger.Debug("pruned idle limiters", "removed", n)
}
