// Package occupancy maintains the live headcount per location.
package occupancy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendant/gymkeeper/pkg/domain"
)

// Store applies occupancy writes atomically. Implementations must never
// read-modify-write.
type Store interface {
	// ApplyDelta adds delta, clamping the result at zero, and bumps the version.
	ApplyDelta(ctx context.Context, locationID string, delta int64, now time.Time) (domain.OccupancyState, error)
	GetOccupancy(ctx context.Context, locationID string) (domain.OccupancyState, error)
	SetOccupancy(ctx context.Context, locationID string, count int64, now time.Time) (domain.OccupancyState, error)
}

// Observer receives every new count.
type Observer interface {
	ObserveOccupancy(locationID string, count int64)
}

// Config holds counter configuration.
type Config struct {
	StoreTimeout time.Duration
}

// Counter is the occupancy counter.
type Counter struct {
	config   Config
	store    Store
	hub      *Hub
	observer Observer
	clock    domain.Clock
	logger   *slog.Logger
}

// NewCounter creates a counter. observer may be nil.
func NewCounter(config Config, store Store, hub *Hub, observer Observer, clock domain.Clock, logger *slog.Logger) *Counter {
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = 5 * time.Second
	}
	if hub == nil {
		hub = NewHub()
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Counter{config: config, store: store, hub: hub, observer: observer, clock: clock, logger: logger}
}

// Increment records one person entering locationID.
func (c *Counter) Increment(ctx context.Context, locationID string) (domain.OccupancyState, error) {
	return c.apply(ctx, locationID, 1)
}

// Decrement records one person leaving locationID. The count never goes
// below zero; an exit without a matching entry still succeeds.
func (c *Counter) Decrement(ctx context.Context, locationID string) (domain.OccupancyState, error) {
	return c.apply(ctx, locationID, -1)
}

// Current returns the stored state of locationID.
func (c *Counter) Current(ctx context.Context, locationID string) (domain.OccupancyState, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.StoreTimeout)
	defer cancel()

	st, err := c.store.GetOccupancy(ctx, locationID)
	if err != nil {
		return domain.OccupancyState{}, retryable(err)
	}
	return st, nil
}

// Subscribe returns a channel receiving the current state followed by every
// newer one. Call cancel when the observer goes away.
func (c *Counter) Subscribe(ctx context.Context, locationID string) (<-chan domain.OccupancyState, func(), error) {
	ch, cancel := c.hub.Subscribe(locationID)
	st, err := c.Current(ctx, locationID)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	c.notify(st)
	return ch, cancel, nil
}

// Reconcile overwrites the count of locationID with count, repairing drift
// left by failed writes.
func (c *Counter) Reconcile(ctx context.Context, locationID string, count int64) (domain.OccupancyState, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.StoreTimeout)
	defer cancel()

	before, err := c.store.GetOccupancy(ctx, locationID)
	if err != nil {
		return domain.OccupancyState{}, retryable(err)
	}
	if before.Count == count && before.Version > 0 {
		return before, nil
	}

	st, err := c.store.SetOccupancy(ctx, locationID, count, c.clock.Now())
	if err != nil {
		return domain.OccupancyState{}, retryable(err)
	}
	c.logger.Info("occupancy reconciled",
		"location_id", locationID,
		"from", before.Count,
		"to", st.Count,
	)
	c.notify(st)
	return st, nil
}

// Relay publishes a state written by another instance.
func (c *Counter) Relay(st domain.OccupancyState) {
	c.notify(st)
}

func (c *Counter) apply(ctx context.Context, locationID string, delta int64) (domain.OccupancyState, error) {
	if locationID == "" {
		return domain.OccupancyState{}, fmt.Errorf("%w: location_id", domain.ErrMissingField)
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.StoreTimeout)
	defer cancel()

	st, err := c.store.ApplyDelta(ctx, locationID, delta, c.clock.Now())
	if err != nil {
		return domain.OccupancyState{}, retryable(err)
	}
	c.notify(st)
	return st, nil
}

func (c *Counter) notify(st domain.OccupancyState) {
	if c.hub.Publish(st) && c.observer != nil {
		c.observer.ObserveOccupancy(st.LocationID, st.Count)
	}
}

func retryable(err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
