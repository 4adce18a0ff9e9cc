package auth

import (
	"context"
	"log/slog"
	"time"
)

const (
	// DefaultRotationInterval is how long one displayed credential lives
	// before the next is issued.
	DefaultRotationInterval = 30 * time.Second
	defaultCountdownStep    = time.Second
)

// RotationTick is pushed to the presenting view on every countdown step.
type RotationTick struct {
	Encoded   string
	IssuedAt  int64
	Remaining time.Duration
	// Rotated is true when Encoded was issued on this tick.
	Rotated bool
}

// RotationConfig holds rotation configuration.
type RotationConfig struct {
	Interval time.Duration
	// Step is the countdown granularity shown to the member.
	Step time.Duration
}

// Rotator reissues a member's credential on a fixed interval while the
// member's access view is open.
type Rotator struct {
	signer *Signer
	config RotationConfig
	logger *slog.Logger
}

// NewRotator creates a rotation controller.
func NewRotator(signer *Signer, config RotationConfig, logger *slog.Logger) *Rotator {
	if config.Interval <= 0 {
		config.Interval = DefaultRotationInterval
	}
	if config.Step <= 0 || config.Step > config.Interval {
		config.Step = defaultCountdownStep
		if config.Step > config.Interval {
			config.Step = config.Interval
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rotator{signer: signer, config: config, logger: logger}
}

// Interval returns the rotation interval.
func (r *Rotator) Interval() time.Duration {
	return r.config.Interval
}

// Run issues a credential immediately and then on every interval, emitting a
// tick per countdown step. It returns when ctx is cancelled; no tick is
// emitted after that.
func (r *Rotator) Run(ctx context.Context, memberID string, emit func(RotationTick)) error {
	if err := ctx.Err(); err != nil {
		return nil
	}

	var current RotationTick
	issue := func() bool {
		encoded, c, err := r.signer.IssueEncoded(memberID)
		if err != nil {
			r.logger.Error("failed to issue credential, retrying next tick",
				"member_id", memberID,
				"error", err,
			)
			return false
		}
		current = RotationTick{Encoded: encoded, IssuedAt: c.IssuedAt, Remaining: r.config.Interval, Rotated: true}
		return true
	}

	pending := !issue()
	if !pending {
		emit(current)
	}

	ticker := time.NewTicker(r.config.Step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		// A cancelled view must not receive a tick that raced the cancel.
		if ctx.Err() != nil {
			return nil
		}

		current.Rotated = false
		current.Remaining -= r.config.Step
		if pending || current.Remaining <= 0 {
			if !issue() {
				pending = true
				continue
			}
			pending = false
		}
		emit(current)
	}
}
