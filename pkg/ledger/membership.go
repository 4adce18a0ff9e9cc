package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/gymkeeper/pkg/domain"
)

// MembershipConfig holds membership ledger configuration.
type MembershipConfig struct {
	// Location is the gym's time zone, used for calendar-month arithmetic.
	Location        *time.Location
	DefaultCurrency string
	StoreTimeout    time.Duration
}

// RenewalObserver is notified of committed renewals.
type RenewalObserver interface {
	ObserveRenewal(plan domain.PlanKind)
}

// RenewInput is a front-desk renewal request.
type RenewInput struct {
	MemberID      string
	StaffID       string
	StaffName     string
	PlanKind      domain.PlanKind
	PaymentMethod domain.PaymentMethod
	// Amount in minor units.
	Amount   int64
	Currency string
}

// MembershipService is the single source of truth for entitlement.
type MembershipService struct {
	config    MembershipConfig
	store     RenewalStore
	publisher Publisher
	observer  RenewalObserver
	clock     domain.Clock
	logger    *slog.Logger
}

// NewMembershipService creates a membership ledger. publisher and observer may be nil.
func NewMembershipService(config MembershipConfig, store RenewalStore, publisher Publisher, observer RenewalObserver, clock domain.Clock, logger *slog.Logger) *MembershipService {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.DefaultCurrency == "" {
		config.DefaultCurrency = domain.DefaultCurrency
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
	return &MembershipService{
		config:    config,
		store:     store,
		publisher: publisher,
		observer:  observer,
		clock:     clock,
		logger:    logger,
	}
}

// IsEntitled reports whether memberID may enter now. The predicate is
// recomputed from the stored period on every call. Unknown members are not
// entitled; store failures are returned, never treated as a verdict.
func (s *MembershipService) IsEntitled(ctx context.Context, memberID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	member, err := s.store.GetMember(ctx, memberID)
	if errors.Is(err, domain.ErrMemberNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storeErr(err)
	}
	return member.Membership.IsEntitled(s.clock.Now()), nil
}

// GetMembership returns the member's current period, nil if never renewed.
func (s *MembershipService) GetMembership(ctx context.Context, memberID string) (*domain.MembershipPeriod, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	member, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, storeErr(err)
	}
	return member.Membership, nil
}

// Renew extends or starts a membership and appends the renewal record. The
// member document and the record are committed together.
func (s *MembershipService) Renew(ctx context.Context, in RenewInput) (*domain.RenewalRecord, error) {
	if err := s.validate(&in); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	now := s.clock.Now().In(s.config.Location)

	member, err := s.store.GetMember(ctx, in.MemberID)
	switch {
	case errors.Is(err, domain.ErrMemberNotFound):
		member = &domain.Member{
			ID:        in.MemberID,
			Roles:     append([]domain.Role(nil), domain.DefaultRoles...),
			CreatedAt: now,
		}
	case err != nil:
		return nil, storeErr(err)
	}

	plan := PlanRenewal(member.Membership, in.PlanKind, now)
	if plan.LapsedCarryOver {
		s.logger.Info("renewing lapsed membership, tenure carried over",
			"member_id", in.MemberID,
			"tenure_units", plan.TenureUnits,
			"tenure_carried_over_lapse", true,
		)
	}

	renewedAt := now
	updated := *member
	updated.UpdatedAt = now
	updated.Membership = &domain.MembershipPeriod{
		Active:                true,
		PlanKind:              in.PlanKind,
		StartDate:             plan.PeriodStart,
		ExpirationDate:        plan.PeriodEnd,
		ContinuousTenureUnits: plan.TenureUnits,
		LastRenewalDate:       &renewedAt,
		LastRenewedByStaffID:  in.StaffID,
		PaymentMethod:         in.PaymentMethod,
	}

	record := &domain.RenewalRecord{
		ID:            uuid.New(),
		MemberID:      in.MemberID,
		StaffID:       in.StaffID,
		StaffName:     in.StaffName,
		PaymentMethod: in.PaymentMethod,
		Amount:        in.Amount,
		Currency:      in.Currency,
		PlanKind:      in.PlanKind,
		PeriodStart:   plan.PeriodStart,
		PeriodEnd:     plan.PeriodEnd,
		Timestamp:     now,
	}

	if err := s.store.CommitRenewal(ctx, &updated, record); err != nil {
		s.logger.Error("failed to commit renewal",
			"member_id", in.MemberID,
			"renewal_id", record.ID,
			"error", err,
		)
		return nil, storeErr(err)
	}

	s.logger.Info("membership renewed",
		"member_id", in.MemberID,
		"renewal_id", record.ID,
		"plan", in.PlanKind,
		"period_start", plan.PeriodStart,
		"period_end", plan.PeriodEnd,
		"stacked", plan.Stacked,
	)
	if s.observer != nil {
		s.observer.ObserveRenewal(in.PlanKind)
	}
	s.publish(ctx, EventMembershipRenewed, record)

	return record, nil
}

// RenewalHistory returns the member's renewals, newest first.
func (s *MembershipService) RenewalHistory(ctx context.Context, memberID string) ([]*domain.RenewalRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	records, err := s.store.ListRenewals(ctx, memberID)
	if err != nil {
		return nil, storeErr(err)
	}
	return records, nil
}

// ExpireLapsed clears the stale active flag on expired periods. Entitlement
// never depends on it; the sweep keeps stored documents honest for reports.
func (s *MembershipService) ExpireLapsed(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.StoreTimeout)
	defer cancel()

	n, err := s.store.ExpireLapsed(ctx, s.clock.Now())
	if err != nil {
		return 0, storeErr(err)
	}
	return n, nil
}

func (s *MembershipService) validate(in *RenewInput) error {
	if in.MemberID == "" {
		return fmt.Errorf("%w: member_id", domain.ErrMissingField)
	}
	if in.StaffID == "" {
		return fmt.Errorf("%w: staff_id", domain.ErrMissingField)
	}
	if !in.PlanKind.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidPlanKind, in.PlanKind)
	}
	if _, err := domain.ParsePaymentMethod(string(in.PaymentMethod)); err != nil {
		return err
	}
	if in.Amount < 0 {
		return domain.ErrInvalidAmount
	}
	if in.Currency == "" {
		in.Currency = s.config.DefaultCurrency
	}
	currency, err := domain.NormalizeCurrency(in.Currency)
	if err != nil {
		return err
	}
	in.Currency = currency
	in.StaffName = domain.CleanStaffName(in.StaffName)
	return nil
}

func (s *MembershipService) publish(ctx context.Context, key string, payload any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, key, payload); err != nil {
		s.logger.Warn("failed to publish ledger event", "routing_key", key, "error", err)
	}
}

// storeErr marks timeouts as retryable store failures.
func storeErr(err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) || errors.Is(err, domain.ErrMemberNotFound) || errors.Is(err, domain.ErrInvalidRecord) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return err
}
