package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/gymkeeper/pkg/domain"
	"github.com/tendant/gymkeeper/pkg/repository"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return p.err
}

type failingStore struct {
	*repository.MemoryStore
	commitErr error
	getErr    error
}

func (s *failingStore) GetMember(ctx context.Context, id string) (*domain.Member, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.MemoryStore.GetMember(ctx, id)
}

func (s *failingStore) CommitRenewal(ctx context.Context, m *domain.Member, r *domain.RenewalRecord) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	return s.MemoryStore.CommitRenewal(ctx, m, r)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMembership(store RenewalStore, clock domain.Clock, pub Publisher) *MembershipService {
	return NewMembershipService(MembershipConfig{Location: time.UTC}, store, pub, nil, clock, testLogger())
}

func renewInput(member string, plan domain.PlanKind) RenewInput {
	return RenewInput{
		MemberID:      member,
		StaffID:       "staff-1",
		StaffName:     "Front Desk",
		PlanKind:      plan,
		PaymentMethod: domain.PaymentCash,
		Amount:        50000,
	}
}

func TestRenew_FirstTimeMonthly(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: now}
	store := repository.NewMemoryStore()
	pub := &recordingPublisher{}
	svc := newMembership(store, clock, pub)

	rec, err := svc.Renew(context.Background(), renewInput("m1", domain.PlanMonthly))
	require.NoError(t, err)

	assert.True(t, rec.PeriodStart.Equal(now))
	assert.True(t, rec.PeriodEnd.Equal(time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, "MXN", rec.Currency)
	assert.Equal(t, []string{EventMembershipRenewed}, pub.keys)

	period, err := svc.GetMembership(context.Background(), "m1")
	require.NoError(t, err)
	assert.True(t, period.Active)
	assert.Equal(t, 1, period.ContinuousTenureUnits)
	assert.Equal(t, "staff-1", period.LastRenewedByStaffID)
	assert.True(t, period.ExpirationDate.Equal(rec.PeriodEnd))

	member, err := store.GetMember(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Role{domain.RoleMember}, member.Roles)
}

func TestRenew_StacksOntoEntitledPeriod(t *testing.T) {
	start := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: start}
	svc := newMembership(repository.NewMemoryStore(), clock, nil)
	ctx := context.Background()

	first, err := svc.Renew(ctx, renewInput("m1", domain.PlanMonthly))
	require.NoError(t, err)

	clock.Advance(10 * 24 * time.Hour)
	second, err := svc.Renew(ctx, renewInput("m1", domain.PlanMonthly))
	require.NoError(t, err)

	assert.True(t, second.PeriodStart.Equal(first.PeriodEnd), "renewal starts at the prior expiration")
	assert.True(t, second.PeriodEnd.Equal(time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)))

	period, _ := svc.GetMembership(ctx, "m1")
	assert.Equal(t, 2, period.ContinuousTenureUnits)
}

func TestRenew_LapsedStartsNowAndKeepsTenure(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: start}
	svc := newMembership(repository.NewMemoryStore(), clock, nil)
	ctx := context.Background()

	_, err := svc.Renew(ctx, renewInput("m1", domain.PlanQuarterly))
	require.NoError(t, err)

	clock.Advance(120 * 24 * time.Hour)
	now := clock.Now()
	rec, err := svc.Renew(ctx, renewInput("m1", domain.PlanWeekly))
	require.NoError(t, err)

	assert.True(t, rec.PeriodStart.Equal(now))
	assert.True(t, rec.PeriodEnd.Equal(now.AddDate(0, 0, 7)))

	period, _ := svc.GetMembership(ctx, "m1")
	assert.Equal(t, 4, period.ContinuousTenureUnits, "tenure carries across a lapse")
}

func TestRenew_WeeklyEntitledForSevenDays(t *testing.T) {
	now := time.Date(2024, 6, 3, 18, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: now}
	svc := newMembership(repository.NewMemoryStore(), clock, nil)
	ctx := context.Background()

	amount, err := domain.ParseAmount("200")
	require.NoError(t, err)
	in := renewInput("m1", domain.PlanWeekly)
	in.Amount = amount
	rec, err := svc.Renew(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), rec.Amount)

	for day := 0; day < 7; day++ {
		ok, err := svc.IsEntitled(ctx, "m1")
		require.NoError(t, err)
		assert.True(t, ok, "day %d", day+1)
		clock.Advance(24 * time.Hour)
	}

	ok, err := svc.IsEntitled(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, ok, "day 8")
}

func TestIsEntitled(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("unknown member", func(t *testing.T) {
		svc := newMembership(repository.NewMemoryStore(), &fakeClock{t: now}, nil)
		ok, err := svc.IsEntitled(ctx, "nobody")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("stale active flag is ignored", func(t *testing.T) {
		store := repository.NewMemoryStore()
		require.NoError(t, store.PutMember(ctx, &domain.Member{ID: "m1", CreatedAt: now, Membership: &domain.MembershipPeriod{
			Active: true, PlanKind: domain.PlanWeekly, StartDate: now.AddDate(0, 0, -8), ExpirationDate: now.AddDate(0, 0, -1),
		}}))
		ok, err := newMembership(store, &fakeClock{t: now}, nil).IsEntitled(ctx, "m1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("store failure is an error, not a verdict", func(t *testing.T) {
		store := &failingStore{MemoryStore: repository.NewMemoryStore(), getErr: context.DeadlineExceeded}
		ok, err := newMembership(store, &fakeClock{t: now}, nil).IsEntitled(ctx, "m1")
		assert.False(t, ok)
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	})
}

func TestRenew_StoreFailureAborts(t *testing.T) {
	store := &failingStore{
		MemoryStore: repository.NewMemoryStore(),
		commitErr:   errors.Join(domain.ErrStoreUnavailable, errors.New("connection reset")),
	}
	pub := &recordingPublisher{}
	svc := newMembership(store, &fakeClock{t: time.Now()}, pub)

	_, err := svc.Renew(context.Background(), renewInput("m1", domain.PlanMonthly))
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Empty(t, pub.keys, "nothing is published for an aborted renewal")

	history, err := svc.RenewalHistory(context.Background(), "m1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRenew_PublishFailureDoesNotFail(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newMembership(repository.NewMemoryStore(), &fakeClock{t: time.Now()}, pub)

	_, err := svc.Renew(context.Background(), renewInput("m1", domain.PlanMonthly))
	assert.NoError(t, err)
}

func TestRenew_Validation(t *testing.T) {
	svc := newMembership(repository.NewMemoryStore(), &fakeClock{t: time.Now()}, nil)

	tests := []struct {
		name    string
		mutate  func(*RenewInput)
		wantErr error
	}{
		{"missing member", func(in *RenewInput) { in.MemberID = "" }, domain.ErrMissingField},
		{"missing staff", func(in *RenewInput) { in.StaffID = "" }, domain.ErrMissingField},
		{"bad plan", func(in *RenewInput) { in.PlanKind = "daily" }, domain.ErrInvalidPlanKind},
		{"bad payment", func(in *RenewInput) { in.PaymentMethod = "barter" }, domain.ErrInvalidPaymentMethod},
		{"negative amount", func(in *RenewInput) { in.Amount = -1 }, domain.ErrInvalidAmount},
		{"bad currency", func(in *RenewInput) { in.Currency = "PESOS" }, domain.ErrInvalidCurrency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := renewInput("m1", domain.PlanMonthly)
			tt.mutate(&in)
			_, err := svc.Renew(context.Background(), in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRenewalHistory_NewestFirst(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	svc := newMembership(repository.NewMemoryStore(), clock, nil)
	ctx := context.Background()

	_, err := svc.Renew(ctx, renewInput("m1", domain.PlanWeekly))
	require.NoError(t, err)
	clock.Advance(time.Hour)
	second, err := svc.Renew(ctx, renewInput("m1", domain.PlanAnnual))
	require.NoError(t, err)

	history, err := svc.RenewalHistory(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
}

func TestExpireLapsed(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	svc := newMembership(repository.NewMemoryStore(), clock, nil)
	ctx := context.Background()

	_, err := svc.Renew(ctx, renewInput("m1", domain.PlanWeekly))
	require.NoError(t, err)

	n, err := svc.ExpireLapsed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	clock.Advance(8 * 24 * time.Hour)
	n, err = svc.ExpireLapsed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	period, _ := svc.GetMembership(ctx, "m1")
	assert.False(t, period.Active)
}
