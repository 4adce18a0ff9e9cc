package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/gymkeeper/pkg/domain"
)

func TestConfig_DSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 5433, User: "gym", Password: "p@ss word", DBName: "gymkeeper", SSLMode: "disable"}
	assert.Equal(t, "postgres://gym:p%40ss%20word@db:5433/gymkeeper?sslmode=disable", cfg.DSN())
}

func TestDecodeMember(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		wantErr   bool
		wantRoles []domain.Role
	}{
		{
			name:      "absent roles default to member",
			doc:       `{"id":"m1","created_at":"2024-01-01T00:00:00Z"}`,
			wantRoles: []domain.Role{domain.RoleMember},
		},
		{
			name:      "explicit roles kept",
			doc:       `{"id":"m1","roles":["staff"],"created_at":"2024-01-01T00:00:00Z"}`,
			wantRoles: []domain.Role{domain.RoleStaff},
		},
		{
			name:    "not json",
			doc:     `{"id":`,
			wantErr: true,
		},
		{
			name:    "missing created_at",
			doc:     `{"id":"m1"}`,
			wantErr: true,
		},
		{
			name:    "membership without expiration",
			doc:     `{"id":"m1","created_at":"2024-01-01T00:00:00Z","membership":{"active":true,"plan_kind":"monthly","start_date":"2024-01-01T00:00:00Z"}}`,
			wantErr: true,
		},
		{
			name:    "unknown plan",
			doc:     `{"id":"m1","created_at":"2024-01-01T00:00:00Z","membership":{"active":true,"plan_kind":"daily","start_date":"2024-01-01T00:00:00Z","expiration_date":"2024-01-02T00:00:00Z"}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := decodeMember("m1", []byte(tt.doc))
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidRecord)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRoles, m.Roles)
		})
	}
}

// testDB connects to TEST_DATABASE_URL or skips.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("Skipping repository test - requires TEST_DATABASE_URL")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db))
	_, err = db.ExecContext(ctx, `TRUNCATE members, renewals, attendance_events, occupancy`)
	require.NoError(t, err)
	return db
}

func TestMembersRepository_Postgres(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewMembersRepository(db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	member := &domain.Member{
		ID:        "m1",
		CreatedAt: now,
		UpdatedAt: now,
		Membership: &domain.MembershipPeriod{
			Active: true, PlanKind: domain.PlanWeekly, StartDate: now.Add(-8 * 24 * time.Hour), ExpirationDate: now.Add(-time.Hour),
		},
	}
	record := &domain.RenewalRecord{
		ID: uuid.New(), MemberID: "m1", StaffID: "s1", PaymentMethod: domain.PaymentCash,
		Amount: 20000, Currency: "MXN", PlanKind: domain.PlanWeekly,
		PeriodStart: member.Membership.StartDate, PeriodEnd: member.Membership.ExpirationDate, Timestamp: now,
	}
	require.NoError(t, repo.CommitRenewal(ctx, member, record))

	got, err := repo.GetMember(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.PlanWeekly, got.Membership.PlanKind)

	records, err := repo.ListRenewals(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(20000), records[0].Amount)

	n, err := repo.ExpireLapsed(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOccupancyRepository_Postgres(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewOccupancyRepository(db)
	now := time.Now()

	st, err := repo.ApplyDelta(ctx, "main", -1, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Count)

	st, err = repo.ApplyDelta(ctx, "main", 1, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Count)
	assert.Equal(t, int64(2), st.Version)

	st, err = repo.SetOccupancy(ctx, "main", 5, now)
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Count)

	got, err := repo.GetOccupancy(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, st.Count, got.Count)
}
