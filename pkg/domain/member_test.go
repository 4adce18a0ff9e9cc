package domain

import (
	"errors"
	"testing"
	"time"
)

func TestMembershipPeriod_IsEntitled(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		period *MembershipPeriod
		want   bool
	}{
		{name: "nil period", period: nil, want: false},
		{
			name:   "active and unexpired",
			period: &MembershipPeriod{Active: true, ExpirationDate: now.Add(time.Hour)},
			want:   true,
		},
		{
			name:   "active flag stale after expiration",
			period: &MembershipPeriod{Active: true, ExpirationDate: now.Add(-time.Second)},
			want:   false,
		},
		{
			name:   "expires exactly now",
			period: &MembershipPeriod{Active: true, ExpirationDate: now},
			want:   false,
		},
		{
			name:   "inactive but unexpired",
			period: &MembershipPeriod{Active: false, ExpirationDate: now.Add(time.Hour)},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.period.IsEntitled(now); got != tt.want {
				t.Errorf("IsEntitled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMember_Validate(t *testing.T) {
	now := time.Now()
	valid := &MembershipPeriod{
		Active:         true,
		PlanKind:       PlanMonthly,
		StartDate:      now,
		ExpirationDate: now.AddDate(0, 1, 0),
	}

	tests := []struct {
		name    string
		member  Member
		wantErr error
	}{
		{
			name:   "valid without membership",
			member: Member{ID: "m1", CreatedAt: now},
		},
		{
			name:   "valid with membership",
			member: Member{ID: "m1", CreatedAt: now, Membership: valid},
		},
		{
			name:    "missing id",
			member:  Member{CreatedAt: now},
			wantErr: ErrMissingField,
		},
		{
			name: "unknown plan",
			member: Member{ID: "m1", CreatedAt: now, Membership: &MembershipPeriod{
				PlanKind: "daily", StartDate: now, ExpirationDate: now.Add(time.Hour),
			}},
			wantErr: ErrInvalidPlanKind,
		},
		{
			name: "missing expiration",
			member: Member{ID: "m1", CreatedAt: now, Membership: &MembershipPeriod{
				PlanKind: PlanWeekly, StartDate: now,
			}},
			wantErr: ErrMissingField,
		},
		{
			name: "expiration before start",
			member: Member{ID: "m1", CreatedAt: now, Membership: &MembershipPeriod{
				PlanKind: PlanWeekly, StartDate: now, ExpirationDate: now.Add(-time.Hour),
			}},
			wantErr: ErrInvalidRecord,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.member.Validate()
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseRoles(t *testing.T) {
	tests := []struct {
		name string
		raw  []string
		want []Role
	}{
		{name: "absent roles default to member", raw: nil, want: []Role{RoleMember}},
		{name: "unknown roles dropped", raw: []string{"owner"}, want: []Role{RoleMember}},
		{name: "staff kept", raw: []string{"Staff", "member"}, want: []Role{RoleStaff, RoleMember}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRoles(tt.raw)
			if len(got) != len(tt.want) {
				t.Fatalf("ParseRoles() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ParseRoles()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "200", want: 20000},
		{in: "199.5", want: 19950},
		{in: "199.99", want: 19999},
		{in: ".5", want: 50},
		{in: "0", want: 0},
		{in: "-1", wantErr: true},
		{in: "1.234", wantErr: true},
		{in: "1.", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
		{in: "1.-5", wantErr: true},
		{in: "1.+5", wantErr: true},
		{in: "1.-", wantErr: true},
		{in: "1 .50", wantErr: true},
		{in: "1e3", wantErr: true},
		{in: "1_000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Errorf("ParseAmount(%q) error = %v, want ErrInvalidAmount", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseAmount(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
			}
		})
	}

	if s := FormatAmount(19950); s != "199.50" {
		t.Errorf("FormatAmount() = %q", s)
	}
}

func TestNormalizeCurrency(t *testing.T) {
	if c, _ := NormalizeCurrency(""); c != "MXN" {
		t.Errorf("empty currency = %q, want MXN", c)
	}
	if c, _ := NormalizeCurrency("usd"); c != "USD" {
		t.Errorf("usd = %q, want USD", c)
	}
	if _, err := NormalizeCurrency("US1"); !errors.Is(err, ErrInvalidCurrency) {
		t.Errorf("US1 error = %v", err)
	}
}

func TestCleanStaffName(t *testing.T) {
	if got := CleanStaffName("  Ana\x07 López \n"); got != "Ana López" {
		t.Errorf("CleanStaffName() = %q", got)
	}
}
