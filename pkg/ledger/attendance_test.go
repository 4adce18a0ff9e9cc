package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/gymkeeper/pkg/domain"
	"github.com/tendant/gymkeeper/pkg/repository"
)

func newAttendance(clock domain.Clock, pub Publisher) (*AttendanceService, *repository.MemoryStore) {
	store := repository.NewMemoryStore()
	return NewAttendanceService(AttendanceConfig{Location: time.UTC}, store, pub, clock, testLogger()), store
}

func TestAttendance_RecordNeverRejectsPairing(t *testing.T) {
	clock := &fakeClock{t: at(3, 9, 0)}
	pub := &recordingPublisher{}
	svc, _ := newAttendance(clock, pub)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		e, err := svc.Record(ctx, RecordInput{MemberID: "m1", Kind: domain.AttendanceEntry, StaffID: "s1", LocationID: "main"})
		require.NoError(t, err)
		assert.Equal(t, clock.Now(), e.Timestamp)
		clock.Advance(time.Minute)
	}

	history, err := svc.History(ctx, "m1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, []string{EventAttendanceRecorded, EventAttendanceRecorded}, pub.keys)
}

func TestAttendance_RecordValidation(t *testing.T) {
	svc, _ := newAttendance(&fakeClock{t: time.Now()}, nil)

	tests := []struct {
		name    string
		in      RecordInput
		wantErr error
	}{
		{"missing member", RecordInput{Kind: domain.AttendanceEntry, StaffID: "s", LocationID: "l"}, domain.ErrMissingField},
		{"missing staff", RecordInput{MemberID: "m", Kind: domain.AttendanceEntry, LocationID: "l"}, domain.ErrMissingField},
		{"missing location", RecordInput{MemberID: "m", Kind: domain.AttendanceEntry, StaffID: "s"}, domain.ErrMissingField},
		{"bad kind", RecordInput{MemberID: "m", Kind: "visit", StaffID: "s", LocationID: "l"}, domain.ErrInvalidAttendanceKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Record(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAttendance_DaysAndStats(t *testing.T) {
	clock := &fakeClock{t: at(3, 9, 0)}
	svc, _ := newAttendance(clock, nil)
	ctx := context.Background()

	record := func(kind domain.AttendanceKind) {
		_, err := svc.Record(ctx, RecordInput{MemberID: "m1", Kind: kind, StaffID: "s1", LocationID: "main"})
		require.NoError(t, err)
	}
	record(domain.AttendanceEntry)
	clock.Advance(90 * time.Minute)
	record(domain.AttendanceExit)

	days, err := svc.Days(ctx, "m1", at(3, 0, 0), at(4, 0, 0))
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, 90*time.Minute, *days[0].Duration)

	stats, err := svc.Stats(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalVisitDays)
	assert.Equal(t, 90*time.Minute, stats.AverageDuration)
}

func TestAttendance_InsideSince(t *testing.T) {
	clock := &fakeClock{t: at(3, 8, 0)}
	svc, _ := newAttendance(clock, nil)
	ctx := context.Background()

	scan := func(member string, kind domain.AttendanceKind) {
		_, err := svc.Record(ctx, RecordInput{MemberID: member, Kind: kind, StaffID: "s1", LocationID: "main"})
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}
	scan("a", domain.AttendanceEntry)
	scan("b", domain.AttendanceEntry)
	scan("c", domain.AttendanceEntry)
	scan("b", domain.AttendanceExit)
	scan("d", domain.AttendanceExit)

	inside, err := svc.InsideSince(ctx, "main", svc.StartOfDay(clock.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(2), inside)
}
