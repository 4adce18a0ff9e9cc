package ledger

import (
	"sort"
	"time"

	"github.com/tendant/gymkeeper/pkg/domain"
)

const dateLayout = "2006-01-02"

// GroupByDay folds events into per-day visit windows keyed by local date.
// The result is ordered by date.
func GroupByDay(events []*domain.AttendanceEvent, loc *time.Location) []domain.DayAttendance {
	sorted := chronological(events)

	index := make(map[string]int)
	var days []domain.DayAttendance
	for _, e := range sorted {
		date := e.Timestamp.In(loc).Format(dateLayout)
		i, ok := index[date]
		if !ok {
			i = len(days)
			index[date] = i
			days = append(days, domain.DayAttendance{Date: date})
		}
		d := &days[i]
		switch e.Kind {
		case domain.AttendanceEntry:
			if d.CheckIn == nil {
				d.CheckIn = e
			}
		case domain.AttendanceExit:
			if d.CheckOut == nil {
				d.CheckOut = e
			}
		}
	}

	for i := range days {
		days[i].Duration = visitDuration(days[i])
	}
	return days
}

// DayAttendance returns the visit window for one local calendar date
// (YYYY-MM-DD). Check-in is the day's first entry and check-out its first
// exit.
func DayAttendance(events []*domain.AttendanceEvent, date string, loc *time.Location) domain.DayAttendance {
	for _, d := range GroupByDay(events, loc) {
		if d.Date == date {
			return d
		}
	}
	return domain.DayAttendance{Date: date}
}

// ComputeStats aggregates a member's attendance log as of now.
func ComputeStats(events []*domain.AttendanceEvent, now time.Time, loc *time.Location) domain.AttendanceStats {
	var stats domain.AttendanceStats
	days := GroupByDay(events, loc)
	stats.TotalVisitDays = len(days)

	now = now.In(loc)
	weekStart := startOfWeek(now)
	weekEnd := weekStart.AddDate(0, 0, 7)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
	monthEnd := monthStart.AddDate(0, 1, 0)

	counts := make(map[time.Weekday]int)
	var order []time.Weekday
	withDuration := 0

	for _, d := range days {
		day, err := time.ParseInLocation(dateLayout, d.Date, loc)
		if err != nil {
			continue
		}

		wd := day.Weekday()
		if counts[wd] == 0 {
			order = append(order, wd)
		}
		counts[wd]++

		if !day.Before(weekStart) && day.Before(weekEnd) {
			stats.VisitsThisWeek++
		}
		if !day.Before(monthStart) && day.Before(monthEnd) {
			stats.VisitsThisMonth++
		}
		if d.Duration != nil {
			stats.TotalDuration += *d.Duration
			withDuration++
		}
	}

	if withDuration > 0 {
		stats.AverageDuration = stats.TotalDuration / time.Duration(withDuration)
	}

	// Ties go to the weekday seen first.
	best := 0
	for _, wd := range order {
		if counts[wd] > best {
			best = counts[wd]
			w := wd
			stats.MostFrequentWeekday = &w
		}
	}
	return stats
}

// visitDuration is set only when both ends exist and the exit follows the
// entry.
func visitDuration(d domain.DayAttendance) *time.Duration {
	if d.CheckIn == nil || d.CheckOut == nil {
		return nil
	}
	dur := d.CheckOut.Timestamp.Sub(d.CheckIn.Timestamp)
	if dur <= 0 {
		return nil
	}
	return &dur
}

// startOfWeek returns local midnight of the Monday on or before t.
func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func chronological(events []*domain.AttendanceEvent) []*domain.AttendanceEvent {
	sorted := make([]*domain.AttendanceEvent, 0, len(events))
	for _, e := range events {
		if e != nil {
			sorted = append(sorted, e)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}
