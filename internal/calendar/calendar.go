// Package calendar partitions time into the monthly, weekly and bi-monthly
// windows that period records are projected into.
package calendar

import (
	"fmt"
	"time"

	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// DateLayout is the canonical civil date format.
const DateLayout = "2006-01-02"

// Day truncates t to its calendar day at UTC midnight. All engine date
// arithmetic is performed on civil days.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a civil day.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// DaysBetween returns the signed number of days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonthsClamped moves anchor by months calendar months, placing the result
// on anchorDay or on the last day of the target month when it is shorter.
func AddMonthsClamped(anchor time.Time, months, anchorDay int) time.Time {
	first := time.Date(anchor.Year(), anchor.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	day := anchorDay
	if last := DaysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// WindowFor returns the window of granularity g containing t.
func WindowFor(g model.Granularity, t time.Time) (model.PeriodWindow, error) {
	d := Day(t)
	switch g {
	case model.GranularityMonthly:
		start := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
		return model.PeriodWindow{
			ID:          fmt.Sprintf("monthly:%s", start.Format("2006-01")),
			Granularity: g,
			Start:       start,
			End:         start.AddDate(0, 1, -1),
		}, nil
	case model.GranularityWeekly:
		offset := (int(d.Weekday()) + 6) % 7
		start := d.AddDate(0, 0, -offset)
		return model.PeriodWindow{
			ID:          fmt.Sprintf("weekly:%s", start.Format(DateLayout)),
			Granularity: g,
			Start:       start,
			End:         start.AddDate(0, 0, 6),
		}, nil
	case model.GranularityBiMonthly:
		if d.Day() <= 15 {
			start := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
			return model.PeriodWindow{
				ID:          fmt.Sprintf("bimonthly:%s-1", start.Format("2006-01")),
				Granularity: g,
				Start:       start,
				End:         start.AddDate(0, 0, 14),
			}, nil
		}
		start := time.Date(d.Year(), d.Month(), 16, 0, 0, 0, 0, time.UTC)
		return model.PeriodWindow{
			ID:          fmt.Sprintf("bimonthly:%s-2", start.Format("2006-01")),
			Granularity: g,
			Start:       start,
			End:         time.Date(d.Year(), d.Month(), DaysIn(d.Year(), d.Month()), 0, 0, 0, 0, time.UTC),
		}, nil
	}
	return model.PeriodWindow{}, fmt.Errorf("unknown granularity %q", g)
}

// Partition returns every window of granularity g overlapping [from, to], in
// chronological order. Windows of one granularity never overlap each other.
func Partition(g model.Granularity, from, to time.Time) ([]model.PeriodWindow, error) {
	from, to = Day(from), Day(to)
	if to.Before(from) {
		return nil, fmt.Errorf("end date %s is before start date %s", to.Format(DateLayout), from.Format(DateLayout))
	}

	var windows []model.PeriodWindow
	cursor := from
	for !cursor.After(to) {
		w, err := WindowFor(g, cursor)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
		cursor = w.End.AddDate(0, 0, 1)
	}
	return windows, nil
}

// PartitionAll partitions [from, to] for every granularity.
func PartitionAll(from, to time.Time) (map[model.Granularity][]model.PeriodWindow, error) {
	out := make(map[model.Granularity][]model.PeriodWindow, len(model.Granularities))
	for _, g := range model.Granularities {
		windows, err := Partition(g, from, to)
		if err != nil {
			return nil, err
		}
		out[g] = windows
	}
	return out, nil
}
