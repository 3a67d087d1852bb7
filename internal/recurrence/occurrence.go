// Package recurrence computes when a recurring obligation falls due inside a
// calendar window.
package recurrence

import (
	"fmt"
	"sort"
	"time"

	"github.com/Veraticus/the-bills-must-flow/internal/calendar"
	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// Result describes the occurrences of an obligation inside one window.
type Result struct {
	DueDates            []time.Time
	Count               int
	TotalExpectedAmount float64
}

// interval is the distance between consecutive occurrences. Exactly one of
// days or months is set.
type interval struct {
	days   int
	months int
}

func intervalFor(f model.Frequency) (interval, bool) {
	switch f {
	case model.FrequencyWeekly:
		return interval{days: 7}, true
	case model.FrequencyBiweekly:
		return interval{days: 14}, true
	case model.FrequencySemimonthly:
		return interval{days: 15}, true
	case model.FrequencyMonthly:
		return interval{months: 1}, true
	case model.FrequencyQuarterly:
		return interval{months: 3}, true
	case model.FrequencyAnnual:
		return interval{months: 12}, true
	}
	return interval{}, false
}

// Validate reports ErrInvalidObligation when the obligation cannot be
// projected. Callers must not substitute defaults for missing fields.
func Validate(o *model.Obligation) error {
	if o == nil {
		return fmt.Errorf("%w: nil obligation", common.ErrInvalidObligation)
	}
	if o.Frequency == "" {
		return fmt.Errorf("%w: obligation %s has no frequency", common.ErrInvalidObligation, o.ID)
	}
	if _, ok := intervalFor(o.Frequency); !ok {
		return fmt.Errorf("%w: obligation %s has unknown frequency %q", common.ErrInvalidObligation, o.ID, o.Frequency)
	}
	if o.ReferenceDate.IsZero() {
		return fmt.Errorf("%w: obligation %s has no reference date", common.ErrInvalidObligation, o.ID)
	}
	return nil
}

// Compute returns the occurrences of o inside window w. Inactive obligations
// have no occurrences.
func Compute(o *model.Obligation, w model.PeriodWindow) (Result, error) {
	if o != nil && !o.IsActive {
		return Result{}, nil
	}
	dates, err := Between(o, w.Start, w.End)
	if err != nil {
		return Result{}, err
	}
	return Result{
		DueDates:            dates,
		Count:               len(dates),
		TotalExpectedAmount: float64(len(dates)) * o.AmountPerOccurrence(),
	}, nil
}

// Between returns every due date of o in [start, end], both inclusive, in
// strictly increasing order. The active flag is ignored.
func Between(o *model.Obligation, start, end time.Time) ([]time.Time, error) {
	if err := Validate(o); err != nil {
		return nil, err
	}
	start, end = calendar.Day(start), calendar.Day(end)
	if end.Before(start) {
		return nil, nil
	}

	step, _ := intervalFor(o.Frequency)
	ref := calendar.Day(o.ReferenceDate)
	at := func(k int) time.Time {
		if step.days > 0 {
			return ref.AddDate(0, 0, k*step.days)
		}
		return calendar.AddMonthsClamped(ref, k*step.months, ref.Day())
	}

	k := estimate(ref, start, step)
	for !at(k).Before(start) {
		k--
	}
	for at(k).Before(start) {
		k++
	}

	var dates []time.Time
	for d := at(k); !d.After(end); d = at(k) {
		dates = append(dates, d)
		k++
	}
	return dates, nil
}

// estimate jumps close to start so distant reference dates do not require
// stepping through every intervening occurrence.
func estimate(ref, start time.Time, step interval) int {
	if step.days > 0 {
		return calendar.DaysBetween(ref, start) / step.days
	}
	months := (start.Year()-ref.Year())*12 + int(start.Month()) - int(ref.Month())
	return months / step.months
}

// Nearest returns the due date of o closest to t, preferring the earlier
// date on ties.
func Nearest(o *model.Obligation, t time.Time) (time.Time, error) {
	t = calendar.Day(t)
	dates, err := Between(o, t.AddDate(-1, 0, -1), t.AddDate(1, 0, 1))
	if err != nil {
		return time.Time{}, err
	}
	var best time.Time
	bestDist := -1
	for _, d := range dates {
		dist := abs(calendar.DaysBetween(t, d))
		if bestDist < 0 || dist < bestDist {
			best, bestDist = d, dist
		}
	}
	return best, nil
}

// HalfInterval returns half the distance between occurrences of f, in days.
// Month-based frequencies count thirty days per month.
func HalfInterval(f model.Frequency) int {
	step, _ := intervalFor(f)
	if step.days > 0 {
		return step.days / 2
	}
	return step.months * 30 / 2
}

// Superseded returns the due dates of o already accounted for by payments
// made on paid, which are due dates of an earlier schedule. Each paid date
// supersedes the due date of o nearest to it, provided the two are no more
// than half an interval apart. The result is sorted and has no duplicates.
func Superseded(o *model.Obligation, paid []time.Time) ([]time.Time, error) {
	if len(paid) == 0 {
		return nil, nil
	}
	half := HalfInterval(o.Frequency)
	seen := make(map[string]bool, len(paid))
	var out []time.Time
	for _, p := range paid {
		n, err := Nearest(o, p)
		if err != nil {
			return nil, err
		}
		if n.IsZero() || abs(calendar.DaysBetween(p, n)) > half {
			continue
		}
		key := n.Format(calendar.DateLayout)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
