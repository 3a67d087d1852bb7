package recurrence

import (
	"testing"
	"time"

	"github.com/Veraticus/the-bills-must-flow/internal/calendar"
	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func obligation(f model.Frequency, ref time.Time, amount float64) *model.Obligation {
	return &model.Obligation{
		ID:            "obl-1",
		Frequency:     f,
		ReferenceDate: ref,
		Amount:        amount,
		IsActive:      true,
	}
}

func window(t *testing.T, g model.Granularity, on time.Time) model.PeriodWindow {
	t.Helper()
	w, err := calendar.WindowFor(g, on)
	require.NoError(t, err)
	return w
}

func TestCompute_BiweeklySalaryInJanuary(t *testing.T) {
	o := obligation(model.FrequencyBiweekly, date(2025, 1, 3), 2000)

	got, err := Compute(o, window(t, model.GranularityMonthly, date(2025, 1, 1)))
	require.NoError(t, err)

	assert.Equal(t, []time.Time{date(2025, 1, 3), date(2025, 1, 17), date(2025, 1, 31)}, got.DueDates)
	assert.Equal(t, 3, got.Count)
	assert.InDelta(t, 6000.0, got.TotalExpectedAmount, 0.001)
}

func TestCompute_MonthEndClampsIntoFebruary(t *testing.T) {
	tests := []struct {
		ref  time.Time
		feb  time.Time
		want time.Time
		name string
	}{
		{name: "non-leap", ref: date(2025, 1, 31), feb: date(2025, 2, 1), want: date(2025, 2, 28)},
		{name: "leap", ref: date(2024, 1, 31), feb: date(2024, 2, 1), want: date(2024, 2, 29)},
		{name: "reference after window", ref: date(2025, 8, 31), feb: date(2025, 2, 1), want: date(2025, 2, 28)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := obligation(model.FrequencyMonthly, tt.ref, -100)
			got, err := Compute(o, window(t, model.GranularityMonthly, tt.feb))
			require.NoError(t, err)
			require.Equal(t, 1, got.Count)
			assert.Equal(t, tt.want, got.DueDates[0])
			assert.InDelta(t, 100.0, got.TotalExpectedAmount, 0.001)
		})
	}
}

func TestCompute_MonthlyClampDoesNotDrift(t *testing.T) {
	o := obligation(model.FrequencyMonthly, date(2025, 1, 31), 100)

	got, err := Between(o, date(2025, 1, 1), date(2025, 5, 31))
	require.NoError(t, err)

	assert.Equal(t, []time.Time{
		date(2025, 1, 31), date(2025, 2, 28), date(2025, 3, 31), date(2025, 4, 30), date(2025, 5, 31),
	}, got)
}

func TestCompute_WeeklyInMonthlyWindowYieldsFourOrFive(t *testing.T) {
	jan := window(t, model.GranularityMonthly, date(2025, 1, 1))
	for offset := 0; offset < 7; offset++ {
		o := obligation(model.FrequencyWeekly, date(2024, 6, 3).AddDate(0, 0, offset), 50)

		got, err := Compute(o, jan)
		require.NoError(t, err)

		first := got.DueDates[0].Day()
		if first <= 3 {
			assert.Equal(t, 5, got.Count, "first occurrence on day %d", first)
		} else {
			assert.Equal(t, 4, got.Count, "first occurrence on day %d", first)
		}
	}
}

func TestCompute_MonthlyCanMissSubMonthlyWindow(t *testing.T) {
	o := obligation(model.FrequencyMonthly, date(2025, 1, 20), 80)

	got, err := Compute(o, window(t, model.GranularityWeekly, date(2025, 1, 6)))
	require.NoError(t, err)
	assert.Zero(t, got.Count)
	assert.Empty(t, got.DueDates)
	assert.Zero(t, got.TotalExpectedAmount)

	got, err = Compute(o, window(t, model.GranularityBiMonthly, date(2025, 1, 1)))
	require.NoError(t, err)
	assert.Zero(t, got.Count)

	got, err = Compute(o, window(t, model.GranularityBiMonthly, date(2025, 1, 16)))
	require.NoError(t, err)
	assert.Equal(t, 1, got.Count)
}

func TestCompute_SemimonthlyInBiMonthlyWindows(t *testing.T) {
	o := obligation(model.FrequencySemimonthly, date(2025, 1, 1), 500)
	windows, err := calendar.Partition(model.GranularityBiMonthly, date(2025, 1, 1), date(2025, 12, 31))
	require.NoError(t, err)

	for _, w := range windows {
		got, err := Compute(o, w)
		require.NoError(t, err)
		assert.LessOrEqual(t, got.Count, 2, w.ID)
		if w.Days() >= 15 {
			assert.GreaterOrEqual(t, got.Count, 1, w.ID)
		}
	}
}

func TestCompute_QuarterlyAndAnnual(t *testing.T) {
	q := obligation(model.FrequencyQuarterly, date(2025, 1, 31), 300)
	got, err := Between(q, date(2025, 1, 1), date(2025, 12, 31))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(2025, 1, 31), date(2025, 4, 30), date(2025, 7, 31), date(2025, 10, 31)}, got)

	a := obligation(model.FrequencyAnnual, date(2024, 2, 29), 1200)
	got, err = Between(a, date(2025, 1, 1), date(2028, 12, 31))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{date(2025, 2, 28), date(2026, 2, 28), date(2027, 2, 28), date(2028, 2, 29)}, got)
}

func TestCompute_InactiveObligationHasNoOccurrences(t *testing.T) {
	o := obligation(model.FrequencyWeekly, date(2025, 1, 1), 10)
	o.IsActive = false

	got, err := Compute(o, window(t, model.GranularityMonthly, date(2025, 1, 1)))
	require.NoError(t, err)
	assert.Equal(t, Result{}, got)
}

func TestCompute_InvalidObligation(t *testing.T) {
	jan := model.PeriodWindow{ID: "monthly:2025-01", Start: date(2025, 1, 1), End: date(2025, 1, 31)}

	missingFrequency := obligation("", date(2025, 1, 1), 10)
	_, err := Compute(missingFrequency, jan)
	require.ErrorIs(t, err, common.ErrInvalidObligation)

	unknownFrequency := obligation("fortnightly", date(2025, 1, 1), 10)
	_, err = Compute(unknownFrequency, jan)
	require.ErrorIs(t, err, common.ErrInvalidObligation)

	missingReference := obligation(model.FrequencyMonthly, time.Time{}, 10)
	_, err = Compute(missingReference, jan)
	require.ErrorIs(t, err, common.ErrInvalidObligation)

	_, err = Compute(nil, jan)
	require.ErrorIs(t, err, common.ErrInvalidObligation)
}

func TestCompute_DatesStrictlyIncreasingForEveryFrequency(t *testing.T) {
	windows, err := calendar.PartitionAll(date(2024, 1, 1), date(2025, 12, 31))
	require.NoError(t, err)

	for _, f := range model.Frequencies {
		o := obligation(f, date(2023, 5, 31), 42)
		for _, ws := range windows {
			for _, w := range ws {
				got, err := Compute(o, w)
				require.NoError(t, err)
				assert.Equal(t, got.Count, len(got.DueDates))
				for i, d := range got.DueDates {
					assert.True(t, w.Contains(d), "%s: %s outside %s", f, d, w.ID)
					if i > 0 {
						assert.True(t, d.After(got.DueDates[i-1]))
					}
				}
			}
		}
	}
}

func TestNearest(t *testing.T) {
	o := obligation(model.FrequencyMonthly, date(2025, 1, 15), 100)

	got, err := Nearest(o, date(2025, 3, 2))
	require.NoError(t, err)
	assert.Equal(t, date(2025, 3, 15), got)

	got, err = Nearest(o, date(2025, 2, 2))
	require.NoError(t, err)
	assert.Equal(t, date(2025, 2, 15), got)
}

func TestSuperseded(t *testing.T) {
	tests := []struct {
		name string
		o    *model.Obligation
		paid []time.Time
		want []time.Time
	}{
		{
			name: "nothing paid",
			o:    obligation(model.FrequencyMonthly, date(2025, 1, 30), 100),
		},
		{
			name: "monthly reference moved to the end of the month",
			o:    obligation(model.FrequencyMonthly, date(2025, 1, 30), 100),
			paid: []time.Time{date(2025, 1, 1), date(2025, 2, 1)},
			want: []time.Time{date(2024, 12, 30), date(2025, 1, 30)},
		},
		{
			name: "weekly payment half a week away",
			o:    obligation(model.FrequencyWeekly, date(2025, 1, 6), 50),
			paid: []time.Time{date(2025, 1, 9)},
			want: []time.Time{date(2025, 1, 6)},
		},
		{
			name: "two payments near one due date supersede it once",
			o:    obligation(model.FrequencyMonthly, date(2025, 1, 15), 100),
			paid: []time.Time{date(2025, 1, 16), date(2025, 1, 14)},
			want: []time.Time{date(2025, 1, 15)},
		},
		{
			name: "annual payment more than half a year away",
			o:    obligation(model.FrequencyAnnual, date(2025, 1, 1), 600),
			paid: []time.Time{date(2025, 7, 2)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Superseded(tt.o, tt.paid)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHalfInterval(t *testing.T) {
	assert.Equal(t, 3, HalfInterval(model.FrequencyWeekly))
	assert.Equal(t, 7, HalfInterval(model.FrequencyBiweekly))
	assert.Equal(t, 15, HalfInterval(model.FrequencyMonthly))
	assert.Equal(t, 180, HalfInterval(model.FrequencyAnnual))
}
