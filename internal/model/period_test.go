package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(m time.Month, d int) time.Time {
	return time.Date(2025, m, d, 0, 0, 0, 0, time.UTC)
}

func newRecord(dir Direction, perOccurrence float64, due ...time.Time) *PeriodRecord {
	r := &PeriodRecord{
		ObligationID:        "obl",
		WindowID:            "monthly:2025-01",
		Granularity:         GranularityMonthly,
		Direction:           dir,
		WindowStart:         day(time.January, 1),
		WindowEnd:           day(time.January, 31),
		AmountPerOccurrence: perOccurrence,
		IsActive:            true,
	}
	r.SetOccurrences(due)
	return r
}

func pay(r *PeriodRecord, i int, txnID string, amount float64, pt PaymentType) {
	r.OccurrencePaidFlags[i] = true
	r.OccurrenceTransactionIDs[i] = txnID
	r.OccurrenceAmounts[i] = amount
	r.OccurrencePaymentTypes[i] = pt
}

func TestPeriodWindow(t *testing.T) {
	w := PeriodWindow{ID: "weekly:2024-12-30", Granularity: GranularityWeekly, Start: day(time.January, 6), End: day(time.January, 12)}

	assert.Equal(t, 7, w.Days())
	assert.True(t, w.Contains(day(time.January, 6)))
	assert.True(t, w.Contains(day(time.January, 12).Add(23*time.Hour)))
	assert.False(t, w.Contains(day(time.January, 13)))
	assert.True(t, w.Overlaps(day(time.January, 1), day(time.January, 6)))
	assert.False(t, w.Overlaps(day(time.January, 13), day(time.January, 20)))
}

func TestRecomputeTotals(t *testing.T) {
	tests := []struct {
		setup         func(r *PeriodRecord)
		name          string
		dir           Direction
		wantPaid      float64
		wantUnpaid    float64
		wantOverpaid  float64
		wantFullyPaid bool
		wantPartial   bool
	}{
		{
			name:       "nothing paid",
			dir:        DirectionOutflow,
			setup:      func(*PeriodRecord) {},
			wantUnpaid: 200,
		},
		{
			name:        "one of two paid",
			dir:         DirectionOutflow,
			setup:       func(r *PeriodRecord) { pay(r, 0, "t1", 100, PaymentTypeRegular) },
			wantPaid:    100,
			wantUnpaid:  100,
			wantPartial: true,
		},
		{
			name: "both paid with overpayment",
			dir:  DirectionOutflow,
			setup: func(r *PeriodRecord) {
				pay(r, 0, "t1", 100, PaymentTypeRegular)
				pay(r, 1, "t2", 150.25, PaymentTypeRegular)
			},
			wantPaid:      250.25,
			wantOverpaid:  50.25,
			wantFullyPaid: true,
		},
		{
			name:          "single large bill payment covers the amount due",
			dir:           DirectionOutflow,
			setup:         func(r *PeriodRecord) { pay(r, 0, "t1", 200, PaymentTypeRegular) },
			wantPaid:      200,
			wantFullyPaid: true,
		},
		{
			name:         "extra principal does not satisfy the amount",
			dir:          DirectionOutflow,
			setup:        func(r *PeriodRecord) { pay(r, 0, "t1", 300, PaymentTypeExtraPrincipal) },
			wantPaid:     300,
			wantOverpaid: 100,
			wantPartial:  true,
		},
		{
			name: "every occurrence underpaid",
			dir:  DirectionOutflow,
			setup: func(r *PeriodRecord) {
				pay(r, 0, "t1", 40, PaymentTypeRegular)
				pay(r, 1, "t2", 40, PaymentTypeRegular)
			},
			wantPaid:    80,
			wantUnpaid:  120,
			wantPartial: true,
		},
		{
			name: "every occurrence paid as extra principal",
			dir:  DirectionOutflow,
			setup: func(r *PeriodRecord) {
				pay(r, 0, "t1", 500, PaymentTypeExtraPrincipal)
				pay(r, 1, "t2", 500, PaymentTypeExtraPrincipal)
			},
			wantPaid:     1000,
			wantOverpaid: 800,
			wantPartial:  true,
		},
		{
			name: "income underpaid on every occurrence is complete",
			dir:  DirectionInflow,
			setup: func(r *PeriodRecord) {
				pay(r, 0, "t1", 90, PaymentTypeRegular)
				pay(r, 1, "t2", 90, PaymentTypeRegular)
			},
			wantPaid:      180,
			wantUnpaid:    20,
			wantFullyPaid: true,
		},
		{
			name:         "income needs every occurrence",
			dir:          DirectionInflow,
			setup:        func(r *PeriodRecord) { pay(r, 0, "t1", 300, PaymentTypeRegular) },
			wantPaid:     300,
			wantOverpaid: 100,
			wantPartial:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRecord(tt.dir, 100, day(time.January, 10), day(time.January, 24))
			tt.setup(r)
			r.RecomputeTotals()

			assert.Equal(t, 2, r.OccurrenceCount)
			assert.InDelta(t, 200.0, r.TotalAmountDue, 0.001)
			assert.InDelta(t, tt.wantPaid, r.TotalAmountPaid, 0.001)
			assert.InDelta(t, tt.wantUnpaid, r.TotalAmountUnpaid, 0.001)
			assert.InDelta(t, tt.wantOverpaid, r.TotalAmountOverpaid, 0.001)
			assert.Equal(t, tt.wantFullyPaid, r.IsFullyPaid)
			assert.Equal(t, tt.wantPartial, r.IsPartiallyPaid)
			assert.InDelta(t, r.TotalAmountDue+r.TotalAmountOverpaid, r.TotalAmountPaid+r.TotalAmountUnpaid, 0.001)
			assert.InDelta(t, 200.0/31, r.DailyRate, 0.0001)
		})
	}
}

func TestRecomputeTotals_EmptyWindow(t *testing.T) {
	r := newRecord(DirectionOutflow, 100)
	r.RecomputeTotals()

	assert.Equal(t, 0, r.OccurrenceCount)
	assert.Zero(t, r.TotalAmountDue)
	assert.False(t, r.IsFullyPaid)
	assert.False(t, r.IsPartiallyPaid)
	assert.Zero(t, r.DailyRate)
}

func TestPeriodRecordValidate(t *testing.T) {
	valid := newRecord(DirectionOutflow, 100, day(time.January, 10), day(time.January, 24))
	pay(valid, 1, "t1", 100, PaymentTypeRegular)
	require.NoError(t, valid.Validate())

	tests := []struct {
		corrupt func(r *PeriodRecord)
		name    string
	}{
		{name: "count mismatch", corrupt: func(r *PeriodRecord) { r.OccurrenceCount = 3 }},
		{name: "misaligned arrays", corrupt: func(r *PeriodRecord) { r.OccurrenceAmounts = r.OccurrenceAmounts[:1] }},
		{name: "paid without transaction", corrupt: func(r *PeriodRecord) { r.OccurrencePaidFlags[0] = true }},
		{name: "transaction without paid flag", corrupt: func(r *PeriodRecord) { r.OccurrencePaidFlags[1] = false }},
		{name: "unsorted due dates", corrupt: func(r *PeriodRecord) {
			r.OccurrenceDueDates[0], r.OccurrenceDueDates[1] = r.OccurrenceDueDates[1], r.OccurrenceDueDates[0]
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid.Clone()
			tt.corrupt(r)
			assert.Error(t, r.Validate())
		})
	}
}

func TestClearOccurrenceAndClone(t *testing.T) {
	r := newRecord(DirectionOutflow, 100, day(time.January, 10))
	pay(r, 0, "t1", 100, PaymentTypeAdvance)
	r.TransactionIDs = []string{"t1"}

	c := r.Clone()
	c.ClearOccurrence(0)

	assert.True(t, r.References("t1"))
	assert.False(t, c.References("t1"))
	assert.False(t, c.OccurrencePaidFlags[0])
	assert.Empty(t, c.OccurrencePaymentTypes[0])
	assert.Zero(t, c.OccurrenceAmounts[0])
	assert.NoError(t, c.Validate())
}

func TestReproject(t *testing.T) {
	r := newRecord(DirectionOutflow, 100, day(time.January, 1), day(time.January, 15), day(time.January, 29))
	pay(r, 0, "t1", 100, PaymentTypeRegular)
	pay(r, 2, "t2", 100, PaymentTypeCatchUp)
	r.TransactionIDs = []string{"t1", "t2"}

	r.Reproject([]time.Time{day(time.January, 20), day(time.January, 29)})
	r.RecomputeTotals()

	require.NoError(t, r.Validate())
	assert.Equal(t, []time.Time{day(time.January, 1), day(time.January, 20), day(time.January, 29)}, r.OccurrenceDueDates)
	assert.Equal(t, []bool{true, false, true}, r.OccurrencePaidFlags)
	assert.Equal(t, []string{"t1", "", "t2"}, r.OccurrenceTransactionIDs)
	assert.Equal(t, []PaymentType{PaymentTypeRegular, "", PaymentTypeCatchUp}, r.OccurrencePaymentTypes)
	assert.Equal(t, []string{"t1", "t2"}, r.TransactionIDs)
	assert.InDelta(t, 300, r.TotalAmountDue, 0.001)
	assert.InDelta(t, 100, r.TotalAmountUnpaid, 0.001)
}

func TestReproject_Unpaid(t *testing.T) {
	r := newRecord(DirectionOutflow, 100, day(time.January, 1))

	r.Reproject([]time.Time{day(time.January, 30)})
	require.NoError(t, r.Validate())
	assert.Equal(t, []time.Time{day(time.January, 30)}, r.OccurrenceDueDates)

	r.Reproject(nil)
	require.NoError(t, r.Validate())
	assert.Zero(t, r.OccurrenceCount)
}
