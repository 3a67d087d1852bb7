package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-bills-must-flow/internal/calendar"
	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
	"github.com/Veraticus/the-bills-must-flow/internal/service"
)

func saveYearWindows(t *testing.T, s *SQLiteStorage) {
	t.Helper()
	byGranularity, err := calendar.PartitionAll(day(2025, 1, 1), day(2025, 12, 31))
	require.NoError(t, err)
	for _, windows := range byGranularity {
		require.NoError(t, s.SaveWindows(context.Background(), windows))
	}
}

func januaryRecord(obligationID string) *model.PeriodRecord {
	r := &model.PeriodRecord{
		ObligationID:        obligationID,
		WindowID:            "monthly:2025-01",
		Granularity:         model.GranularityMonthly,
		WindowStart:         day(2025, 1, 1),
		WindowEnd:           day(2025, 1, 31),
		ObligationName:      "Gym",
		Direction:           model.DirectionOutflow,
		AmountPerOccurrence: 25,
		IsActive:            true,
	}
	r.SetOccurrences([]time.Time{day(2025, 1, 6), day(2025, 1, 20)})
	r.OccurrencePaidFlags[0] = true
	r.OccurrenceTransactionIDs[0] = "txn-01"
	r.OccurrenceAmounts[0] = 25
	r.OccurrencePaymentTypes[0] = model.PaymentTypeRegular
	r.TransactionIDs = []string{"txn-01"}
	r.RecomputeTotals()
	r.Status = model.StatusPartial
	return r
}

func TestCommitAtomic_RoundTrip(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	saveYearWindows(t, store)

	r := januaryRecord("gym")
	require.NoError(t, store.CommitAtomic(ctx, []model.RecordMutation{{Record: r, Origin: model.OriginEngine}}))
	assert.Equal(t, int64(1), r.Version)

	got, err := store.GetPeriodRecord(ctx, r.Key())
	require.NoError(t, err)

	assert.Equal(t, r.Key(), got.Key())
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, model.StatusPartial, got.Status)
	assert.Equal(t, r.OccurrenceDueDates, got.OccurrenceDueDates)
	assert.Equal(t, r.OccurrencePaidFlags, got.OccurrencePaidFlags)
	assert.Equal(t, r.OccurrenceTransactionIDs, got.OccurrenceTransactionIDs)
	assert.Equal(t, r.OccurrenceAmounts, got.OccurrenceAmounts)
	assert.Equal(t, r.OccurrencePaymentTypes, got.OccurrencePaymentTypes)
	assert.Equal(t, r.TransactionIDs, got.TransactionIDs)
	assert.Nil(t, got.TransactionSplits)
	assert.True(t, got.WindowStart.Equal(r.WindowStart))
	assert.True(t, got.WindowEnd.Equal(r.WindowEnd))
	assert.InDelta(t, 50.0, got.TotalAmountDue, 0.001)
	assert.InDelta(t, 25.0, got.TotalAmountPaid, 0.001)
	assert.True(t, got.IsPartiallyPaid)
	assert.NoError(t, got.Validate())
	assert.Empty(t, model.DiffPeriodRecords(r, got))
}

func TestCommitAtomic_VersionConflict(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	saveYearWindows(t, store)

	r := januaryRecord("gym")
	require.NoError(t, store.CommitAtomic(ctx, []model.RecordMutation{{Record: r}}))

	// A writer that read version 1 succeeds and moves it to 2.
	first := r.Clone()
	first.ObligationName = "Gym membership"
	require.NoError(t, store.CommitAtomic(ctx, []model.RecordMutation{{Record: first, ExpectedVersion: 1}}))

	// A second writer that also read version 1 is rejected.
	stale := r.Clone()
	stale.ObligationName = "Stale"
	err := store.CommitAtomic(ctx, []model.RecordMutation{{Record: stale, ExpectedVersion: 1}})
	require.ErrorIs(t, err, common.ErrCommitConflict)
	assert.True(t, common.IsRetryable(err))

	got, err := store.GetPeriodRecord(ctx, r.Key())
	require.NoError(t, err)
	assert.Equal(t, "Gym membership", got.ObligationName)
	assert.Equal(t, int64(2), got.Version)

	// Creating a record that already exists is also a conflict.
	err = store.CommitAtomic(ctx, []model.RecordMutation{{Record: januaryRecord("gym")}})
	assert.ErrorIs(t, err, common.ErrCommitConflict)
}

func TestCommitAtomic_AllOrNothing(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	saveYearWindows(t, store)

	existing := januaryRecord("gym")
	require.NoError(t, store.CommitAtomic(ctx, []model.RecordMutation{{Record: existing}}))

	fresh := januaryRecord("rent")
	stale := januaryRecord("gym")
	err := store.CommitAtomic(ctx, []model.RecordMutation{
		{Record: fresh},
		{Record: stale, ExpectedVersion: 0},
	})
	require.ErrorIs(t, err, common.ErrCommitConflict)

	_, err = store.GetPeriodRecord(ctx, fresh.Key())
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, int64(0), fresh.Version)
}

func TestCommitAtomic_RejectsInvalidRecord(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	saveYearWindows(t, store)

	r := januaryRecord("gym")
	r.OccurrencePaidFlags[1] = true

	err := store.CommitAtomic(ctx, []model.RecordMutation{{Record: r}})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	err = store.CommitAtomic(ctx, []model.RecordMutation{{}})
	assert.ErrorIs(t, err, ErrNilParameter)

	assert.NoError(t, store.CommitAtomic(ctx, nil))
}

func TestListPeriodRecords(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	saveYearWindows(t, store)

	var mutations []model.RecordMutation
	for _, obligationID := range []string{"gym", "rent"} {
		for _, id := range []string{"monthly:2025-01", "monthly:2025-02", "weekly:2025-01-06"} {
			w, err := store.GetWindow(ctx, id)
			require.NoError(t, err)
			r := &model.PeriodRecord{
				ObligationID: obligationID,
				WindowID:     w.ID,
				Granularity:  w.Granularity,
				WindowStart:  w.Start,
				WindowEnd:    w.End,
				Direction:    model.DirectionOutflow,
				Status:       model.StatusPending,
				IsActive:     true,
			}
			r.SetOccurrences(nil)
			mutations = append(mutations, model.RecordMutation{Record: r})
		}
	}
	require.NoError(t, store.CommitAtomic(ctx, mutations))

	all, err := store.ListPeriodRecords(ctx, "", service.RecordFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 6)

	gym, err := store.ListPeriodRecords(ctx, "gym", service.RecordFilter{Granularity: model.GranularityMonthly})
	require.NoError(t, err)
	require.Len(t, gym, 2)
	assert.Equal(t, "monthly:2025-01", gym[0].WindowID)
	assert.Equal(t, "monthly:2025-02", gym[1].WindowID)

	start, end := day(2025, 2, 3), day(2025, 2, 9)
	feb, err := store.ListPeriodRecords(ctx, "rent", service.RecordFilter{Start: &start, End: &end})
	require.NoError(t, err)
	require.Len(t, feb, 1)
	assert.Equal(t, "monthly:2025-02", feb[0].WindowID)
}

func TestWindows(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	saveYearWindows(t, store)

	// Saving the same windows again is harmless.
	saveYearWindows(t, store)

	w, err := store.GetWindow(ctx, "bimonthly:2025-02-2")
	require.NoError(t, err)
	assert.Equal(t, model.GranularityBiMonthly, w.Granularity)
	assert.True(t, w.Start.Equal(day(2025, 2, 16)))
	assert.True(t, w.End.Equal(day(2025, 2, 28)))

	_, err = store.GetWindow(ctx, "monthly:1999-01")
	assert.ErrorIs(t, err, common.ErrWindowNotFound)

	weeks, err := store.OverlappingWindows(ctx, day(2025, 1, 1), day(2025, 1, 14), model.GranularityWeekly)
	require.NoError(t, err)
	require.Len(t, weeks, 3)
	assert.Equal(t, "weekly:2024-12-30", weeks[0].ID)
	assert.Equal(t, "weekly:2025-01-13", weeks[2].ID)

	months, err := store.OverlappingWindows(ctx, day(2025, 1, 31), day(2025, 2, 1), model.GranularityMonthly)
	require.NoError(t, err)
	assert.Len(t, months, 2)

	_, err = store.OverlappingWindows(ctx, day(2025, 2, 1), day(2025, 1, 1), model.GranularityMonthly)
	assert.ErrorIs(t, err, ErrInvalidDateRange)

	err = store.SaveWindows(ctx, []model.PeriodWindow{{ID: "bad", Granularity: "daily", Start: day(2025, 1, 1), End: day(2025, 1, 1)}})
	assert.ErrorIs(t, err, ErrInvalidWindow)
}
