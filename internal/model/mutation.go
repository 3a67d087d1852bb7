package model

import (
	"reflect"
	"sort"
	"time"
)

// RecordField names a mutable field of a PeriodRecord.
type RecordField string

// Period record fields tracked for change detection.
const (
	FieldOccurrenceDueDates       RecordField = "occurrence_due_dates"
	FieldOccurrencePaidFlags      RecordField = "occurrence_paid_flags"
	FieldOccurrenceTransactionIDs RecordField = "occurrence_transaction_ids"
	FieldOccurrenceAmounts        RecordField = "occurrence_amounts"
	FieldOccurrencePaymentTypes   RecordField = "occurrence_payment_types"
	FieldOccurrenceCount          RecordField = "occurrence_count"
	FieldTransactionIDs           RecordField = "transaction_ids"
	FieldTransactionSplits        RecordField = "transaction_splits"
	FieldObligationName           RecordField = "obligation_name"
	FieldAmountPerOccurrence      RecordField = "amount_per_occurrence"
	FieldTotals                   RecordField = "totals"
	FieldDailyRate                RecordField = "daily_rate"
	FieldStatus                   RecordField = "status"
	FieldFlags                    RecordField = "flags"
	FieldIsActive                 RecordField = "is_active"
	FieldUpdatedAt                RecordField = "updated_at"
)

// EngineOwnedFields are written only by the reconciliation engine. A change
// confined to these fields is internally originated and must not re-trigger
// matching.
var EngineOwnedFields = map[RecordField]bool{
	FieldOccurrenceDueDates:       true,
	FieldOccurrencePaidFlags:      true,
	FieldOccurrenceTransactionIDs: true,
	FieldOccurrenceAmounts:        true,
	FieldOccurrencePaymentTypes:   true,
	FieldOccurrenceCount:          true,
	FieldTransactionIDs:           true,
	FieldObligationName:           true,
	FieldAmountPerOccurrence:      true,
	FieldTotals:                   true,
	FieldDailyRate:                true,
	FieldStatus:                   true,
	FieldFlags:                    true,
	FieldIsActive:                 true,
	FieldUpdatedAt:                true,
}

// MutationOrigin records who produced a record mutation.
type MutationOrigin string

const (
	// OriginEngine marks writes produced by the reconciliation engine.
	OriginEngine MutationOrigin = "engine"
	// OriginExternal marks writes made by any other collaborator.
	OriginExternal MutationOrigin = "external"
)

// RecordMutation is one write in an atomic batch. ExpectedVersion is the
// version the writer read; zero means the record must not exist yet.
type RecordMutation struct {
	Record          *PeriodRecord
	Origin          MutationOrigin
	Changed         []RecordField
	ExpectedVersion int64
}

// DiffPeriodRecords returns the fields that differ between before and after,
// sorted by name. A nil before means every populated field changed.
func DiffPeriodRecords(before, after *PeriodRecord) []RecordField {
	if before == nil {
		before = &PeriodRecord{}
	}
	var changed []RecordField
	check := func(field RecordField, a, b any) {
		if !reflect.DeepEqual(a, b) {
			changed = append(changed, field)
		}
	}

	check(FieldOccurrenceDueDates, normalizeTimes(before.OccurrenceDueDates), normalizeTimes(after.OccurrenceDueDates))
	check(FieldOccurrencePaidFlags, emptyNil(before.OccurrencePaidFlags), emptyNil(after.OccurrencePaidFlags))
	check(FieldOccurrenceTransactionIDs, emptyNil(before.OccurrenceTransactionIDs), emptyNil(after.OccurrenceTransactionIDs))
	check(FieldOccurrenceAmounts, emptyNil(before.OccurrenceAmounts), emptyNil(after.OccurrenceAmounts))
	check(FieldOccurrencePaymentTypes, emptyNil(before.OccurrencePaymentTypes), emptyNil(after.OccurrencePaymentTypes))
	check(FieldOccurrenceCount, before.OccurrenceCount, after.OccurrenceCount)
	check(FieldTransactionIDs, emptyNil(before.TransactionIDs), emptyNil(after.TransactionIDs))
	check(FieldTransactionSplits, emptyNil(before.TransactionSplits), emptyNil(after.TransactionSplits))
	check(FieldObligationName, before.ObligationName, after.ObligationName)
	check(FieldAmountPerOccurrence, before.AmountPerOccurrence, after.AmountPerOccurrence)
	check(FieldTotals,
		[4]float64{before.TotalAmountDue, before.TotalAmountPaid, before.TotalAmountUnpaid, before.TotalAmountOverpaid},
		[4]float64{after.TotalAmountDue, after.TotalAmountPaid, after.TotalAmountUnpaid, after.TotalAmountOverpaid})
	check(FieldDailyRate, before.DailyRate, after.DailyRate)
	check(FieldStatus, before.Status, after.Status)
	check(FieldFlags, [2]bool{before.IsFullyPaid, before.IsPartiallyPaid}, [2]bool{after.IsFullyPaid, after.IsPartiallyPaid})
	check(FieldIsActive, before.IsActive, after.IsActive)
	if !before.UpdatedAt.Equal(after.UpdatedAt) {
		changed = append(changed, FieldUpdatedAt)
	}

	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })
	return changed
}

// OnlyEngineOwned reports whether every changed field is engine-owned.
func OnlyEngineOwned(changed []RecordField) bool {
	for _, f := range changed {
		if !EngineOwnedFields[f] {
			return false
		}
	}
	return true
}

func normalizeTimes(ts []time.Time) []int64 {
	if len(ts) == 0 {
		return nil
	}
	out := make([]int64, len(ts))
	for i, t := range ts {
		out[i] = t.Unix()
	}
	return out
}

func emptyNil[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	return s
}
