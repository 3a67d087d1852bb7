package model

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Granularity identifies one of the three overlapping calendar partitions.
type Granularity string

// Supported granularities.
const (
	GranularityMonthly   Granularity = "monthly"
	GranularityWeekly    Granularity = "weekly"
	GranularityBiMonthly Granularity = "bimonthly"
)

// Granularities lists the partitions every obligation is projected into.
var Granularities = []Granularity{
	GranularityMonthly,
	GranularityWeekly,
	GranularityBiMonthly,
}

// IsValid reports whether g is a known granularity.
func (g Granularity) IsValid() bool {
	switch g {
	case GranularityMonthly, GranularityWeekly, GranularityBiMonthly:
		return true
	}
	return false
}

// PeriodWindow is an immutable calendar range [Start, End], both days inclusive.
type PeriodWindow struct {
	Start       time.Time
	End         time.Time
	ID          string
	Granularity Granularity
}

// Contains reports whether the calendar day of t falls inside the window.
func (w PeriodWindow) Contains(t time.Time) bool {
	d := truncateDay(t)
	return !d.Before(w.Start) && !d.After(w.End)
}

// Overlaps reports whether the window shares at least one day with [start, end].
func (w PeriodWindow) Overlaps(start, end time.Time) bool {
	return !truncateDay(start).After(w.End) && !truncateDay(end).Before(w.Start)
}

// Days is the number of calendar days covered by the window.
func (w PeriodWindow) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RecordKey identifies a period record.
type RecordKey struct {
	ObligationID string
	WindowID     string
}

func (k RecordKey) String() string {
	return k.ObligationID + "/" + k.WindowID
}

// PeriodRecord is the materialized occurrence and payment state of one
// obligation inside one window. The Occurrence* slices are index-aligned.
// An empty OccurrenceTransactionIDs entry means the occurrence is unpaid.
type PeriodRecord struct {
	WindowStart              time.Time
	WindowEnd                time.Time
	UpdatedAt                time.Time
	ObligationID             string
	WindowID                 string
	ObligationName           string
	Granularity              Granularity
	Direction                Direction
	Status                   PaymentStatus
	OccurrenceDueDates       []time.Time
	OccurrencePaidFlags      []bool
	OccurrenceTransactionIDs []string
	OccurrenceAmounts        []float64
	OccurrencePaymentTypes   []PaymentType
	TransactionIDs           []string
	TransactionSplits        []string
	AmountPerOccurrence      float64
	TotalAmountDue           float64
	TotalAmountPaid          float64
	TotalAmountUnpaid        float64
	TotalAmountOverpaid      float64
	DailyRate                float64
	OccurrenceCount          int
	Version                  int64
	IsActive                 bool
	IsFullyPaid              bool
	IsPartiallyPaid          bool
}

// Key returns the record's identity.
func (r *PeriodRecord) Key() RecordKey {
	return RecordKey{ObligationID: r.ObligationID, WindowID: r.WindowID}
}

// Window reconstructs the window the record was derived for.
func (r *PeriodRecord) Window() PeriodWindow {
	return PeriodWindow{
		ID:          r.WindowID,
		Granularity: r.Granularity,
		Start:       r.WindowStart,
		End:         r.WindowEnd,
	}
}

// PaidCount is the number of occurrences that carry a transaction.
func (r *PeriodRecord) PaidCount() int {
	n := 0
	for _, paid := range r.OccurrencePaidFlags {
		if paid {
			n++
		}
	}
	return n
}

// PaidExcludingExtra sums paid amounts, skipping extra-principal payments.
// Extra principal never counts toward satisfying the amount due.
func (r *PeriodRecord) PaidExcludingExtra() float64 {
	total := 0.0
	for i, paid := range r.OccurrencePaidFlags {
		if paid && r.OccurrencePaymentTypes[i] != PaymentTypeExtraPrincipal {
			total += r.OccurrenceAmounts[i]
		}
	}
	return roundCents(total)
}

// IsSettled reports whether any occurrence has been paid. Settled records
// keep their historical amounts when the obligation amount changes.
func (r *PeriodRecord) IsSettled() bool {
	return r.PaidCount() > 0
}

// References reports whether the transaction is attached to any occurrence.
func (r *PeriodRecord) References(txnID string) bool {
	for _, id := range r.OccurrenceTransactionIDs {
		if id == txnID {
			return true
		}
	}
	return false
}

// SetOccurrences replaces the occurrence arrays with unpaid slots for dueDates.
func (r *PeriodRecord) SetOccurrences(dueDates []time.Time) {
	n := len(dueDates)
	r.OccurrenceCount = n
	r.OccurrenceDueDates = append([]time.Time(nil), dueDates...)
	r.OccurrencePaidFlags = make([]bool, n)
	r.OccurrenceTransactionIDs = make([]string, n)
	r.OccurrenceAmounts = make([]float64, n)
	r.OccurrencePaymentTypes = make([]PaymentType, n)
}

// Reproject replaces the unpaid occurrences of r with unpaid slots for
// dueDates. Paid occurrences keep their due date and payment, and a due date
// already held by a paid occurrence is not added twice.
func (r *PeriodRecord) Reproject(dueDates []time.Time) {
	type slot struct {
		due    time.Time
		txnID  string
		amount float64
		kind   PaymentType
		paid   bool
	}

	var slots []slot
	held := make(map[int64]bool)
	for i, paid := range r.OccurrencePaidFlags {
		if !paid {
			continue
		}
		slots = append(slots, slot{
			due:    r.OccurrenceDueDates[i],
			txnID:  r.OccurrenceTransactionIDs[i],
			amount: r.OccurrenceAmounts[i],
			kind:   r.OccurrencePaymentTypes[i],
			paid:   true,
		})
		held[r.OccurrenceDueDates[i].Unix()] = true
	}
	for _, d := range dueDates {
		if !held[d.Unix()] {
			slots = append(slots, slot{due: d})
		}
	}
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].due.Before(slots[j].due) })

	r.OccurrenceCount = len(slots)
	r.OccurrenceDueDates = make([]time.Time, 0, len(slots))
	r.OccurrencePaidFlags = make([]bool, 0, len(slots))
	r.OccurrenceTransactionIDs = make([]string, 0, len(slots))
	r.OccurrenceAmounts = make([]float64, 0, len(slots))
	r.OccurrencePaymentTypes = make([]PaymentType, 0, len(slots))
	for _, s := range slots {
		r.OccurrenceDueDates = append(r.OccurrenceDueDates, s.due)
		r.OccurrencePaidFlags = append(r.OccurrencePaidFlags, s.paid)
		r.OccurrenceTransactionIDs = append(r.OccurrenceTransactionIDs, s.txnID)
		r.OccurrenceAmounts = append(r.OccurrenceAmounts, s.amount)
		r.OccurrencePaymentTypes = append(r.OccurrencePaymentTypes, s.kind)
	}
}

// ClearOccurrence returns slot i to the unpaid state.
func (r *PeriodRecord) ClearOccurrence(i int) {
	r.OccurrencePaidFlags[i] = false
	r.OccurrenceTransactionIDs[i] = ""
	r.OccurrenceAmounts[i] = 0
	r.OccurrencePaymentTypes[i] = ""
}

// RecomputeTotals re-derives every total and flag from the occurrence arrays.
// It never applies deltas, so running it repeatedly is safe.
func (r *PeriodRecord) RecomputeTotals() {
	r.OccurrenceCount = len(r.OccurrenceDueDates)
	r.TotalAmountDue = roundCents(float64(r.OccurrenceCount) * r.AmountPerOccurrence)

	paid := 0.0
	for i, isPaid := range r.OccurrencePaidFlags {
		if isPaid {
			paid += r.OccurrenceAmounts[i]
		}
	}
	r.TotalAmountPaid = roundCents(paid)
	r.TotalAmountUnpaid = roundCents(math.Max(0, r.TotalAmountDue-r.TotalAmountPaid))
	r.TotalAmountOverpaid = roundCents(math.Max(0, r.TotalAmountPaid-r.TotalAmountDue))

	r.IsFullyPaid = r.Satisfied()
	r.IsPartiallyPaid = !r.IsFullyPaid && r.PaidCount() > 0

	if days := r.Window().Days(); days > 0 {
		r.DailyRate = r.TotalAmountDue / float64(days)
	}
}

// Satisfied reports whether the record is owed nothing further. Income
// completes once every occurrence is received. A bill completes once the
// paid amount, excluding extra principal, covers the amount due, however
// many occurrences carried it.
func (r *PeriodRecord) Satisfied() bool {
	if r.OccurrenceCount == 0 {
		return false
	}
	if r.Direction == DirectionOutflow && r.TotalAmountDue > 0 {
		return r.PaidExcludingExtra() >= r.TotalAmountDue
	}
	return r.PaidCount() == r.OccurrenceCount
}

// Validate checks the structural invariants of the record.
func (r *PeriodRecord) Validate() error {
	n := len(r.OccurrenceDueDates)
	if r.OccurrenceCount != n {
		return fmt.Errorf("record %s: occurrence count %d does not match %d due dates", r.Key(), r.OccurrenceCount, n)
	}
	if len(r.OccurrencePaidFlags) != n || len(r.OccurrenceTransactionIDs) != n ||
		len(r.OccurrenceAmounts) != n || len(r.OccurrencePaymentTypes) != n {
		return fmt.Errorf("record %s: occurrence arrays are not index-aligned", r.Key())
	}
	for i := range r.OccurrencePaidFlags {
		if r.OccurrencePaidFlags[i] != (r.OccurrenceTransactionIDs[i] != "") {
			return fmt.Errorf("record %s: occurrence %d paid flag disagrees with transaction id", r.Key(), i)
		}
	}
	for i := 1; i < n; i++ {
		if !r.OccurrenceDueDates[i].After(r.OccurrenceDueDates[i-1]) {
			return fmt.Errorf("record %s: due dates are not strictly increasing", r.Key())
		}
	}
	return nil
}

// Clone returns a deep copy of the record.
func (r *PeriodRecord) Clone() *PeriodRecord {
	c := *r
	c.OccurrenceDueDates = append([]time.Time(nil), r.OccurrenceDueDates...)
	c.OccurrencePaidFlags = append([]bool(nil), r.OccurrencePaidFlags...)
	c.OccurrenceTransactionIDs = append([]string(nil), r.OccurrenceTransactionIDs...)
	c.OccurrenceAmounts = append([]float64(nil), r.OccurrenceAmounts...)
	c.OccurrencePaymentTypes = append([]PaymentType(nil), r.OccurrencePaymentTypes...)
	c.TransactionIDs = append([]string(nil), r.TransactionIDs...)
	c.TransactionSplits = append([]string(nil), r.TransactionSplits...)
	return &c
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
