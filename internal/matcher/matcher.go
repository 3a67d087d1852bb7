// Package matcher attaches transactions to the occurrence slots of period
// records and keeps the derived totals and status in step.
package matcher

import (
	"log/slog"
	"sort"
	"time"

	"github.com/Veraticus/the-bills-must-flow/internal/calendar"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
	"github.com/Veraticus/the-bills-must-flow/internal/status"
)

// Config holds the matching tolerances.
type Config struct {
	UnpaidToleranceDays     int
	AnyToleranceDays        int
	AdvanceDays             int
	ExtraPrincipalTolerance float64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		UnpaidToleranceDays:     14,
		AnyToleranceDays:        30,
		AdvanceDays:             7,
		ExtraPrincipalTolerance: 0.10,
	}
}

// Outcome describes what happened to one transaction.
type Outcome string

// Match outcomes.
const (
	// OutcomeMatched means the transaction was attached to a free slot.
	OutcomeMatched Outcome = "matched"
	// OutcomeAlreadyMatched means a record already referenced the transaction.
	OutcomeAlreadyMatched Outcome = "already_matched"
	// OutcomeSettled means the closest slot is paid by another transaction.
	// The transaction is left unassigned rather than double counted.
	OutcomeSettled Outcome = "settled"
	// OutcomeUnmatched means no occurrence lies within tolerance.
	OutcomeUnmatched Outcome = "unmatched"
)

// Assignment records the decision taken for one transaction.
type Assignment struct {
	DueDate       time.Time
	TransactionID string
	Key           model.RecordKey
	Outcome       Outcome
	PaymentType   model.PaymentType
	Index         int
	DistanceDays  int
}

// Result is the output of a matching run.
type Result struct {
	Records      []*model.PeriodRecord
	Assignments  []Assignment
	MatchedCount int
}

// Matcher assigns transactions to occurrences.
type Matcher struct {
	status *status.Engine
	cfg    Config
}

// New creates a matcher that refreshes record status with statusEngine.
func New(cfg Config, statusEngine *status.Engine) *Matcher {
	return &Matcher{cfg: cfg, status: statusEngine}
}

// Match runs the matcher against a single record and returns the updated
// copy along with the number of newly matched transactions.
func (m *Matcher) Match(transactions []model.Transaction, record *model.PeriodRecord, now time.Time) (*model.PeriodRecord, int) {
	res := m.MatchAcross(transactions, []*model.PeriodRecord{record}, now)
	return res.Records[0], res.MatchedCount
}

// slot addresses one occurrence within the records being matched.
type slot struct {
	due    time.Time
	record int
	index  int
}

// MatchAcross matches a pool of transactions against the occurrences of
// several records at once, so a transaction is always attached to the
// closest occurrence regardless of which window holds it. Inputs are not
// modified; the result holds updated copies in input order.
func (m *Matcher) MatchAcross(transactions []model.Transaction, records []*model.PeriodRecord, now time.Time) Result {
	res := Result{Records: make([]*model.PeriodRecord, len(records))}
	for i, r := range records {
		res.Records[i] = r.Clone()
	}

	var slots []slot
	for ri, r := range res.Records {
		for oi, due := range r.OccurrenceDueDates {
			slots = append(slots, slot{record: ri, index: oi, due: calendar.Day(due)})
		}
	}
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].due.Before(slots[j].due)
	})

	pool := append([]model.Transaction(nil), transactions...)
	sort.SliceStable(pool, func(i, j int) bool {
		if !pool[i].Date.Equal(pool[j].Date) {
			return pool[i].Date.Before(pool[j].Date)
		}
		return pool[i].ID < pool[j].ID
	})

	seen := make(map[string]bool, len(pool))
	for _, txn := range pool {
		if seen[txn.ID] {
			continue
		}
		seen[txn.ID] = true

		if key, ok := referencedBy(res.Records, txn.ID); ok {
			res.Assignments = append(res.Assignments, Assignment{
				TransactionID: txn.ID,
				Key:           key,
				Outcome:       OutcomeAlreadyMatched,
			})
			continue
		}

		a := m.assign(txn, res.Records, slots)
		if a.Outcome == OutcomeMatched {
			res.MatchedCount++
		}
		res.Assignments = append(res.Assignments, a)
	}

	for _, r := range res.Records {
		r.RecomputeTotals()
		m.status.Apply(r, now)
	}

	return res
}

func (m *Matcher) assign(txn model.Transaction, records []*model.PeriodRecord, slots []slot) Assignment {
	a := Assignment{TransactionID: txn.ID, Outcome: OutcomeUnmatched, Index: -1}
	day := calendar.Day(txn.Date)

	best, bestDist := -1, 0
	for i, s := range slots {
		if records[s.record].OccurrencePaidFlags[s.index] {
			continue
		}
		dist := absDays(day, s.due)
		if dist <= m.cfg.UnpaidToleranceDays && (best < 0 || dist < bestDist) {
			best, bestDist = i, dist
		}
	}

	if best < 0 {
		for i, s := range slots {
			dist := absDays(day, s.due)
			if dist <= m.cfg.AnyToleranceDays && (best < 0 || dist < bestDist) {
				best, bestDist = i, dist
			}
		}
	}

	if best < 0 {
		slog.Debug("No occurrence within tolerance",
			"transaction_id", txn.ID,
			"date", day.Format(calendar.DateLayout))
		return a
	}

	s := slots[best]
	r := records[s.record]
	a.Key = r.Key()
	a.Index = s.index
	a.DueDate = s.due
	a.DistanceDays = bestDist

	if r.OccurrencePaidFlags[s.index] {
		a.Outcome = OutcomeSettled
		slog.Warn("Closest occurrence already settled, leaving transaction unassigned",
			"transaction_id", txn.ID,
			"record", r.Key().String(),
			"due_date", s.due.Format(calendar.DateLayout),
			"paid_by", r.OccurrenceTransactionIDs[s.index])
		return a
	}

	pt := m.Classify(txn, r, s.due)
	r.OccurrencePaidFlags[s.index] = true
	r.OccurrenceTransactionIDs[s.index] = txn.ID
	r.OccurrenceAmounts[s.index] = txn.Magnitude()
	r.OccurrencePaymentTypes[s.index] = pt
	if !contains(r.TransactionIDs, txn.ID) {
		r.TransactionIDs = append(r.TransactionIDs, txn.ID)
	}

	a.Outcome = OutcomeMatched
	a.PaymentType = pt
	return a
}

// Classify tags the payment type of a transaction matched to the occurrence
// due on due. Only bills carry side-payment types; income is always regular.
// The type never influences which occurrence is chosen.
func (m *Matcher) Classify(txn model.Transaction, r *model.PeriodRecord, due time.Time) model.PaymentType {
	if r.Direction != model.DirectionOutflow {
		return model.PaymentTypeRegular
	}

	expected := r.AmountPerOccurrence
	if expected > 0 && txn.Magnitude() > expected*(1+m.cfg.ExtraPrincipalTolerance) {
		return model.PaymentTypeExtraPrincipal
	}

	day := calendar.Day(txn.Date)
	due = calendar.Day(due)
	if day.Before(due.AddDate(0, 0, -m.cfg.AdvanceDays)) {
		return model.PaymentTypeAdvance
	}
	if due.Before(day) {
		return model.PaymentTypeCatchUp
	}
	return model.PaymentTypeRegular
}

// Release detaches a transaction from every slot that references it and
// returns the records that changed, with totals and status refreshed.
func (m *Matcher) Release(txnID string, records []*model.PeriodRecord, now time.Time) []*model.PeriodRecord {
	var changed []*model.PeriodRecord
	for _, original := range records {
		if !original.References(txnID) && !contains(original.TransactionIDs, txnID) {
			continue
		}
		r := original.Clone()
		for i, id := range r.OccurrenceTransactionIDs {
			if id == txnID {
				r.ClearOccurrence(i)
			}
		}
		r.TransactionIDs = remove(r.TransactionIDs, txnID)
		r.RecomputeTotals()
		m.status.Apply(r, now)
		changed = append(changed, r)
	}
	return changed
}

// Refresh recomputes totals and status on a copy of r.
func (m *Matcher) Refresh(r *model.PeriodRecord, now time.Time) *model.PeriodRecord {
	c := r.Clone()
	c.RecomputeTotals()
	m.status.Apply(c, now)
	return c
}

func referencedBy(records []*model.PeriodRecord, txnID string) (model.RecordKey, bool) {
	for _, r := range records {
		if r.References(txnID) {
			return r.Key(), true
		}
	}
	return model.RecordKey{}, false
}

func absDays(a, b time.Time) int {
	d := calendar.DaysBetween(a, b)
	if d < 0 {
		return -d
	}
	return d
}

func contains(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
