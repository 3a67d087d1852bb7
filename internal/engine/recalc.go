package engine

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/Veraticus/the-bills-must-flow/internal/calendar"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
	"github.com/Veraticus/the-bills-must-flow/internal/recurrence"
)

// changes summarizes an obligation edit.
type changes struct {
	added    []string
	removed  []string
	rename   bool
	amount   bool
	schedule bool
}

func (c changes) any() bool {
	return c.rename || c.amount || c.schedule || len(c.added) > 0 || len(c.removed) > 0
}

// diffObligation compares two versions of an obligation. Without a previous
// version everything is treated as changed.
func diffObligation(prev, cur *model.Obligation) changes {
	if prev == nil {
		return changes{
			added:    append([]string(nil), cur.TransactionIDs...),
			rename:   true,
			amount:   true,
			schedule: true,
		}
	}

	c := changes{
		rename: prev.DisplayName() != cur.DisplayName(),
		amount: prev.AmountPerOccurrence() != cur.AmountPerOccurrence(),
		schedule: prev.Frequency != cur.Frequency ||
			!calendar.Day(prev.ReferenceDate).Equal(calendar.Day(cur.ReferenceDate)) ||
			prev.IsActive != cur.IsActive ||
			prev.Direction != cur.Direction,
	}
	c.added, c.removed = diffIDs(prev.TransactionIDs, cur.TransactionIDs)
	return c
}

// recalculate applies an obligation edit to every record of g. Paid
// occurrences are history: they keep their due date and amount, and a
// schedule change re-projects only the unpaid occurrences around them. Every
// view derives the new occurrences from the same paid due dates, so the views
// stay in agreement. Records with no payment take the new amount.
// Transactions in txns are matched once the records are current.
func (e *Engine) recalculate(ctx context.Context, o *model.Obligation, g model.Granularity, ch changes, txns []model.Transaction, now time.Time) (GranularityResult, error) {
	res := GranularityResult{Granularity: g}
	if !ch.any() {
		return res, nil
	}

	b, err := e.loadAll(ctx, o, g)
	if err != nil {
		return res, err
	}

	for _, id := range ch.removed {
		changed := e.matcher.Release(id, b.records, now)
		if len(changed) > 0 {
			res.Released++
		}
		b.replace(changed)
	}

	var superseded []time.Time
	if ch.schedule {
		paid := paidDueDates(b.records)
		if len(paid) > 0 {
			// Windows near a payment may hold a due date it supersedes.
			half := recurrence.HalfInterval(o.Frequency)
			if err := e.extend(ctx, b, o, paid[0].AddDate(0, 0, -half), paid[len(paid)-1].AddDate(0, 0, half), now); err != nil {
				return res, err
			}
		}
		if superseded, err = recurrence.Superseded(o, paid); err != nil {
			return res, err
		}
	}
	if len(txns) > 0 {
		start, end := span(txns, e.cfg.Matcher.AnyToleranceDays)
		if err := e.extend(ctx, b, o, start, end, now); err != nil {
			return res, err
		}
	}

	for _, r := range b.records {
		if ch.rename {
			r.ObligationName = o.DisplayName()
		}
		if ch.schedule {
			occ, err := recurrence.Compute(o, r.Window())
			if err != nil {
				return res, err
			}
			r.Reproject(without(occ.DueDates, superseded))
		}
		if r.IsSettled() {
			continue
		}
		if ch.schedule {
			r.IsActive = o.IsActive
			r.Direction = o.Direction
		}
		if ch.amount {
			r.AmountPerOccurrence = o.AmountPerOccurrence()
		}
	}

	// Totals and status are derived; refresh them everywhere so records
	// whose due dates passed since the last write pick up the new status.
	for _, r := range b.records {
		r.RecomputeTotals()
		e.status.Apply(r, now)
	}

	if len(txns) > 0 {
		e.match(ctx, b, txns, now, &res)
	}

	if res.Written, err = e.commit(ctx, b); err != nil {
		return res, err
	}
	return res, nil
}

// paidDueDates returns the due dates of every paid occurrence in records,
// oldest first.
func paidDueDates(records []*model.PeriodRecord) []time.Time {
	var out []time.Time
	for _, r := range records {
		for i, paid := range r.OccurrencePaidFlags {
			if paid {
				out = append(out, r.OccurrenceDueDates[i])
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// without returns dates minus every date in drop.
func without(dates, drop []time.Time) []time.Time {
	if len(drop) == 0 {
		return dates
	}
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		if !slices.ContainsFunc(drop, d.Equal) {
			out = append(out, d)
		}
	}
	return out
}
