package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-bills-must-flow/internal/calendar"
	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
	"github.com/Veraticus/the-bills-must-flow/internal/service"
)

// GetPeriodStatus returns the record of an obligation in one window with its
// status derived as of now. A window missing from the catalog has no
// occurrences and yields an empty record. A catalogued window without a
// stored record is projected but not persisted.
func (e *Engine) GetPeriodStatus(ctx context.Context, obligationID, windowID string) (*model.PeriodRecord, error) {
	o, err := e.loadObligation(ctx, obligationID)
	if err != nil {
		return nil, err
	}
	now := e.now()

	w, err := e.store.GetWindow(ctx, windowID)
	if errors.Is(err, common.ErrWindowNotFound) {
		common.Logger(ctx).Debug("Window not in catalog", "window_id", windowID)
		r := &model.PeriodRecord{
			ObligationID:        o.ID,
			WindowID:            windowID,
			ObligationName:      o.DisplayName(),
			Direction:           o.Direction,
			AmountPerOccurrence: o.AmountPerOccurrence(),
			IsActive:            o.IsActive,
		}
		e.status.Apply(r, now)
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load window %s: %w", windowID, err)
	}

	stored, err := e.store.GetPeriodRecord(ctx, model.RecordKey{ObligationID: o.ID, WindowID: w.ID})
	if errors.Is(err, common.ErrNotFound) {
		return e.project(o, *w, now)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}

	r := stored.Clone()
	e.status.Apply(r, now)
	return r, nil
}

// GetSummary rolls up the records of the summary granularity whose windows
// overlap rng. An empty obligationIDs summarizes every obligation.
func (e *Engine) GetSummary(ctx context.Context, obligationIDs []string, rng service.DateRange) (*service.Summary, error) {
	if rng.End.Before(rng.Start) {
		return nil, fmt.Errorf("summary range ends before it starts")
	}

	obligations, err := e.summaryObligations(ctx, obligationIDs)
	if err != nil {
		return nil, err
	}

	now := e.now()
	start, end := calendar.Day(rng.Start), calendar.Day(rng.End)
	filter := service.RecordFilter{
		Granularity: e.cfg.SummaryGranularity,
		Start:       &start,
		End:         &end,
	}

	type rollup struct {
		expected, paid decimal.Decimal
		count          int
	}
	var expected, paid, unpaid decimal.Decimal
	byCategory := make(map[string]*rollup)
	summary := &service.Summary{}

	for _, o := range obligations {
		records, err := e.store.ListPeriodRecords(ctx, o.ID, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to list records of %s: %w", o.ID, err)
		}

		name, err := e.categories.Name(ctx, o.CategoryID, now)
		if err != nil {
			return nil, err
		}
		cat, ok := byCategory[name]
		if !ok {
			cat = &rollup{}
			byCategory[name] = cat
		}
		cat.count++

		for _, r := range records {
			due := decimal.NewFromFloat(r.TotalAmountDue)
			got := decimal.NewFromFloat(r.TotalAmountPaid)
			expected = expected.Add(due)
			paid = paid.Add(got)
			unpaid = unpaid.Add(decimal.NewFromFloat(r.TotalAmountUnpaid))
			cat.expected = cat.expected.Add(due)
			cat.paid = cat.paid.Add(got)
			summary.PendingCount += r.OccurrenceCount - r.PaidCount()
			summary.RecordCount++
		}
	}

	summary.Expected = expected.Round(2).InexactFloat64()
	summary.Paid = paid.Round(2).InexactFloat64()
	summary.Unpaid = unpaid.Round(2).InexactFloat64()
	summary.ByCategory = make(map[string]service.CategorySummary, len(byCategory))
	for name, cat := range byCategory {
		summary.ByCategory[name] = service.CategorySummary{
			Count:    cat.count,
			Expected: cat.expected.Round(2).InexactFloat64(),
			Paid:     cat.paid.Round(2).InexactFloat64(),
		}
	}
	return summary, nil
}

func (e *Engine) summaryObligations(ctx context.Context, ids []string) ([]model.Obligation, error) {
	if len(ids) == 0 {
		obligations, err := e.store.ListObligations(ctx, false)
		if err != nil {
			return nil, fmt.Errorf("failed to list obligations: %w", err)
		}
		return obligations, nil
	}

	obligations := make([]model.Obligation, 0, len(ids))
	for _, id := range ids {
		o, err := e.store.GetObligation(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load obligation %s: %w", id, err)
		}
		obligations = append(obligations, *o)
	}
	return obligations, nil
}

// TriViewReport compares what each granularity says was paid over a range.
type TriViewReport struct {
	Paid         map[model.Granularity]float64
	Periods      map[model.Granularity]int
	ObligationID string
	Tolerance    float64
	Consistent   bool
}

// Spread is the difference between the largest and smallest paid sum.
func (r *TriViewReport) Spread() float64 {
	var lo, hi decimal.Decimal
	first := true
	for _, g := range model.Granularities {
		v := decimal.NewFromFloat(r.Paid[g])
		if first || v.LessThan(lo) {
			lo = v
		}
		if first || v.GreaterThan(hi) {
			hi = v
		}
		first = false
	}
	return hi.Sub(lo).Round(2).InexactFloat64()
}

// VerifyTriView sums the paid occurrences of one obligation whose due dates
// fall in rng, once per granularity. The views agree when the sums are
// within a cent per period of the finest granularity.
func (e *Engine) VerifyTriView(ctx context.Context, obligationID string, rng service.DateRange) (*TriViewReport, error) {
	start, end := calendar.Day(rng.Start), calendar.Day(rng.End)
	if end.Before(start) {
		return nil, fmt.Errorf("verification range ends before it starts")
	}

	report := &TriViewReport{
		ObligationID: obligationID,
		Paid:         make(map[model.Granularity]float64, len(model.Granularities)),
		Periods:      make(map[model.Granularity]int, len(model.Granularities)),
	}

	maxPeriods := 0
	for _, g := range model.Granularities {
		records, err := e.store.ListPeriodRecords(ctx, obligationID, service.RecordFilter{
			Granularity: g,
			Start:       &start,
			End:         &end,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list %s records: %w", g, err)
		}

		var sum decimal.Decimal
		for _, r := range records {
			for i, paid := range r.OccurrencePaidFlags {
				due := calendar.Day(r.OccurrenceDueDates[i])
				if paid && !due.Before(start) && !due.After(end) {
					sum = sum.Add(decimal.NewFromFloat(r.OccurrenceAmounts[i]))
				}
			}
		}
		report.Paid[g] = sum.Round(2).InexactFloat64()
		report.Periods[g] = len(records)
		if len(records) > maxPeriods {
			maxPeriods = len(records)
		}
	}

	report.Tolerance = decimal.NewFromFloat(0.01).Mul(decimal.NewFromInt(int64(maxPeriods))).InexactFloat64()
	report.Consistent = report.Spread() <= report.Tolerance

	if !report.Consistent {
		common.Logger(ctx).Warn("Granularities disagree on paid amount",
			"obligation_id", obligationID,
			"spread", report.Spread(),
			"tolerance", report.Tolerance)
	}
	return report, nil
}

// Mismatched lists granularities whose paid sum differs from the monthly view.
func (r *TriViewReport) Mismatched() []model.Granularity {
	var out []model.Granularity
	base := decimal.NewFromFloat(r.Paid[model.GranularityMonthly])
	for g, v := range r.Paid {
		if !decimal.NewFromFloat(v).Equal(base) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
