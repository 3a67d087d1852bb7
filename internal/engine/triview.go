package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/the-bills-must-flow/internal/calendar"
	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/matcher"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
	"github.com/Veraticus/the-bills-must-flow/internal/service"
)

// addTransactions matches txns into the records of g. Every granularity is
// given the windows overlapping the same tolerance span around the
// transactions, so all three see the same candidate due dates and pick the
// same occurrence for each transaction.
func (e *Engine) addTransactions(ctx context.Context, o *model.Obligation, g model.Granularity, txns []model.Transaction, now time.Time) (GranularityResult, error) {
	res := GranularityResult{Granularity: g}
	if len(txns) == 0 {
		return res, nil
	}

	start, end := span(txns, e.cfg.Matcher.AnyToleranceDays)
	b, err := e.loadRange(ctx, o, g, start, end, now)
	if err != nil {
		return res, err
	}

	e.match(ctx, b, txns, now, &res)

	if res.Written, err = e.commit(ctx, b); err != nil {
		return res, err
	}
	return res, nil
}

// match runs the matcher over the batch and tallies the outcomes.
func (e *Engine) match(ctx context.Context, b *batch, txns []model.Transaction, now time.Time, res *GranularityResult) {
	logger := common.Logger(ctx)

	mr := e.matcher.MatchAcross(txns, b.records, now)
	b.records = mr.Records

	for _, a := range mr.Assignments {
		switch a.Outcome {
		case matcher.OutcomeMatched:
			res.Matched++
		case matcher.OutcomeSettled:
			res.Settled++
			logger.Warn("Transaction left unassigned",
				"granularity", string(b.granularity),
				"transaction_id", a.TransactionID,
				"window_id", a.Key.WindowID,
				"due_date", a.DueDate.Format(calendar.DateLayout),
				"error", common.ErrOccurrenceSettled)
		case matcher.OutcomeUnmatched:
			res.Unmatched++
			logger.Warn("Transaction left unassigned",
				"granularity", string(b.granularity),
				"transaction_id", a.TransactionID,
				"error", common.ErrNoMatchingOccurrence)
		}
	}
}

// removeTransactions detaches transactions from every record of g that
// references them.
func (e *Engine) removeTransactions(ctx context.Context, o *model.Obligation, g model.Granularity, ids []string, txns []model.Transaction, now time.Time) (GranularityResult, error) {
	res := GranularityResult{Granularity: g}

	// A transaction can only sit within tolerance of its own date, so the
	// span is enough when every transaction is still known.
	var b *batch
	var err error
	if len(txns) == len(ids) {
		start, end := span(txns, e.cfg.Matcher.AnyToleranceDays)
		b, err = e.loadStored(ctx, o, g, start, end)
	} else {
		b, err = e.loadAll(ctx, o, g)
	}
	if err != nil {
		return res, err
	}

	for _, id := range ids {
		changed := e.matcher.Release(id, b.records, now)
		if len(changed) > 0 {
			res.Released++
		}
		b.replace(changed)
	}

	if res.Written, err = e.commit(ctx, b); err != nil {
		return res, err
	}
	return res, nil
}

// loadStored reads the stored records of g overlapping [start, end] without
// projecting missing windows.
func (e *Engine) loadStored(ctx context.Context, o *model.Obligation, g model.Granularity, start, end time.Time) (*batch, error) {
	records, err := e.store.ListPeriodRecords(ctx, o.ID, service.RecordFilter{
		Granularity: g,
		Start:       &start,
		End:         &end,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", g, err)
	}

	b := newBatch(g)
	for i := range records {
		b.addStored(&records[i])
	}
	return b, nil
}

// materialize creates the records of o for newly catalogued windows and
// matches the obligation's transactions that fall near them and are not yet
// referenced in this granularity.
func (e *Engine) materialize(ctx context.Context, o *model.Obligation, g model.Granularity, windows []model.PeriodWindow, txns []model.Transaction, now time.Time) (GranularityResult, error) {
	res := GranularityResult{Granularity: g}
	if len(windows) == 0 {
		return res, nil
	}

	start, end := windows[0].Start, windows[0].End
	for _, w := range windows[1:] {
		if w.Start.Before(start) {
			start = w.Start
		}
		if w.End.After(end) {
			end = w.End
		}
	}

	tolerance := e.cfg.Matcher.AnyToleranceDays
	var nearby []model.Transaction
	for _, t := range txns {
		d := calendar.Day(t.Date)
		if !d.Before(start.AddDate(0, 0, -tolerance)) && !d.After(end.AddDate(0, 0, tolerance)) {
			nearby = append(nearby, t)
		}
	}
	if len(nearby) > 0 {
		lo, hi := span(nearby, tolerance)
		if lo.Before(start) {
			start = lo
		}
		if hi.After(end) {
			end = hi
		}
	}

	b, err := e.loadRange(ctx, o, g, start, end, now)
	if err != nil {
		return res, err
	}
	if len(nearby) > 0 {
		e.match(ctx, b, nearby, now, &res)
	}

	if res.Written, err = e.commit(ctx, b); err != nil {
		return res, err
	}
	return res, nil
}

// Redrive rebuilds every record of one granularity from the obligation's
// definition and its assigned transactions. It is the recovery path for a
// granularity whose batch failed.
func (e *Engine) Redrive(ctx context.Context, obligationID string, g model.Granularity) (GranularityResult, error) {
	if !g.IsValid() {
		return GranularityResult{}, fmt.Errorf("unknown granularity %q", g)
	}
	logger := common.Logger(ctx).With("obligation_id", obligationID, "granularity", string(g))
	ctx = common.WithLogger(ctx, logger)

	o, err := e.loadObligation(ctx, obligationID)
	if err != nil {
		return GranularityResult{}, err
	}
	txns, err := e.store.FetchTransactionsByIDs(ctx, o.TransactionIDs)
	if err != nil {
		return GranularityResult{}, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	now := e.now()

	results := e.fanOut(ctx, []model.Granularity{g}, func(ctx context.Context, g model.Granularity) (GranularityResult, error) {
		return e.rebuild(ctx, o, g, txns, now)
	})
	res := results[0]
	if res.Err != nil {
		return res, res.Err
	}

	logger.Info("Redrove granularity", "records_written", res.Written, "matched", res.Matched)
	return res, nil
}

func (e *Engine) rebuild(ctx context.Context, o *model.Obligation, g model.Granularity, txns []model.Transaction, now time.Time) (GranularityResult, error) {
	res := GranularityResult{Granularity: g}

	b, err := e.loadAll(ctx, o, g)
	if err != nil {
		return res, err
	}
	if len(txns) > 0 {
		start, end := span(txns, e.cfg.Matcher.AnyToleranceDays)
		if err := e.extend(ctx, b, o, start, end, now); err != nil {
			return res, err
		}
	}

	for i, r := range b.records {
		fresh, err := e.project(o, r.Window(), now)
		if err != nil {
			return res, err
		}
		fresh.TransactionSplits = r.TransactionSplits
		fresh.UpdatedAt = r.UpdatedAt
		fresh.Version = r.Version
		b.records[i] = fresh
	}

	if len(txns) > 0 {
		e.match(ctx, b, txns, now, &res)
	}

	if res.Written, err = e.commit(ctx, b); err != nil {
		return res, err
	}
	return res, nil
}

// HandleRecordChange is the hook for writes to a period record made outside
// the engine. Changes confined to engine-owned fields are the engine's own
// writes and are ignored; changes to the record's transaction splits are
// turned into assignment events for the record's obligation.
func (e *Engine) HandleRecordChange(ctx context.Context, before, after *model.PeriodRecord) ([]*EventResult, error) {
	if after == nil {
		return nil, nil
	}
	changed := model.DiffPeriodRecords(before, after)
	if model.OnlyEngineOwned(changed) {
		common.Logger(ctx).Debug("Ignoring engine-owned record change",
			"record", after.Key().String(),
			"fields", len(changed))
		return nil, nil
	}

	var previous []string
	if before != nil {
		previous = before.TransactionSplits
	}
	added, removed := diffIDs(previous, after.TransactionSplits)

	for _, id := range added {
		if err := e.store.AssignTransaction(ctx, id, after.ObligationID); err != nil {
			return nil, fmt.Errorf("failed to assign transaction %s: %w", id, err)
		}
	}

	var released []string
	for _, id := range removed {
		split, err := e.store.GetSplit(ctx, id)
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read split of %s: %w", id, err)
		}
		if split.ObligationID != after.ObligationID {
			continue
		}
		if _, err := e.store.UnassignTransaction(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to unassign transaction %s: %w", id, err)
		}
		released = append(released, id)
	}

	var results []*EventResult
	if len(added) > 0 {
		res, err := e.OnObligationEvent(ctx, after.ObligationID, EventTransactionAdded, EventPayload{TransactionIDs: added})
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	if len(released) > 0 {
		res, err := e.OnObligationEvent(ctx, after.ObligationID, EventTransactionRemoved, EventPayload{TransactionIDs: released})
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// diffIDs returns the IDs only in after and the IDs only in before.
func diffIDs(before, after []string) (added, removed []string) {
	inBefore := make(map[string]bool, len(before))
	for _, id := range before {
		inBefore[id] = true
	}
	inAfter := make(map[string]bool, len(after))
	for _, id := range after {
		inAfter[id] = true
		if !inBefore[id] {
			added = append(added, id)
		}
	}
	for _, id := range before {
		if !inAfter[id] {
			removed = append(removed, id)
		}
	}
	return added, removed
}
