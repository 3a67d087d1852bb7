package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Veraticus/the-bills-must-flow/internal/calendar"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
	"github.com/Veraticus/the-bills-must-flow/internal/recurrence"
	"github.com/Veraticus/the-bills-must-flow/internal/service"
)

// batch is the working set of one granularity for one obligation. Records
// are edited as copies; original holds what was read so the commit can diff
// and carry expected versions.
type batch struct {
	original    map[string]*model.PeriodRecord
	index       map[string]int
	granularity model.Granularity
	records     []*model.PeriodRecord
}

func newBatch(g model.Granularity) *batch {
	return &batch{
		granularity: g,
		original:    make(map[string]*model.PeriodRecord),
		index:       make(map[string]int),
	}
}

func (b *batch) has(windowID string) bool {
	_, ok := b.index[windowID]
	return ok
}

// addStored adds a record read from the store.
func (b *batch) addStored(r *model.PeriodRecord) {
	b.original[r.WindowID] = r
	b.index[r.WindowID] = len(b.records)
	b.records = append(b.records, r.Clone())
}

// addNew adds a record that does not exist in the store yet.
func (b *batch) addNew(r *model.PeriodRecord) {
	b.index[r.WindowID] = len(b.records)
	b.records = append(b.records, r)
}

// replace swaps in updated copies of records already in the batch.
func (b *batch) replace(updated []*model.PeriodRecord) {
	for _, r := range updated {
		if i, ok := b.index[r.WindowID]; ok {
			b.records[i] = r
		}
	}
}

// sortByWindow orders records chronologically and rebuilds the index.
func (b *batch) sortByWindow() {
	sort.SliceStable(b.records, func(i, j int) bool {
		return b.records[i].WindowStart.Before(b.records[j].WindowStart)
	})
	for i, r := range b.records {
		b.index[r.WindowID] = i
	}
}

// mutations returns one write per new or changed record.
func (b *batch) mutations() []model.RecordMutation {
	var out []model.RecordMutation
	for _, r := range b.records {
		orig, stored := b.original[r.WindowID]
		if !stored {
			out = append(out, model.RecordMutation{
				Record:  r,
				Origin:  model.OriginEngine,
				Changed: model.DiffPeriodRecords(nil, r),
			})
			continue
		}

		changed := model.DiffPeriodRecords(orig, r)
		if len(changed) == 0 {
			continue
		}
		out = append(out, model.RecordMutation{
			Record:          r,
			Origin:          model.OriginEngine,
			Changed:         changed,
			ExpectedVersion: orig.Version,
		})
	}
	return out
}

// loadAll reads every stored record of o in granularity g.
func (e *Engine) loadAll(ctx context.Context, o *model.Obligation, g model.Granularity) (*batch, error) {
	records, err := e.store.ListPeriodRecords(ctx, o.ID, service.RecordFilter{Granularity: g})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", g, err)
	}

	b := newBatch(g)
	for i := range records {
		b.addStored(&records[i])
	}
	return b, nil
}

// loadRange reads the records of o in g whose windows overlap [start, end],
// projecting fresh records for catalog windows that have none yet.
func (e *Engine) loadRange(ctx context.Context, o *model.Obligation, g model.Granularity, start, end, now time.Time) (*batch, error) {
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
	if err := e.extend(ctx, b, o, start, end, now); err != nil {
		return nil, err
	}
	return b, nil
}

// extend projects records for every catalog window overlapping [start, end]
// that the batch does not hold. The batch must already contain every stored
// record in that range.
func (e *Engine) extend(ctx context.Context, b *batch, o *model.Obligation, start, end, now time.Time) error {
	windows, err := e.store.OverlappingWindows(ctx, start, end, b.granularity)
	if err != nil {
		return fmt.Errorf("failed to query %s windows: %w", b.granularity, err)
	}

	for _, w := range windows {
		if b.has(w.ID) {
			continue
		}
		r, err := e.project(o, w, now)
		if err != nil {
			return err
		}
		b.addNew(r)
	}
	b.sortByWindow()
	return nil
}

// project builds a fresh, unpaid record for o in window w.
func (e *Engine) project(o *model.Obligation, w model.PeriodWindow, now time.Time) (*model.PeriodRecord, error) {
	res, err := recurrence.Compute(o, w)
	if err != nil {
		return nil, err
	}

	r := &model.PeriodRecord{
		ObligationID:        o.ID,
		WindowID:            w.ID,
		Granularity:         w.Granularity,
		WindowStart:         w.Start,
		WindowEnd:           w.End,
		ObligationName:      o.DisplayName(),
		Direction:           o.Direction,
		AmountPerOccurrence: o.AmountPerOccurrence(),
		IsActive:            o.IsActive,
	}
	r.SetOccurrences(res.DueDates)
	r.RecomputeTotals()
	e.status.Apply(r, now)
	return r, nil
}

// commit writes the batch's mutations atomically and returns how many
// records were written.
func (e *Engine) commit(ctx context.Context, b *batch) (int, error) {
	mutations := b.mutations()
	if len(mutations) == 0 {
		return 0, nil
	}
	if err := e.store.CommitAtomic(ctx, mutations); err != nil {
		return 0, fmt.Errorf("failed to commit %s batch: %w", b.granularity, err)
	}
	return len(mutations), nil
}

// span returns [earliest-days, latest+days] over the transaction dates.
func span(txns []model.Transaction, days int) (time.Time, time.Time) {
	start, end := txns[0].Date, txns[0].Date
	for _, t := range txns[1:] {
		if t.Date.Before(start) {
			start = t.Date
		}
		if t.Date.After(end) {
			end = t.Date
		}
	}
	return calendar.Day(start).AddDate(0, 0, -days), calendar.Day(end).AddDate(0, 0, days)
}
