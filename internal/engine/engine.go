// Package engine coordinates occurrence projection, transaction matching and
// status derivation across the monthly, weekly and bi-monthly views of every
// obligation. It is the only writer of period records.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/matcher"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
	"github.com/Veraticus/the-bills-must-flow/internal/recurrence"
	"github.com/Veraticus/the-bills-must-flow/internal/service"
	"github.com/Veraticus/the-bills-must-flow/internal/status"
)

// Config holds configuration options for the engine.
type Config struct {
	SummaryGranularity model.Granularity
	Matcher            matcher.Config
	Status             status.Config
	Retry              service.RetryOptions
	CategoryCacheTTL   time.Duration
	Concurrency        int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Matcher: matcher.DefaultConfig(),
		Status:  status.DefaultConfig(),
		Retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
		},
		CategoryCacheTTL:   5 * time.Minute,
		SummaryGranularity: model.GranularityMonthly,
		Concurrency:        len(model.Granularities),
	}
}

// EventKind identifies what changed about an obligation.
type EventKind string

// Obligation events.
const (
	EventTransactionAdded   EventKind = "transaction-added"
	EventTransactionRemoved EventKind = "transaction-removed"
	EventObligationEdited   EventKind = "obligation-edited"
	EventWindowCreated      EventKind = "window-created"
)

// EventKinds lists every accepted event kind.
var EventKinds = []EventKind{
	EventTransactionAdded,
	EventTransactionRemoved,
	EventObligationEdited,
	EventWindowCreated,
}

// ParseEventKind converts user input into an EventKind.
func ParseEventKind(s string) (EventKind, error) {
	for _, k := range EventKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", common.ErrUnknownEvent, s)
}

// EventPayload carries the event details. Which fields are read depends on
// the event kind.
type EventPayload struct {
	// Previous is the obligation as it was before an edit. A nil Previous
	// on obligation-edited forces a full recalculation.
	Previous       *model.Obligation
	TransactionIDs []string
	WindowIDs      []string
}

// GranularityResult is the outcome of one granularity's batch.
type GranularityResult struct {
	Err         error
	Granularity model.Granularity
	Written     int
	Matched     int
	Unmatched   int
	Settled     int
	Released    int
}

// EventResult reports how each granularity fared. Granularities succeed or
// fail independently.
type EventResult struct {
	EventID       string
	ObligationID  string
	Kind          EventKind
	Granularities []GranularityResult
}

// Err joins the errors of every failed granularity.
func (r *EventResult) Err() error {
	var errs []error
	for _, g := range r.Granularities {
		if g.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", g.Granularity, g.Err))
		}
	}
	return errors.Join(errs...)
}

// Failed lists the granularities whose batch did not commit.
func (r *EventResult) Failed() []model.Granularity {
	var failed []model.Granularity
	for _, g := range r.Granularities {
		if g.Err != nil {
			failed = append(failed, g.Granularity)
		}
	}
	return failed
}

// Result returns the outcome for granularity g.
func (r *EventResult) Result(g model.Granularity) (GranularityResult, bool) {
	for _, res := range r.Granularities {
		if res.Granularity == g {
			return res, true
		}
	}
	return GranularityResult{}, false
}

// Engine is the tri-view consistency coordinator.
type Engine struct {
	store      service.Storage
	matcher    *matcher.Matcher
	status     *status.Engine
	metrics    *Metrics
	categories *CategoryCache
	now        func() time.Time
	cfg        Config
}

// New creates an engine over store. A nil metrics gets unregistered
// instruments.
func New(store service.Storage, cfg Config, metrics *Metrics) *Engine {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	statusEngine := status.New(cfg.Status)
	return &Engine{
		store:      store,
		cfg:        cfg,
		status:     statusEngine,
		matcher:    matcher.New(cfg.Matcher, statusEngine),
		metrics:    metrics,
		categories: NewCategoryCache(store, cfg.CategoryCacheTTL),
		now:        time.Now,
	}
}

// SetClock replaces the engine's notion of now.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Categories returns the category cache used by summaries.
func (e *Engine) Categories() *CategoryCache {
	return e.categories
}

// step computes and commits one granularity's batch.
type step func(ctx context.Context, g model.Granularity) (GranularityResult, error)

// OnObligationEvent is the entry point for every obligation event. The
// returned error covers problems with the event itself (unknown obligation,
// invalid definition, unknown kind); per-granularity failures are reported
// in the result.
func (e *Engine) OnObligationEvent(ctx context.Context, obligationID string, kind EventKind, payload EventPayload) (*EventResult, error) {
	eventID := uuid.NewString()
	logger := common.Logger(ctx).With(
		"event_id", eventID,
		"obligation_id", obligationID,
		"kind", string(kind))
	ctx = common.WithLogger(ctx, logger)

	start := time.Now()
	defer func() {
		e.metrics.EventDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	}()

	result, err := e.dispatch(ctx, obligationID, kind, payload)
	if err != nil {
		e.metrics.EventsTotal.WithLabelValues(string(kind), "rejected").Inc()
		logger.Warn("Obligation event rejected", "error", err)
		return nil, err
	}
	result.EventID = eventID

	outcome := "ok"
	if failed := result.Failed(); len(failed) > 0 {
		outcome = "partial"
		if len(failed) == len(result.Granularities) {
			outcome = "failed"
		}
	}
	e.metrics.EventsTotal.WithLabelValues(string(kind), outcome).Inc()

	written := 0
	for _, g := range result.Granularities {
		written += g.Written
	}
	logger.Info("Processed obligation event",
		"result", outcome,
		"granularities", len(result.Granularities),
		"records_written", written)
	return result, nil
}

func (e *Engine) dispatch(ctx context.Context, obligationID string, kind EventKind, payload EventPayload) (*EventResult, error) {
	o, err := e.loadObligation(ctx, obligationID)
	if err != nil {
		return nil, err
	}
	now := e.now()

	var run step
	granularities := model.Granularities

	switch kind {
	case EventTransactionAdded:
		txns, err := e.ownedTransactions(ctx, o, payload.TransactionIDs)
		if err != nil {
			return nil, err
		}
		run = func(ctx context.Context, g model.Granularity) (GranularityResult, error) {
			return e.addTransactions(ctx, o, g, txns, now)
		}

	case EventTransactionRemoved:
		if len(payload.TransactionIDs) == 0 {
			return nil, fmt.Errorf("%w: transaction-removed needs transaction IDs", common.ErrInvalidEvent)
		}
		txns, err := e.store.FetchTransactionsByIDs(ctx, payload.TransactionIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch transactions: %w", err)
		}
		run = func(ctx context.Context, g model.Granularity) (GranularityResult, error) {
			return e.removeTransactions(ctx, o, g, payload.TransactionIDs, txns, now)
		}

	case EventObligationEdited:
		ch := diffObligation(payload.Previous, o)
		ids := ch.added
		if ch.schedule {
			// Transactions that missed the old schedule may fit the new one.
			ids = o.TransactionIDs
		}
		txns, err := e.store.FetchTransactionsByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch transactions: %w", err)
		}
		run = func(ctx context.Context, g model.Granularity) (GranularityResult, error) {
			return e.recalculate(ctx, o, g, ch, txns, now)
		}

	case EventWindowCreated:
		windows, err := e.createdWindows(ctx, payload.WindowIDs)
		if err != nil {
			return nil, err
		}
		txns, err := e.store.FetchTransactionsByIDs(ctx, o.TransactionIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch transactions: %w", err)
		}
		granularities = nil
		for _, g := range model.Granularities {
			if len(windows[g]) > 0 {
				granularities = append(granularities, g)
			}
		}
		run = func(ctx context.Context, g model.Granularity) (GranularityResult, error) {
			return e.materialize(ctx, o, g, windows[g], txns, now)
		}

	default:
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownEvent, kind)
	}

	return &EventResult{
		ObligationID:  o.ID,
		Kind:          kind,
		Granularities: e.fanOut(ctx, granularities, run),
	}, nil
}

// fanOut runs one batch per granularity concurrently. Each batch retries on
// commit conflicts by recomputing from freshly read records. A failing
// granularity never cancels the others, so goroutines always return nil.
func (e *Engine) fanOut(ctx context.Context, granularities []model.Granularity, run step) []GranularityResult {
	logger := common.Logger(ctx)
	results := make([]GranularityResult, len(granularities))

	var group errgroup.Group
	if e.cfg.Concurrency > 0 {
		group.SetLimit(e.cfg.Concurrency)
	}

	for i, g := range granularities {
		i, g := i, g
		group.Go(func() error {
			var res GranularityResult
			err := common.WithRetry(ctx, func() error {
				var stepErr error
				res, stepErr = run(ctx, g)
				if errors.Is(stepErr, common.ErrCommitConflict) {
					e.metrics.CommitConflicts.WithLabelValues(string(g)).Inc()
				}
				return stepErr
			}, e.cfg.Retry)

			res.Granularity = g
			if err != nil {
				res = GranularityResult{Granularity: g, Err: err}
				e.metrics.BatchFailures.WithLabelValues(string(g)).Inc()
				logger.Error("Granularity batch failed",
					"granularity", string(g),
					"error", err)
			} else {
				e.recordOutcomes(res)
			}
			results[i] = res
			return nil
		})
	}
	_ = group.Wait()

	return results
}

func (e *Engine) recordOutcomes(res GranularityResult) {
	g := string(res.Granularity)
	e.metrics.RecordsWritten.WithLabelValues(g).Add(float64(res.Written))
	e.metrics.MatchOutcomes.WithLabelValues(g, string(matcher.OutcomeMatched)).Add(float64(res.Matched))
	e.metrics.MatchOutcomes.WithLabelValues(g, string(matcher.OutcomeUnmatched)).Add(float64(res.Unmatched))
	e.metrics.MatchOutcomes.WithLabelValues(g, string(matcher.OutcomeSettled)).Add(float64(res.Settled))
}

// loadObligation reads and validates an obligation. Invalid definitions are
// marked permanent so they are never retried.
func (e *Engine) loadObligation(ctx context.Context, obligationID string) (*model.Obligation, error) {
	o, err := e.store.GetObligation(ctx, obligationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load obligation %s: %w", obligationID, err)
	}
	if err := recurrence.Validate(o); err != nil {
		return nil, common.Permanent(err)
	}
	return o, nil
}

// ownedTransactions fetches the requested transactions, keeping only those
// whose split belongs to o. An empty request means all of o's transactions.
func (e *Engine) ownedTransactions(ctx context.Context, o *model.Obligation, ids []string) ([]model.Transaction, error) {
	if len(ids) == 0 {
		ids = o.TransactionIDs
	}

	var owned []string
	for _, id := range ids {
		if !o.HasTransaction(id) {
			common.Logger(ctx).Warn("Ignoring transaction not assigned to obligation",
				"transaction_id", id)
			continue
		}
		owned = append(owned, id)
	}

	txns, err := e.store.FetchTransactionsByIDs(ctx, owned)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	return txns, nil
}

// createdWindows resolves window IDs through the catalog and groups them by
// granularity. Unknown windows carry no occurrences and are skipped.
func (e *Engine) createdWindows(ctx context.Context, ids []string) (map[model.Granularity][]model.PeriodWindow, error) {
	out := make(map[model.Granularity][]model.PeriodWindow)
	for _, id := range ids {
		w, err := e.store.GetWindow(ctx, id)
		if errors.Is(err, common.ErrWindowNotFound) {
			common.LogDebug(ctx, "Window not in catalog", common.Fields{"window_id": id})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load window %s: %w", id, err)
		}
		out[w.Granularity] = append(out[w.Granularity], *w)
	}
	return out, nil
}
