// Package status derives the reconciliation status of a period record from
// its occurrence and payment state.
package status

import (
	"time"

	"github.com/Veraticus/the-bills-must-flow/internal/calendar"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// Config holds the day thresholds used by the status rules.
type Config struct {
	GraceDays   int
	DueSoonDays int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		GraceDays:   1,
		DueSoonDays: 3,
	}
}

// Engine derives period statuses.
type Engine struct {
	cfg Config
}

// New creates a status engine with the given configuration.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Derive returns the status of r as of now. Rules are evaluated in priority
// order and the first match wins:
//
//  1. inactive or no occurrences: NOT_EXPECTED (income) / PENDING (bills)
//  2. nothing further owed (see model.PeriodRecord.Satisfied): PAID,
//     PAID_EARLY or RECEIVED
//  3. any unpaid occurrence past its grace period: OVERDUE
//  4. some but not all paid: PARTIAL
//  5. nearest unpaid due date within the due-soon horizon: DUE_SOON (bills)
//  6. otherwise PENDING
func (e *Engine) Derive(r *model.PeriodRecord, now time.Time) model.PaymentStatus {
	today := calendar.Day(now)
	inflow := r.Direction == model.DirectionInflow

	if !r.IsActive || r.OccurrenceCount == 0 {
		if inflow {
			return model.StatusNotExpected
		}
		return model.StatusPending
	}

	if r.Satisfied() {
		if inflow {
			return model.StatusReceived
		}
		if allPaidAheadOfDue(r, today) {
			return model.StatusPaidEarly
		}
		return model.StatusPaid
	}

	if e.anyOverdue(r, today) {
		return model.StatusOverdue
	}

	if r.PaidCount() > 0 {
		return model.StatusPartial
	}

	if !inflow && e.dueSoon(r, today) {
		return model.StatusDueSoon
	}

	return model.StatusPending
}

// Apply derives the status of r and stores it on the record.
func (e *Engine) Apply(r *model.PeriodRecord, now time.Time) {
	r.Status = e.Derive(r, now)
}

func (e *Engine) anyOverdue(r *model.PeriodRecord, today time.Time) bool {
	for i, paid := range r.OccurrencePaidFlags {
		if paid {
			continue
		}
		deadline := calendar.Day(r.OccurrenceDueDates[i]).AddDate(0, 0, e.cfg.GraceDays)
		if deadline.Before(today) {
			return true
		}
	}
	return false
}

func (e *Engine) dueSoon(r *model.PeriodRecord, today time.Time) bool {
	nearest := -1
	for i, paid := range r.OccurrencePaidFlags {
		if paid {
			continue
		}
		dist := calendar.DaysBetween(today, r.OccurrenceDueDates[i])
		if dist < 0 {
			dist = -dist
		}
		if nearest < 0 || dist < nearest {
			nearest = dist
		}
	}
	return nearest >= 0 && nearest <= e.cfg.DueSoonDays
}

func allPaidAheadOfDue(r *model.PeriodRecord, today time.Time) bool {
	found := false
	for i, paid := range r.OccurrencePaidFlags {
		if !paid {
			continue
		}
		found = true
		if !calendar.Day(r.OccurrenceDueDates[i]).After(today) {
			return false
		}
	}
	return found
}
