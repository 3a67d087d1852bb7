package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrEmptySlice         = errors.New("slice cannot be empty")
	ErrInvalidDateRange   = errors.New("start date must be before end date")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidWindow      = errors.New("invalid period window")
	ErrInvalidRecord      = errors.New("invalid period record")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTransactions validates a slice of transactions.
func validateTransactions(transactions []model.Transaction) error {
	if transactions == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}

	for i, txn := range transactions {
		if err := validateTransaction(&txn); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

// validateTransaction validates a single transaction.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if txn.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidTransaction)
	}
	if txn.AccountID == "" {
		return fmt.Errorf("%w: missing account ID", ErrInvalidTransaction)
	}
	return nil
}

// validateWindow checks a window before it enters the catalog.
func validateWindow(w *model.PeriodWindow) error {
	if strings.TrimSpace(w.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidWindow)
	}
	if !w.Granularity.IsValid() {
		return fmt.Errorf("%w: unknown granularity %q", ErrInvalidWindow, w.Granularity)
	}
	if w.Start.IsZero() || w.End.Before(w.Start) {
		return fmt.Errorf("%w: %s has an empty range", ErrInvalidWindow, w.ID)
	}
	return nil
}

// validateMutation checks one write of an atomic batch.
func validateMutation(m *model.RecordMutation) error {
	if m.Record == nil {
		return fmt.Errorf("%w: mutation record", ErrNilParameter)
	}
	if strings.TrimSpace(m.Record.ObligationID) == "" || strings.TrimSpace(m.Record.WindowID) == "" {
		return fmt.Errorf("%w: missing key", ErrInvalidRecord)
	}
	if err := m.Record.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return nil
}
