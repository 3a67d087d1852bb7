// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Record store errors.
	ErrNotFound          = errors.New("not found")
	ErrDuplicateEntry    = errors.New("duplicate entry")
	ErrDatabaseCorrupted = errors.New("database corrupted")

	// Reconciliation errors.
	ErrInvalidObligation    = errors.New("invalid obligation")
	ErrWindowNotFound       = errors.New("window not found")
	ErrNoMatchingOccurrence = errors.New("no matching occurrence")
	ErrOccurrenceSettled    = errors.New("occurrence already settled by another transaction")
	ErrCommitConflict       = errors.New("commit conflict")
	ErrAlreadyAssigned      = errors.New("transaction already assigned to another obligation")
	ErrUnknownEvent         = errors.New("unknown event kind")
	ErrInvalidEvent         = errors.New("invalid event payload")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return errors.Is(err, ErrCommitConflict) ||
		errors.Is(err, context.DeadlineExceeded)
}
