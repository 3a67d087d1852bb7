package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/the-bills-must-flow/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithRetry_RetriesCommitConflicts(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return ErrCommitConflict
		}
		return nil
	}, fastRetry(3))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		return ErrInvalidObligation
	}, fastRetry(5))

	require.ErrorIs(t, err, ErrInvalidObligation)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		return ErrCommitConflict
	}, fastRetry(2))

	require.ErrorIs(t, err, ErrMaxRetries)
	require.ErrorIs(t, err, ErrCommitConflict)
	assert.Equal(t, 2, calls)
}

func TestWithRetry_HonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, func() error {
		return ErrCommitConflict
	}, service.RetryOptions{MaxAttempts: 3, InitialDelay: time.Second})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "commit conflict", err: ErrCommitConflict, want: true},
		{name: "wrapped conflict", err: errors.Join(errors.New("batch"), ErrCommitConflict), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "invalid obligation", err: ErrInvalidObligation, want: false},
		{name: "permanent conflict", err: Permanent(errors.New("stuck")), want: false},
		{name: "explicitly retryable", err: &RetryableError{Err: errors.New("busy"), Retryable: true}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
