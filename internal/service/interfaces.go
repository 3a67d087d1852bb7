// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// RecordFilter narrows period record queries. Zero values match everything.
type RecordFilter struct {
	Start       *time.Time
	End         *time.Time
	Granularity model.Granularity
}

// WindowCatalog is the indexed view over the calendar partitioner's windows.
type WindowCatalog interface {
	SaveWindows(ctx context.Context, windows []model.PeriodWindow) error
	GetWindow(ctx context.Context, id string) (*model.PeriodWindow, error)
	OverlappingWindows(ctx context.Context, start, end time.Time, granularity model.Granularity) ([]model.PeriodWindow, error)
}

// RecordStore persists period records. CommitAtomic applies every mutation
// or none of them.
type RecordStore interface {
	GetPeriodRecord(ctx context.Context, key model.RecordKey) (*model.PeriodRecord, error)
	ListPeriodRecords(ctx context.Context, obligationID string, filter RecordFilter) ([]model.PeriodRecord, error)
	CommitAtomic(ctx context.Context, mutations []model.RecordMutation) error
}

// TransactionStore holds transactions and their exclusive obligation splits.
type TransactionStore interface {
	SaveTransactions(ctx context.Context, transactions []model.Transaction) error
	FetchTransactionsByIDs(ctx context.Context, ids []string) ([]model.Transaction, error)
	GetTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	AssignTransaction(ctx context.Context, transactionID, obligationID string) error
	UnassignTransaction(ctx context.Context, transactionID string) (string, error)
	GetSplit(ctx context.Context, transactionID string) (*model.TransactionSplit, error)
}

// ObligationStore holds obligation definitions.
type ObligationStore interface {
	GetObligation(ctx context.Context, id string) (*model.Obligation, error)
	ListObligations(ctx context.Context, activeOnly bool) ([]model.Obligation, error)
	SaveObligation(ctx context.Context, obligation *model.Obligation) error
}

// CategoryStore holds the categories used to group obligations in reports.
type CategoryStore interface {
	GetCategories(ctx context.Context) ([]model.Category, error)
	GetCategoryByName(ctx context.Context, name string) (*model.Category, error)
	CreateCategory(ctx context.Context, name, description string, categoryType model.CategoryType) (*model.Category, error)
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	WindowCatalog
	RecordStore
	TransactionStore
	ObligationStore
	CategoryStore

	Migrate(ctx context.Context) error
	Close() error
}

// DateRange represents a time period with start and end dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// CategorySummary contains aggregated statistics for a category.
type CategorySummary struct {
	Count    int
	Expected float64
	Paid     float64
}

// Summary is the rollup of period records used by reporting.
type Summary struct {
	ByCategory   map[string]CategorySummary
	Expected     float64
	Paid         float64
	Unpaid       float64
	PendingCount int
	RecordCount  int
}
