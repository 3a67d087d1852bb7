// Package testutil provides test fixtures for the bills-must-flow project:
// a migrated SQLite store with a seeded window catalog, and fluent builders
// for obligations and transactions.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/the-bills-must-flow/internal/calendar"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
	"github.com/Veraticus/the-bills-must-flow/internal/storage"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage    *storage.SQLiteStorage
	t          *testing.T
	Categories map[string]model.Category
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup func(context.Context, *storage.SQLiteStorage) error
	// CatalogFrom and CatalogTo bound the window catalog. A zero CatalogFrom
	// leaves the catalog empty.
	CatalogFrom time.Time
	CatalogTo   time.Time
	Categories  []string
}

// SetupTestDB creates a migrated file-backed test database whose window
// catalog covers every window overlapping the given year.
//
// Example:
//
//	db := testutil.SetupTestDB(t, 2025)
//	db.SaveObligation(testutil.NewObligation("rent").Amount(1500).Build())
func SetupTestDB(t *testing.T, year int) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{
		CatalogFrom: Day(year, time.January, 1),
		CatalogTo:   Day(year, time.December, 31),
	})
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "bills.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := store.Close(); closeErr != nil {
			t.Logf("Failed to close database: %v", closeErr)
		}
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	db := &TestDB{
		Storage:    store,
		Categories: make(map[string]model.Category),
		t:          t,
	}

	for _, name := range opts.Categories {
		cat, err := store.CreateCategory(ctx, name, name+" obligations", model.CategoryTypeExpense)
		if err != nil {
			t.Fatalf("failed to seed category %q: %v", name, err)
		}
		db.Categories[name] = *cat
	}

	if !opts.CatalogFrom.IsZero() {
		db.SeedCatalog(opts.CatalogFrom, opts.CatalogTo)
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return db
}

// SeedCatalog partitions [from, to] in every granularity and stores the
// windows. It returns the windows that were generated.
func (db *TestDB) SeedCatalog(from, to time.Time) map[model.Granularity][]model.PeriodWindow {
	db.t.Helper()

	windows, err := calendar.PartitionAll(from, to)
	if err != nil {
		db.t.Fatalf("failed to partition catalog: %v", err)
	}
	for _, g := range model.Granularities {
		if err := db.Storage.SaveWindows(context.Background(), windows[g]); err != nil {
			db.t.Fatalf("failed to save %s windows: %v", g, err)
		}
	}
	return windows
}

// SaveObligation stores o or fails the test.
func (db *TestDB) SaveObligation(o *model.Obligation) *model.Obligation {
	db.t.Helper()
	if err := db.Storage.SaveObligation(context.Background(), o); err != nil {
		db.t.Fatalf("failed to save obligation %s: %v", o.ID, err)
	}
	return o
}

// SaveTransactions stores txns or fails the test.
func (db *TestDB) SaveTransactions(txns ...model.Transaction) {
	db.t.Helper()
	if err := db.Storage.SaveTransactions(context.Background(), txns); err != nil {
		db.t.Fatalf("failed to save transactions: %v", err)
	}
}

// Assign saves txns and assigns each of them to the obligation.
func (db *TestDB) Assign(obligationID string, txns ...model.Transaction) []string {
	db.t.Helper()
	db.SaveTransactions(txns...)

	ids := make([]string, len(txns))
	for i, txn := range txns {
		if err := db.Storage.AssignTransaction(context.Background(), txn.ID, obligationID); err != nil {
			db.t.Fatalf("failed to assign %s: %v", txn.ID, err)
		}
		ids[i] = txn.ID
	}
	return ids
}

// MustGetRecord returns a stored period record or fails the test.
func (db *TestDB) MustGetRecord(obligationID, windowID string) *model.PeriodRecord {
	db.t.Helper()
	r, err := db.Storage.GetPeriodRecord(context.Background(), model.RecordKey{
		ObligationID: obligationID,
		WindowID:     windowID,
	})
	if err != nil {
		db.t.Fatalf("failed to get record %s/%s: %v", obligationID, windowID, err)
	}
	return r
}
