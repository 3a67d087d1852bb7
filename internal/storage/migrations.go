package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS categories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT UNIQUE NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					type TEXT NOT NULL DEFAULT 'expense',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					is_active BOOLEAN DEFAULT 1
				)`,

				`CREATE TABLE IF NOT EXISTS obligations (
					id TEXT PRIMARY KEY,
					owner_id TEXT NOT NULL DEFAULT '',
					custom_name TEXT NOT NULL DEFAULT '',
					frequency TEXT NOT NULL,
					direction TEXT NOT NULL,
					amount REAL NOT NULL,
					reference_date TEXT NOT NULL,
					category_id INTEGER,
					is_active BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_obligations_active ON obligations(is_active)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					hash TEXT UNIQUE NOT NULL,
					date DATETIME NOT NULL,
					name TEXT NOT NULL,
					merchant_name TEXT,
					amount REAL NOT NULL,
					account_id TEXT,
					transaction_type TEXT,
					check_number TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_date ON transactions(date)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add exclusive transaction splits",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS transaction_splits (
					transaction_id TEXT PRIMARY KEY,
					obligation_id TEXT NOT NULL,
					assigned_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (transaction_id) REFERENCES transactions(id),
					FOREIGN KEY (obligation_id) REFERENCES obligations(id)
				)`,
				`CREATE INDEX idx_transaction_splits_obligation ON transaction_splits(obligation_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Add period windows and period records",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS period_windows (
					id TEXT PRIMARY KEY,
					granularity TEXT NOT NULL,
					start_date TEXT NOT NULL,
					end_date TEXT NOT NULL
				)`,
				`CREATE INDEX idx_period_windows_range ON period_windows(granularity, start_date, end_date)`,

				`CREATE TABLE IF NOT EXISTS period_records (
					obligation_id TEXT NOT NULL,
					window_id TEXT NOT NULL,
					granularity TEXT NOT NULL,
					window_start TEXT NOT NULL,
					window_end TEXT NOT NULL,
					obligation_name TEXT NOT NULL DEFAULT '',
					direction TEXT NOT NULL,
					status TEXT NOT NULL,
					occurrences TEXT NOT NULL DEFAULT '[]',
					transaction_ids TEXT NOT NULL DEFAULT '[]',
					transaction_splits TEXT NOT NULL DEFAULT '[]',
					amount_per_occurrence REAL NOT NULL DEFAULT 0,
					total_amount_due REAL NOT NULL DEFAULT 0,
					total_amount_paid REAL NOT NULL DEFAULT 0,
					total_amount_unpaid REAL NOT NULL DEFAULT 0,
					total_amount_overpaid REAL NOT NULL DEFAULT 0,
					daily_rate REAL NOT NULL DEFAULT 0,
					occurrence_count INTEGER NOT NULL DEFAULT 0,
					is_active BOOLEAN NOT NULL DEFAULT 1,
					is_fully_paid BOOLEAN NOT NULL DEFAULT 0,
					is_partially_paid BOOLEAN NOT NULL DEFAULT 0,
					version INTEGER NOT NULL DEFAULT 1,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (obligation_id, window_id),
					FOREIGN KEY (window_id) REFERENCES period_windows(id)
				)`,
				`CREATE INDEX idx_period_records_window ON period_records(granularity, window_start, window_end)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}

			slog.Info("Created period record tables")
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion reports the database's current schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return v, nil
}
