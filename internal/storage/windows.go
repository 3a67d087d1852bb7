package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/the-bills-must-flow/internal/calendar"
	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// SaveWindows adds windows to the catalog. Windows are immutable, so
// existing IDs are ignored.
func (s *SQLiteStorage) SaveWindows(ctx context.Context, windows []model.PeriodWindow) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(windows) == 0 {
		return fmt.Errorf("%w: windows", ErrEmptySlice)
	}
	for i := range windows {
		if err := validateWindow(&windows[i]); err != nil {
			return err
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO period_windows (id, granularity, start_date, end_date)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, w := range windows {
			if _, err := stmt.ExecContext(ctx,
				w.ID,
				string(w.Granularity),
				w.Start.Format(calendar.DateLayout),
				w.End.Format(calendar.DateLayout),
			); err != nil {
				return fmt.Errorf("failed to insert window %s: %w", w.ID, err)
			}
		}
		return nil
	})
}

// GetWindow returns the window with the given ID or ErrWindowNotFound.
func (s *SQLiteStorage) GetWindow(ctx context.Context, id string) (*model.PeriodWindow, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, granularity, start_date, end_date
		FROM period_windows
		WHERE id = ?
	`, id)
	w, err := scanWindow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("window %s: %w", id, common.ErrWindowNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get window: %w", err)
	}
	return w, nil
}

// OverlappingWindows returns the windows of one granularity that share at
// least one day with [start, end], ordered by start date.
func (s *SQLiteStorage) OverlappingWindows(ctx context.Context, start, end time.Time, granularity model.Granularity) ([]model.PeriodWindow, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date %v is before start date %v", ErrInvalidDateRange, end, start)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, granularity, start_date, end_date
		FROM period_windows
		WHERE granularity = ? AND end_date >= ? AND start_date <= ?
		ORDER BY start_date ASC
	`, string(granularity), calendar.Day(start).Format(calendar.DateLayout), calendar.Day(end).Format(calendar.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query windows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var windows []model.PeriodWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan window: %w", err)
		}
		windows = append(windows, *w)
	}
	return windows, rows.Err()
}

func scanWindow(row rowScanner) (*model.PeriodWindow, error) {
	var w model.PeriodWindow
	var granularity, start, end string
	if err := row.Scan(&w.ID, &granularity, &start, &end); err != nil {
		return nil, err
	}

	var err error
	if w.Start, err = calendar.ParseDay(start); err != nil {
		return nil, fmt.Errorf("%w: window %s: %w", common.ErrDatabaseCorrupted, w.ID, err)
	}
	if w.End, err = calendar.ParseDay(end); err != nil {
		return nil, fmt.Errorf("%w: window %s: %w", common.ErrDatabaseCorrupted, w.ID, err)
	}
	w.Granularity = model.Granularity(granularity)
	return &w, nil
}
