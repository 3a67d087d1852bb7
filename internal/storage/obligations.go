package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/the-bills-must-flow/internal/calendar"
	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

const obligationColumns = `id, owner_id, custom_name, frequency, direction, amount, reference_date, category_id, is_active, created_at, updated_at`

// SaveObligation inserts or updates an obligation definition. The
// obligation's transaction list is derived from transaction splits and is
// not written here.
func (s *SQLiteStorage) SaveObligation(ctx context.Context, o *model.Obligation) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if o == nil {
		return fmt.Errorf("%w: obligation", ErrNilParameter)
	}
	if err := validateString(o.ID, "obligation.ID"); err != nil {
		return err
	}
	if !o.Frequency.IsValid() {
		return fmt.Errorf("%w: unknown frequency %q", common.ErrInvalidObligation, o.Frequency)
	}
	if o.ReferenceDate.IsZero() {
		return fmt.Errorf("%w: missing reference date", common.ErrInvalidObligation)
	}

	now := s.now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	var categoryID sql.NullInt64
	if o.CategoryID > 0 {
		categoryID = sql.NullInt64{Int64: int64(o.CategoryID), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO obligations (`+obligationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			custom_name = excluded.custom_name,
			frequency = excluded.frequency,
			direction = excluded.direction,
			amount = excluded.amount,
			reference_date = excluded.reference_date,
			category_id = excluded.category_id,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`,
		o.ID,
		o.OwnerID,
		o.CustomName,
		string(o.Frequency),
		string(o.Direction),
		o.Amount,
		calendar.Day(o.ReferenceDate).Format(calendar.DateLayout),
		categoryID,
		o.IsActive,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save obligation %s: %w", o.ID, err)
	}
	return nil
}

// GetObligation returns an obligation with its assigned transaction IDs.
func (s *SQLiteStorage) GetObligation(ctx context.Context, id string) (*model.Obligation, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+obligationColumns+` FROM obligations WHERE id = ?`, id)
	o, err := scanObligation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("obligation %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get obligation: %w", err)
	}

	o.TransactionIDs, err = s.splitTransactionIDs(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ListObligations returns obligations ordered by ID.
func (s *SQLiteStorage) ListObligations(ctx context.Context, activeOnly bool) ([]model.Obligation, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + obligationColumns + ` FROM obligations`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query obligations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var obligations []model.Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan obligation: %w", err)
		}
		obligations = append(obligations, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating obligations: %w", err)
	}

	for i := range obligations {
		ids, err := s.splitTransactionIDs(ctx, s.db, obligations[i].ID)
		if err != nil {
			return nil, err
		}
		obligations[i].TransactionIDs = ids
	}
	return obligations, nil
}

func scanObligation(row rowScanner) (*model.Obligation, error) {
	var o model.Obligation
	var frequency, direction, reference string
	var categoryID sql.NullInt64

	if err := row.Scan(
		&o.ID,
		&o.OwnerID,
		&o.CustomName,
		&frequency,
		&direction,
		&o.Amount,
		&reference,
		&categoryID,
		&o.IsActive,
		&o.CreatedAt,
		&o.UpdatedAt,
	); err != nil {
		return nil, err
	}

	ref, err := calendar.ParseDay(strings.TrimSpace(reference))
	if err != nil {
		return nil, fmt.Errorf("%w: obligation %s reference date %q", common.ErrDatabaseCorrupted, o.ID, reference)
	}
	o.ReferenceDate = ref
	o.Frequency = model.Frequency(frequency)
	o.Direction = model.Direction(direction)
	if categoryID.Valid {
		o.CategoryID = int(categoryID.Int64)
	}
	return &o, nil
}
