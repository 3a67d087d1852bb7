package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-bills-must-flow/internal/calendar"
	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
	"github.com/Veraticus/the-bills-must-flow/internal/service"
)

const recordColumns = `obligation_id, window_id, granularity, window_start, window_end,
	obligation_name, direction, status, occurrences, transaction_ids, transaction_splits,
	amount_per_occurrence, total_amount_due, total_amount_paid, total_amount_unpaid,
	total_amount_overpaid, daily_rate, occurrence_count, is_active, is_fully_paid,
	is_partially_paid, version, updated_at`

// occurrenceRow is the stored form of one occurrence slot.
type occurrenceRow struct {
	DueDate       string            `json:"due_date"`
	TransactionID string            `json:"transaction_id,omitempty"`
	PaymentType   model.PaymentType `json:"payment_type,omitempty"`
	Amount        float64           `json:"amount"`
	Paid          bool              `json:"paid"`
}

// GetPeriodRecord returns the record for key or ErrNotFound.
func (s *SQLiteStorage) GetPeriodRecord(ctx context.Context, key model.RecordKey) (*model.PeriodRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getPeriodRecord(ctx, s.db, key)
}

func (s *SQLiteStorage) getPeriodRecord(ctx context.Context, q queryable, key model.RecordKey) (*model.PeriodRecord, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM period_records
		WHERE obligation_id = ? AND window_id = ?
	`, key.ObligationID, key.WindowID)

	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", key, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get period record: %w", err)
	}
	return r, nil
}

// ListPeriodRecords returns the records of an obligation whose windows
// overlap the filter range. An empty obligationID lists every obligation.
func (s *SQLiteStorage) ListPeriodRecords(ctx context.Context, obligationID string, filter service.RecordFilter) ([]model.PeriodRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + recordColumns + ` FROM period_records WHERE 1=1`
	var args []any

	if obligationID != "" {
		query += " AND obligation_id = ?"
		args = append(args, obligationID)
	}
	if filter.Granularity != "" {
		query += " AND granularity = ?"
		args = append(args, string(filter.Granularity))
	}
	if filter.Start != nil {
		query += " AND window_end >= ?"
		args = append(args, calendar.Day(*filter.Start).Format(calendar.DateLayout))
	}
	if filter.End != nil {
		query += " AND window_start <= ?"
		args = append(args, calendar.Day(*filter.End).Format(calendar.DateLayout))
	}
	query += " ORDER BY obligation_id ASC, granularity ASC, window_start ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query period records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.PeriodRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan period record: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// CommitAtomic writes every mutation in one database transaction. Each
// mutation carries the version its writer read; if the stored version has
// moved on, nothing is written and ErrCommitConflict is returned. On success
// the records' Version and UpdatedAt are advanced in place.
func (s *SQLiteStorage) CommitAtomic(ctx context.Context, mutations []model.RecordMutation) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(mutations) == 0 {
		return nil
	}
	for i := range mutations {
		if err := validateMutation(&mutations[i]); err != nil {
			return err
		}
	}

	now := s.now().UTC()
	versions := make([]int64, len(mutations))

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for i, m := range mutations {
			key := m.Record.Key()

			var current int64
			err := tx.QueryRowContext(ctx,
				`SELECT version FROM period_records WHERE obligation_id = ? AND window_id = ?`,
				key.ObligationID, key.WindowID,
			).Scan(&current)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("failed to read version of %s: %w", key, err)
			}
			if current != m.ExpectedVersion {
				return fmt.Errorf("record %s expected version %d, found %d: %w",
					key, m.ExpectedVersion, current, common.ErrCommitConflict)
			}

			versions[i] = current + 1
			if err := upsertRecord(ctx, tx, m.Record, versions[i], now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for i := range mutations {
		mutations[i].Record.Version = versions[i]
		mutations[i].Record.UpdatedAt = now
	}
	slog.Debug("Committed period records", "count", len(mutations))
	return nil
}

func upsertRecord(ctx context.Context, q queryable, r *model.PeriodRecord, version int64, now time.Time) error {
	occurrences := make([]occurrenceRow, len(r.OccurrenceDueDates))
	for i, due := range r.OccurrenceDueDates {
		occurrences[i] = occurrenceRow{
			DueDate:       calendar.Day(due).Format(calendar.DateLayout),
			Paid:          r.OccurrencePaidFlags[i],
			TransactionID: r.OccurrenceTransactionIDs[i],
			Amount:        r.OccurrenceAmounts[i],
			PaymentType:   r.OccurrencePaymentTypes[i],
		}
	}

	occJSON, err := json.Marshal(occurrences)
	if err != nil {
		return fmt.Errorf("failed to encode occurrences: %w", err)
	}
	txnJSON, err := marshalIDs(r.TransactionIDs)
	if err != nil {
		return err
	}
	splitJSON, err := marshalIDs(r.TransactionSplits)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO period_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(obligation_id, window_id) DO UPDATE SET
			granularity = excluded.granularity,
			window_start = excluded.window_start,
			window_end = excluded.window_end,
			obligation_name = excluded.obligation_name,
			direction = excluded.direction,
			status = excluded.status,
			occurrences = excluded.occurrences,
			transaction_ids = excluded.transaction_ids,
			transaction_splits = excluded.transaction_splits,
			amount_per_occurrence = excluded.amount_per_occurrence,
			total_amount_due = excluded.total_amount_due,
			total_amount_paid = excluded.total_amount_paid,
			total_amount_unpaid = excluded.total_amount_unpaid,
			total_amount_overpaid = excluded.total_amount_overpaid,
			daily_rate = excluded.daily_rate,
			occurrence_count = excluded.occurrence_count,
			is_active = excluded.is_active,
			is_fully_paid = excluded.is_fully_paid,
			is_partially_paid = excluded.is_partially_paid,
			version = excluded.version,
			updated_at = excluded.updated_at
	`,
		r.ObligationID,
		r.WindowID,
		string(r.Granularity),
		calendar.Day(r.WindowStart).Format(calendar.DateLayout),
		calendar.Day(r.WindowEnd).Format(calendar.DateLayout),
		r.ObligationName,
		string(r.Direction),
		string(r.Status),
		string(occJSON),
		txnJSON,
		splitJSON,
		r.AmountPerOccurrence,
		r.TotalAmountDue,
		r.TotalAmountPaid,
		r.TotalAmountUnpaid,
		r.TotalAmountOverpaid,
		r.DailyRate,
		r.OccurrenceCount,
		r.IsActive,
		r.IsFullyPaid,
		r.IsPartiallyPaid,
		version,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to write period record %s: %w", r.Key(), err)
	}
	return nil
}

func scanRecord(row rowScanner) (*model.PeriodRecord, error) {
	var r model.PeriodRecord
	var granularity, start, end, direction, status string
	var occJSON, txnJSON, splitJSON string

	if err := row.Scan(
		&r.ObligationID,
		&r.WindowID,
		&granularity,
		&start,
		&end,
		&r.ObligationName,
		&direction,
		&status,
		&occJSON,
		&txnJSON,
		&splitJSON,
		&r.AmountPerOccurrence,
		&r.TotalAmountDue,
		&r.TotalAmountPaid,
		&r.TotalAmountUnpaid,
		&r.TotalAmountOverpaid,
		&r.DailyRate,
		&r.OccurrenceCount,
		&r.IsActive,
		&r.IsFullyPaid,
		&r.IsPartiallyPaid,
		&r.Version,
		&r.UpdatedAt,
	); err != nil {
		return nil, err
	}

	r.Granularity = model.Granularity(granularity)
	r.Direction = model.Direction(direction)
	r.Status = model.PaymentStatus(status)

	var err error
	if r.WindowStart, err = calendar.ParseDay(start); err != nil {
		return nil, fmt.Errorf("%w: record %s: %w", common.ErrDatabaseCorrupted, r.Key(), err)
	}
	if r.WindowEnd, err = calendar.ParseDay(end); err != nil {
		return nil, fmt.Errorf("%w: record %s: %w", common.ErrDatabaseCorrupted, r.Key(), err)
	}

	var occurrences []occurrenceRow
	if err := json.Unmarshal([]byte(occJSON), &occurrences); err != nil {
		return nil, fmt.Errorf("%w: record %s occurrences: %w", common.ErrDatabaseCorrupted, r.Key(), err)
	}
	due := make([]time.Time, len(occurrences))
	for i, o := range occurrences {
		if due[i], err = calendar.ParseDay(o.DueDate); err != nil {
			return nil, fmt.Errorf("%w: record %s: %w", common.ErrDatabaseCorrupted, r.Key(), err)
		}
	}
	count := r.OccurrenceCount
	r.SetOccurrences(due)
	if count != r.OccurrenceCount {
		return nil, fmt.Errorf("%w: record %s stores %d occurrences but counts %d",
			common.ErrDatabaseCorrupted, r.Key(), r.OccurrenceCount, count)
	}
	for i, o := range occurrences {
		r.OccurrencePaidFlags[i] = o.Paid
		r.OccurrenceTransactionIDs[i] = o.TransactionID
		r.OccurrenceAmounts[i] = o.Amount
		r.OccurrencePaymentTypes[i] = o.PaymentType
	}

	if r.TransactionIDs, err = unmarshalIDs(txnJSON); err != nil {
		return nil, fmt.Errorf("%w: record %s: %w", common.ErrDatabaseCorrupted, r.Key(), err)
	}
	if r.TransactionSplits, err = unmarshalIDs(splitJSON); err != nil {
		return nil, fmt.Errorf("%w: record %s: %w", common.ErrDatabaseCorrupted, r.Key(), err)
	}
	return &r, nil
}

func marshalIDs(ids []string) (string, error) {
	if len(ids) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("failed to encode ids: %w", err)
	}
	return string(b), nil
}

func unmarshalIDs(s string) ([]string, error) {
	var ids []string
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids, nil
}
