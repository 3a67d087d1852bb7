package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
	"github.com/Veraticus/the-bills-must-flow/internal/service"
)

const transactionColumns = `id, hash, date, name, merchant_name, amount, account_id, transaction_type, check_number`

// SaveTransactions saves multiple transactions to the database. Transactions
// already present (by ID or hash) are left untouched.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactions(transactions); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO transactions (`+transactionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, txn := range transactions {
			if txn.Hash == "" {
				txn.Hash = txn.GenerateHash()
			}
			_, err = stmt.ExecContext(ctx,
				txn.ID,
				txn.Hash,
				txn.Date.UTC(),
				txn.Name,
				txn.MerchantName,
				txn.Amount,
				txn.AccountID,
				txn.Type,
				txn.CheckNumber,
			)
			if err != nil {
				return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
			}
		}
		return nil
	})
}

// GetTransactionByID retrieves a single transaction by ID.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// FetchTransactionsByIDs returns the transactions with the given IDs ordered
// by date. Unknown IDs are skipped.
func (s *SQLiteStorage) FetchTransactionsByIDs(ctx context.Context, ids []string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id IN (`+placeholders+`)
		ORDER BY date ASC, id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	txns, err := scanTransactions(rows)
	if err != nil {
		return nil, err
	}
	if len(txns) != len(ids) {
		slog.Debug("Some transactions were not found",
			"requested", len(ids),
			"found", len(txns))
	}
	return txns, nil
}

// GetTransactions retrieves transactions matching the filter.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return nil, fmt.Errorf("%w: end date %v is before start date %v", ErrInvalidDateRange, *filter.EndDate, *filter.StartDate)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	var args []any

	if filter.StartDate != nil {
		query += " AND date >= ?"
		args = append(args, filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		query += " AND date <= ?"
		args = append(args, filter.EndDate.UTC())
	}

	query += " ORDER BY date ASC, id ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanTransactions(rows)
}

// AssignTransaction gives an obligation exclusive ownership of a transaction.
// Reassigning to the same obligation is a no-op; assigning a transaction that
// belongs to another obligation fails with ErrAlreadyAssigned.
func (s *SQLiteStorage) AssignTransaction(ctx context.Context, transactionID, obligationID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return err
	}
	if err := validateString(obligationID, "obligationID"); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx,
			`SELECT obligation_id FROM transaction_splits WHERE transaction_id = ?`, transactionID,
		).Scan(&owner)
		switch {
		case err == nil && owner == obligationID:
			return nil
		case err == nil:
			return fmt.Errorf("transaction %s belongs to %s: %w", transactionID, owner, common.ErrAlreadyAssigned)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to check split: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO transaction_splits (transaction_id, obligation_id, assigned_at)
			VALUES (?, ?, ?)
		`, transactionID, obligationID, s.now().UTC()); err != nil {
			return fmt.Errorf("failed to assign transaction %s: %w", transactionID, err)
		}
		return nil
	})
}

// UnassignTransaction removes a transaction's split and returns the
// obligation that owned it.
func (s *SQLiteStorage) UnassignTransaction(ctx context.Context, transactionID string) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return "", err
	}

	var owner string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT obligation_id FROM transaction_splits WHERE transaction_id = ?`, transactionID,
		).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("split for transaction %s: %w", transactionID, common.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check split: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM transaction_splits WHERE transaction_id = ?`, transactionID); err != nil {
			return fmt.Errorf("failed to unassign transaction %s: %w", transactionID, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return owner, nil
}

// GetSplit returns the obligation assignment of a transaction.
func (s *SQLiteStorage) GetSplit(ctx context.Context, transactionID string) (*model.TransactionSplit, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var split model.TransactionSplit
	err := s.db.QueryRowContext(ctx, `
		SELECT transaction_id, obligation_id, assigned_at
		FROM transaction_splits
		WHERE transaction_id = ?
	`, transactionID).Scan(&split.TransactionID, &split.ObligationID, &split.AssignedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("split for transaction %s: %w", transactionID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get split: %w", err)
	}
	return &split, nil
}

func (s *SQLiteStorage) splitTransactionIDs(ctx context.Context, q queryable, obligationID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT ts.transaction_id
		FROM transaction_splits ts
		JOIN transactions t ON t.id = ts.transaction_id
		WHERE ts.obligation_id = ?
		ORDER BY t.date ASC, t.id ASC
	`, obligationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query splits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan split: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var txn model.Transaction
	var merchant, account, txType, checkNum sql.NullString

	if err := row.Scan(
		&txn.ID,
		&txn.Hash,
		&txn.Date,
		&txn.Name,
		&merchant,
		&txn.Amount,
		&account,
		&txType,
		&checkNum,
	); err != nil {
		return nil, err
	}

	txn.MerchantName = merchant.String
	txn.AccountID = account.String
	txn.Type = txType.String
	txn.CheckNumber = checkNum.String
	return &txn, nil
}

func scanTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *txn)
	}
	return transactions, rows.Err()
}
