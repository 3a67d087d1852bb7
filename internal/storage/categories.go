package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

// GetCategories returns all active categories.
func (s *SQLiteStorage) GetCategories(ctx context.Context) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT id, name, description, type, created_at, is_active
		FROM categories
		WHERE is_active = 1
		ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		var cat model.Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.Description, &cat.Type, &cat.CreatedAt, &cat.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, cat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	slog.Debug("retrieved categories", "count", len(categories))
	return categories, nil
}

// GetCategoryByName returns a category by its name, or nil if none exists.
func (s *SQLiteStorage) GetCategoryByName(ctx context.Context, name string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	query := `
		SELECT id, name, description, type, created_at, is_active
		FROM categories
		WHERE name = ? AND is_active = 1`

	var cat model.Category
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&cat.ID, &cat.Name, &cat.Description, &cat.Type, &cat.CreatedAt, &cat.IsActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query category: %w", err)
	}

	return &cat, nil
}

// CreateCategory creates a new category, reactivating a deactivated one of
// the same name.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, name, description string, categoryType model.CategoryType) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}
	if categoryType == "" {
		categoryType = model.CategoryTypeExpense
	}

	var existing model.Category
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, type, created_at, is_active
		FROM categories
		WHERE name = ?`, name).Scan(
		&existing.ID, &existing.Name, &existing.Description, &existing.Type, &existing.CreatedAt, &existing.IsActive,
	)

	if err == nil {
		if !existing.IsActive {
			if _, err := s.db.ExecContext(ctx,
				`UPDATE categories SET is_active = 1, description = ?, type = ? WHERE id = ?`,
				description, categoryType, existing.ID); err != nil {
				return nil, fmt.Errorf("failed to reactivate category: %w", err)
			}
			existing.IsActive = true
			existing.Description = description
			existing.Type = categoryType
			slog.Info("reactivated existing category", "name", name)
		}
		return &existing, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check existing category: %w", err)
	}

	now := s.now().UTC()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (name, description, type, created_at, is_active)
		VALUES (?, ?, ?, ?, 1)`, name, description, categoryType, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get category ID: %w", err)
	}

	slog.Info("created new category", "name", name, "id", id)
	return &model.Category{
		ID:          int(id),
		Name:        name,
		Description: description,
		Type:        categoryType,
		CreatedAt:   now,
		IsActive:    true,
	}, nil
}

// DeleteCategory deactivates a category. Obligations keep their reference.
func (s *SQLiteStorage) DeleteCategory(ctx context.Context, id int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `UPDATE categories SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted category: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("category %d not found", id)
	}
	return nil
}
