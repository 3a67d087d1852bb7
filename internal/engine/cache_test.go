package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

type countingCategoryStore struct {
	err        error
	categories []model.Category
	calls      int
}

func (s *countingCategoryStore) GetCategories(_ context.Context) ([]model.Category, error) {
	s.calls++
	return s.categories, s.err
}

func (s *countingCategoryStore) GetCategoryByName(_ context.Context, name string) (*model.Category, error) {
	for _, c := range s.categories {
		if c.Name == name {
			return &c, nil
		}
	}
	return nil, nil
}

func (s *countingCategoryStore) CreateCategory(_ context.Context, name, description string, categoryType model.CategoryType) (*model.Category, error) {
	c := model.Category{ID: len(s.categories) + 1, Name: name, Description: description, Type: categoryType}
	s.categories = append(s.categories, c)
	return &c, nil
}

func TestCategoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := &countingCategoryStore{categories: []model.Category{
		{ID: 1, Name: "Housing"},
		{ID: 2, Name: "Utilities"},
	}}
	cache := NewCategoryCache(store, time.Minute)

	assert.True(t, cache.Stale(now))

	name, err := cache.Name(ctx, 1, now)
	require.NoError(t, err)
	assert.Equal(t, "Housing", name)
	assert.Equal(t, 1, store.calls)

	name, err = cache.Name(ctx, 0, now.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, UncategorizedName, name)
	assert.Equal(t, 1, store.calls, "fresh cache must not reload")

	_, err = store.CreateCategory(ctx, "Insurance", "", model.CategoryTypeExpense)
	require.NoError(t, err)

	name, err = cache.Name(ctx, 3, now.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, UncategorizedName, name, "new category invisible until refresh")

	name, err = cache.Name(ctx, 3, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "Insurance", name)
	assert.Equal(t, 2, store.calls)

	require.NoError(t, cache.Refresh(ctx, now.Add(3*time.Minute)))
	assert.Equal(t, 3, store.calls)
	assert.False(t, cache.Stale(now.Add(3*time.Minute)))

	store.err = errors.New("database is locked")
	_, err = cache.Name(ctx, 1, now.Add(time.Hour))
	assert.ErrorContains(t, err, "database is locked")
}
