package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Veraticus/the-bills-must-flow/internal/service"
)

// UncategorizedName labels obligations without a category in summaries.
const UncategorizedName = "Uncategorized"

// CategoryCache maps category IDs to names for summary rollups. It is owned
// by the caller and refreshed explicitly or when older than its TTL.
type CategoryCache struct {
	loadedAt time.Time
	store    service.CategoryStore
	names    map[int]string
	ttl      time.Duration
	mu       sync.RWMutex
}

// NewCategoryCache creates an empty cache backed by store.
func NewCategoryCache(store service.CategoryStore, ttl time.Duration) *CategoryCache {
	return &CategoryCache{
		store: store,
		ttl:   ttl,
		names: make(map[int]string),
	}
}

// Refresh reloads every category from the store.
func (c *CategoryCache) Refresh(ctx context.Context, now time.Time) error {
	categories, err := c.store.GetCategories(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh category cache: %w", err)
	}

	names := make(map[int]string, len(categories))
	for _, cat := range categories {
		names[cat.ID] = cat.Name
	}

	c.mu.Lock()
	c.names = names
	c.loadedAt = now
	c.mu.Unlock()
	return nil
}

// Stale reports whether the cache needs a refresh at now.
func (c *CategoryCache) Stale(now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt.IsZero() || now.Sub(c.loadedAt) >= c.ttl
}

// Name resolves a category ID, refreshing first when the cache is stale.
// Unknown or zero IDs resolve to UncategorizedName.
func (c *CategoryCache) Name(ctx context.Context, id int, now time.Time) (string, error) {
	if c.Stale(now) {
		if err := c.Refresh(ctx, now); err != nil {
			return "", err
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if name, ok := c.names[id]; ok {
		return name, nil
	}
	return UncategorizedName, nil
}
