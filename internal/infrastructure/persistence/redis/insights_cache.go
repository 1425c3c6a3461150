package redis

import (
	"context"
	"errors"

	"github.com/versant-edu/versant-hub/internal/application/progress"
)

// InsightsCache caches assembled student insight reports. It satisfies
// progress.InsightsInvalidator so the manager can drop a student's entry on
// every progress write.
type InsightsCache struct {
	cache *Cache
}

// NewInsightsCache creates a new InsightsCache.
func NewInsightsCache(cache *Cache) *InsightsCache {
	return &InsightsCache{
		cache: cache,
	}
}

// Get returns the cached report, or (nil, nil) on a miss.
func (c *InsightsCache) Get(ctx context.Context, studentID string) (*progress.Insights, error) {
	var ins progress.Insights
	err := c.cache.Get(ctx, InsightsKey(studentID), &ins)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &ins, nil
}

// Set stores a report under the standard insights TTL.
func (c *InsightsCache) Set(ctx context.Context, studentID string, ins *progress.Insights) error {
	if ins == nil {
		return nil
	}
	return c.cache.Set(ctx, InsightsKey(studentID), ins, TTLInsights)
}

// Invalidate drops a student's cached report. Best-effort: a failed delete
// only means one stale read until the TTL expires.
func (c *InsightsCache) Invalidate(ctx context.Context, studentID string) {
	_ = c.cache.Delete(ctx, InsightsKey(studentID))
}
