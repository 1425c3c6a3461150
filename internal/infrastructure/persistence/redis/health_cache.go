package redis

import (
	"context"
	"errors"

	"github.com/versant-edu/versant-hub/internal/application/monitoring"
)

// HealthCache caches the assembled system health snapshot. The snapshot is a
// four-query aggregation polled by every open monitoring dashboard, so a
// one-minute TTL absorbs the fan-in without making the view stale.
type HealthCache struct {
	cache *Cache
}

// NewHealthCache creates a new HealthCache.
func NewHealthCache(cache *Cache) *HealthCache {
	return &HealthCache{
		cache: cache,
	}
}

// Get returns the cached snapshot, or (nil, nil) on a miss.
func (c *HealthCache) Get(ctx context.Context) (*monitoring.HealthMetrics, error) {
	var metrics monitoring.HealthMetrics
	err := c.cache.Get(ctx, HealthKey(), &metrics)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &metrics, nil
}

// Set stores a snapshot under the health snapshot TTL.
func (c *HealthCache) Set(ctx context.Context, metrics *monitoring.HealthMetrics) error {
	if metrics == nil {
		return nil
	}
	return c.cache.Set(ctx, HealthKey(), metrics, TTLHealthSnapshot)
}
