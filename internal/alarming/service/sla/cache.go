package sla

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ispops/faultline/internal/alarming/model"
	"github.com/redis/go-redis/v9"
)

const cachePrefix = "sla:compliance:"

// cacheKey builds the cache identity of one timeseries query. The tenant sits
// right after the prefix so invalidation can match every key of one tenant.
func cacheKey(tenantID, customerID string, start, end time.Time, targetPct float64, excludeMaintenance bool) string {
	return fmt.Sprintf("%s%s:%s:%s:%s:%.4f:%t",
		cachePrefix, tenantID, customerID, start.Format("2006-01-02"), end.Format("2006-01-02"), targetPct, excludeMaintenance)
}

// RedisCache stores compliance series as JSON values under a short TTL.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache { return &RedisCache{rdb: rdb} }

func (c *RedisCache) Get(ctx context.Context, key string) ([]model.ComplianceDay, bool, error) {
	if c.rdb == nil {
		return nil, false, nil
	}
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	var days []model.ComplianceDay
	if err := json.Unmarshal([]byte(val), &days); err != nil {
		// Stale or corrupt entry; treat as a miss.
		return nil, false, nil
	}
	return days, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, days []model.ComplianceDay, ttl time.Duration) error {
	if c.rdb == nil {
		return nil
	}
	data, err := json.Marshal(days)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// InvalidateTenant scans and deletes every compliance key of the tenant.
func (c *RedisCache) InvalidateTenant(ctx context.Context, tenantID string) error {
	if c.rdb == nil {
		return nil
	}
	pattern := cachePrefix + tenantID + ":*"
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("cache invalidate: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan: %w", err)
	}
	return nil
}

// NoopCache disables caching, used when redis is not configured.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) ([]model.ComplianceDay, bool, error) {
	return nil, false, nil
}
func (NoopCache) Set(context.Context, string, []model.ComplianceDay, time.Duration) error { return nil }
func (NoopCache) InvalidateTenant(context.Context, string) error                          { return nil }
