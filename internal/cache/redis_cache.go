package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"optikpos/backend/internal/domain"
)

const versionKey = "dashboard:version"

type RedisDashboardCache struct {
	client redis.UniversalClient
}

func NewRedisDashboardCache(client redis.UniversalClient) *RedisDashboardCache {
	return &RedisDashboardCache{client: client}
}

func (c *RedisDashboardCache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, versionKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return ver, err
}

func key(period domain.Period, anchor string, version int64) string {
	return fmt.Sprintf("dashboard:%s:%s:%d", period, anchor, version)
}

func (c *RedisDashboardCache) Get(ctx context.Context, period domain.Period, anchor string) (*domain.BucketSeries, int64, bool, error) {
	ver, err := c.version(ctx)
	if err != nil {
		return nil, 0, false, err
	}
	val, err := c.client.Get(ctx, key(period, anchor, ver)).Bytes()
	if err == redis.Nil {
		return nil, ver, false, nil
	}
	if err != nil {
		return nil, ver, false, err
	}

	var series domain.BucketSeries
	if err := json.Unmarshal(val, &series); err != nil {
		return nil, ver, false, err
	}
	return &series, ver, true, nil
}

// Set stores value under version, normally the one returned by the Get that missed.
func (c *RedisDashboardCache) Set(ctx context.Context, period domain.Period, anchor string, version int64, value *domain.BucketSeries, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(period, anchor, version), payload, ttl).Err()
}

// Bump moves every key to a new version; old entries expire on their own TTL.
func (c *RedisDashboardCache) Bump(ctx context.Context) error {
	return c.client.Incr(ctx, versionKey).Err()
}
