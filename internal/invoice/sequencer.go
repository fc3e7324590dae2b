package invoice

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"optikpos/backend/internal/store"
)

// StoreSequencer keeps counters next to the orders in the repository.
type StoreSequencer struct {
	counters store.CounterStore
}

func NewStoreSequencer(counters store.CounterStore) *StoreSequencer {
	return &StoreSequencer{counters: counters}
}

func (s *StoreSequencer) Next(ctx context.Context, year int, seed int) (int, error) {
	return s.counters.NextOrderSequence(ctx, year, seed)
}

// RedisSequencer keeps one INCR counter per year. It lets several API
// replicas share numbering without a database round trip per order.
type RedisSequencer struct {
	client redis.UniversalClient
}

func NewRedisSequencer(client redis.UniversalClient) *RedisSequencer {
	return &RedisSequencer{client: client}
}

func redisKey(year int) string {
	return fmt.Sprintf("invoice:seq:%d", year)
}

func (s *RedisSequencer) Next(ctx context.Context, year int, seed int) (int, error) {
	key := redisKey(year)
	if seed > 0 {
		if err := s.client.SetNX(ctx, key, seed, 0).Err(); err != nil {
			return 0, fmt.Errorf("%w: seed invoice counter: %w", store.ErrStorage, err)
		}
	}
	value, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: increment invoice counter: %w", store.ErrStorage, err)
	}
	return int(value), nil
}
