package window

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore is the shared CounterStore backend for multi-instance
// deployments. Each key maps to a sorted set whose members are individual
// occurrences scored by nanosecond timestamp, which keeps the window
// semantics identical to MemoryStore: stale members are removed before
// every read.
type RedisStore struct {
	client    *redis.Client
	namespace string
	retention time.Duration
	timeout   time.Duration
}

func NewRedisStore(addr, password string, db int) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisStore{
		client:    rdb,
		namespace: "sentinel:window",
		retention: defaultRetention,
		timeout:   2 * time.Second,
	}
}

// WithRetention raises the retention horizon (and the key TTL) so it
// covers the largest configured counting window. Call during wiring,
// before the store serves requests. Never shrinks.
func (s *RedisStore) WithRetention(retention time.Duration) *RedisStore {
	if retention > s.retention {
		s.retention = retention
	}
	return s
}

func (s *RedisStore) key(key string) string {
	return fmt.Sprintf("%s:%s", s.namespace, key)
}

func (s *RedisStore) Increment(ctx context.Context, key string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := time.Now()
	horizon := now.Add(-s.retention)
	rkey := s.key(key)

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, rkey, "0", fmt.Sprintf("%d", horizon.UnixNano()))
	pipe.ZAdd(ctx, rkey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.New().String(),
	})
	card := pipe.ZCard(ctx, rkey)
	pipe.Expire(ctx, rkey, s.retention)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis increment error: %w", err)
	}
	return int(card.Val()), nil
}

func (s *RedisStore) Count(ctx context.Context, key string, window time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := time.Now()
	cutoff := now.Add(-window)
	rkey := s.key(key)

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, rkey, "0", fmt.Sprintf("%d", now.Add(-s.retention).UnixNano()))
	count := pipe.ZCount(ctx, rkey, fmt.Sprintf("(%d", cutoff.UnixNano()), "+inf")

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis count error: %w", err)
	}
	return int(count.Val()), nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
