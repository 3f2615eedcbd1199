package blocklist

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps block entries as JSON values with native TTL, so shared
// deployments agree on expiry without a sweeper.
type RedisStore struct {
	client    *redis.Client
	namespace string
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
		namespace: "sentinel:block",
		timeout:   2 * time.Second,
	}
}

func (s *RedisStore) key(key string) string {
	return fmt.Sprintf("%s:%s", s.namespace, key)
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	val, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal block entry: %w", err)
	}
	// TTL normally handles expiry; the guard covers clock skew between
	// instances.
	if entry.Expired(time.Now()) {
		return nil, nil
	}
	return &entry, nil
}

func (s *RedisStore) Put(ctx context.Context, entry Entry) error {
	if entry.Key == "" || entry.ExpiresAt.IsZero() {
		return ErrInvalidEntry
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal block entry: %w", err)
	}

	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.key(entry.Key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *RedisStore) Active(ctx context.Context) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var entries []Entry
	iter := s.client.Scan(ctx, 0, fmt.Sprintf("%s:*", s.namespace), 100).Iterator()
	now := time.Now()
	for iter.Next(ctx) {
		val, err := s.client.Get(ctx, iter.Val()).Result()
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(val), &entry); err != nil {
			continue
		}
		if !entry.Expired(now) {
			entries = append(entries, entry)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan error: %w", err)
	}
	return entries, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
