package marker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps origin markers in Redis so loop prevention holds across
// multiple API replicas sharing one structured-model change stream.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed marker store.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: "origin:",
		ttl:    ttl,
	}, nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "origin:",
		ttl:    ttl,
	}
}

func (s *RedisStore) key(marker string) string {
	return s.prefix + marker
}

// Record stores a marker with the configured TTL.
func (s *RedisStore) Record(ctx context.Context, marker string) error {
	if err := s.client.Set(ctx, s.key(marker), "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("record origin marker: %w", err)
	}
	return nil
}

// Seen reports whether the marker was recorded and has not expired.
func (s *RedisStore) Seen(ctx context.Context, marker string) (bool, error) {
	_, err := s.client.Get(ctx, s.key(marker)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup origin marker: %w", err)
	}
	return true, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
