// Package dedupe tracks webhook delivery GUIDs so replayed deliveries can
// be short-circuited. The store is best-effort: when redis is absent the
// ingester simply processes every delivery, which is safe because the
// upsert path is idempotent.
package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore remembers delivery GUIDs with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

const defaultDeliveryTTL = 24 * time.Hour

func NewRedisStore(redisURL string) (*RedisStore, error) {
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

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient wraps an existing client (used by tests).
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "delivery:",
		ttl:    defaultDeliveryTTL,
	}
}

// Seen records the GUID and reports whether it had been recorded before.
func (s *RedisStore) Seen(ctx context.Context, deliveryGUID string) (bool, error) {
	if deliveryGUID == "" {
		return false, nil
	}
	created, err := s.client.SetNX(ctx, s.prefix+deliveryGUID, time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("record delivery guid: %w", err)
	}
	return !created, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
