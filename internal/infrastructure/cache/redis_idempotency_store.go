package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/labelops/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

// DefaultIdempotencyPrefix namespaces processed command references in Redis
const DefaultIdempotencyPrefix = "ledger:idempotency:"

// RedisIdempotencyStore implements IdempotencyStore using Redis so every
// instance of the service sees the same processed references
type RedisIdempotencyStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisIdempotencyStore creates a store on an existing client
func NewRedisIdempotencyStore(client redis.UniversalClient, keyPrefix string) *RedisIdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = DefaultIdempotencyPrefix
	}
	return &RedisIdempotencyStore{client: client, keyPrefix: keyPrefix}
}

// MarkProcessed records key with SETNX; false means it was already present
func (s *RedisIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark %s processed: %w", key, err)
	}
	return ok, nil
}

// IsProcessed checks if key has been recorded
func (s *RedisIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("check %s processed: %w", key, err)
	}
	return n > 0, nil
}

// Close is a no-op; the client is owned by whoever created it
func (s *RedisIdempotencyStore) Close() error {
	return nil
}

var _ shared.IdempotencyStore = (*RedisIdempotencyStore)(nil)
