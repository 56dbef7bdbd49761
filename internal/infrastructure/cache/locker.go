package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/labelops/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

// DefaultLockPrefix namespaces reference locks in Redis
const DefaultLockPrefix = "ledger:lock:"

// RedisLocker serializes commands across instances with a Redis lock
type RedisLocker struct {
	client *redislock.Client
	prefix string
}

// NewRedisLocker creates a locker on an existing client
func NewRedisLocker(client redis.UniversalClient, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = DefaultLockPrefix
	}
	return &RedisLocker{client: redislock.New(client), prefix: prefix}
}

// Obtain tries once to take key; a held key yields shared.ErrLockNotObtained
func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := l.client.Obtain(ctx, l.prefix+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, shared.ErrLockNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return func(ctx context.Context) error {
		err := lock.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			return nil
		}
		return err
	}, nil
}

// InMemoryLocker is a process-local Locker
type InMemoryLocker struct {
	mu    sync.Mutex
	held  map[string]lockEntry
	clock shared.Clock
	seq   uint64
}

type lockEntry struct {
	token   uint64
	expires time.Time
}

// NewInMemoryLocker creates an empty locker
func NewInMemoryLocker(clock shared.Clock) *InMemoryLocker {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &InMemoryLocker{held: make(map[string]lockEntry), clock: clock}
}

// Obtain takes key until ttl elapses or the release func is called
func (l *InMemoryLocker) Obtain(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if entry, ok := l.held[key]; ok && now.Before(entry.expires) {
		return nil, shared.ErrLockNotObtained
	}
	l.seq++
	token := l.seq
	l.held[key] = lockEntry{token: token, expires: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		// an expired lock may have been taken by someone else
		if entry, ok := l.held[key]; ok && entry.token == token {
			delete(l.held, key)
		}
		return nil
	}, nil
}

var (
	_ shared.Locker = (*RedisLocker)(nil)
	_ shared.Locker = (*InMemoryLocker)(nil)
)
