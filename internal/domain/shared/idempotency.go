package shared

import (
	"context"
	"errors"
	"time"
)

// IdempotencyStore remembers which command references have been committed.
// It is a fast path only; the ledger's unique reference constraint is authoritative.
type IdempotencyStore interface {
	// MarkProcessed marks a key as processed with a TTL
	// Returns true if the key was newly marked, false if it was already processed
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key has already been processed
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long processed keys are remembered. Default: 24 hours
	TTL time.Duration
	// Enabled toggles the fast-path check. Default: true
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}

// ErrLockNotObtained is returned by a Locker when the key is held elsewhere
var ErrLockNotObtained = errors.New("lock not obtained")

// Locker guards a key for the duration of one command.
type Locker interface {
	// Obtain acquires key for at most ttl. The returned release func is safe to call once.
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}
