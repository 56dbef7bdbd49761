package cache

import (
	"context"
	"time"

	"github.com/labelops/backend/internal/domain/shared"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerSettings configures the circuit breaker around a remote store
type BreakerSettings struct {
	Name        string
	MaxFailures uint32        // consecutive failures before the circuit opens
	Timeout     time.Duration // how long the circuit stays open before probing
}

// BreakerIdempotencyStore stops calling an unhealthy store once it has
// failed MaxFailures times in a row. While open, calls fail fast with
// gobreaker.ErrOpenState, which the ledger treats as "not processed".
type BreakerIdempotencyStore struct {
	next    shared.IdempotencyStore
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerIdempotencyStore wraps next with a circuit breaker
func NewBreakerIdempotencyStore(next shared.IdempotencyStore, settings BreakerSettings, logger *zap.Logger) *BreakerIdempotencyStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.Name == "" {
		settings.Name = "idempotency-store"
	}
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if settings.Timeout == 0 {
		settings.Timeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &BreakerIdempotencyStore{next: next, breaker: cb}
}

// MarkProcessed delegates to the wrapped store unless the circuit is open
func (s *BreakerIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	res, err := s.breaker.Execute(func() (interface{}, error) {
		return s.next.MarkProcessed(ctx, key, ttl)
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

// IsProcessed delegates to the wrapped store unless the circuit is open
func (s *BreakerIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	res, err := s.breaker.Execute(func() (interface{}, error) {
		return s.next.IsProcessed(ctx, key)
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

// State reports the breaker state
func (s *BreakerIdempotencyStore) State() gobreaker.State {
	return s.breaker.State()
}

// Close closes the wrapped store
func (s *BreakerIdempotencyStore) Close() error {
	return s.next.Close()
}

var _ shared.IdempotencyStore = (*BreakerIdempotencyStore)(nil)
