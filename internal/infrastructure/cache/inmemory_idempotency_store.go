package cache

import (
	"context"
	"sync"
	"time"

	"github.com/labelops/backend/internal/domain/shared"
)

// InMemoryIdempotencyStore implements IdempotencyStore with a map.
// It only deduplicates within one process.
type InMemoryIdempotencyStore struct {
	mu        sync.Mutex
	expiries  map[string]time.Time
	clock     shared.Clock
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryIdempotencyStore creates a store that sweeps expired keys every sweepEvery.
// A zero sweepEvery disables the background sweep.
func NewInMemoryIdempotencyStore(clock shared.Clock, sweepEvery time.Duration) *InMemoryIdempotencyStore {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	s := &InMemoryIdempotencyStore{
		expiries: make(map[string]time.Time),
		clock:    clock,
		stop:     make(chan struct{}),
	}
	if sweepEvery > 0 {
		s.wg.Add(1)
		go s.sweepLoop(sweepEvery)
	}
	return s
}

// MarkProcessed records key until ttl elapses; false means it was already present
func (s *InMemoryIdempotencyStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if exp, ok := s.expiries[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.expiries[key] = now.Add(ttl)
	return true, nil
}

// IsProcessed checks if key is recorded and unexpired
func (s *InMemoryIdempotencyStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.expiries[key]
	return ok && s.clock.Now().Before(exp), nil
}

// Close stops the sweeper. Safe to call multiple times.
func (s *InMemoryIdempotencyStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
	return nil
}

// Len returns the number of keys held, expired or not
func (s *InMemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expiries)
}

func (s *InMemoryIdempotencyStore) sweepLoop(every time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *InMemoryIdempotencyStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	for key, exp := range s.expiries {
		if !now.Before(exp) {
			delete(s.expiries, key)
		}
	}
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
