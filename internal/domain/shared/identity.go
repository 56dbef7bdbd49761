package shared

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// IDGenerator produces primary keys for new entities
type IDGenerator interface {
	NewID() uuid.UUID
}

// Clock supplies the current time for occurredAt/allocatedAt stamps
type Clock interface {
	Now() time.Time
}

// UUIDGenerator generates time-ordered UUIDv7 identifiers
type UUIDGenerator struct{}

// NewID returns a new UUIDv7, falling back to a random UUID
func (UUIDGenerator) NewID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// SystemClock reads the wall clock in UTC
type SystemClock struct{}

// Now returns the current UTC time
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// SequentialIDGenerator hands out deterministic IDs derived from a counter.
// Each instance owns its own sequence.
type SequentialIDGenerator struct {
	mu   sync.Mutex
	next uint64
}

// NewSequentialIDGenerator creates a generator whose first ID encodes start
func NewSequentialIDGenerator(start uint64) *SequentialIDGenerator {
	return &SequentialIDGenerator{next: start}
}

// NewID returns the next ID in the sequence
func (g *SequentialIDGenerator) NewID() uuid.UUID {
	g.mu.Lock()
	n := g.next
	g.next++
	g.mu.Unlock()

	var id uuid.UUID
	for i := 0; i < 8; i++ {
		id[15-i] = byte(n >> (8 * i))
	}
	// Mark as version 4, RFC 4122 variant so the value round-trips through uuid columns.
	id[6] = (id[6] & 0x0f) | 0x40
	id[8] = (id[8] & 0x3f) | 0x80
	return id
}

// FixedClock returns a settable instant. Advance moves it forward.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock creates a clock frozen at t
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

// Now returns the frozen instant
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
