package event

import (
	"context"
	"fmt"
	"sync"

	"github.com/labelops/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// BusOptions sizes the asynchronous dispatch pool
type BusOptions struct {
	BufferSize int // queued events before Publish falls back to inline dispatch
	Workers    int
}

type envelope struct {
	ctx   context.Context
	event shared.DomainEvent
}

// InMemoryEventBus fans committed ledger events out to subscribed handlers.
// Before Start and after Stop, Publish dispatches inline on the caller's goroutine.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger
	opts     BusOptions

	mu      sync.RWMutex
	queue   chan envelope
	running bool
	wg      sync.WaitGroup
}

// NewInMemoryEventBus creates a stopped bus
func NewInMemoryEventBus(logger *zap.Logger, opts BusOptions) *InMemoryEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		logger:   logger,
		opts:     opts,
	}
}

// Publish hands events to the worker pool, or dispatches them inline when
// the bus is stopped or its queue is full. Handler failures are logged, never returned.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	for _, ev := range events {
		if !b.enqueue(ctx, ev) {
			b.dispatch(ctx, ev)
		}
	}
	return nil
}

func (b *InMemoryEventBus) enqueue(ctx context.Context, ev shared.DomainEvent) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.running {
		return false
	}
	select {
	case b.queue <- envelope{ctx: context.WithoutCancel(ctx), event: ev}:
		return true
	default:
		b.logger.Warn("Event queue full, dispatching inline", zap.String("event_type", ev.EventType()))
		return false
	}
}

// Subscribe registers handler for eventTypes, or for handler.EventTypes() when none are given
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("Event handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes handler from every event type
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
}

// Start launches the worker pool
func (b *InMemoryEventBus) Start(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}

	b.queue = make(chan envelope, b.opts.BufferSize)
	b.running = true
	for i := 0; i < b.opts.Workers; i++ {
		b.wg.Add(1)
		go b.work(b.queue)
	}
	b.logger.Info("Event bus started", zap.Int("workers", b.opts.Workers), zap.Int("buffer_size", b.opts.BufferSize))
	return nil
}

// Stop drains queued events and waits for the workers, or gives up when ctx ends
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	close(b.queue)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.logger.Info("Event bus stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event bus stop: %w", ctx.Err())
	}
}

func (b *InMemoryEventBus) work(queue <-chan envelope) {
	defer b.wg.Done()
	for env := range queue {
		b.dispatch(env.ctx, env.event)
	}
}

func (b *InMemoryEventBus) dispatch(ctx context.Context, ev shared.DomainEvent) {
	for _, handler := range b.registry.GetHandlers(ev.EventType()) {
		if err := b.safeHandle(ctx, handler, ev); err != nil {
			b.logger.Error("Event handler failed",
				zap.String("event_type", ev.EventType()),
				zap.String("event_id", ev.EventID().String()),
				zap.Error(err),
			)
		}
	}
}

func (b *InMemoryEventBus) safeHandle(ctx context.Context, handler shared.EventHandler, ev shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Handle(ctx, ev)
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
