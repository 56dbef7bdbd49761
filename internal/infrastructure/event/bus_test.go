package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labelops/backend/internal/domain/ledger"
	"github.com/labelops/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var eventTime = time.Date(2024, 9, 2, 9, 30, 0, 0, time.UTC)

type recordingHandler struct {
	eventTypes []string
	err        error
	panicWith  any

	mu      sync.Mutex
	handled []shared.DomainEvent
}

func (h *recordingHandler) Handle(_ context.Context, ev shared.DomainEvent) error {
	if h.panicWith != nil {
		panic(h.panicWith)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, ev)
	return h.err
}

func (h *recordingHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func saleEvent(units int64) *ledger.SaleRecordedEvent {
	return &ledger.SaleRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(ledger.EventTypeSaleRecorded, ledger.AggregateTypeSale, uuid.New(), eventTime),
		LabelID:         uuid.New(),
		Channel:         ledger.SaleChannelDirect,
		Units:           units,
	}
}

func allocatedEvent(quantity int64) *ledger.InventoryAllocatedEvent {
	return &ledger.InventoryAllocatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(ledger.EventTypeInventoryAllocated, ledger.AggregateTypeProductionRun, uuid.New(), eventTime),
		AllocationID:    uuid.New(),
		DistributorID:   uuid.New(),
		Quantity:        quantity,
	}
}

func TestInMemoryEventBus_InlineDispatch(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), BusOptions{})

	sales := &recordingHandler{eventTypes: []string{ledger.EventTypeSaleRecorded}}
	everything := &recordingHandler{}
	bus.Subscribe(sales)
	bus.Subscribe(everything)

	require.NoError(t, bus.Publish(context.Background(), saleEvent(3), allocatedEvent(10)))

	assert.Equal(t, 1, sales.count())
	assert.Equal(t, 2, everything.count())

	bus.Unsubscribe(sales)
	require.NoError(t, bus.Publish(context.Background(), saleEvent(1)))
	assert.Equal(t, 1, sales.count())
	assert.Equal(t, 3, everything.count())
}

func TestInMemoryEventBus_HandlerFailuresAreIsolated(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), BusOptions{})

	failing := &recordingHandler{err: errors.New("boom")}
	panicking := &recordingHandler{panicWith: "handler bug"}
	healthy := &recordingHandler{}
	bus.Subscribe(failing)
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	assert.NoError(t, bus.Publish(context.Background(), saleEvent(1)))
	assert.Equal(t, 1, failing.count())
	assert.Equal(t, 1, healthy.count())
}

func TestInMemoryEventBus_Workers(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), BusOptions{BufferSize: 64, Workers: 4})
	handler := &recordingHandler{}
	bus.Subscribe(handler)

	require.NoError(t, bus.Start(context.Background()))
	require.NoError(t, bus.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 50; i++ {
		require.NoError(t, bus.Publish(ctx, saleEvent(1)))
	}
	// queued events outlive the request context
	cancel()

	require.NoError(t, bus.Stop(context.Background()))
	assert.Equal(t, 50, handler.count())

	// stopped bus dispatches inline
	require.NoError(t, bus.Publish(context.Background(), saleEvent(1)))
	assert.Equal(t, 51, handler.count())
	assert.NoError(t, bus.Stop(context.Background()))
}

func TestHandlerRegistry(t *testing.T) {
	r := NewHandlerRegistry()
	a := &recordingHandler{}
	b := &recordingHandler{}

	r.Register(a, ledger.EventTypeSaleRecorded, ledger.EventTypeReturnRecorded)
	r.Register(b)

	assert.Equal(t, []shared.EventHandler{a, b}, r.GetHandlers(ledger.EventTypeSaleRecorded))
	assert.Equal(t, []shared.EventHandler{b}, r.GetHandlers(ledger.EventTypeInventoryAllocated))

	r.Unregister(a)
	assert.Equal(t, []shared.EventHandler{b}, r.GetHandlers(ledger.EventTypeSaleRecorded))
	assert.NotContains(t, r.handlers, ledger.EventTypeReturnRecorded)
}
