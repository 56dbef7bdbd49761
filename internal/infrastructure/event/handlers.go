package event

import (
	"context"

	"github.com/labelops/backend/internal/domain/ledger"
	"github.com/labelops/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Unit flow kinds reported to a UnitsRecorder
const (
	UnitsAllocated = "allocated"
	UnitsSold      = "sold"
	UnitsReturned  = "returned"
	UnitsAdjusted  = "adjusted"
)

// LoggingHandler writes every ledger event to the log as JSON
type LoggingHandler struct {
	logger     *zap.Logger
	serializer *Serializer
}

// NewLoggingHandler creates a wildcard logging handler
func NewLoggingHandler(logger *zap.Logger, serializer *Serializer) *LoggingHandler {
	return &LoggingHandler{logger: logger.Named("events"), serializer: serializer}
}

// Handle implements shared.EventHandler
func (h *LoggingHandler) Handle(_ context.Context, ev shared.DomainEvent) error {
	payload, err := h.serializer.Serialize(ev)
	if err != nil {
		return err
	}
	h.logger.Info("Ledger event",
		zap.String("event_type", ev.EventType()),
		zap.String("event_id", ev.EventID().String()),
		zap.String("aggregate_type", ev.AggregateType()),
		zap.String("aggregate_id", ev.AggregateID().String()),
		zap.Time("occurred_at", ev.OccurredAt()),
		zap.ByteString("payload", payload),
	)
	return nil
}

// EventTypes implements shared.EventHandler; nil subscribes to everything
func (h *LoggingHandler) EventTypes() []string {
	return nil
}

// UnitsRecorder counts units moving through the ledger
type UnitsRecorder interface {
	RecordUnits(ctx context.Context, kind string, units int64)
}

// MetricsHandler turns committed ledger events into unit counters
type MetricsHandler struct {
	recorder UnitsRecorder
}

// NewMetricsHandler creates a MetricsHandler
func NewMetricsHandler(recorder UnitsRecorder) *MetricsHandler {
	return &MetricsHandler{recorder: recorder}
}

// Handle implements shared.EventHandler
func (h *MetricsHandler) Handle(ctx context.Context, ev shared.DomainEvent) error {
	switch e := ev.(type) {
	case *ledger.InventoryAllocatedEvent:
		h.recorder.RecordUnits(ctx, UnitsAllocated, e.Quantity)
	case *ledger.SaleRecordedEvent:
		h.recorder.RecordUnits(ctx, UnitsSold, e.Units)
	case *ledger.ReturnRecordedEvent:
		h.recorder.RecordUnits(ctx, UnitsReturned, e.Units)
	case *ledger.ProductionRunAdjustedEvent:
		h.recorder.RecordUnits(ctx, UnitsAdjusted, e.Delta)
	}
	return nil
}

// EventTypes implements shared.EventHandler
func (h *MetricsHandler) EventTypes() []string {
	return []string{
		ledger.EventTypeInventoryAllocated,
		ledger.EventTypeSaleRecorded,
		ledger.EventTypeReturnRecorded,
		ledger.EventTypeProductionRunAdjusted,
	}
}
