package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/labelops/backend/internal/domain/shared"
	"github.com/labelops/backend/internal/domain/shared/valueobject"
)

// Aggregate type constants
const (
	AggregateTypeProductionRun     = "ProductionRun"
	AggregateTypeSale              = "Sale"
	AggregateTypeDistributorReturn = "DistributorReturn"
)

// Event type constants
const (
	EventTypeProductionRunRegistered = "ProductionRunRegistered"
	EventTypeInventoryAllocated      = "InventoryAllocated"
	EventTypeSaleRecorded            = "SaleRecorded"
	EventTypeReturnRecorded          = "ReturnRecorded"
	EventTypeProductionRunAdjusted   = "ProductionRunAdjusted"
)

// ProductionRunRegisteredEvent is raised when a manufacturing batch is registered
type ProductionRunRegisteredEvent struct {
	shared.BaseDomainEvent
	ReleaseID uuid.UUID `json:"release_id"`
	Format    Format    `json:"format"`
	Quantity  int64     `json:"quantity"`
}

// NewProductionRunRegisteredEvent creates a new ProductionRunRegisteredEvent
func NewProductionRunRegisteredEvent(run *ProductionRun, at time.Time) *ProductionRunRegisteredEvent {
	return &ProductionRunRegisteredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeProductionRunRegistered, AggregateTypeProductionRun, run.ID, at),
		ReleaseID:       run.ReleaseID,
		Format:          run.Format,
		Quantity:        run.Quantity,
	}
}

// InventoryAllocatedEvent is raised when units are allocated to a distributor
type InventoryAllocatedEvent struct {
	shared.BaseDomainEvent
	AllocationID  uuid.UUID `json:"allocation_id"`
	DistributorID uuid.UUID `json:"distributor_id"`
	Quantity      int64     `json:"quantity"`
	Unallocated   int64     `json:"unallocated"`
}

// NewInventoryAllocatedEvent creates a new InventoryAllocatedEvent
func NewInventoryAllocatedEvent(a *ChannelAllocation, unallocated int64) *InventoryAllocatedEvent {
	return &InventoryAllocatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInventoryAllocated, AggregateTypeProductionRun, a.ProductionRunID, a.AllocatedAt),
		AllocationID:    a.ID,
		DistributorID:   a.DistributorID,
		Quantity:        a.Quantity,
		Unallocated:     unallocated,
	}
}

// SaleRecordedEvent is raised once a sale and its movements are committed
type SaleRecordedEvent struct {
	shared.BaseDomainEvent
	LabelID       uuid.UUID         `json:"label_id"`
	Channel       SaleChannel       `json:"channel"`
	DistributorID *uuid.UUID        `json:"distributor_id,omitempty"`
	Units         int64             `json:"units"`
	TotalAmount   valueobject.Money `json:"total_amount"`
}

// NewSaleRecordedEvent creates a new SaleRecordedEvent
func NewSaleRecordedEvent(s *Sale) *SaleRecordedEvent {
	return &SaleRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSaleRecorded, AggregateTypeSale, s.ID, s.CreatedAt),
		LabelID:         s.LabelID,
		Channel:         s.Channel,
		DistributorID:   s.DistributorID,
		Units:           s.TotalUnits(),
		TotalAmount:     s.TotalAmount,
	}
}

// ReturnRecordedEvent is raised once a distributor return is committed
type ReturnRecordedEvent struct {
	shared.BaseDomainEvent
	LabelID       uuid.UUID `json:"label_id"`
	DistributorID uuid.UUID `json:"distributor_id"`
	Units         int64     `json:"units"`
}

// NewReturnRecordedEvent creates a new ReturnRecordedEvent
func NewReturnRecordedEvent(r *DistributorReturn) *ReturnRecordedEvent {
	return &ReturnRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeReturnRecorded, AggregateTypeDistributorReturn, r.ID, r.CreatedAt),
		LabelID:         r.LabelID,
		DistributorID:   r.DistributorID,
		Units:           r.TotalUnits(),
	}
}

// ProductionRunAdjustedEvent is raised when units are written off or restored
type ProductionRunAdjustedEvent struct {
	shared.BaseDomainEvent
	Delta       int64  `json:"delta"`
	Reason      string `json:"reason,omitempty"`
	Unallocated int64  `json:"unallocated"`
}

// NewProductionRunAdjustedEvent creates a new ProductionRunAdjustedEvent
func NewProductionRunAdjustedEvent(run *ProductionRun, delta int64, reason string, unallocated int64) *ProductionRunAdjustedEvent {
	return &ProductionRunAdjustedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeProductionRunAdjusted, AggregateTypeProductionRun, run.ID, run.UpdatedAt),
		Delta:           delta,
		Reason:          reason,
		Unallocated:     unallocated,
	}
}
