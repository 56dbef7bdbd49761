package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/labelops/backend/internal/domain/ledger"
)

// ProductionRunModel is the persistence model for the ProductionRun aggregate root.
type ProductionRunModel struct {
	AggregateModel
	ReleaseID         uuid.UUID `gorm:"type:uuid;not null;index:idx_production_runs_product,priority:1"`
	Format            string    `gorm:"type:varchar(16);not null;index:idx_production_runs_product,priority:2"`
	Description       string    `gorm:"type:varchar(500)"`
	Manufacturer      string    `gorm:"type:varchar(200)"`
	ManufacturingDate time.Time `gorm:"not null"`
	Quantity          int64     `gorm:"not null;check:chk_production_runs_quantity,quantity >= 0"`
	DirectUnitsSold   int64     `gorm:"not null;default:0"`
	Adjustment        int64     `gorm:"not null;default:0;check:chk_production_runs_adjustment,adjustment <= 0"`
}

// TableName returns the table name for GORM
func (ProductionRunModel) TableName() string {
	return "production_runs"
}

// ToDomain converts the persistence model to a domain ProductionRun.
func (m *ProductionRunModel) ToDomain() *ledger.ProductionRun {
	return &ledger.ProductionRun{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		ReleaseID:         m.ReleaseID,
		Format:            ledger.Format(m.Format),
		Description:       m.Description,
		Manufacturer:      m.Manufacturer,
		ManufacturingDate: m.ManufacturingDate,
		Quantity:          m.Quantity,
		DirectUnitsSold:   m.DirectUnitsSold,
		Adjustment:        m.Adjustment,
	}
}

// FromDomain populates the persistence model from a domain ProductionRun.
func (m *ProductionRunModel) FromDomain(r *ledger.ProductionRun) {
	m.FromDomainAggregateRoot(r.BaseAggregateRoot)
	m.ReleaseID = r.ReleaseID
	m.Format = string(r.Format)
	m.Description = r.Description
	m.Manufacturer = r.Manufacturer
	m.ManufacturingDate = r.ManufacturingDate
	m.Quantity = r.Quantity
	m.DirectUnitsSold = r.DirectUnitsSold
	m.Adjustment = r.Adjustment
}

// ProductionRunModelFromDomain creates a new persistence model from a domain ProductionRun.
func ProductionRunModelFromDomain(r *ledger.ProductionRun) *ProductionRunModel {
	m := &ProductionRunModel{}
	m.FromDomain(r)
	return m
}

// ChannelAllocationModel is the persistence model for the ChannelAllocation entity.
type ChannelAllocationModel struct {
	BaseModel
	ProductionRunID uuid.UUID `gorm:"type:uuid;not null;index"`
	DistributorID   uuid.UUID `gorm:"type:uuid;not null;index"`
	Quantity        int64     `gorm:"not null;check:chk_channel_allocations_quantity,quantity > 0"`
	UnitsSold       int64     `gorm:"not null;default:0;check:chk_channel_allocations_units_sold,units_sold >= 0 AND units_sold <= quantity"`
	AllocatedAt     time.Time `gorm:"not null;index"`
	Version         int       `gorm:"not null;default:1"`
}

// TableName returns the table name for GORM
func (ChannelAllocationModel) TableName() string {
	return "channel_allocations"
}

// ToDomain converts the persistence model to a domain ChannelAllocation.
func (m *ChannelAllocationModel) ToDomain() *ledger.ChannelAllocation {
	return &ledger.ChannelAllocation{
		BaseEntity:      m.BaseModel.ToDomain(),
		ProductionRunID: m.ProductionRunID,
		DistributorID:   m.DistributorID,
		Quantity:        m.Quantity,
		UnitsSold:       m.UnitsSold,
		AllocatedAt:     m.AllocatedAt,
		Version:         m.Version,
	}
}

// FromDomain populates the persistence model from a domain ChannelAllocation.
func (m *ChannelAllocationModel) FromDomain(a *ledger.ChannelAllocation) {
	m.FromDomainBaseEntity(a.BaseEntity)
	m.ProductionRunID = a.ProductionRunID
	m.DistributorID = a.DistributorID
	m.Quantity = a.Quantity
	m.UnitsSold = a.UnitsSold
	m.AllocatedAt = a.AllocatedAt
	m.Version = a.Version
}

// InventoryMovementModel is one row of the append-only ledger. Position
// preserves insertion order; (movement_type, reference_id, sequence) is
// unique so a command can never be recorded twice.
type InventoryMovementModel struct {
	Position        int64      `gorm:"primaryKey;autoIncrement"`
	ID              uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex"`
	ProductionRunID uuid.UUID  `gorm:"type:uuid;not null;index"`
	DistributorID   *uuid.UUID `gorm:"type:uuid;index"`
	AllocationID    *uuid.UUID `gorm:"type:uuid;index"`
	QuantityDelta   int64      `gorm:"not null"`
	MovementType    string     `gorm:"type:varchar(16);not null;uniqueIndex:idx_inventory_movements_reference,priority:1"`
	ReferenceID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_inventory_movements_reference,priority:2"`
	Sequence        int        `gorm:"not null;default:0;uniqueIndex:idx_inventory_movements_reference,priority:3"`
	OccurredAt      time.Time  `gorm:"not null;index"`
	Note            string     `gorm:"type:varchar(255)"`
}

// TableName returns the table name for GORM
func (InventoryMovementModel) TableName() string {
	return "inventory_movements"
}

// ToDomain converts the persistence model to a domain Movement.
func (m *InventoryMovementModel) ToDomain() (ledger.Movement, error) {
	return ledger.RestoreMovement(ledger.MovementRecord{
		ID:              m.ID,
		ProductionRunID: m.ProductionRunID,
		DistributorID:   m.DistributorID,
		AllocationID:    m.AllocationID,
		QuantityDelta:   m.QuantityDelta,
		MovementType:    ledger.MovementType(m.MovementType),
		OccurredAt:      m.OccurredAt,
		ReferenceID:     m.ReferenceID,
		Sequence:        m.Sequence,
		Note:            m.Note,
	})
}

// InventoryMovementModelFromDomain creates a new persistence model from a domain Movement.
func InventoryMovementModelFromDomain(mv ledger.Movement) *InventoryMovementModel {
	r := mv.Record()
	return &InventoryMovementModel{
		ID:              r.ID,
		ProductionRunID: r.ProductionRunID,
		DistributorID:   r.DistributorID,
		AllocationID:    r.AllocationID,
		QuantityDelta:   r.QuantityDelta,
		MovementType:    string(r.MovementType),
		ReferenceID:     r.ReferenceID,
		Sequence:        r.Sequence,
		OccurredAt:      r.OccurredAt,
		Note:            r.Note,
	}
}

