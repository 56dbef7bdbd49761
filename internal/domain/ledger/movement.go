package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MovementType is the closed set of ledger entry kinds
type MovementType string

const (
	// MovementTypeAllocation moves units from unallocated stock to a distributor (negative)
	MovementTypeAllocation MovementType = "ALLOCATION"
	// MovementTypeSale records units sold through a channel or direct (negative)
	MovementTypeSale MovementType = "SALE"
	// MovementTypeReturn records units a distributor sent back (positive)
	MovementTypeReturn MovementType = "RETURN"
	// MovementTypeAdjustment records a write-off or its reversal (non-zero)
	MovementTypeAdjustment MovementType = "ADJUSTMENT"
)

// String returns the string representation of MovementType
func (t MovementType) String() string {
	return string(t)
}

// IsValid returns true if the movement type is known
func (t MovementType) IsValid() bool {
	switch t {
	case MovementTypeAllocation, MovementTypeSale, MovementTypeReturn, MovementTypeAdjustment:
		return true
	}
	return false
}

// checkDelta enforces the sign each variant requires
func (t MovementType) checkDelta(delta int64) error {
	switch t {
	case MovementTypeAllocation, MovementTypeSale:
		if delta >= 0 {
			return fmt.Errorf("%s movement requires a negative delta, got %d", t, delta)
		}
	case MovementTypeReturn:
		if delta <= 0 {
			return fmt.Errorf("%s movement requires a positive delta, got %d", t, delta)
		}
	case MovementTypeAdjustment:
		if delta == 0 {
			return fmt.Errorf("%s movement requires a non-zero delta", t)
		}
	default:
		return fmt.Errorf("unknown movement type %q", t)
	}
	return nil
}

// Movement is an append-only ledger entry. Fields are unexported so a
// movement can only be built through the variant constructors below, each of
// which fixes the sign of QuantityDelta and the fields that variant requires.
type Movement struct {
	id              uuid.UUID
	productionRunID uuid.UUID
	distributorID   *uuid.UUID
	allocationID    *uuid.UUID
	quantityDelta   int64
	movementType    MovementType
	occurredAt      time.Time
	referenceID     uuid.UUID
	sequence        int
	note            string
}

// NewAllocationMovement records quantity units leaving unallocated stock for an allocation
func NewAllocationMovement(id uuid.UUID, allocation *ChannelAllocation, occurredAt time.Time) Movement {
	distributorID := allocation.DistributorID
	allocationID := allocation.ID
	return Movement{
		id:              id,
		productionRunID: allocation.ProductionRunID,
		distributorID:   &distributorID,
		allocationID:    &allocationID,
		quantityDelta:   -allocation.Quantity,
		movementType:    MovementTypeAllocation,
		occurredAt:      occurredAt,
		referenceID:     allocation.ID,
	}
}

// NewChannelSaleMovement records units sold through a distributor allocation
func NewChannelSaleMovement(id uuid.UUID, allocation *ChannelAllocation, quantity int64, saleID uuid.UUID, sequence int, occurredAt time.Time) Movement {
	distributorID := allocation.DistributorID
	allocationID := allocation.ID
	return Movement{
		id:              id,
		productionRunID: allocation.ProductionRunID,
		distributorID:   &distributorID,
		allocationID:    &allocationID,
		quantityDelta:   -quantity,
		movementType:    MovementTypeSale,
		occurredAt:      occurredAt,
		referenceID:     saleID,
		sequence:        sequence,
	}
}

// NewDirectSaleMovement records units sold straight from a run's unallocated stock
func NewDirectSaleMovement(id uuid.UUID, run *ProductionRun, quantity int64, saleID uuid.UUID, sequence int, occurredAt time.Time) Movement {
	return Movement{
		id:              id,
		productionRunID: run.ID,
		quantityDelta:   -quantity,
		movementType:    MovementTypeSale,
		occurredAt:      occurredAt,
		referenceID:     saleID,
		sequence:        sequence,
	}
}

// NewReturnMovement records units a distributor returned against an allocation
func NewReturnMovement(id uuid.UUID, allocation *ChannelAllocation, quantity int64, returnID uuid.UUID, sequence int, occurredAt time.Time) Movement {
	distributorID := allocation.DistributorID
	allocationID := allocation.ID
	return Movement{
		id:              id,
		productionRunID: allocation.ProductionRunID,
		distributorID:   &distributorID,
		allocationID:    &allocationID,
		quantityDelta:   quantity,
		movementType:    MovementTypeReturn,
		occurredAt:      occurredAt,
		referenceID:     returnID,
		sequence:        sequence,
	}
}

// NewAdjustmentMovement records a signed correction to a run's stock
func NewAdjustmentMovement(id uuid.UUID, run *ProductionRun, delta int64, referenceID uuid.UUID, note string, occurredAt time.Time) Movement {
	return Movement{
		id:              id,
		productionRunID: run.ID,
		quantityDelta:   delta,
		movementType:    MovementTypeAdjustment,
		occurredAt:      occurredAt,
		referenceID:     referenceID,
		note:            note,
	}
}

// MovementRecord is the flat form of a movement used by storage adapters
type MovementRecord struct {
	ID              uuid.UUID
	ProductionRunID uuid.UUID
	DistributorID   *uuid.UUID
	AllocationID    *uuid.UUID
	QuantityDelta   int64
	MovementType    MovementType
	OccurredAt      time.Time
	ReferenceID     uuid.UUID
	Sequence        int
	Note            string
}

// RestoreMovement rebuilds a movement from storage, rejecting rows that break
// the variant rules.
func RestoreMovement(r MovementRecord) (Movement, error) {
	if err := r.MovementType.checkDelta(r.QuantityDelta); err != nil {
		return Movement{}, fmt.Errorf("restore movement %s: %w", r.ID, err)
	}
	switch r.MovementType {
	case MovementTypeAllocation, MovementTypeReturn:
		if r.AllocationID == nil || r.DistributorID == nil {
			return Movement{}, fmt.Errorf("restore movement %s: %s requires allocation and distributor", r.ID, r.MovementType)
		}
	case MovementTypeSale:
		if (r.AllocationID == nil) != (r.DistributorID == nil) {
			return Movement{}, fmt.Errorf("restore movement %s: sale must set both allocation and distributor or neither", r.ID)
		}
	}
	return Movement{
		id:              r.ID,
		productionRunID: r.ProductionRunID,
		distributorID:   r.DistributorID,
		allocationID:    r.AllocationID,
		quantityDelta:   r.QuantityDelta,
		movementType:    r.MovementType,
		occurredAt:      r.OccurredAt,
		referenceID:     r.ReferenceID,
		sequence:        r.Sequence,
		note:            r.Note,
	}, nil
}

// Record returns the flat form of the movement
func (m Movement) Record() MovementRecord {
	return MovementRecord{
		ID:              m.id,
		ProductionRunID: m.productionRunID,
		DistributorID:   m.distributorID,
		AllocationID:    m.allocationID,
		QuantityDelta:   m.quantityDelta,
		MovementType:    m.movementType,
		OccurredAt:      m.occurredAt,
		ReferenceID:     m.referenceID,
		Sequence:        m.sequence,
		Note:            m.note,
	}
}

func (m Movement) ID() uuid.UUID              { return m.id }
func (m Movement) ProductionRunID() uuid.UUID { return m.productionRunID }
func (m Movement) DistributorID() *uuid.UUID  { return m.distributorID }
func (m Movement) AllocationID() *uuid.UUID   { return m.allocationID }
func (m Movement) QuantityDelta() int64       { return m.quantityDelta }
func (m Movement) Type() MovementType         { return m.movementType }
func (m Movement) OccurredAt() time.Time      { return m.occurredAt }
func (m Movement) ReferenceID() uuid.UUID     { return m.referenceID }
func (m Movement) Sequence() int              { return m.sequence }
func (m Movement) Note() string               { return m.note }

// IsDirect reports whether the movement bypassed any allocation
func (m Movement) IsDirect() bool {
	return m.allocationID == nil
}

// ReferenceKey identifies the triggering document of a movement
func (m Movement) ReferenceKey() string {
	return ReferenceKey(m.movementType, m.referenceID)
}

// ReferenceKey builds the idempotency key for a movement type and reference
func ReferenceKey(t MovementType, referenceID uuid.UUID) string {
	return fmt.Sprintf("ledger:%s:%s", t, referenceID)
}
