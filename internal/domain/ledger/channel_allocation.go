package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/labelops/backend/internal/domain/shared"
)

// ChannelAllocation is a batch of units from one production run assigned to
// one distributor. UnitsSold stays within [0, Quantity]; SALE moves it up and
// RETURN moves it down. Allocations are never deleted.
type ChannelAllocation struct {
	shared.BaseEntity
	ProductionRunID uuid.UUID
	DistributorID   uuid.UUID
	Quantity        int64
	UnitsSold       int64
	AllocatedAt     time.Time
	Version         int
}

// UnitsRemaining returns the units of this allocation not yet sold
func (a *ChannelAllocation) UnitsRemaining() int64 {
	return UnitsRemaining(a)
}

// sell moves quantity units from remaining to sold
func (a *ChannelAllocation) sell(quantity int64, now time.Time) error {
	if quantity <= 0 {
		return shared.NewInvalidRequest("sale quantity must be positive, got %d", quantity)
	}
	if remaining := a.UnitsRemaining(); quantity > remaining {
		return shared.NewInsufficientInventory(quantity, remaining)
	}
	a.UnitsSold += quantity
	a.UpdatedAt = now
	return nil
}

// restock moves quantity units from sold back to remaining
func (a *ChannelAllocation) restock(quantity int64, now time.Time) error {
	if quantity <= 0 {
		return shared.NewInvalidRequest("return quantity must be positive, got %d", quantity)
	}
	if quantity > a.UnitsSold {
		return shared.NewInsufficientInventory(quantity, a.UnitsSold)
	}
	a.UnitsSold -= quantity
	a.UpdatedAt = now
	return nil
}
