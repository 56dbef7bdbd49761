package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/labelops/backend/internal/domain/shared"
)

// ProductionRun is one manufacturing batch of a release in one format.
// Quantity is fixed at creation. DirectUnitsSold and Adjustment are counters
// kept in step with the movement ledger inside the same transaction.
type ProductionRun struct {
	shared.BaseAggregateRoot
	ReleaseID         uuid.UUID
	Format            Format
	Description       string
	Manufacturer      string
	ManufacturingDate time.Time
	Quantity          int64
	// DirectUnitsSold counts units sold straight from the warehouse
	DirectUnitsSold int64
	// Adjustment is the net of ADJUSTMENT movements. It never exceeds zero.
	Adjustment int64
}

// NewProductionRunParams holds the inputs for registering a production run
type NewProductionRunParams struct {
	ReleaseID         uuid.UUID
	Format            Format
	Description       string
	Manufacturer      string
	ManufacturingDate time.Time
	Quantity          int64
}

// NewProductionRun validates params and creates a production run
func NewProductionRun(id uuid.UUID, now time.Time, p NewProductionRunParams) (*ProductionRun, error) {
	if p.ReleaseID == uuid.Nil {
		return nil, shared.NewInvalidRequest("release id is required")
	}
	if !p.Format.IsValid() {
		return nil, shared.NewInvalidRequest("unsupported format %q", p.Format)
	}
	if p.Quantity < 0 {
		return nil, shared.NewInvalidRequest("quantity must not be negative, got %d", p.Quantity)
	}
	if p.ManufacturingDate.IsZero() {
		return nil, shared.NewInvalidRequest("manufacturing date is required")
	}

	run := &ProductionRun{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(shared.NewBaseEntity(id, now)),
		ReleaseID:         p.ReleaseID,
		Format:            p.Format,
		Description:       p.Description,
		Manufacturer:      p.Manufacturer,
		ManufacturingDate: p.ManufacturingDate,
		Quantity:          p.Quantity,
	}
	run.AddDomainEvent(NewProductionRunRegisteredEvent(run, now))
	return run, nil
}

// Key returns the release/format pair of the run
func (r *ProductionRun) Key() ProductKey {
	return ProductKey{ReleaseID: r.ReleaseID, Format: r.Format}
}

// Capacity is the manufactured quantity net of adjustments
func (r *ProductionRun) Capacity() int64 {
	return r.Quantity + r.Adjustment
}

// recordDirectSale and the other counter mutators leave Version alone. The
// snapshot bumps it once per command, however many lines touch the run.
func (r *ProductionRun) recordDirectSale(quantity int64, now time.Time) {
	r.DirectUnitsSold += quantity
	r.Touch(now)
}

func (r *ProductionRun) recordAllocation(now time.Time) {
	r.Touch(now)
}

func (r *ProductionRun) recordAdjustment(delta int64, now time.Time) {
	r.Adjustment += delta
	r.Touch(now)
}
