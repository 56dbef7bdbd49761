package ledger

import (
	"context"

	"github.com/google/uuid"
)

// ProductionRunRepository defines the interface for production run persistence
type ProductionRunRepository interface {
	// FindByID finds a production run by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*ProductionRun, error)

	// FindByIDForUpdate finds a production run and locks its row until the transaction ends
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*ProductionRun, error)

	// FindByProductForUpdate finds and locks every run of a release/format, ordered by id
	FindByProductForUpdate(ctx context.Context, key ProductKey) ([]*ProductionRun, error)

	// ListIDs returns the ids of every production run, ordered by id
	ListIDs(ctx context.Context) ([]uuid.UUID, error)

	// Create inserts a new production run
	Create(ctx context.Context, run *ProductionRun) error

	// SaveWithLock updates the run's counters if its stored version is run.Version-1
	SaveWithLock(ctx context.Context, run *ProductionRun) error
}

// AllocationRepository defines the interface for channel allocation persistence
type AllocationRepository interface {
	// FindByProductionRun returns a run's allocations, oldest first
	FindByProductionRun(ctx context.Context, runID uuid.UUID) ([]*ChannelAllocation, error)

	// FindByProductionRunsForUpdate returns and locks the allocations of several runs
	FindByProductionRunsForUpdate(ctx context.Context, runIDs []uuid.UUID) ([]*ChannelAllocation, error)

	// Create inserts a new allocation
	Create(ctx context.Context, allocation *ChannelAllocation) error

	// SaveWithLock updates unitsSold if the stored version is allocation.Version-1
	SaveWithLock(ctx context.Context, allocation *ChannelAllocation) error
}

// MovementRepository is the append-only store of ledger entries
type MovementRepository interface {
	// Append inserts movements. Rows are never updated or deleted.
	Append(ctx context.Context, movements ...Movement) error

	// FindByProductionRun returns a run's movements in the order they occurred
	FindByProductionRun(ctx context.Context, runID uuid.UUID) ([]Movement, error)

	// FindByDistributor returns a distributor's movements in the order they occurred
	FindByDistributor(ctx context.Context, distributorID uuid.UUID) ([]Movement, error)

	// ExistsByReference reports whether a movement of this type already cites referenceID
	ExistsByReference(ctx context.Context, movementType MovementType, referenceID uuid.UUID) (bool, error)
}

// SaleRepository defines the interface for sale persistence
type SaleRepository interface {
	// Create inserts a sale with its line items
	Create(ctx context.Context, sale *Sale) error

	// FindByID finds a sale with its line items
	FindByID(ctx context.Context, id uuid.UUID) (*Sale, error)
}

// ReturnRepository defines the interface for distributor return persistence
type ReturnRepository interface {
	// Create inserts a return with its line items
	Create(ctx context.Context, ret *DistributorReturn) error

	// FindByID finds a return with its line items
	FindByID(ctx context.Context, id uuid.UUID) (*DistributorReturn, error)
}
