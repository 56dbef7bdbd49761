package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/labelops/backend/internal/domain/ledger"
	"github.com/labelops/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// AllocationService assigns production run units to distributors
type AllocationService struct {
	executor
}

// NewAllocationService creates a new AllocationService
func NewAllocationService(scope TransactionScope, ids shared.IDGenerator, clock shared.Clock, logger *zap.Logger) *AllocationService {
	return &AllocationService{executor: newExecutor(scope, ids, clock, logger)}
}

// Allocate creates a new allocation batch. It fails with InsufficientInventory
// when the run does not have quantity unallocated units, and with
// InvalidRequest when the run does not exist.
func (s *AllocationService) Allocate(ctx context.Context, req AllocateRequest) (*AllocationResponse, error) {
	allocationID, refKey := reference(s.ids, req.AllocationID, ledger.MovementTypeAllocation)

	var (
		allocation  *ledger.ChannelAllocation
		unallocated int64
	)
	err := s.run(ctx, CommandAllocate, refKey, func(repos TransactionalRepositories) error {
		run, err := repos.Runs().FindByIDForUpdate(ctx, req.ProductionRunID)
		if err != nil {
			return asInvalid(err, "unknown production run %s", req.ProductionRunID)
		}
		if refKey != "" {
			if err := ensureNewReference(ctx, repos, ledger.MovementTypeAllocation, allocationID); err != nil {
				return err
			}
		}

		allocations, err := repos.Allocations().FindByProductionRunsForUpdate(ctx, []uuid.UUID{run.ID})
		if err != nil {
			return err
		}

		snap := ledger.NewSnapshot(s.ids, s.clock.Now(), []*ledger.ProductionRun{run}, allocations)
		a, err := snap.Allocate(run.ID, req.DistributorID, allocationID, req.Quantity)
		if err != nil {
			return err
		}
		if err := persistChanges(ctx, repos, snap.Changes()); err != nil {
			return err
		}

		allocation = a
		unallocated = snap.Unallocated(run.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Inventory allocated",
		zap.String("allocation_id", allocation.ID.String()),
		zap.String("production_run_id", allocation.ProductionRunID.String()),
		zap.String("distributor_id", allocation.DistributorID.String()),
		zap.Int64("quantity", allocation.Quantity),
		zap.Int64("unallocated", unallocated),
	)
	s.publish(ctx, ledger.NewInventoryAllocatedEvent(allocation, unallocated))

	resp := ToAllocationResponse(allocation)
	return &resp, nil
}
