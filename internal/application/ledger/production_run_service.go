package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/labelops/backend/internal/domain/ledger"
	"github.com/labelops/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ProductionRunService registers manufacturing batches and records stock adjustments
type ProductionRunService struct {
	executor
}

// NewProductionRunService creates a new ProductionRunService
func NewProductionRunService(scope TransactionScope, ids shared.IDGenerator, clock shared.Clock, logger *zap.Logger) *ProductionRunService {
	return &ProductionRunService{executor: newExecutor(scope, ids, clock, logger)}
}

// Register creates a production run with its full quantity unallocated
func (s *ProductionRunService) Register(ctx context.Context, req RegisterProductionRunRequest) (*ProductionRunResponse, error) {
	format, err := ledger.ParseFormat(req.Format)
	if err != nil {
		return nil, err
	}
	id := s.ids.NewID()
	if req.ProductionRunID != nil && *req.ProductionRunID != uuid.Nil {
		id = *req.ProductionRunID
	}

	run, err := ledger.NewProductionRun(id, s.clock.Now(), ledger.NewProductionRunParams{
		ReleaseID:         req.ReleaseID,
		Format:            format,
		Description:       req.Description,
		Manufacturer:      req.Manufacturer,
		ManufacturingDate: req.ManufacturingDate,
		Quantity:          req.Quantity,
	})
	if err != nil {
		return nil, err
	}

	err = s.run(ctx, CommandRegisterRun, "", func(repos TransactionalRepositories) error {
		return repos.Runs().Create(ctx, run)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Production run registered",
		zap.String("production_run_id", run.ID.String()),
		zap.String("release_id", run.ReleaseID.String()),
		zap.String("format", run.Format.String()),
		zap.Int64("quantity", run.Quantity),
	)
	s.publish(ctx, run.GetDomainEvents()...)
	run.ClearDomainEvents()

	resp := ToProductionRunResponse(run, nil)
	return &resp, nil
}

// Adjust applies a stock adjustment to a run's unallocated units. A negative
// delta writes units off and cannot exceed what is unallocated; a positive
// delta only reverses earlier write-offs.
func (s *ProductionRunService) Adjust(ctx context.Context, req AdjustRequest) (*ProductionRunResponse, error) {
	referenceID, refKey := reference(s.ids, req.ReferenceID, ledger.MovementTypeAdjustment)

	var (
		run         *ledger.ProductionRun
		allocations []*ledger.ChannelAllocation
	)
	err := s.run(ctx, CommandAdjust, refKey, func(repos TransactionalRepositories) error {
		found, err := repos.Runs().FindByIDForUpdate(ctx, req.ProductionRunID)
		if err != nil {
			return asInvalid(err, "unknown production run %s", req.ProductionRunID)
		}
		if refKey != "" {
			if err := ensureNewReference(ctx, repos, ledger.MovementTypeAdjustment, referenceID); err != nil {
				return err
			}
		}
		allocs, err := repos.Allocations().FindByProductionRunsForUpdate(ctx, []uuid.UUID{found.ID})
		if err != nil {
			return err
		}

		snap := ledger.NewSnapshot(s.ids, s.clock.Now(), []*ledger.ProductionRun{found}, allocs)
		if err := snap.Adjust(found.ID, req.Delta, referenceID, req.Reason); err != nil {
			return err
		}
		if err := persistChanges(ctx, repos, snap.Changes()); err != nil {
			return err
		}
		run, allocations = found, allocs
		return nil
	})
	if err != nil {
		return nil, err
	}

	unallocated := ledger.Unallocated(run, allocations)
	s.logger.Info("Production run adjusted",
		zap.String("production_run_id", run.ID.String()),
		zap.Int64("delta", req.Delta),
		zap.String("reason", req.Reason),
		zap.Int64("unallocated", unallocated),
	)
	s.publish(ctx, ledger.NewProductionRunAdjustedEvent(run, req.Delta, req.Reason, unallocated))

	resp := ToProductionRunResponse(run, allocations)
	return &resp, nil
}
