package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/labelops/backend/internal/domain/ledger"
)

// QueryService answers read-only questions about the ledger. Each call reads
// inside one transaction so counters and movements come from the same state.
type QueryService struct {
	scope TransactionScope
}

// NewQueryService creates a new QueryService
func NewQueryService(scope TransactionScope) *QueryService {
	return &QueryService{scope: scope}
}

// ProductionRunIDs lists every registered production run
func (s *QueryService) ProductionRunIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		ids, err = repos.Runs().ListIDs(ctx)
		return err
	})
	return ids, err
}

// GetProductionRun returns a run with its current unallocated count
func (s *QueryService) GetProductionRun(ctx context.Context, id uuid.UUID) (*ProductionRunResponse, error) {
	var resp ProductionRunResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		run, allocations, err := loadRun(ctx, repos, id)
		if err != nil {
			return err
		}
		resp = ToProductionRunResponse(run, allocations)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// MovementsByProductionRun returns every movement of a run in the order it occurred
func (s *QueryService) MovementsByProductionRun(ctx context.Context, id uuid.UUID) ([]MovementResponse, error) {
	var movements []ledger.Movement
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if _, err := repos.Runs().FindByID(ctx, id); err != nil {
			return err
		}
		var err error
		movements, err = repos.Movements().FindByProductionRun(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ToMovementResponses(movements), nil
}

// MovementsByDistributor returns every movement touching a distributor's allocations.
// An unknown distributor simply has no movements.
func (s *QueryService) MovementsByDistributor(ctx context.Context, distributorID uuid.UUID) ([]MovementResponse, error) {
	var movements []ledger.Movement
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		movements, err = repos.Movements().FindByDistributor(ctx, distributorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ToMovementResponses(movements), nil
}

// AllocationsByProductionRun returns a run's allocations, oldest first
func (s *QueryService) AllocationsByProductionRun(ctx context.Context, id uuid.UUID) ([]AllocationResponse, error) {
	var allocations []*ledger.ChannelAllocation
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		_, allocations, err = loadRun(ctx, repos, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ToAllocationResponses(allocations), nil
}

// AvailableQuantity returns the unallocated units of a run
func (s *QueryService) AvailableQuantity(ctx context.Context, id uuid.UUID) (*AvailableQuantityResponse, error) {
	av, err := s.Availability(ctx, id)
	if err != nil {
		return nil, err
	}
	return &AvailableQuantityResponse{ProductionRunID: id, Available: av.Unallocated}, nil
}

// Availability returns the full stock position of a run
func (s *QueryService) Availability(ctx context.Context, id uuid.UUID) (*ledger.Availability, error) {
	var av ledger.Availability
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		run, allocations, err := loadRun(ctx, repos, id)
		if err != nil {
			return err
		}
		av = ledger.CalculateAvailability(run, allocations)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &av, nil
}

// RunLedger returns a run with its availability and movements, all read from
// the same state
func (s *QueryService) RunLedger(ctx context.Context, id uuid.UUID) (*RunLedgerResponse, error) {
	var resp RunLedgerResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		run, allocations, err := loadRun(ctx, repos, id)
		if err != nil {
			return err
		}
		movements, err := repos.Movements().FindByProductionRun(ctx, id)
		if err != nil {
			return err
		}
		resp.Run = ToProductionRunResponse(run, allocations)
		resp.Availability = AvailableQuantityResponse{ProductionRunID: id, Available: ledger.Unallocated(run, allocations)}
		resp.Movements = ToMovementResponses(movements)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reconcile replays a run's movements and compares the result with its stored counters
func (s *QueryService) Reconcile(ctx context.Context, id uuid.UUID) (*ledger.ReconciliationReport, error) {
	var report ledger.ReconciliationReport
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		run, allocations, err := loadRun(ctx, repos, id)
		if err != nil {
			return err
		}
		movements, err := repos.Movements().FindByProductionRun(ctx, id)
		if err != nil {
			return err
		}
		report = ledger.Reconcile(run, allocations, movements)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// GetSale returns a recorded sale
func (s *QueryService) GetSale(ctx context.Context, id uuid.UUID) (*SaleResponse, error) {
	var resp SaleResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		sale, err := repos.Sales().FindByID(ctx, id)
		if err != nil {
			return err
		}
		resp = ToSaleResponse(sale)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetReturn returns a recorded distributor return
func (s *QueryService) GetReturn(ctx context.Context, id uuid.UUID) (*ReturnResponse, error) {
	var resp ReturnResponse
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		ret, err := repos.Returns().FindByID(ctx, id)
		if err != nil {
			return err
		}
		resp = ToReturnResponse(ret)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func loadRun(ctx context.Context, repos TransactionalRepositories, id uuid.UUID) (*ledger.ProductionRun, []*ledger.ChannelAllocation, error) {
	run, err := repos.Runs().FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	allocations, err := repos.Allocations().FindByProductionRun(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return run, allocations, nil
}
