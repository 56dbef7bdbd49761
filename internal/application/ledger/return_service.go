package ledger

import (
	"context"

	"github.com/labelops/backend/internal/domain/ledger"
	"github.com/labelops/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ReturnService records units coming back from distributors
type ReturnService struct {
	executor
}

// NewReturnService creates a new ReturnService
func NewReturnService(scope TransactionScope, ids shared.IDGenerator, clock shared.Clock, logger *zap.Logger) *ReturnService {
	return &ReturnService{executor: newExecutor(scope, ids, clock, logger)}
}

// RecordReturn records a return and its RETURN movements in one transaction.
// Per line, the distributor cannot return more than it has sold of that
// release and format; returned units are sellable again through the same
// distributor and never go back to unallocated stock.
func (s *ReturnService) RecordReturn(ctx context.Context, req RecordReturnRequest) (*ReturnResponse, error) {
	returnID, refKey := reference(s.ids, req.ReturnID, ledger.MovementTypeReturn)

	lines := make([]ledger.ReturnLineInput, len(req.Lines))
	for i, l := range req.Lines {
		format, err := ledger.ParseFormat(l.Format)
		if err != nil {
			return nil, err
		}
		lines[i] = ledger.ReturnLineInput{ReleaseID: l.ReleaseID, Format: format, Quantity: l.Quantity}
	}

	ret, err := ledger.NewDistributorReturn(returnID, s.clock.Now(), s.ids, ledger.NewReturnParams{
		LabelID:       req.LabelID,
		DistributorID: req.DistributorID,
		ReturnDate:    req.ReturnDate,
		Notes:         req.Notes,
		Lines:         lines,
	})
	if err != nil {
		return nil, err
	}

	keys := make([]ledger.ProductKey, len(ret.LineItems))
	for i, l := range ret.LineItems {
		keys[i] = l.Key()
	}

	err = s.run(ctx, CommandRecordReturn, refKey, func(repos TransactionalRepositories) error {
		if err := ensureNewReference(ctx, repos, ledger.MovementTypeReturn, ret.ID); err != nil {
			return err
		}
		snap, err := lockProducts(ctx, repos, s.ids, s.clock.Now(), keys)
		if err != nil {
			return err
		}
		for _, line := range ret.LineItems {
			if err := snap.Return(line.Key(), ret.DistributorID, ret.ID, line.Quantity); err != nil {
				return err
			}
		}
		if err := persistChanges(ctx, repos, snap.Changes()); err != nil {
			return err
		}
		return repos.Returns().Create(ctx, ret)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Distributor return recorded",
		zap.String("return_id", ret.ID.String()),
		zap.String("distributor_id", ret.DistributorID.String()),
		zap.Int64("units", ret.TotalUnits()),
	)
	s.publish(ctx, ledger.NewReturnRecordedEvent(ret))

	resp := ToReturnResponse(ret)
	return &resp, nil
}
