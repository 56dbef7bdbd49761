package ledger

import (
	"context"

	"github.com/labelops/backend/internal/domain/ledger"
	"github.com/labelops/backend/internal/domain/shared"
	"github.com/labelops/backend/internal/domain/shared/valueobject"
	"go.uber.org/zap"
)

// SaleService records sales against allocations or unallocated stock
type SaleService struct {
	executor
}

// NewSaleService creates a new SaleService
func NewSaleService(scope TransactionScope, ids shared.IDGenerator, clock shared.Clock, logger *zap.Logger) *SaleService {
	return &SaleService{executor: newExecutor(scope, ids, clock, logger)}
}

// RecordSale records a sale and every SALE movement it causes in one
// transaction. A DISTRIBUTOR sale draws on the distributor's allocations of
// each line's release and format; a DIRECT sale draws on unallocated stock.
// If any line cannot be covered, nothing is recorded.
func (s *SaleService) RecordSale(ctx context.Context, req RecordSaleRequest) (*SaleResponse, error) {
	saleID, refKey := reference(s.ids, req.SaleID, ledger.MovementTypeSale)

	params, err := saleParams(req)
	if err != nil {
		return nil, err
	}
	sale, err := ledger.NewSale(saleID, s.clock.Now(), s.ids, params)
	if err != nil {
		return nil, err
	}

	keys := make([]ledger.ProductKey, len(sale.LineItems))
	for i, l := range sale.LineItems {
		keys[i] = l.Key()
	}

	err = s.run(ctx, CommandRecordSale, refKey, func(repos TransactionalRepositories) error {
		if err := ensureNewReference(ctx, repos, ledger.MovementTypeSale, sale.ID); err != nil {
			return err
		}
		snap, err := lockProducts(ctx, repos, s.ids, s.clock.Now(), keys)
		if err != nil {
			return err
		}

		for _, line := range sale.LineItems {
			if sale.Channel == ledger.SaleChannelDistributor {
				err = snap.SellThroughDistributor(line.Key(), *sale.DistributorID, sale.ID, line.Quantity)
			} else {
				err = snap.SellDirect(line.Key(), sale.ID, line.Quantity)
			}
			if err != nil {
				s.logger.Debug("Sale line rejected",
					zap.String("sale_id", sale.ID.String()),
					zap.String("release_id", line.ReleaseID.String()),
					zap.String("format", line.Format.String()),
					zap.Error(err),
				)
				return err
			}
		}

		if err := persistChanges(ctx, repos, snap.Changes()); err != nil {
			return err
		}
		return repos.Sales().Create(ctx, sale)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Sale recorded",
		zap.String("sale_id", sale.ID.String()),
		zap.String("channel", string(sale.Channel)),
		zap.Int64("units", sale.TotalUnits()),
		zap.String("total", sale.TotalAmount.String()),
	)
	s.publish(ctx, ledger.NewSaleRecordedEvent(sale))

	resp := ToSaleResponse(sale)
	return &resp, nil
}

func saleParams(req RecordSaleRequest) (ledger.NewSaleParams, error) {
	channel, err := ledger.ParseSaleChannel(req.Channel)
	if err != nil {
		return ledger.NewSaleParams{}, err
	}
	currency := valueobject.DefaultCurrency
	if req.Currency != "" {
		currency, err = valueobject.ParseCurrency(req.Currency)
		if err != nil {
			return ledger.NewSaleParams{}, shared.NewInvalidRequest("%v", err)
		}
	}

	lines := make([]ledger.SaleLineInput, len(req.Lines))
	for i, l := range req.Lines {
		format, err := ledger.ParseFormat(l.Format)
		if err != nil {
			return ledger.NewSaleParams{}, err
		}
		price, err := valueobject.NewMoney(l.UnitPrice, currency)
		if err != nil {
			return ledger.NewSaleParams{}, shared.NewInvalidRequest("line %d: %v", i+1, err)
		}
		lines[i] = ledger.SaleLineInput{
			ReleaseID: l.ReleaseID,
			Format:    format,
			Quantity:  l.Quantity,
			UnitPrice: price,
		}
	}

	return ledger.NewSaleParams{
		LabelID:       req.LabelID,
		SaleDate:      req.SaleDate,
		Channel:       channel,
		DistributorID: req.DistributorID,
		Notes:         req.Notes,
		Lines:         lines,
	}, nil
}
