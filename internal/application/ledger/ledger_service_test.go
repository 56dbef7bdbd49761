package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	appledger "github.com/labelops/backend/internal/application/ledger"
	"github.com/labelops/backend/internal/domain/ledger"
	"github.com/labelops/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAllocate_ScenarioA(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	runID := f.registerRun(t, uuid.New(), "VINYL", 500, testNow.AddDate(0, -1, 0))

	x := f.allocate(t, runID, uuid.New(), 200)
	assert.Equal(t, int64(200), x.UnitsRemaining)
	assert.Equal(t, int64(300), f.available(t, runID))

	_, err := f.allocations.Allocate(ctx, appledger.AllocateRequest{
		ProductionRunID: runID,
		DistributorID:   uuid.New(),
		Quantity:        350,
	})
	requireInsufficient(t, err, 350, 300)
	assert.ErrorIs(t, err, shared.ErrInsufficientInventory)

	assert.Equal(t, int64(300), f.available(t, runID))
	movements, err := f.queries.MovementsByProductionRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, ledger.MovementTypeAllocation, movements[0].MovementType)
	assert.Equal(t, int64(-200), movements[0].QuantityDelta)
	assert.Equal(t, x.ID, movements[0].ReferenceID)

	assert.Len(t, f.events.GetEventsByType(ledger.EventTypeInventoryAllocated), 1)
	assert.Len(t, f.events.GetEventsByType(ledger.EventTypeProductionRunRegistered), 1)
	f.requireConsistent(t, runID)
}

func TestAllocate_UnknownRunIsInvalidRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.allocations.Allocate(context.Background(), appledger.AllocateRequest{
		ProductionRunID: uuid.New(),
		DistributorID:   uuid.New(),
		Quantity:        1,
	})
	assert.ErrorIs(t, err, shared.ErrInvalidRequest)
}

func TestAllocate_RejectsNonPositiveQuantity(t *testing.T) {
	f := newFixture(t)
	runID := f.registerRun(t, uuid.New(), "CD", 10, testNow)

	for _, q := range []int64{0, -5} {
		_, err := f.allocations.Allocate(context.Background(), appledger.AllocateRequest{
			ProductionRunID: runID,
			DistributorID:   uuid.New(),
			Quantity:        q,
		})
		assert.ErrorIs(t, err, shared.ErrInvalidRequest, "quantity %d", q)
	}
	assert.Equal(t, int64(10), f.available(t, runID))
}

func TestRecordSale_ScenarioB(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	releaseID, dist := uuid.New(), uuid.New()
	runID := f.registerRun(t, releaseID, "VINYL", 500, testNow)
	x := f.allocate(t, runID, dist, 200)

	sale, err := f.sales.RecordSale(ctx, distributorSale(releaseID, dist, 50))
	require.NoError(t, err)
	assert.Equal(t, "625.00", sale.TotalAmount.Amount().StringFixed(2))
	assert.Equal(t, int64(50), f.allocation(t, runID, x.ID).UnitsSold)

	failing := distributorSale(releaseID, dist, 160)
	failingID := uuid.New()
	failing.SaleID = &failingID
	_, err = f.sales.RecordSale(ctx, failing)
	requireInsufficient(t, err, 160, 150)

	assert.Equal(t, int64(50), f.allocation(t, runID, x.ID).UnitsSold)
	_, err = f.queries.GetSale(ctx, failingID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	f.requireConsistent(t, runID)
}

func TestRecordReturn_ScenarioC(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	releaseID, dist := uuid.New(), uuid.New()
	runID := f.registerRun(t, releaseID, "VINYL", 500, testNow)
	x := f.allocate(t, runID, dist, 200)
	_, err := f.sales.RecordSale(ctx, distributorSale(releaseID, dist, 50))
	require.NoError(t, err)

	ret, err := f.returns.RecordReturn(ctx, distributorReturn(releaseID, dist, 20))
	require.NoError(t, err)
	assert.Equal(t, int64(20), ret.TotalUnits)

	a := f.allocation(t, runID, x.ID)
	assert.Equal(t, int64(30), a.UnitsSold)
	assert.Equal(t, int64(170), a.UnitsRemaining)
	assert.Equal(t, int64(300), f.available(t, runID), "returned units stay with the distributor")

	_, err = f.sales.RecordSale(ctx, distributorSale(releaseID, dist, 175))
	requireInsufficient(t, err, 175, 170)

	_, err = f.sales.RecordSale(ctx, distributorSale(releaseID, dist, 170))
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.allocation(t, runID, x.ID).UnitsRemaining)

	movements, err := f.queries.MovementsByDistributor(ctx, dist)
	require.NoError(t, err)
	types := make([]ledger.MovementType, len(movements))
	for i, m := range movements {
		types[i] = m.MovementType
	}
	assert.Equal(t, []ledger.MovementType{
		ledger.MovementTypeAllocation,
		ledger.MovementTypeSale,
		ledger.MovementTypeReturn,
		ledger.MovementTypeSale,
	}, types)
	f.requireConsistent(t, runID)
}

func TestRecordReturn_ScenarioD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	releaseID, dist := uuid.New(), uuid.New()
	runID := f.registerRun(t, releaseID, "VINYL", 500, testNow)
	x := f.allocate(t, runID, dist, 200)
	_, err := f.sales.RecordSale(ctx, distributorSale(releaseID, dist, 50))
	require.NoError(t, err)

	_, err = f.returns.RecordReturn(ctx, distributorReturn(releaseID, dist, 60))
	requireInsufficient(t, err, 60, 50)
	assert.Equal(t, int64(50), f.allocation(t, runID, x.ID).UnitsSold)
	assert.Empty(t, f.events.GetEventsByType(ledger.EventTypeReturnRecorded))
}

func TestRecordSale_MultiLineIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	releaseID, dist := uuid.New(), uuid.New()
	vinylRun := f.registerRun(t, releaseID, "VINYL", 100, testNow)
	cdRun := f.registerRun(t, releaseID, "CD", 100, testNow)
	vinyl := f.allocate(t, vinylRun, dist, 40)
	cd := f.allocate(t, cdRun, dist, 5)

	req := distributorSale(releaseID, dist, 30)
	req.Lines = append(req.Lines, appledger.SaleLineRequest{
		ReleaseID: releaseID, Format: "CD", Quantity: 6, UnitPrice: decimal.RequireFromString("9.99"),
	})
	_, err := f.sales.RecordSale(ctx, req)
	requireInsufficient(t, err, 6, 5)

	assert.Equal(t, int64(0), f.allocation(t, vinylRun, vinyl.ID).UnitsSold)
	assert.Equal(t, int64(0), f.allocation(t, cdRun, cd.ID).UnitsSold)
	movements, err := f.queries.MovementsByProductionRun(ctx, vinylRun)
	require.NoError(t, err)
	assert.Len(t, movements, 1)

	req.Lines[1].Quantity = 5
	sale, err := f.sales.RecordSale(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(35), sale.TotalUnits)
	assert.Equal(t, "424.95", sale.TotalAmount.Amount().StringFixed(2))
	f.requireConsistent(t, vinylRun)
	f.requireConsistent(t, cdRun)
}

func TestRecordSale_RepeatedProductLinesAccumulate(t *testing.T) {
	f := newFixture(t)
	releaseID, dist := uuid.New(), uuid.New()
	runID := f.registerRun(t, releaseID, "VINYL", 100, testNow)
	f.allocate(t, runID, dist, 10)

	req := distributorSale(releaseID, dist, 6)
	req.Lines = append(req.Lines, req.Lines[0])
	_, err := f.sales.RecordSale(context.Background(), req)
	requireInsufficient(t, err, 6, 4)
}

func TestRecordSale_RepeatedDistributorLinesWithinStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	releaseID, dist := uuid.New(), uuid.New()
	runID := f.registerRun(t, releaseID, "VINYL", 100, testNow)
	x := f.allocate(t, runID, dist, 10)

	req := distributorSale(releaseID, dist, 3)
	req.Lines = append(req.Lines, req.Lines[0])
	sale, err := f.sales.RecordSale(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(6), sale.TotalUnits)
	assert.Equal(t, int64(6), f.allocation(t, runID, x.ID).UnitsSold)

	movements, err := f.queries.MovementsByProductionRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, movements, 3)
	assert.Equal(t, 0, movements[1].Sequence)
	assert.Equal(t, 1, movements[2].Sequence)
	f.requireConsistent(t, runID)

	// the allocation row is still writable by the next command
	_, err = f.sales.RecordSale(ctx, distributorSale(releaseID, dist, 4))
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.allocation(t, runID, x.ID).UnitsRemaining)
	f.requireConsistent(t, runID)
}

func TestRecordSale_RepeatedDirectLinesWithinStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	releaseID := uuid.New()
	runID := f.registerRun(t, releaseID, "CD", 100, testNow)

	line := appledger.SaleLineRequest{ReleaseID: releaseID, Format: "CD", Quantity: 2, UnitPrice: decimal.RequireFromString("9.99")}
	sale, err := f.sales.RecordSale(ctx, appledger.RecordSaleRequest{
		LabelID:  uuid.New(),
		SaleDate: testNow,
		Channel:  "DIRECT",
		Lines:    []appledger.SaleLineRequest{line, line},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), sale.TotalUnits)
	assert.Equal(t, int64(96), f.available(t, runID))
	f.requireConsistent(t, runID)
}

func TestRecordReturn_RepeatedLinesWithinSold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	releaseID, dist := uuid.New(), uuid.New()
	runID := f.registerRun(t, releaseID, "VINYL", 100, testNow)
	x := f.allocate(t, runID, dist, 10)
	_, err := f.sales.RecordSale(ctx, distributorSale(releaseID, dist, 6))
	require.NoError(t, err)

	req := distributorReturn(releaseID, dist, 2)
	req.Lines = append(req.Lines, req.Lines[0])
	ret, err := f.returns.RecordReturn(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(4), ret.TotalUnits)
	assert.Equal(t, int64(2), f.allocation(t, runID, x.ID).UnitsSold)
	f.requireConsistent(t, runID)
}

func TestRecordSale_DistributorWithoutAllocation(t *testing.T) {
	f := newFixture(t)
	releaseID := uuid.New()
	f.registerRun(t, releaseID, "VINYL", 100, testNow)

	_, err := f.sales.RecordSale(context.Background(), distributorSale(releaseID, uuid.New(), 1))
	assert.ErrorIs(t, err, shared.ErrInvalidRequest)
}

func TestRecordSale_DirectDrainsOldestRunFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	releaseID := uuid.New()
	repress := f.registerRun(t, releaseID, "CASSETTE", 100, testNow)
	original := f.registerRun(t, releaseID, "CASSETTE", 100, testNow.AddDate(-2, 0, 0))

	sale, err := f.sales.RecordSale(ctx, appledger.RecordSaleRequest{
		LabelID:  uuid.New(),
		SaleDate: testNow,
		Channel:  "DIRECT",
		Currency: "gbp",
		Lines: []appledger.SaleLineRequest{
			{ReleaseID: releaseID, Format: "CASSETTE", Quantity: 150, UnitPrice: decimal.RequireFromString("8")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "GBP", string(sale.TotalAmount.Currency()))
	assert.Equal(t, int64(0), f.available(t, original))
	assert.Equal(t, int64(50), f.available(t, repress))

	movements, err := f.queries.MovementsByProductionRun(ctx, repress)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Nil(t, movements[0].DistributorID)
	assert.Equal(t, 1, movements[0].Sequence)

	_, err = f.sales.RecordSale(ctx, appledger.RecordSaleRequest{
		LabelID:  uuid.New(),
		SaleDate: testNow,
		Channel:  "DIRECT",
		Lines: []appledger.SaleLineRequest{
			{ReleaseID: releaseID, Format: "CASSETTE", Quantity: 51, UnitPrice: decimal.RequireFromString("8")},
		},
	})
	requireInsufficient(t, err, 51, 50)
	f.requireConsistent(t, original)
	f.requireConsistent(t, repress)
}

func TestRecordSale_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	releaseID, dist := uuid.New(), uuid.New()

	tests := []struct {
		name   string
		mutate func(*appledger.RecordSaleRequest)
	}{
		{"unknown channel", func(r *appledger.RecordSaleRequest) { r.Channel = "CONSIGNMENT" }},
		{"unknown format", func(r *appledger.RecordSaleRequest) { r.Lines[0].Format = "8TRACK" }},
		{"zero quantity", func(r *appledger.RecordSaleRequest) { r.Lines[0].Quantity = 0 }},
		{"negative price", func(r *appledger.RecordSaleRequest) { r.Lines[0].UnitPrice = decimal.NewFromInt(-1) }},
		{"bad currency", func(r *appledger.RecordSaleRequest) { r.Currency = "dollars" }},
		{"no lines", func(r *appledger.RecordSaleRequest) { r.Lines = nil }},
		{"direct with distributor", func(r *appledger.RecordSaleRequest) { r.Channel = "DIRECT" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := distributorSale(releaseID, dist, 1)
			tt.mutate(&req)
			_, err := f.sales.RecordSale(context.Background(), req)
			assert.ErrorIs(t, err, shared.ErrInvalidRequest)
		})
	}
}

func TestAdjust(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	runID := f.registerRun(t, uuid.New(), "VINYL", 100, testNow)
	f.allocate(t, runID, uuid.New(), 80)

	_, err := f.runs.Adjust(ctx, appledger.AdjustRequest{ProductionRunID: runID, Delta: -21, Reason: "warped"})
	requireInsufficient(t, err, 21, 20)

	resp, err := f.runs.Adjust(ctx, appledger.AdjustRequest{ProductionRunID: runID, Delta: -5, Reason: "warped"})
	require.NoError(t, err)
	assert.Equal(t, int64(-5), resp.Adjustment)
	assert.Equal(t, int64(15), resp.Unallocated)

	_, err = f.runs.Adjust(ctx, appledger.AdjustRequest{ProductionRunID: runID, Delta: 6, Reason: "recount"})
	assert.ErrorIs(t, err, shared.ErrInvalidRequest)

	_, err = f.runs.Adjust(ctx, appledger.AdjustRequest{ProductionRunID: uuid.New(), Delta: -1, Reason: "lost"})
	assert.ErrorIs(t, err, shared.ErrInvalidRequest)

	assert.Equal(t, int64(15), f.available(t, runID))
	f.requireConsistent(t, runID)
}

func TestQueries_UnknownRunIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := uuid.New()

	_, err := f.queries.MovementsByProductionRun(ctx, id)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.queries.AvailableQuantity(ctx, id)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.queries.Reconcile(ctx, id)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	movements, err := f.queries.MovementsByDistributor(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestDuplicateReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	releaseID, dist := uuid.New(), uuid.New()
	runID := f.registerRun(t, releaseID, "VINYL", 100, testNow)

	allocationID := uuid.New()
	req := appledger.AllocateRequest{AllocationID: &allocationID, ProductionRunID: runID, DistributorID: dist, Quantity: 10}
	first, err := f.allocations.Allocate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, allocationID, first.ID)

	_, err = f.allocations.Allocate(ctx, req)
	assert.ErrorIs(t, err, shared.ErrDuplicateReference)
	assert.Equal(t, int64(90), f.available(t, runID))

	saleID := uuid.New()
	sale := distributorSale(releaseID, dist, 2)
	sale.SaleID = &saleID
	_, err = f.sales.RecordSale(ctx, sale)
	require.NoError(t, err)
	_, err = f.sales.RecordSale(ctx, sale)
	assert.ErrorIs(t, err, shared.ErrDuplicateReference)
	assert.Equal(t, int64(2), f.allocation(t, runID, allocationID).UnitsSold)

	_, err = f.runs.Register(ctx, appledger.RegisterProductionRunRequest{
		ProductionRunID:   &runID,
		ReleaseID:         releaseID,
		Format:            "VINYL",
		ManufacturingDate: testNow,
		Quantity:          1,
	})
	assert.ErrorIs(t, err, shared.ErrDuplicateReference)
	f.requireConsistent(t, runID)
}

func TestIdempotencyStore_FastPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	runID := f.registerRun(t, uuid.New(), "VINYL", 100, testNow)

	seen, fresh := uuid.New(), uuid.New()
	store := new(MockIdempotencyStore)
	store.On("IsProcessed", mock.Anything, ledger.ReferenceKey(ledger.MovementTypeAllocation, seen)).Return(true, nil)
	store.On("IsProcessed", mock.Anything, ledger.ReferenceKey(ledger.MovementTypeAllocation, fresh)).Return(false, nil)
	store.On("MarkProcessed", mock.Anything, ledger.ReferenceKey(ledger.MovementTypeAllocation, fresh), 24*time.Hour).Return(true, nil)
	f.allocations.SetIdempotencyStore(store, shared.DefaultIdempotencyConfig())

	_, err := f.allocations.Allocate(ctx, appledger.AllocateRequest{AllocationID: &seen, ProductionRunID: runID, DistributorID: uuid.New(), Quantity: 5})
	assert.ErrorIs(t, err, shared.ErrDuplicateReference)

	_, err = f.allocations.Allocate(ctx, appledger.AllocateRequest{AllocationID: &fresh, ProductionRunID: runID, DistributorID: uuid.New(), Quantity: 5})
	require.NoError(t, err)

	assert.Equal(t, int64(95), f.available(t, runID))
	store.AssertExpectations(t)
}

func TestIdempotencyStore_ErrorsFallThroughToLedger(t *testing.T) {
	f := newFixture(t)
	runID := f.registerRun(t, uuid.New(), "VINYL", 100, testNow)

	store := new(MockIdempotencyStore)
	store.On("IsProcessed", mock.Anything, mock.Anything).Return(false, errors.New("redis: connection refused"))
	store.On("MarkProcessed", mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("redis: connection refused"))
	f.allocations.SetIdempotencyStore(store, shared.DefaultIdempotencyConfig())

	id := uuid.New()
	req := appledger.AllocateRequest{AllocationID: &id, ProductionRunID: runID, DistributorID: uuid.New(), Quantity: 5}
	_, err := f.allocations.Allocate(context.Background(), req)
	require.NoError(t, err)

	_, err = f.allocations.Allocate(context.Background(), req)
	assert.ErrorIs(t, err, shared.ErrDuplicateReference)
}

func TestLocker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	runID := f.registerRun(t, uuid.New(), "VINYL", 100, testNow)

	held, broken, free := uuid.New(), uuid.New(), uuid.New()
	locker := new(MockLocker)
	locker.On("Obtain", mock.Anything, ledger.ReferenceKey(ledger.MovementTypeAllocation, held), 10*time.Second).Return(shared.ErrLockNotObtained)
	locker.On("Obtain", mock.Anything, ledger.ReferenceKey(ledger.MovementTypeAllocation, broken), 10*time.Second).Return(errors.New("dial tcp: i/o timeout"))
	locker.On("Obtain", mock.Anything, ledger.ReferenceKey(ledger.MovementTypeAllocation, free), 10*time.Second).Return(nil)
	f.allocations.SetLocker(locker, 10*time.Second)

	allocate := func(id uuid.UUID) error {
		_, err := f.allocations.Allocate(ctx, appledger.AllocateRequest{AllocationID: &id, ProductionRunID: runID, DistributorID: uuid.New(), Quantity: 1})
		return err
	}

	assert.ErrorIs(t, allocate(held), shared.ErrDuplicateReference)
	assert.NoError(t, allocate(broken))
	assert.NoError(t, allocate(free))
	assert.Equal(t, 1, locker.released)
	assert.Equal(t, int64(98), f.available(t, runID))
	locker.AssertExpectations(t)
}

func TestRetryOnConcurrencyConflict(t *testing.T) {
	scope := &conflictingScope{}
	f := newFixtureWithScope(t, func(inner appledger.TransactionScope) appledger.TransactionScope {
		scope.inner = inner
		return scope
	})
	metrics := newRecordingMetrics()
	f.allocations.SetMetrics(metrics)

	runID := f.registerRun(t, uuid.New(), "VINYL", 100, testNow)
	scope.calls, scope.conflicts = 0, 2

	resp, err := f.allocations.Allocate(context.Background(), appledger.AllocateRequest{
		ProductionRunID: runID,
		DistributorID:   uuid.New(),
		Quantity:        25,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(25), resp.Quantity)
	assert.Equal(t, 3, scope.calls)
	assert.Equal(t, 2, metrics.retries)
	assert.Equal(t, 1, metrics.outcomes[appledger.CommandAllocate+"/"+appledger.OutcomeSuccess])
	assert.Equal(t, int64(75), f.available(t, runID))
	f.requireConsistent(t, runID)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	scope := &conflictingScope{}
	f := newFixtureWithScope(t, func(inner appledger.TransactionScope) appledger.TransactionScope {
		scope.inner = inner
		return scope
	})
	metrics := newRecordingMetrics()
	f.allocations.SetMetrics(metrics)
	f.allocations.SetMaxAttempts(2)

	runID := f.registerRun(t, uuid.New(), "VINYL", 100, testNow)
	scope.calls, scope.conflicts = 0, 5

	_, err := f.allocations.Allocate(context.Background(), appledger.AllocateRequest{
		ProductionRunID: runID,
		DistributorID:   uuid.New(),
		Quantity:        25,
	})
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	assert.Equal(t, 2, scope.calls)
	assert.Equal(t, 1, metrics.outcomes[appledger.CommandAllocate+"/"+appledger.OutcomeConflict])
	assert.Equal(t, int64(100), f.available(t, runID))
}

func TestConcurrentAllocationsNeverOverAllocate(t *testing.T) {
	f := newFixture(t)
	runID := f.registerRun(t, uuid.New(), "VINYL", 500, testNow)

	const workers = 20
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.allocations.Allocate(context.Background(), appledger.AllocateRequest{
				ProductionRunID: runID,
				DistributorID:   uuid.New(),
				Quantity:        30,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, shared.ErrInsufficientInventory):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 16, succeeded)
	assert.Equal(t, 4, insufficient)
	assert.Equal(t, int64(20), f.available(t, runID))
	f.requireConsistent(t, runID)
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	f := newFixture(t)
	releaseID, dist := uuid.New(), uuid.New()
	runID := f.registerRun(t, releaseID, "VINYL", 500, testNow)
	a := f.allocate(t, runID, dist, 100)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.sales.RecordSale(context.Background(), distributorSale(releaseID, dist, 7))
		}()
	}
	wg.Wait()

	got := f.allocation(t, runID, a.ID)
	assert.Equal(t, int64(98), got.UnitsSold)
	assert.Equal(t, int64(2), got.UnitsRemaining)
	f.requireConsistent(t, runID)
}

func TestRunLedger_ReadsOneState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	releaseID, dist := uuid.New(), uuid.New()
	runID := f.registerRun(t, releaseID, "VINYL", 100, testNow)
	f.allocate(t, runID, dist, 30)
	_, err := f.sales.RecordSale(ctx, distributorSale(releaseID, dist, 4))
	require.NoError(t, err)

	l, err := f.queries.RunLedger(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, runID, l.Run.ID)
	assert.Equal(t, int64(70), l.Run.Unallocated)
	assert.Equal(t, l.Run.Unallocated, l.Availability.Available)
	require.Len(t, l.Movements, 2)
	assert.Equal(t, ledger.MovementTypeSale, l.Movements[1].MovementType)

	_, err = f.queries.RunLedger(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
