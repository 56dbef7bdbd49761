package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labelops/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireInsufficient(t *testing.T, err error, requested, available int64) {
	t.Helper()
	var insufficient *shared.InsufficientInventoryError
	require.True(t, errors.As(err, &insufficient), "expected InsufficientInventoryError, got %v", err)
	assert.Equal(t, requested, insufficient.Requested)
	assert.Equal(t, available, insufficient.Available)
}

func TestSnapshot_AllocateScenarioA(t *testing.T) {
	ids := shared.NewSequentialIDGenerator(1)
	run := newTestRun(t, ids, uuid.New(), FormatVinyl, 500, testNow)
	snap := NewSnapshot(ids, testNow, []*ProductionRun{run}, nil)
	distX, distY := uuid.New(), uuid.New()

	a, err := snap.Allocate(run.ID, distX, ids.NewID(), 200)
	require.NoError(t, err)
	assert.Equal(t, int64(200), a.UnitsRemaining())
	assert.Equal(t, int64(0), a.UnitsSold)
	assert.Equal(t, testNow, a.AllocatedAt)

	_, err = snap.Allocate(run.ID, distY, ids.NewID(), 350)
	requireInsufficient(t, err, 350, 300)

	changes := snap.Changes()
	require.Len(t, changes.NewAllocations, 1)
	require.Len(t, changes.Movements, 1)
	assert.Equal(t, MovementTypeAllocation, changes.Movements[0].Type())
	assert.Equal(t, int64(-200), changes.Movements[0].QuantityDelta())
	assert.Equal(t, a.ID, changes.Movements[0].ReferenceID())
	assert.Equal(t, int64(300), snap.Unallocated(run.ID))
	assert.Equal(t, 2, run.Version)
}

func TestSnapshot_ReallocationCreatesNewRow(t *testing.T) {
	ids := shared.NewSequentialIDGenerator(1)
	run := newTestRun(t, ids, uuid.New(), FormatCD, 100, testNow)
	snap := NewSnapshot(ids, testNow, []*ProductionRun{run}, nil)
	dist := uuid.New()

	first, err := snap.Allocate(run.ID, dist, ids.NewID(), 30)
	require.NoError(t, err)
	second, err := snap.Allocate(run.ID, dist, ids.NewID(), 20)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, int64(30), first.Quantity)
	assert.Equal(t, int64(20), second.Quantity)
	assert.Len(t, snap.AllocationsFor(run.ID), 2)
	assert.Equal(t, int64(50), snap.Unallocated(run.ID))
}

func TestSnapshot_AllocateValidation(t *testing.T) {
	ids := shared.NewSequentialIDGenerator(1)
	run := newTestRun(t, ids, uuid.New(), FormatVinyl, 10, testNow)
	snap := NewSnapshot(ids, testNow, []*ProductionRun{run}, nil)

	_, err := snap.Allocate(run.ID, uuid.New(), ids.NewID(), 0)
	assert.ErrorIs(t, err, shared.ErrInvalidRequest)

	_, err = snap.Allocate(run.ID, uuid.Nil, ids.NewID(), 1)
	assert.ErrorIs(t, err, shared.ErrInvalidRequest)

	_, err = snap.Allocate(uuid.New(), uuid.New(), ids.NewID(), 1)
	assert.ErrorIs(t, err, shared.ErrInvalidRequest)

	assert.True(t, snap.Changes().IsEmpty())
}

func allocatedSnapshot(t *testing.T, quantity, sold int64) (*Snapshot, *ProductionRun, *ChannelAllocation, uuid.UUID) {
	t.Helper()
	ids := shared.NewSequentialIDGenerator(100)
	run := newTestRun(t, ids, uuid.New(), FormatVinyl, 500, testNow)
	dist := uuid.New()
	a := &ChannelAllocation{
		BaseEntity:      shared.NewBaseEntity(ids.NewID(), testNow),
		ProductionRunID: run.ID,
		DistributorID:   dist,
		Quantity:        quantity,
		UnitsSold:       sold,
		AllocatedAt:     testNow,
		Version:         1,
	}
	return NewSnapshot(ids, testNow, []*ProductionRun{run}, []*ChannelAllocation{a}), run, a, dist
}

func TestSnapshot_SellScenarioB(t *testing.T) {
	snap, run, a, dist := allocatedSnapshot(t, 200, 0)
	saleID := uuid.New()

	require.NoError(t, snap.SellThroughDistributor(run.Key(), dist, saleID, 50))
	assert.Equal(t, int64(50), a.UnitsSold)

	err := snap.SellThroughDistributor(run.Key(), dist, uuid.New(), 160)
	requireInsufficient(t, err, 160, 150)
	assert.Equal(t, int64(50), a.UnitsSold)
}

func TestSnapshot_ReturnScenarioC(t *testing.T) {
	snap, run, a, dist := allocatedSnapshot(t, 200, 50)

	require.NoError(t, snap.Return(run.Key(), dist, uuid.New(), 20))
	assert.Equal(t, int64(30), a.UnitsSold)
	assert.Equal(t, int64(170), a.UnitsRemaining())

	require.NoError(t, snap.SellThroughDistributor(run.Key(), dist, uuid.New(), 170))
	assert.Equal(t, int64(200), a.UnitsSold)
	assert.Equal(t, int64(0), a.UnitsRemaining())

	movements := snap.Movements()
	require.Len(t, movements, 2)
	assert.Equal(t, MovementTypeReturn, movements[0].Type())
	assert.Equal(t, int64(20), movements[0].QuantityDelta())
	assert.Equal(t, MovementTypeSale, movements[1].Type())
	assert.Equal(t, int64(-170), movements[1].QuantityDelta())
}

func TestSnapshot_ReturnScenarioD(t *testing.T) {
	snap, run, a, dist := allocatedSnapshot(t, 200, 50)

	err := snap.Return(run.Key(), dist, uuid.New(), 60)
	requireInsufficient(t, err, 60, 50)
	assert.Equal(t, int64(50), a.UnitsSold)
	assert.Empty(t, snap.Movements())
}

func TestSnapshot_SellDrainsOldestAllocationFirst(t *testing.T) {
	ids := shared.NewSequentialIDGenerator(1)
	releaseID := uuid.New()
	older := newTestRun(t, ids, releaseID, FormatVinyl, 100, testNow.AddDate(0, -6, 0))
	newer := newTestRun(t, ids, releaseID, FormatVinyl, 100, testNow)
	dist := uuid.New()

	snap := NewSnapshot(ids, testNow, []*ProductionRun{newer, older}, nil)
	first, err := snap.Allocate(older.ID, dist, ids.NewID(), 10)
	require.NoError(t, err)

	later := NewSnapshot(ids, testNow.Add(time.Hour), []*ProductionRun{newer, older}, []*ChannelAllocation{first})
	second, err := later.Allocate(newer.ID, dist, ids.NewID(), 10)
	require.NoError(t, err)

	saleID := uuid.New()
	require.NoError(t, later.SellThroughDistributor(older.Key(), dist, saleID, 15))
	assert.Equal(t, int64(10), first.UnitsSold)
	assert.Equal(t, int64(5), second.UnitsSold)

	sales := make([]Movement, 0)
	for _, m := range later.Movements() {
		if m.Type() == MovementTypeSale {
			sales = append(sales, m)
		}
	}
	require.Len(t, sales, 2)
	assert.Equal(t, 0, sales[0].Sequence())
	assert.Equal(t, 1, sales[1].Sequence())
	assert.Equal(t, saleID, sales[1].ReferenceID())

	require.NoError(t, later.Return(older.Key(), dist, uuid.New(), 7))
	assert.Equal(t, int64(0), second.UnitsSold, "returns restock the newest allocation first")
	assert.Equal(t, int64(8), first.UnitsSold)
}

func TestSnapshot_SellRequiresAllocation(t *testing.T) {
	snap, run, _, _ := allocatedSnapshot(t, 200, 0)

	err := snap.SellThroughDistributor(run.Key(), uuid.New(), uuid.New(), 1)
	assert.ErrorIs(t, err, shared.ErrInvalidRequest)

	err = snap.Return(run.Key(), uuid.New(), uuid.New(), 1)
	assert.ErrorIs(t, err, shared.ErrInvalidRequest)
}

func TestSnapshot_SellDirect(t *testing.T) {
	ids := shared.NewSequentialIDGenerator(1)
	releaseID := uuid.New()
	original := newTestRun(t, ids, releaseID, FormatCassette, 50, testNow.AddDate(-1, 0, 0))
	repress := newTestRun(t, ids, releaseID, FormatCassette, 50, testNow)
	snap := NewSnapshot(ids, testNow, []*ProductionRun{repress, original}, nil)

	_, err := snap.Allocate(original.ID, uuid.New(), ids.NewID(), 40)
	require.NoError(t, err)
	assert.Equal(t, int64(60), snap.AvailableDirect(original.Key()))

	require.NoError(t, snap.SellDirect(original.Key(), uuid.New(), 25))
	assert.Equal(t, int64(10), original.DirectUnitsSold)
	assert.Equal(t, int64(15), repress.DirectUnitsSold)
	assert.Equal(t, int64(0), snap.Unallocated(original.ID))

	err = snap.SellDirect(original.Key(), uuid.New(), 36)
	requireInsufficient(t, err, 36, 35)

	err = snap.SellDirect(ProductKey{ReleaseID: releaseID, Format: FormatVinyl}, uuid.New(), 1)
	assert.ErrorIs(t, err, shared.ErrInvalidRequest)

	changes := snap.Changes()
	assert.Len(t, changes.Runs, 2)
	assert.Empty(t, changes.UpdatedAllocations)
	assert.Len(t, changes.NewAllocations, 1)
}

func TestSnapshot_Adjust(t *testing.T) {
	ids := shared.NewSequentialIDGenerator(1)
	run := newTestRun(t, ids, uuid.New(), FormatVinyl, 100, testNow)
	snap := NewSnapshot(ids, testNow, []*ProductionRun{run}, nil)
	_, err := snap.Allocate(run.ID, uuid.New(), ids.NewID(), 90)
	require.NoError(t, err)

	err = snap.Adjust(run.ID, -11, uuid.New(), "water damage")
	requireInsufficient(t, err, 11, 10)

	require.NoError(t, snap.Adjust(run.ID, -4, uuid.New(), "warped"))
	assert.Equal(t, int64(-4), run.Adjustment)
	assert.Equal(t, int64(6), snap.Unallocated(run.ID))

	err = snap.Adjust(run.ID, 5, uuid.New(), "found")
	assert.ErrorIs(t, err, shared.ErrInvalidRequest)

	require.NoError(t, snap.Adjust(run.ID, 4, uuid.New(), "found in back room"))
	assert.Equal(t, int64(0), run.Adjustment)

	assert.ErrorIs(t, snap.Adjust(run.ID, 0, uuid.New(), ""), shared.ErrInvalidRequest)
	assert.ErrorIs(t, snap.Adjust(uuid.New(), -1, uuid.New(), ""), shared.ErrInvalidRequest)
}

func TestSnapshot_ChangesListOnlyTouchedRows(t *testing.T) {
	snap, run, a, dist := allocatedSnapshot(t, 200, 0)

	require.NoError(t, snap.SellThroughDistributor(run.Key(), dist, uuid.New(), 10))

	changes := snap.Changes()
	assert.Empty(t, changes.Runs)
	assert.Empty(t, changes.NewAllocations)
	require.Len(t, changes.UpdatedAllocations, 1)
	assert.Equal(t, a.ID, changes.UpdatedAllocations[0].ID)
	assert.Equal(t, 2, a.Version)
	assert.Len(t, changes.Movements, 1)
}

func TestSnapshot_VersionMovesOncePerCommand(t *testing.T) {
	snap, run, a, dist := allocatedSnapshot(t, 10, 0)

	require.NoError(t, snap.SellThroughDistributor(run.Key(), dist, uuid.New(), 3))
	require.NoError(t, snap.SellThroughDistributor(run.Key(), dist, uuid.New(), 3))
	require.NoError(t, snap.Return(run.Key(), dist, uuid.New(), 2))
	assert.Equal(t, int64(4), a.UnitsSold)
	assert.Equal(t, 2, a.Version)

	require.NoError(t, snap.SellDirect(run.Key(), uuid.New(), 2))
	require.NoError(t, snap.SellDirect(run.Key(), uuid.New(), 2))
	require.NoError(t, snap.Adjust(run.ID, -1, uuid.New(), "warped"))
	assert.Equal(t, int64(4), run.DirectUnitsSold)
	assert.Equal(t, 2, run.Version)

	changes := snap.Changes()
	require.Len(t, changes.Runs, 1)
	require.Len(t, changes.UpdatedAllocations, 1)
	assert.Len(t, changes.Movements, 6)
}

func TestSnapshot_NewAllocationStaysAtVersionOne(t *testing.T) {
	ids := shared.NewSequentialIDGenerator(1)
	run := newTestRun(t, ids, uuid.New(), FormatVinyl, 50, testNow)
	snap := NewSnapshot(ids, testNow, []*ProductionRun{run}, nil)
	dist := uuid.New()

	a, err := snap.Allocate(run.ID, dist, ids.NewID(), 20)
	require.NoError(t, err)
	require.NoError(t, snap.SellThroughDistributor(run.Key(), dist, uuid.New(), 5))

	assert.Equal(t, 1, a.Version)
	changes := snap.Changes()
	assert.Len(t, changes.NewAllocations, 1)
	assert.Empty(t, changes.UpdatedAllocations)
}
