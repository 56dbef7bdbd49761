package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/labelops/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnallocated(t *testing.T) {
	run := &ProductionRun{Quantity: 500, DirectUnitsSold: 20, Adjustment: -5}
	run.ID = uuid.New()
	other := uuid.New()
	allocations := []*ChannelAllocation{
		{ProductionRunID: run.ID, Quantity: 200, UnitsSold: 150},
		{ProductionRunID: run.ID, Quantity: 100},
		{ProductionRunID: other, Quantity: 1000},
	}

	assert.Equal(t, int64(175), Unallocated(run, allocations))
	assert.Equal(t, int64(50), UnitsRemaining(allocations[0]))

	av := CalculateAvailability(run, allocations)
	assert.Equal(t, int64(300), av.Allocated)
	assert.Equal(t, int64(150), av.ChannelSold)
	assert.Equal(t, int64(150), av.ChannelRemaining)
	assert.Equal(t, int64(175), av.Unallocated)
	assert.Equal(t, int64(20), av.DirectUnitsSold)
}

func TestReconcile_ReplayMatchesCounters(t *testing.T) {
	ids := shared.NewSequentialIDGenerator(1)
	run := newTestRun(t, ids, uuid.New(), FormatVinyl, 500, testNow)
	distX, distY := uuid.New(), uuid.New()

	snap := NewSnapshot(ids, testNow, []*ProductionRun{run}, nil)
	_, err := snap.Allocate(run.ID, distX, ids.NewID(), 200)
	require.NoError(t, err)
	_, err = snap.Allocate(run.ID, distY, ids.NewID(), 100)
	require.NoError(t, err)
	require.NoError(t, snap.SellThroughDistributor(run.Key(), distX, uuid.New(), 120))
	require.NoError(t, snap.SellThroughDistributor(run.Key(), distY, uuid.New(), 30))
	require.NoError(t, snap.Return(run.Key(), distX, uuid.New(), 15))
	require.NoError(t, snap.SellDirect(run.Key(), uuid.New(), 40))
	require.NoError(t, snap.Adjust(run.ID, -10, uuid.New(), "shrink"))

	report := Reconcile(run, snap.AllocationsFor(run.ID), snap.Movements())

	assert.True(t, report.Consistent(), "discrepancies: %v violations: %v", report.Discrepancies, report.Violations)
	assert.Equal(t, 7, report.MovementCount)
	assert.Equal(t, int64(150), report.StoredUnallocated)
	assert.Equal(t, report.StoredUnallocated, report.ReplayedUnallocated)
}

func TestReconcile_DetectsDrift(t *testing.T) {
	ids := shared.NewSequentialIDGenerator(1)
	run := newTestRun(t, ids, uuid.New(), FormatCD, 100, testNow)
	dist := uuid.New()

	snap := NewSnapshot(ids, testNow, []*ProductionRun{run}, nil)
	a, err := snap.Allocate(run.ID, dist, ids.NewID(), 60)
	require.NoError(t, err)
	require.NoError(t, snap.SellThroughDistributor(run.Key(), dist, uuid.New(), 10))

	t.Run("counter changed without a movement", func(t *testing.T) {
		tampered := *a
		tampered.UnitsSold = 12
		report := Reconcile(run, []*ChannelAllocation{&tampered}, snap.Movements())

		require.False(t, report.Consistent())
		require.Len(t, report.Discrepancies, 1)
		d := report.Discrepancies[0]
		assert.Equal(t, "allocation", d.Subject)
		assert.Equal(t, "units_sold", d.Field)
		assert.Equal(t, int64(12), d.Stored)
		assert.Equal(t, int64(10), d.Replayed)
	})

	t.Run("movement without its allocation", func(t *testing.T) {
		report := Reconcile(run, nil, snap.Movements())

		require.False(t, report.Consistent())
		assert.Equal(t, int64(100), report.StoredUnallocated)
		assert.Equal(t, int64(40), report.ReplayedUnallocated)
	})

	t.Run("overallocated counters are violations", func(t *testing.T) {
		over := *a
		over.Quantity = 150
		over.UnitsSold = 160
		report := Reconcile(run, []*ChannelAllocation{&over}, nil)

		assert.False(t, report.Consistent())
		assert.Len(t, report.Violations, 3)
	})
}
