package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	appledger "github.com/labelops/backend/internal/application/ledger"
	"github.com/labelops/backend/internal/domain/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestMovementWorkbook_WriteTo(t *testing.T) {
	at := time.Date(2024, 9, 2, 9, 30, 0, 0, time.UTC)
	runID, dist, allocID, saleID := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	wb := &MovementWorkbook{
		Run: &appledger.ProductionRunResponse{
			ID:                runID,
			ReleaseID:         uuid.New(),
			Format:            ledger.FormatVinyl,
			Manufacturer:      "Optimal Media",
			ManufacturingDate: at.AddDate(0, -1, 0),
			Quantity:          500,
			Unallocated:       300,
		},
		Availability: &appledger.AvailableQuantityResponse{ProductionRunID: runID, Available: 300},
		Movements: []appledger.MovementResponse{
			{ProductionRunID: runID, DistributorID: &dist, AllocationID: &allocID, QuantityDelta: -200,
				MovementType: ledger.MovementTypeAllocation, OccurredAt: at, ReferenceID: allocID},
			{ProductionRunID: runID, DistributorID: &dist, AllocationID: &allocID, QuantityDelta: -50,
				MovementType: ledger.MovementTypeSale, OccurredAt: at.Add(time.Hour), ReferenceID: saleID},
			{ProductionRunID: runID, QuantityDelta: -5, MovementType: ledger.MovementTypeAdjustment,
				OccurredAt: at.Add(2 * time.Hour), ReferenceID: uuid.New(), Note: "water damage"},
		},
	}

	var buf bytes.Buffer
	n, err := wb.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "Movements"}, f.GetSheetList())

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	assert.Equal(t, []string{"Production Run", runID.String()}, summary[0])
	assert.Equal(t, []string{"Available", "300"}, summary[len(summary)-1])

	rows, err := f.GetRows("Movements")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Net Change", rows[0][4])

	assert.Equal(t, "ALLOCATION", rows[1][2])
	assert.Equal(t, "-200", rows[1][4])
	assert.Equal(t, dist.String(), rows[1][5])

	assert.Equal(t, saleID.String(), rows[2][7])
	assert.Equal(t, "-250", rows[2][4])

	assert.Equal(t, "-5", rows[3][3])
	assert.Equal(t, "-255", rows[3][4])
	assert.Equal(t, "", rows[3][5])
	assert.Equal(t, "water damage", rows[3][9])
}
