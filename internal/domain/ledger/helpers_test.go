package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labelops/backend/internal/domain/shared"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestRun(t *testing.T, ids shared.IDGenerator, releaseID uuid.UUID, format Format, quantity int64, manufactured time.Time) *ProductionRun {
	t.Helper()
	run, err := NewProductionRun(ids.NewID(), testNow, NewProductionRunParams{
		ReleaseID:         releaseID,
		Format:            format,
		Description:       "180g black vinyl",
		Manufacturer:      "Pallas",
		ManufacturingDate: manufactured,
		Quantity:          quantity,
	})
	require.NoError(t, err)
	run.ClearDomainEvents()
	return run
}
