package telemetry

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRegisterPoolMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("db")

	stats := sql.DBStats{OpenConnections: 4, InUse: 3, Idle: 1, WaitCount: 7, WaitDuration: 1500 * time.Millisecond}
	reg, err := RegisterPoolMetrics(meter, "ledger", func() sql.DBStats { return stats })
	require.NoError(t, err)
	defer func() { _ = reg.Unregister() }()

	metrics := collect(t, reader)

	gauge := func(name string) int64 {
		g := metrics[name].Data.(metricdata.Gauge[int64])
		require.Len(t, g.DataPoints, 1)
		return g.DataPoints[0].Value
	}
	assert.Equal(t, int64(4), gauge("db_pool_open_connections"))
	assert.Equal(t, int64(3), gauge("db_pool_in_use_connections"))
	assert.Equal(t, int64(1), gauge("db_pool_idle_connections"))

	waits := metrics["db_pool_wait_count_total"].Data.(metricdata.Sum[int64])
	assert.Equal(t, int64(7), waits.DataPoints[0].Value)
	waitTime := metrics["db_pool_wait_duration_seconds_total"].Data.(metricdata.Sum[float64])
	assert.InDelta(t, 1.5, waitTime.DataPoints[0].Value, 1e-9)
}
