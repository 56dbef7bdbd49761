package telemetry

import (
	"context"
	"database/sql"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// StatsFunc reports connection pool statistics
type StatsFunc func() sql.DBStats

// RegisterPoolMetrics exposes connection pool state as observable instruments.
// The returned registration must be unregistered before the pool is closed.
func RegisterPoolMetrics(meter metric.Meter, dbName string, stats StatsFunc) (metric.Registration, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	open, err := meter.Int64ObservableGauge("db_pool_open_connections",
		metric.WithDescription("Open connections, in use and idle"))
	if err != nil {
		return nil, fmt.Errorf("create db_pool_open_connections: %w", err)
	}
	inUse, err := meter.Int64ObservableGauge("db_pool_in_use_connections",
		metric.WithDescription("Connections currently in use"))
	if err != nil {
		return nil, fmt.Errorf("create db_pool_in_use_connections: %w", err)
	}
	idle, err := meter.Int64ObservableGauge("db_pool_idle_connections",
		metric.WithDescription("Idle connections"))
	if err != nil {
		return nil, fmt.Errorf("create db_pool_idle_connections: %w", err)
	}
	waits, err := meter.Int64ObservableCounter("db_pool_wait_count_total",
		metric.WithDescription("Connections waited for"))
	if err != nil {
		return nil, fmt.Errorf("create db_pool_wait_count_total: %w", err)
	}
	waitTime, err := meter.Float64ObservableCounter("db_pool_wait_duration_seconds_total",
		metric.WithDescription("Time spent waiting for a connection"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create db_pool_wait_duration_seconds_total: %w", err)
	}

	attrs := metric.WithAttributes(attribute.String("db.name", dbName))
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := stats()
		o.ObserveInt64(open, int64(s.OpenConnections), attrs)
		o.ObserveInt64(inUse, int64(s.InUse), attrs)
		o.ObserveInt64(idle, int64(s.Idle), attrs)
		o.ObserveInt64(waits, s.WaitCount, attrs)
		o.ObserveFloat64(waitTime, s.WaitDuration.Seconds(), attrs)
		return nil
	}, open, inUse, idle, waits, waitTime)
}
