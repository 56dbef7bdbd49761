package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	appledger "github.com/labelops/backend/internal/application/ledger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics constructor receives no meter
var ErrMeterNil = errors.New("telemetry: meter is nil")

// LedgerMetrics records ledger command outcomes as OpenTelemetry instruments
type LedgerMetrics struct {
	commands metric.Int64Counter
	duration metric.Float64Histogram
	retries  metric.Int64Counter
	units    metric.Int64Counter
	sweeps   metric.Int64Counter
}

// NewLedgerMetrics registers the ledger instruments on meter
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	commands, err := meter.Int64Counter("ledger_commands_total",
		metric.WithDescription("Ledger commands by command and outcome"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ledger_commands_total: %w", err)
	}
	duration, err := meter.Float64Histogram("ledger_command_duration_seconds",
		metric.WithDescription("Ledger command latency including retries"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5),
	)
	if err != nil {
		return nil, fmt.Errorf("create ledger_command_duration_seconds: %w", err)
	}
	retries, err := meter.Int64Counter("ledger_conflict_retries_total",
		metric.WithDescription("Commands re-run after losing an optimistic lock"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ledger_conflict_retries_total: %w", err)
	}

	units, err := meter.Int64Counter("ledger_units_total",
		metric.WithDescription("Units moved by committed ledger commands"),
		metric.WithUnit("{unit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ledger_units_total: %w", err)
	}

	sweeps, err := meter.Int64Counter("ledger_reconciliations_total",
		metric.WithDescription("Production runs reconciled by the sweep, by result"),
		metric.WithUnit("{production_run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ledger_reconciliations_total: %w", err)
	}

	return &LedgerMetrics{commands: commands, duration: duration, retries: retries, units: units, sweeps: sweeps}, nil
}

// RecordCommand implements appledger.MetricsRecorder
func (m *LedgerMetrics) RecordCommand(ctx context.Context, command, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("outcome", outcome),
	)
	m.commands.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
}

// RecordConflictRetry implements appledger.MetricsRecorder
func (m *LedgerMetrics) RecordConflictRetry(ctx context.Context, command string) {
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("command", command)))
}

// RecordUnits counts units by kind. Negative quantities are counted with direction "out".
func (m *LedgerMetrics) RecordUnits(ctx context.Context, kind string, units int64) {
	direction := "in"
	if units < 0 {
		direction, units = "out", -units
	}
	m.units.Add(ctx, units, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("direction", direction),
	))
}

// RecordReconciliation counts one reconciled production run
func (m *LedgerMetrics) RecordReconciliation(ctx context.Context, consistent bool) {
	result := "consistent"
	if !consistent {
		result = "drift"
	}
	m.sweeps.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

var _ appledger.MetricsRecorder = (*LedgerMetrics)(nil)
