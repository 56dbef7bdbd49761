package ledger

import (
	"context"
	"time"
)

// Command names used in logs and metrics
const (
	CommandAllocate     = "allocate"
	CommandRecordSale   = "record_sale"
	CommandRecordReturn = "record_return"
	CommandAdjust       = "adjust"
	CommandRegisterRun  = "register_production_run"
)

// Command outcomes
const (
	OutcomeSuccess      = "success"
	OutcomeInsufficient = "insufficient_inventory"
	OutcomeInvalid      = "invalid_request"
	OutcomeDuplicate    = "duplicate_reference"
	OutcomeConflict     = "concurrency_conflict"
	OutcomeError        = "error"
)

// MetricsRecorder receives ledger command measurements
type MetricsRecorder interface {
	RecordCommand(ctx context.Context, command, outcome string, duration time.Duration)
	RecordConflictRetry(ctx context.Context, command string)
}

type noopMetrics struct{}

func (noopMetrics) RecordCommand(context.Context, string, string, time.Duration) {}
func (noopMetrics) RecordConflictRetry(context.Context, string)                  {}
