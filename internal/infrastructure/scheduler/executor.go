package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/labelops/backend/internal/domain/ledger"
	"github.com/labelops/backend/internal/infrastructure/export"
	"go.uber.org/zap"
)

// Reconciler replays a production run's movements against its counters
type Reconciler interface {
	Reconcile(ctx context.Context, id uuid.UUID) (*ledger.ReconciliationReport, error)
}

// RunArchiver stores a snapshot of a production run's ledger
type RunArchiver interface {
	Archive(ctx context.Context, runID uuid.UUID, day time.Time) (*export.ArchivedWorkbook, error)
}

// ReconciliationRecorder receives one result per reconciled run
type ReconciliationRecorder interface {
	RecordReconciliation(ctx context.Context, consistent bool)
}

// ReconciliationExecutor reconciles the job's run, reports drift and archives
// the run's movement workbook when an archiver is configured
type ReconciliationExecutor struct {
	reconciler Reconciler
	archiver   RunArchiver
	recorder   ReconciliationRecorder
	logger     *zap.Logger
}

// ExecutorOption configures a ReconciliationExecutor
type ExecutorOption func(*ReconciliationExecutor)

// WithArchiver archives every reconciled run
func WithArchiver(a RunArchiver) ExecutorOption {
	return func(e *ReconciliationExecutor) { e.archiver = a }
}

// WithRecorder reports reconciliation results
func WithRecorder(r ReconciliationRecorder) ExecutorOption {
	return func(e *ReconciliationExecutor) { e.recorder = r }
}

// NewReconciliationExecutor creates a new ReconciliationExecutor
func NewReconciliationExecutor(reconciler Reconciler, logger *zap.Logger, opts ...ExecutorOption) *ReconciliationExecutor {
	e := &ReconciliationExecutor{reconciler: reconciler, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute implements JobExecutor. Drift is reported, not returned: retrying
// cannot repair counters that disagree with the ledger.
func (e *ReconciliationExecutor) Execute(ctx context.Context, job *Job) error {
	report, err := e.reconciler.Reconcile(ctx, job.ProductionRunID)
	if err != nil {
		return fmt.Errorf("reconcile production run %s: %w", job.ProductionRunID, err)
	}
	if e.recorder != nil {
		e.recorder.RecordReconciliation(ctx, report.Consistent())
	}

	if report.Consistent() {
		e.logger.Debug("Production run reconciled",
			zap.String("production_run_id", job.ProductionRunID.String()),
			zap.Int("movements", report.MovementCount),
		)
	} else {
		drift := make([]string, 0, len(report.Discrepancies))
		for _, d := range report.Discrepancies {
			drift = append(drift, d.String())
		}
		e.logger.Warn("Production run counters drifted from the ledger",
			zap.String("production_run_id", job.ProductionRunID.String()),
			zap.Int64("stored_unallocated", report.StoredUnallocated),
			zap.Int64("replayed_unallocated", report.ReplayedUnallocated),
			zap.Strings("discrepancies", drift),
			zap.Strings("violations", report.Violations),
		)
	}

	if e.archiver == nil {
		return nil
	}
	archived, err := e.archiver.Archive(ctx, job.ProductionRunID, job.SweepDay)
	if err != nil {
		return fmt.Errorf("archive production run %s: %w", job.ProductionRunID, err)
	}
	e.logger.Info("Production run ledger archived",
		zap.String("production_run_id", job.ProductionRunID.String()),
		zap.String("key", archived.Key),
		zap.Int("bytes", archived.Size),
	)
	return nil
}
