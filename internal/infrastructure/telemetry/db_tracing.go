package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig configures gorm statement tracing
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool          // include bound variables in db.statement
	SlowQueryThresh time.Duration // statements slower than this get a slow_query event
	DBSystem        string        // "postgresql" or "sqlite"
	TracerProvider  trace.TracerProvider
}

type queryStartKey struct{}

// RegisterDBTracing installs otelgorm on db, plus callbacks that annotate each
// statement span with its table, rows affected and slowness. The annotating
// callbacks are registered first so they run before otelgorm ends the span.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		logger.Debug("Database tracing disabled")
		return nil
	}
	if cfg.SlowQueryThresh == 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if cfg.TracerProvider != nil {
		opts = append(opts, otelgorm.WithTracerProvider(cfg.TracerProvider))
	}
	a := &spanAnnotator{slow: cfg.SlowQueryThresh}
	cb := db.Callback()
	err := errors.Join(
		cb.Create().Before("gorm:create").Register("ledger_trace:before_create", a.before),
		cb.Query().Before("gorm:query").Register("ledger_trace:before_query", a.before),
		cb.Update().Before("gorm:update").Register("ledger_trace:before_update", a.before),
		cb.Delete().Before("gorm:delete").Register("ledger_trace:before_delete", a.before),
		cb.Row().Before("gorm:row").Register("ledger_trace:before_row", a.before),
		cb.Raw().Before("gorm:raw").Register("ledger_trace:before_raw", a.before),
		cb.Create().After("gorm:create").Register("ledger_trace:after_create", a.after),
		cb.Query().After("gorm:query").Register("ledger_trace:after_query", a.after),
		cb.Update().After("gorm:update").Register("ledger_trace:after_update", a.after),
		cb.Delete().After("gorm:delete").Register("ledger_trace:after_delete", a.after),
		cb.Row().After("gorm:row").Register("ledger_trace:after_row", a.after),
		cb.Raw().After("gorm:raw").Register("ledger_trace:after_raw", a.after),
	)
	if err != nil {
		return err
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	logger.Info("Database tracing enabled",
		zap.String("db_system", cfg.DBSystem),
		zap.Bool("log_full_sql", cfg.LogFullSQL),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThresh),
	)
	return nil
}

type spanAnnotator struct {
	slow time.Duration
}

func (a *spanAnnotator) before(db *gorm.DB) {
	if db.Statement.Context != nil {
		db.Statement.Context = context.WithValue(db.Statement.Context, queryStartKey{}, time.Now())
	}
}

func (a *spanAnnotator) after(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
	}
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, db.Error.Error())
		span.RecordError(db.Error)
	}

	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed > a.slow {
		span.SetAttributes(attribute.Bool("db.slow_query", true))
		span.AddEvent("slow_query", trace.WithAttributes(
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", a.slow.Milliseconds()),
		))
	}
}
