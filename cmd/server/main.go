package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	appledger "github.com/labelops/backend/internal/application/ledger"
	"github.com/labelops/backend/internal/domain/shared"
	"github.com/labelops/backend/internal/infrastructure/cache"
	"github.com/labelops/backend/internal/infrastructure/config"
	"github.com/labelops/backend/internal/infrastructure/event"
	"github.com/labelops/backend/internal/infrastructure/export"
	"github.com/labelops/backend/internal/infrastructure/logger"
	"github.com/labelops/backend/internal/infrastructure/migration"
	"github.com/labelops/backend/internal/infrastructure/persistence"
	"github.com/labelops/backend/internal/infrastructure/persistence/memory"
	"github.com/labelops/backend/internal/infrastructure/scheduler"
	"github.com/labelops/backend/internal/infrastructure/storage"
	"github.com/labelops/backend/internal/infrastructure/telemetry"
	"github.com/labelops/backend/internal/interfaces/http/handler"
	"github.com/labelops/backend/internal/interfaces/http/middleware"
	"github.com/labelops/backend/internal/interfaces/http/router"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	if err := run(cfg, log); err != nil {
		log.Fatal("Server exited with error", zap.Error(err))
	}
}

// configurable is the tuning surface shared by the command services
type configurable interface {
	SetEventPublisher(shared.EventPublisher)
	SetIdempotencyStore(shared.IdempotencyStore, shared.IdempotencyConfig)
	SetLocker(shared.Locker, time.Duration)
	SetMetrics(appledger.MetricsRecorder)
	SetMaxAttempts(int)
}

// ledgerStore is the opened backing store plus whatever must be released with it
type ledgerStore struct {
	scope   appledger.TransactionScope
	checks  map[string]handler.HealthCheck
	closeFn func() error
}

func run(cfg *config.Config, baseLog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.Setup(ctx, cfg.Telemetry, baseLog)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			baseLog.Error("Error shutting down telemetry", zap.Error(err))
		}
	}()
	log := providers.BridgeLogger(baseLog, zapcore.InfoLevel)

	log.Info("Starting label ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("store", cfg.Database.Driver),
	)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.PyroscopeEndpoint,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		log.Warn("Continuous profiling unavailable", zap.Error(err))
	} else {
		defer func() { _ = profiler.Stop() }()
		if profiler.Running() {
			providers.EnableSpanProfiles()
		}
	}

	store, err := openStore(cfg, providers, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.closeFn(); err != nil {
			log.Error("Error closing store", zap.Error(err))
		}
	}()

	guards, err := cache.NewGuardsFactory(
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create idempotency guards: %w", err)
	}
	defer func() { _ = guards.Close() }()
	if guards.Distributed() {
		store.checks["redis"] = guards.Ping
	}

	metrics, err := telemetry.NewLedgerMetrics(providers.Meter("ledger"))
	if err != nil {
		return fmt.Errorf("create ledger metrics: %w", err)
	}

	bus := event.NewInMemoryEventBus(log, event.BusOptions{
		BufferSize: cfg.Event.BufferSize,
		Workers:    cfg.Event.Workers,
	})
	bus.Subscribe(event.NewLoggingHandler(log, event.NewLedgerSerializer()))
	bus.Subscribe(event.NewMetricsHandler(metrics))
	if err := bus.Start(ctx); err != nil {
		return fmt.Errorf("start event bus: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := bus.Stop(stopCtx); err != nil {
			log.Warn("Event bus did not drain", zap.Error(err))
		}
	}()

	ids := shared.UUIDGenerator{}
	clock := shared.SystemClock{}
	runs := appledger.NewProductionRunService(store.scope, ids, clock, log)
	allocations := appledger.NewAllocationService(store.scope, ids, clock, log)
	sales := appledger.NewSaleService(store.scope, ids, clock, log)
	returns := appledger.NewReturnService(store.scope, ids, clock, log)
	queries := appledger.NewQueryService(store.scope)

	for _, svc := range []configurable{runs, allocations, sales, returns} {
		svc.SetEventPublisher(bus)
		svc.SetIdempotencyStore(guards.Store, shared.IdempotencyConfig{
			TTL:     cfg.Ledger.IdempotencyTTL,
			Enabled: cfg.Ledger.IdempotencyEnabled,
		})
		svc.SetLocker(guards.Locker, cfg.Ledger.LockTTL)
		svc.SetMetrics(metrics)
		svc.SetMaxAttempts(cfg.Ledger.MaxAttempts)
	}

	archiveStore, err := openArchive(ctx, cfg, log)
	if err != nil {
		return err
	}
	archiver := export.NewArchiver(queries, archiveStore)

	if cfg.Sweep.Enabled {
		stopSweep, err := startSweep(ctx, cfg, queries, archiver, metrics, clock, log)
		if err != nil {
			return err
		}
		defer stopSweep()
	}

	mode := gin.ReleaseMode
	if cfg.App.Env == "development" {
		mode = gin.DebugMode
	}
	engine, err := router.NewEngine(router.EngineConfig{
		Mode:   mode,
		Logger: log,
		CORS: middleware.CORSConfig{
			AllowOrigins: cfg.HTTP.CORSAllowOrigins,
			AllowMethods: cfg.HTTP.CORSAllowMethods,
			AllowHeaders: cfg.HTTP.CORSAllowHeaders,
			MaxAge:       12 * time.Hour,
		},
		TrustedProxies: cfg.HTTP.TrustedProxies,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Tracing: middleware.TracingConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			Enabled:        providers.Enabled(),
			TracerProvider: otel.GetTracerProvider(),
			SkipPaths:      []string{"/health"},
		},
		Meter:     providers.Meter("http.server"),
		Profiling: cfg.Telemetry.ProfilingEnabled,
	})
	if err != nil {
		return fmt.Errorf("build http engine: %w", err)
	}

	router.Mount(engine, router.LedgerHandlers{
		ProductionRuns: handler.NewProductionRunHandler(runs, queries),
		Allocations:    handler.NewAllocationHandler(allocations),
		Sales:          handler.NewSaleHandler(sales, queries),
		Returns:        handler.NewReturnHandler(returns, queries),
		Distributors:   handler.NewDistributorHandler(queries),
		Archives:       handler.NewArchiveHandler(archiver, clock, cfg.Archive.PresignExpiration),
	}, handler.NewHealthHandler(telemetry.ServiceVersion, 2*time.Second, store.checks))

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Server exited")
	return nil
}

// openStore builds the transaction scope for the configured driver
func openStore(cfg *config.Config, providers *telemetry.Providers, log *zap.Logger) (*ledgerStore, error) {
	if cfg.Database.Driver == config.DriverMemory {
		log.Warn("Using the in-memory store, data is lost on restart")
		return &ledgerStore{
			scope:   memory.NewStore(),
			checks:  map[string]handler.HealthCheck{},
			closeFn: func() error { return nil },
		}, nil
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	sqlDB, err := db.DB.DB()
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	dbSystem, dbName := "postgresql", cfg.Database.DBName
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		dbSystem, dbName = "sqlite", cfg.Database.SQLitePath
		if err := db.AutoMigrate(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sync sqlite schema: %w", err)
		}
	default:
		if cfg.Database.AutoMigrate {
			m, err := migration.NewEmbedded(sqlDB, log)
			if err != nil {
				_ = db.Close()
				return nil, err
			}
			if err := m.Up(); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
	}

	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         providers.Enabled() && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        dbSystem,
	}, log); err != nil {
		log.Warn("Database tracing not registered", zap.Error(err))
	}
	if _, err := telemetry.RegisterPoolMetrics(providers.Meter("db.pool"), dbName, sqlDB.Stats); err != nil {
		log.Warn("Connection pool metrics not registered", zap.Error(err))
	}

	return &ledgerStore{
		scope:   persistence.NewGormTransactionScope(db.DB),
		checks:  map[string]handler.HealthCheck{"database": db.PingContext},
		closeFn: db.Close,
	}, nil
}

// openArchive returns the S3 archive when configured and an in-process store otherwise
func openArchive(ctx context.Context, cfg *config.Config, log *zap.Logger) (export.ArchiveStore, error) {
	if !cfg.Archive.Enabled {
		log.Info("Object storage archive disabled, workbooks are kept in memory")
		return storage.NewMemoryArchiveStore(), nil
	}
	s3, err := storage.NewS3ArchiveStore(&cfg.Archive, storage.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("create archive store: %w", err)
	}
	if err := s3.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure archive bucket: %w", err)
	}
	log.Info("Object storage archive ready", zap.String("bucket", s3.Bucket()))
	return s3, nil
}

// startSweep runs the nightly reconciliation sweep and returns its shutdown func
func startSweep(
	ctx context.Context,
	cfg *config.Config,
	queries *appledger.QueryService,
	archiver *export.Archiver,
	metrics *telemetry.LedgerMetrics,
	clock shared.Clock,
	log *zap.Logger,
) (func(), error) {
	opts := []scheduler.ExecutorOption{scheduler.WithRecorder(metrics)}
	if cfg.Archive.Enabled {
		opts = append(opts, scheduler.WithArchiver(archiver))
	}
	executor := scheduler.NewReconciliationExecutor(queries, log.Named("sweep"), opts...)

	defaults := scheduler.DefaultConfig()
	sched, err := scheduler.NewScheduler(scheduler.Config{
		Workers:       cfg.Sweep.Workers,
		QueueSize:     defaults.QueueSize,
		JobTimeout:    cfg.Sweep.JobTimeout,
		RetryAttempts: cfg.Sweep.RetryAttempts,
		RetryDelay:    cfg.Sweep.RetryDelay,
	}, executor, log.Named("sweep"))
	if err != nil {
		return nil, fmt.Errorf("create sweep scheduler: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return nil, err
	}

	trigger := scheduler.NewCronTrigger(scheduler.CronTriggerConfig{
		Hour:          cfg.Sweep.Hour,
		Minute:        cfg.Sweep.Minute,
		CheckInterval: cfg.Sweep.CheckInterval,
	}, sched, queries, clock, log.Named("sweep"))
	if err := trigger.Start(ctx); err != nil {
		return nil, err
	}

	return func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := trigger.Stop(stopCtx); err != nil {
			log.Warn("Sweep trigger did not stop", zap.Error(err))
		}
		if err := sched.Stop(stopCtx); err != nil {
			log.Warn("Sweep scheduler did not drain", zap.Error(err))
		}
	}, nil
}
