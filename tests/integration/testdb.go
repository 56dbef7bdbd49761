// Package integration runs the ledger against real PostgreSQL, Redis and
// MinIO instances started with testcontainers.
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/labelops/backend/internal/infrastructure/migration"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// postgresServer is started once per package run and migrated once
var postgresServer struct {
	sync.Mutex
	container testcontainers.Container
	dsn       string
}

// TestDB is one connection pool to the package's PostgreSQL server
type TestDB struct {
	DB    *gorm.DB
	SqlDB *sql.DB
	t     *testing.T
}

// NewSharedTestDB connects to the package's PostgreSQL server, starting and
// migrating it on first use. Callers should CleanTables before counting rows.
func NewSharedTestDB(t *testing.T) *TestDB {
	t.Helper()

	postgresServer.Lock()
	defer postgresServer.Unlock()

	if postgresServer.container == nil {
		ctx := context.Background()
		container, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("ledger_test"),
			tcpostgres.WithUsername("postgres"),
			tcpostgres.WithPassword("ledger123"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		require.NoError(t, err, "Failed to start PostgreSQL container")

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			_ = container.Terminate(ctx)
			require.NoError(t, err, "Failed to read PostgreSQL DSN")
		}

		_, sqlDB := openPool(t, dsn)
		migrator, err := migration.NewEmbedded(sqlDB, zap.NewNop())
		require.NoError(t, err, "Failed to create migrator")
		require.NoError(t, migrator.Up(), "Failed to run migrations")
		_ = sqlDB.Close()

		postgresServer.container, postgresServer.dsn = container, dsn
	}

	db, sqlDB := openPool(t, postgresServer.dsn)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return &TestDB{DB: db, SqlDB: sqlDB, t: t}
}

// CleanTables empties every ledger table. The append-only trigger on
// inventory_movements fires on DELETE but not on TRUNCATE.
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()

	var tables []string
	err := tdb.DB.Raw(`SELECT tablename FROM pg_tables
		WHERE schemaname = 'public' AND tablename != 'schema_migrations'`).Scan(&tables).Error
	require.NoError(tdb.t, err, "Failed to list tables")

	for _, table := range tables {
		require.NoError(tdb.t, tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)).Error,
			"Failed to truncate %s", table)
	}
}

// Count returns the number of rows in table
func (tdb *TestDB) Count(table string) int64 {
	tdb.t.Helper()

	var n int64
	require.NoError(tdb.t, tdb.DB.Table(table).Count(&n).Error)
	return n
}

func openPool(t *testing.T, dsn string) (*gorm.DB, *sql.DB) {
	t.Helper()

	level := logger.Silent
	if os.Getenv("TEST_DB_DEBUG") != "" {
		level = logger.Info
	}
	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(level)})
	require.NoError(t, err, "Failed to connect to database")

	sqlDB, err := db.DB()
	require.NoError(t, err)

	// the concurrent allocation tests hold one connection per goroutine
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	return db, sqlDB
}

// CleanupSharedContainer terminates the PostgreSQL server; call it from TestMain
func CleanupSharedContainer() {
	postgresServer.Lock()
	defer postgresServer.Unlock()

	if postgresServer.container == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = postgresServer.container.Terminate(ctx)
	postgresServer.container, postgresServer.dsn = nil, ""
}
