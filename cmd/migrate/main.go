package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/labelops/backend/internal/infrastructure/config"
	"github.com/labelops/backend/internal/infrastructure/logger"
	"github.com/labelops/backend/internal/infrastructure/migration"
	"github.com/labelops/backend/internal/infrastructure/persistence"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {
	var (
		migrationsPath string
		logLevel       string
	)
	flag.StringVar(&migrationsPath, "path", "", "Read migrations from this directory instead of the embedded set")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	if err := run(args, migrationsPath, log); err != nil {
		log.Fatal("Migration command failed", zap.String("command", args[0]), zap.Error(err))
	}
}

func run(args []string, migrationsPath string, log *zap.Logger) error {
	command := args[0]

	switch command {
	case "create":
		if len(args) < 2 {
			return fmt.Errorf("usage: migrate create <name> [description]")
		}
		dir := migrationsPath
		if dir == "" {
			dir = "migrations"
		}
		description := ""
		if len(args) > 2 {
			description = args[2]
		}
		mf, err := migration.CreateMigration(dir, args[1], description, time.Now())
		if err != nil {
			return err
		}
		log.Info("Migration created",
			zap.String("version", mf.Version),
			zap.String("up_file", mf.UpPath),
			zap.String("down_file", mf.DownPath),
		)
		return nil

	case "list":
		var (
			names []string
			err   error
		)
		if migrationsPath == "" {
			names, err = migration.ListEmbedded()
		} else {
			names, err = migration.ListMigrations(migrationsPath)
		}
		if err != nil {
			return err
		}
		log.Info("Available migrations", zap.Int("count", len(names)))
		for _, name := range names {
			fmt.Println("  -", name)
		}
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	switch cfg.Database.Driver {
	case config.DriverMemory:
		log.Info("Memory store has no schema to migrate")
		return nil
	case config.DriverSQLite:
		if command != "up" {
			return fmt.Errorf("sqlite databases only support 'up'")
		}
		db, err := persistence.NewDatabase(&cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.AutoMigrate(); err != nil {
			return err
		}
		log.Info("SQLite schema is up to date", zap.String("path", cfg.Database.SQLitePath))
		return nil
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	var m *migration.Migrator
	if migrationsPath == "" {
		m, err = migration.NewEmbedded(db, log)
	} else {
		m, err = migration.New(db, migrationsPath, log)
	}
	if err != nil {
		return err
	}
	defer m.Close()

	switch command {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "step":
		if len(args) < 2 {
			return fmt.Errorf("usage: migrate step <n>")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid step count %q", args[1])
		}
		return m.Steps(n)
	case "goto":
		if len(args) < 2 {
			return fmt.Errorf("usage: migrate goto <version>")
		}
		version, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version %q", args[1])
		}
		return m.GoTo(uint(version))
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		log.Info("Current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		return nil
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: migrate force <version>")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[1])
		}
		return m.Force(version)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func printUsage() {
	fmt.Println(`Label Ledger Migration Tool

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations (sqlite: sync schema from models)
  down                  Roll back all migrations
  step <n>              Apply n migrations (positive=up, negative=down)
  goto <version>        Migrate to a specific version
  version               Show current migration version
  force <version>       Force set migration version after a failed run
  create <name> [desc]  Create a new migration file pair
  list                  List available migrations

Flags:
  -path string          Read migrations from a directory instead of the embedded set
  -log-level string     Log level: debug, info, warn, error (default: info)

Environment Variables:
  LEDGER_DATABASE_DRIVER, LEDGER_DATABASE_HOST, LEDGER_DATABASE_PORT,
  LEDGER_DATABASE_USER, LEDGER_DATABASE_PASSWORD, LEDGER_DATABASE_DBNAME,
  LEDGER_DATABASE_SSLMODE, LEDGER_DATABASE_SQLITE_PATH`)
}
