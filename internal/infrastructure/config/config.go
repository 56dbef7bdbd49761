package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Ledger    LedgerConfig
	Log       LogConfig
	Event     EventConfig
	HTTP      HTTPConfig
	Telemetry TelemetryConfig
	Archive   ArchiveConfig
	Sweep     SweepConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres, sqlite, memory
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string // file path or ":memory:"
	AutoMigrate     bool   // run embedded migrations on startup
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// LedgerConfig holds command execution settings
type LedgerConfig struct {
	MaxAttempts        int           // attempts per command before a concurrency conflict is returned
	LockTTL            time.Duration // how long a caller-supplied reference stays locked
	IdempotencyEnabled bool
	IdempotencyTTL     time.Duration
	// Circuit breaker around the Redis idempotency store
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
}

// EventConfig holds in-process event bus configuration
type EventConfig struct {
	BufferSize int
	Workers    int
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	RequestTimeout   time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
	// Continuous profiling
	ProfilingEnabled  bool
	PyroscopeEndpoint string
}

// ArchiveConfig holds S3-compatible object storage settings for movement workbooks
type ArchiveConfig struct {
	Enabled           bool
	Endpoint          string // e.g. "localhost:9000" for MinIO
	Region            string
	Bucket            string
	AccessKey         string
	SecretKey         string
	UseSSL            bool
	UsePathStyle      bool
	Prefix            string // key prefix inside the bucket
	PresignExpiration time.Duration
}

// SweepConfig schedules the daily reconciliation sweep over every production run
type SweepConfig struct {
	Enabled       bool
	Hour          int
	Minute        int
	CheckInterval time.Duration
	Workers       int
	JobTimeout    time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with LEDGER_ prefix (e.g., LEDGER_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("ledger.idempotency_enabled", true)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("archive.use_path_style", true)
	v.SetDefault("sweep.hour", 3)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(v.GetString("database.driver")),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			SQLitePath:      v.GetString("database.sqlite_path"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Ledger: LedgerConfig{
			MaxAttempts:        v.GetInt("ledger.max_attempts"),
			LockTTL:            v.GetDuration("ledger.lock_ttl"),
			IdempotencyEnabled: v.GetBool("ledger.idempotency_enabled"),
			IdempotencyTTL:     v.GetDuration("ledger.idempotency_ttl"),
			BreakerMaxFailures: v.GetUint32("ledger.breaker_max_failures"),
			BreakerTimeout:     v.GetDuration("ledger.breaker_timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Event: EventConfig{
			BufferSize: v.GetInt("event.buffer_size"),
			Workers:    v.GetInt("event.workers"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			RequestTimeout:   v.GetDuration("http.request_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			PyroscopeEndpoint: v.GetString("telemetry.pyroscope_endpoint"),
		},
		Archive: ArchiveConfig{
			Enabled:           v.GetBool("archive.enabled"),
			Endpoint:          v.GetString("archive.endpoint"),
			Region:            v.GetString("archive.region"),
			Bucket:            v.GetString("archive.bucket"),
			AccessKey:         v.GetString("archive.access_key"),
			SecretKey:         v.GetString("archive.secret_key"),
			UseSSL:            v.GetBool("archive.use_ssl"),
			UsePathStyle:      v.GetBool("archive.use_path_style"),
			Prefix:            v.GetString("archive.prefix"),
			PresignExpiration: v.GetDuration("archive.presign_expiration"),
		},
		Sweep: SweepConfig{
			Enabled:       v.GetBool("sweep.enabled"),
			Hour:          v.GetInt("sweep.hour"),
			Minute:        v.GetInt("sweep.minute"),
			CheckInterval: v.GetDuration("sweep.check_interval"),
			Workers:       v.GetInt("sweep.workers"),
			JobTimeout:    v.GetDuration("sweep.job_timeout"),
			RetryAttempts: v.GetInt("sweep.retry_attempts"),
			RetryDelay:    v.GetDuration("sweep.retry_delay"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "label-ledger"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "ledger"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "ledger.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Ledger.MaxAttempts == 0 {
		cfg.Ledger.MaxAttempts = 3
	}
	if cfg.Ledger.LockTTL == 0 {
		cfg.Ledger.LockTTL = 30 * time.Second
	}
	if cfg.Ledger.IdempotencyTTL == 0 {
		cfg.Ledger.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.Ledger.BreakerMaxFailures == 0 {
		cfg.Ledger.BreakerMaxFailures = 5
	}
	if cfg.Ledger.BreakerTimeout == 0 {
		cfg.Ledger.BreakerTimeout = 30 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Event.BufferSize == 0 {
		cfg.Event.BufferSize = 1000
	}
	if cfg.Event.Workers == 0 {
		cfg.Event.Workers = 2
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.RequestTimeout == 0 {
		cfg.HTTP.RequestTimeout = 10 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	// An empty origin list allows no cross-origin requests until configured.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "label-ledger"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Telemetry.PyroscopeEndpoint == "" {
		cfg.Telemetry.PyroscopeEndpoint = "http://localhost:4040"
	}
	if cfg.Archive.Region == "" {
		cfg.Archive.Region = "us-east-1"
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = "ledger"
	}
	if cfg.Archive.PresignExpiration == 0 {
		cfg.Archive.PresignExpiration = 15 * time.Minute
	}
	if cfg.Sweep.CheckInterval == 0 {
		cfg.Sweep.CheckInterval = time.Minute
	}
	if cfg.Sweep.Workers == 0 {
		cfg.Sweep.Workers = 2
	}
	if cfg.Sweep.JobTimeout == 0 {
		cfg.Sweep.JobTimeout = 5 * time.Minute
	}
	if cfg.Sweep.RetryDelay == 0 {
		cfg.Sweep.RetryDelay = time.Minute
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("database.driver must be one of postgres, sqlite, memory; got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Ledger.MaxAttempts < 1 {
		return fmt.Errorf("ledger.max_attempts must be at least 1")
	}

	if c.App.Env == "production" {
		if c.Database.Driver == DriverMemory {
			return fmt.Errorf("database.driver=memory is not allowed in production")
		}
		if c.Database.Driver == DriverPostgres && c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
	}

	if c.Archive.Enabled && (c.Archive.Bucket == "" || c.Archive.AccessKey == "" || c.Archive.SecretKey == "") {
		return fmt.Errorf("archive.bucket, archive.access_key and archive.secret_key are required when the archive is enabled")
	}
	if c.Sweep.Hour < 0 || c.Sweep.Hour > 23 || c.Sweep.Minute < 0 || c.Sweep.Minute > 59 {
		return fmt.Errorf("sweep.hour/sweep.minute must be a valid time of day, got %02d:%02d", c.Sweep.Hour, c.Sweep.Minute)
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
