package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/taskflow/taskflow/internal/validator"
)

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Optionally read from config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/taskflow")

	// Ignore error if config file not found
	_ = v.ReadInConfig()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Server
	cfg.Server.Host = v.GetString("server_host")
	cfg.Server.Port = v.GetInt("server_port")
	cfg.Server.Env = v.GetString("server_env")

	// MongoDB
	cfg.Mongo.URI = v.GetString("mongo_uri")
	cfg.Mongo.Database = v.GetString("mongo_db")
	cfg.Mongo.ConnectTimeout = v.GetDuration("mongo_connect_timeout")
	cfg.Mongo.MaxPoolSize = uint64(v.GetInt("mongo_max_pool_size"))
	cfg.Mongo.UseTransactions = v.GetBool("mongo_use_transactions")

	// PostgreSQL
	cfg.Postgres.Host = v.GetString("postgres_host")
	cfg.Postgres.Port = v.GetInt("postgres_port")
	cfg.Postgres.User = v.GetString("postgres_user")
	cfg.Postgres.Password = v.GetString("postgres_password")
	cfg.Postgres.Database = v.GetString("postgres_db")
	cfg.Postgres.SSLMode = v.GetString("postgres_ssl_mode")
	cfg.Postgres.MaxConns = int32(v.GetInt("postgres_max_conns"))
	cfg.Postgres.MinConns = int32(v.GetInt("postgres_min_conns"))

	// ClickHouse
	cfg.ClickHouse.Enabled = v.GetBool("clickhouse_enabled")
	cfg.ClickHouse.Host = v.GetString("clickhouse_host")
	cfg.ClickHouse.Port = v.GetInt("clickhouse_port")
	cfg.ClickHouse.User = v.GetString("clickhouse_user")
	cfg.ClickHouse.Password = v.GetString("clickhouse_password")
	cfg.ClickHouse.Database = v.GetString("clickhouse_db")

	// Redis
	cfg.Redis.Enabled = v.GetBool("redis_enabled")
	cfg.Redis.Host = v.GetString("redis_host")
	cfg.Redis.Port = v.GetInt("redis_port")
	cfg.Redis.Password = v.GetString("redis_password")
	cfg.Redis.DB = v.GetInt("redis_db")

	// Sentry
	cfg.Sentry.DSN = v.GetString("sentry_dsn")
	cfg.Sentry.Environment = v.GetString("sentry_environment")
	cfg.Sentry.Release = v.GetString("sentry_release")
	cfg.Sentry.SampleRate = v.GetFloat64("sentry_sample_rate")
	cfg.Sentry.TracesSampleRate = v.GetFloat64("sentry_traces_sample_rate")

	// Worker
	cfg.Worker.Concurrency = v.GetInt("worker_concurrency")
	cfg.Worker.QueueCritical = v.GetString("worker_queue_critical")
	cfg.Worker.QueueDefault = v.GetString("worker_queue_default")
	cfg.Worker.QueueLow = v.GetString("worker_queue_low")

	// Logging
	cfg.Log.Level = v.GetString("log_level")
	cfg.Log.Format = v.GetString("log_format")

	// Dual write
	cfg.DualWrite.Enabled = v.GetBool("dual_write_enabled")
	cfg.DualWrite.MaxAttempts = v.GetInt("dual_write_max_attempts")
	cfg.DualWrite.InitialBackoff = v.GetDuration("dual_write_initial_backoff")
	cfg.DualWrite.MaxBackoff = v.GetDuration("dual_write_max_backoff")
	cfg.DualWrite.BackoffFactor = v.GetFloat64("dual_write_backoff_factor")
	cfg.DualWrite.Jitter = v.GetFloat64("dual_write_jitter")
	cfg.DualWrite.WorkerPoolSize = v.GetInt("dual_write_worker_pool_size")
	cfg.DualWrite.BreakerEnabled = v.GetBool("dual_write_breaker_enabled")
	cfg.DualWrite.BreakerMaxFailures = v.GetInt("dual_write_breaker_max_failures")
	cfg.DualWrite.BreakerTimeout = v.GetDuration("dual_write_breaker_timeout")

	// Reconciliation
	cfg.Sync.Enabled = v.GetBool("postgres_sync_enabled")
	cfg.Sync.OnStartup = v.GetBool("sync_on_startup")
	cfg.Sync.Cron = v.GetString("sync_cron")
	cfg.Sync.LockTTL = v.GetDuration("sync_lock_ttl")
	cfg.Sync.Entities = v.GetStringSlice("sync_entities")

	// Failure ledger
	cfg.Ledger.BufferSize = v.GetInt("ledger_buffer_size")
	cfg.Ledger.Persist = v.GetBool("ledger_persist")
	cfg.Ledger.Alert = v.GetBool("ledger_alert")

	// Validate required fields
	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("server_port", 8080)
	v.SetDefault("server_env", "development")

	// MongoDB defaults
	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("mongo_db", "taskflow")
	v.SetDefault("mongo_connect_timeout", 10*time.Second)
	v.SetDefault("mongo_max_pool_size", 100)
	v.SetDefault("mongo_use_transactions", false)

	// PostgreSQL defaults
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "taskflow")
	v.SetDefault("postgres_password", "taskflow")
	v.SetDefault("postgres_db", "taskflow")
	v.SetDefault("postgres_ssl_mode", "disable")
	v.SetDefault("postgres_max_conns", 25)
	v.SetDefault("postgres_min_conns", 5)

	// ClickHouse defaults
	v.SetDefault("clickhouse_enabled", false)
	v.SetDefault("clickhouse_host", "localhost")
	v.SetDefault("clickhouse_port", 9000)
	v.SetDefault("clickhouse_user", "taskflow")
	v.SetDefault("clickhouse_password", "taskflow")
	v.SetDefault("clickhouse_db", "taskflow")

	// Redis defaults
	v.SetDefault("redis_enabled", true)
	v.SetDefault("redis_host", "localhost")
	v.SetDefault("redis_port", 6379)
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	// Sentry defaults
	v.SetDefault("sentry_sample_rate", 1.0)
	v.SetDefault("sentry_traces_sample_rate", 0.0)

	// Worker defaults
	v.SetDefault("worker_concurrency", 10)
	v.SetDefault("worker_queue_critical", "critical")
	v.SetDefault("worker_queue_default", "default")
	v.SetDefault("worker_queue_low", "low")

	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	// Dual write defaults
	v.SetDefault("dual_write_enabled", true)
	v.SetDefault("dual_write_max_attempts", 3)
	v.SetDefault("dual_write_initial_backoff", 100*time.Millisecond)
	v.SetDefault("dual_write_max_backoff", 2*time.Second)
	v.SetDefault("dual_write_backoff_factor", 2.0)
	v.SetDefault("dual_write_jitter", 0.2)
	v.SetDefault("dual_write_worker_pool_size", 10)
	v.SetDefault("dual_write_breaker_enabled", true)
	v.SetDefault("dual_write_breaker_max_failures", 5)
	v.SetDefault("dual_write_breaker_timeout", 30*time.Second)

	// Reconciliation defaults
	v.SetDefault("postgres_sync_enabled", true)
	v.SetDefault("sync_on_startup", true)
	v.SetDefault("sync_cron", "*/30 * * * *")
	v.SetDefault("sync_lock_ttl", 10*time.Minute)
	v.SetDefault("sync_entities", []string{})

	// Failure ledger defaults
	v.SetDefault("ledger_buffer_size", 256)
	v.SetDefault("ledger_persist", true)
	v.SetDefault("ledger_alert", true)
}

func validate(cfg *Config) error {
	if err := validator.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.DualWrite.MaxBackoff < cfg.DualWrite.InitialBackoff {
		return fmt.Errorf("dual_write_max_backoff must not be lower than dual_write_initial_backoff")
	}
	if cfg.Redis.Enabled && cfg.Redis.Host == "" {
		return fmt.Errorf("redis_host is required when redis is enabled")
	}
	return nil
}
