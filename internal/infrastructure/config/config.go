package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment string         `mapstructure:"environment"`
	LogLevel    string         `mapstructure:"log_level"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Engine      EngineConfig   `mapstructure:"engine"`
	ROI         ROIConfig      `mapstructure:"roi"`
	Recovery    RecoveryConfig `mapstructure:"recovery"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// EngineConfig tunes the settlement core
type EngineConfig struct {
	// LockTimeoutMS bounds the wait for a wallet row lock before the
	// caller receives a Busy signal
	LockTimeoutMS   int `mapstructure:"lock_timeout_ms"`
	BalanceCacheTTL int `mapstructure:"balance_cache_ttl"` // seconds, 0 disables the cache
}

// ROIConfig tunes the return-crediting scheduler
type ROIConfig struct {
	TickInterval int `mapstructure:"tick_interval"` // seconds
	BatchSize    int `mapstructure:"batch_size"`
	LockTTL      int `mapstructure:"lock_ttl"` // seconds, cross-instance tick guard
}

// RecoveryConfig tunes PENDING-entry resumption and reconciliation
type RecoveryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ResumeSpec    string `mapstructure:"resume_spec"`    // cron spec for pending-entry resumption
	ReconcileSpec string `mapstructure:"reconcile_spec"` // cron spec for the full reconciliation sweep
	GraceSeconds  int    `mapstructure:"grace_seconds"`  // age before a PENDING entry is considered stuck
	BatchSize     int    `mapstructure:"batch_size"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Build database URL if not provided
	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "ledger_service")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 50)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.conn_max_lifetime", 3600)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	viper.SetDefault("engine.lock_timeout_ms", 3000)
	viper.SetDefault("engine.balance_cache_ttl", 30)

	viper.SetDefault("roi.tick_interval", 60)
	viper.SetDefault("roi.batch_size", 200)
	viper.SetDefault("roi.lock_ttl", 300)

	viper.SetDefault("recovery.enabled", true)
	viper.SetDefault("recovery.resume_spec", "*/5 * * * *")
	viper.SetDefault("recovery.reconcile_spec", "0 2 * * *")
	viper.SetDefault("recovery.grace_seconds", 120)
	viper.SetDefault("recovery.batch_size", 500)
}

func validate(cfg *Config) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if cfg.Engine.LockTimeoutMS <= 0 {
		return fmt.Errorf("engine lock timeout must be positive")
	}
	if cfg.ROI.BatchSize <= 0 {
		return fmt.Errorf("roi batch size must be positive")
	}
	return nil
}
