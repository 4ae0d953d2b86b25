package config

import (
	"fmt"
	"time"
)

// EnvPrefix is the prefix for all environment variable overrides
const EnvPrefix = "VEXTR"

// Config is the top-level service configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	CRM      CRMConfig      `yaml:"crm"`
	Sync     SyncConfig     `yaml:"sync"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string        `yaml:"host" env:"SERVER_HOST"`
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig holds the local store connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host" env:"DB_HOST"`
	Port     int    `yaml:"port" env:"DB_PORT"`
	Username string `yaml:"username" env:"DB_USERNAME"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	Database string `yaml:"database" env:"DB_DATABASE"`
	SSLMode  string `yaml:"ssl_mode" env:"DB_SSL_MODE"`

	MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME"`

	AutoMigrate bool `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE"`
}

// CRMConfig holds remote CRM connection settings
type CRMConfig struct {
	ServerURL  string `yaml:"server_url" env:"CRM_SERVER_URL"`
	Username   string `yaml:"username" env:"CRM_USERNAME"`
	Credential string `yaml:"credential" env:"CRM_CREDENTIAL"`

	// AuthScheme selects the login flow for this deployment.
	// Only the access/refresh token scheme is supported.
	AuthScheme string `yaml:"auth_scheme" env:"CRM_AUTH_SCHEME"`

	RequestTimeout   time.Duration `yaml:"request_timeout" env:"CRM_REQUEST_TIMEOUT"`
	MaxRetries       int           `yaml:"max_retries" env:"CRM_MAX_RETRIES"`
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay" env:"CRM_RETRY_BASE_DELAY"`
	ProgressInterval time.Duration `yaml:"progress_interval" env:"CRM_PROGRESS_INTERVAL"`

	// CountFloor is the assumed record count when the remote COUNT
	// query returns nothing usable.
	CountFloor int `yaml:"count_floor" env:"CRM_COUNT_FLOOR"`
}

// SyncConfig holds orchestrator settings
type SyncConfig struct {
	Interval       time.Duration `yaml:"interval" env:"SYNC_INTERVAL"`
	EnableAutoSync bool          `yaml:"enable_auto_sync" env:"SYNC_ENABLE_AUTO"`
	HistoryLimit   int           `yaml:"history_limit" env:"SYNC_HISTORY_LIMIT"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// Default returns a configuration populated with defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Username:        "postgres",
			Database:        "vextr",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			AutoMigrate:     true,
		},
		CRM: CRMConfig{
			AuthScheme:       "token",
			RequestTimeout:   30 * time.Second,
			MaxRetries:       3,
			RetryBaseDelay:   500 * time.Millisecond,
			ProgressInterval: 500 * time.Millisecond,
			CountFloor:       1000,
		},
		Sync: SyncConfig{
			Interval:       30 * time.Minute,
			EnableAutoSync: false,
			HistoryLimit:   100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the configuration file (if any) over defaults, then applies
// environment overrides.
func Load(configPath string) (*Config, error) {
	cfg := Default()
	loader := NewLoader(EnvPrefix)
	if err := loader.Load(configPath, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.CRM.AuthScheme != "token" {
		return fmt.Errorf("unsupported crm auth scheme: %q (only \"token\" is supported)", c.CRM.AuthScheme)
	}
	if c.CRM.MaxRetries < 0 {
		return fmt.Errorf("crm max_retries must not be negative")
	}
	if c.Sync.Interval < time.Minute {
		return fmt.Errorf("sync interval must be at least one minute, got %s", c.Sync.Interval)
	}
	if c.Sync.HistoryLimit <= 0 {
		return fmt.Errorf("sync history_limit must be positive")
	}
	return nil
}
