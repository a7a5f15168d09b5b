// Package config holds the runtime configuration for the credential store.
// Values load from the environment with the BADGESTORE_ prefix.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Supported database backends.
const (
	BackendPostgres = "postgresql"
	BackendSQLite   = "sqlite"
)

// Config is the root configuration consumed by the repository factory.
type Config struct {
	Database DatabaseConfig `envconfig:"DATABASE"`
	Cache    CacheConfig    `envconfig:"CACHE"`
	LogEnv   string         `envconfig:"LOG_ENV" default:"production"`
}

// DatabaseConfig selects and tunes the storage backend.
type DatabaseConfig struct {
	Type             string `envconfig:"TYPE" default:"sqlite"`
	ConnectionString string `envconfig:"CONNECTION_STRING"`

	// SQLite-specific knobs.
	SQLiteFile        string `envconfig:"SQLITE_FILE" default:":memory:"`
	SQLiteBusyTimeout int    `envconfig:"SQLITE_BUSY_TIMEOUT" default:"5000"`
	SQLiteSyncMode    string `envconfig:"SQLITE_SYNC_MODE" default:"NORMAL"`
	SQLiteCacheSize   int    `envconfig:"SQLITE_CACHE_SIZE" default:"10000"`

	// Connection pool knobs (Postgres).
	PoolMax            int `envconfig:"POOL_MAX" default:"20"`
	IdleTimeoutSec     int `envconfig:"IDLE_TIMEOUT_SEC" default:"30"`
	ConnectTimeoutSec  int `envconfig:"CONNECT_TIMEOUT_SEC" default:"10"`
	MaxLifetimeSec     int `envconfig:"MAX_LIFETIME_SEC" default:"3600"`
}

// CacheConfig controls the read-through repository cache.
type CacheConfig struct {
	Enabled bool `envconfig:"ENABLED" default:"true"`
	// TTL of zero keeps entries until invalidated.
	TTL time.Duration `envconfig:"TTL" default:"0"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("badgestore", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints the tag defaults cannot express.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case BackendPostgres:
		if c.Database.ConnectionString == "" {
			return fmt.Errorf("config: database.connectionString is required for %s", BackendPostgres)
		}
	case BackendSQLite:
		if c.Database.SQLiteFile == "" {
			return fmt.Errorf("config: database.sqliteFile is required for %s", BackendSQLite)
		}
		switch c.Database.SQLiteSyncMode {
		case "OFF", "NORMAL", "FULL":
		default:
			return fmt.Errorf("config: database.sqliteSyncMode must be OFF, NORMAL, or FULL, got %q", c.Database.SQLiteSyncMode)
		}
	default:
		return fmt.Errorf("config: unknown database.type %q (supported: %s, %s)", c.Database.Type, BackendPostgres, BackendSQLite)
	}
	if c.Database.SQLiteBusyTimeout < 0 {
		return fmt.Errorf("config: database.sqliteBusyTimeout must be non-negative")
	}
	return nil
}
