// Package config loads server configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Combat   CombatConfig   `mapstructure:"combat"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
}

// CatalogConfig points at the card catalog data.
type CatalogConfig struct {
	// Path is a JSON file of card display metadata. Empty starts with an
	// empty catalog; unknown cards render as id-only stubs.
	Path string `mapstructure:"path"`
}

// ServerConfig holds the network surface settings.
type ServerConfig struct {
	WebSocket       WebSocketConfig `mapstructure:"websocket"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
}

// WebSocketConfig holds the realtime endpoint settings.
type WebSocketConfig struct {
	Address string `mapstructure:"address"`
	Path    string `mapstructure:"path"`
}

// DatabaseConfig selects and configures the persistence mirror.
// Driver is one of "memory", "sqlite", "postgres".
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	// Path is the database file for the sqlite driver.
	Path string `mapstructure:"path"`
	// URL is the connection string for the postgres driver.
	URL string `mapstructure:"url"`
	// MaxConns bounds the postgres pool.
	MaxConns int32 `mapstructure:"max_conns"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CombatConfig tunes the combat engine.
type CombatConfig struct {
	// HandLimit is the fixed hand size decks draw up to.
	HandLimit int `mapstructure:"hand_limit"`
	// LockWait bounds how long an operation waits for a busy encounter or
	// deck before failing with a conflict.
	LockWait time.Duration `mapstructure:"lock_wait"`
}

// AuthConfig holds access credentials.
type AuthConfig struct {
	// GMPasswordHash is the bcrypt hash GM connections authenticate
	// against. Empty disables GM access.
	GMPasswordHash string `mapstructure:"gm_password_hash"`
}

// Load reads configuration from the given file. Environment variables
// prefixed with QUESTKEEPER_ override file values (dots become
// underscores, e.g. QUESTKEEPER_SERVER_WEBSOCKET_ADDRESS).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetDefault("server.websocket.address", ":8080")
	v.SetDefault("server.websocket.path", "/ws")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("combat.hand_limit", 4)
	v.SetDefault("combat.lock_wait", 2*time.Second)

	v.SetEnvPrefix("QUESTKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; defaults and environment apply.
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "memory":
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Combat.HandLimit <= 0 {
		return fmt.Errorf("combat.hand_limit must be positive")
	}
	return nil
}
