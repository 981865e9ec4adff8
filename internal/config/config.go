package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config represents the broker configuration
type Config struct {
	// Broker configuration
	Broker BrokerConfig `env:"BROKER"`

	// Consumer group configuration
	Group GroupConfig `env:"GROUP"`

	// Storage configuration
	Storage StorageConfig `env:"STORAGE"`

	// Logging configuration
	Logging LoggingConfig `env:"LOGGING"`

	// Metrics configuration
	Metrics MetricsConfig `env:"METRICS"`
}

// BrokerConfig holds topic and partitioning configuration
type BrokerConfig struct {
	// Create unknown topics on first send
	AutoCreateTopics bool `env:"AUTO_CREATE_TOPICS" envDefault:"false"`

	// Partition count for auto-created topics
	DefaultPartitions int32 `env:"DEFAULT_PARTITIONS" envDefault:"3"`

	// Routing policy for records without a key: "sticky", "roundrobin"
	UnkeyedPolicy string `env:"UNKEYED_POLICY" envDefault:"sticky"`
}

// GroupConfig holds consumer group coordination configuration
type GroupConfig struct {
	// Window during which concurrent joins are folded into one rebalance
	JoinWindow time.Duration `env:"JOIN_WINDOW" envDefault:"0s"`

	// Member is evicted after this long without a heartbeat
	SessionTimeout time.Duration `env:"SESSION_TIMEOUT" envDefault:"30s"`

	// How often expired sessions are checked
	SessionCheckInterval time.Duration `env:"SESSION_CHECK_INTERVAL" envDefault:"1s"`

	// Empty groups are garbage-collected after this grace period
	EmptyGroupTTL time.Duration `env:"EMPTY_GROUP_TTL" envDefault:"5m"`
}

// StorageConfig holds storage-related configuration
type StorageConfig struct {
	// Data directory path
	DataDir string `env:"DATA_DIR" envDefault:"./data"`

	// Persist committed consumer offsets across restarts
	PersistOffsets bool `env:"PERSIST_OFFSETS" envDefault:"false"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	// Log level: "debug", "info", "warn", "error"
	Level string `env:"LOG_LEVEL" envDefault:"info"`

	// Log format: "json", "text"
	Format string `env:"LOG_FORMAT" envDefault:"json"`

	// Log file path (empty for stdout)
	Output string `env:"LOG_OUTPUT" envDefault:""`

	// Enable log rotation
	Rotation bool `env:"LOG_ROTATION" envDefault:"true"`

	// Max log file size in MB
	MaxSize int `env:"LOG_MAX_SIZE" envDefault:"100"`

	// Number of backup files to keep
	MaxBackups int `env:"LOG_MAX_BACKUPS" envDefault:"7"`

	// Max age in days
	MaxAge int `env:"LOG_MAX_AGE" envDefault:"30"`
}

// MetricsConfig holds metrics-related configuration
type MetricsConfig struct {
	// Enable Prometheus metrics
	Enabled bool `env:"METRICS_ENABLED" envDefault:"true"`

	// Metrics server address
	Addr string `env:"METRICS_ADDR" envDefault:":9090"`

	// Metrics path
	Path string `env:"METRICS_PATH" envDefault:"/metrics"`
}

// Load loads configuration from environment variables on top of defaults
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	cfg.Storage.DataDir = filepath.Clean(cfg.Storage.DataDir)

	// Validate accepts the policy case-insensitively; the broker compares
	// the canonical lowercase form
	cfg.Broker.UnkeyedPolicy = strings.ToLower(cfg.Broker.UnkeyedPolicy)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Broker.DefaultPartitions < 1 {
		return fmt.Errorf("default partition count must be at least 1, got %d", c.Broker.DefaultPartitions)
	}

	validPolicies := map[string]bool{
		"sticky":     true,
		"roundrobin": true,
	}
	if !validPolicies[strings.ToLower(c.Broker.UnkeyedPolicy)] {
		return fmt.Errorf("invalid unkeyed routing policy: %s", c.Broker.UnkeyedPolicy)
	}

	if c.Group.JoinWindow < 0 {
		return fmt.Errorf("join window cannot be negative")
	}

	if c.Group.SessionTimeout <= 0 {
		return fmt.Errorf("session timeout must be positive")
	}

	if c.Group.SessionCheckInterval <= 0 {
		return fmt.Errorf("session check interval must be positive")
	}

	if c.Group.EmptyGroupTTL < 0 {
		return fmt.Errorf("empty group ttl cannot be negative")
	}

	if c.Storage.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}
