package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dyluth/quill/internal/statemigration"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for its configuration.
const DefaultPath = "quill.yml"

// Defaults applied by Validate.
const (
	DefaultNamespace   = "default"
	DefaultRedisAddr   = "localhost:6379"
	DefaultConcurrency = 4
	DefaultLockTTL     = 5 * time.Minute
	DefaultHistoryDSN  = "quill-history.db"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "console"
)

// QuillConfig represents the top-level quill.yml configuration
type QuillConfig struct {
	Version   string           `yaml:"version"`
	Namespace string           `yaml:"namespace,omitempty"` // Redis key namespace (default "default")
	Redis     *RedisConfig     `yaml:"redis,omitempty"`
	Migration *MigrationConfig `yaml:"migration,omitempty"`
	History   *HistoryConfig   `yaml:"history,omitempty"`
	Logging   *LoggingConfig   `yaml:"logging,omitempty"`
	Gcloud    *GcloudConfig    `yaml:"gcloud,omitempty"`
}

// RedisConfig specifies the question store connection
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// MigrationConfig specifies how stored questions are migrated
type MigrationConfig struct {
	TargetVersion *int          `yaml:"target_version,omitempty"` // Current state schema version (default: latest registered)
	Concurrency   int           `yaml:"concurrency,omitempty"`    // Questions migrated in parallel by "store migrate --all"
	LockTTL       time.Duration `yaml:"lock_ttl,omitempty"`       // Per-question migration lock lifetime
}

// HistoryConfig specifies the migration history database
type HistoryConfig struct {
	DSN string `yaml:"dsn,omitempty"` // SQLite file path, or ":memory:"
}

// LoggingConfig specifies logger construction
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // json or console
}

// GcloudConfig specifies the App Engine application the gcloud commands act on
type GcloudConfig struct {
	App               string   `yaml:"app"`
	AuxiliaryServices []string `yaml:"auxiliary_services,omitempty"` // Switched alongside default by "gcloud switch"
	IndexesFile       string   `yaml:"indexes_file,omitempty"`
	AppYAML           string   `yaml:"app_yaml,omitempty"`
}

// Validate performs strict validation on the configuration and applies
// defaults for every omitted section.
func (c *QuillConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}

	if c.Redis == nil {
		c.Redis = &RedisConfig{}
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = DefaultRedisAddr
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("redis.db must be >= 0, got %d", c.Redis.DB)
	}

	if c.Migration == nil {
		c.Migration = &MigrationConfig{}
	}
	if err := c.Migration.validate(); err != nil {
		return err
	}

	if c.History == nil {
		c.History = &HistoryConfig{}
	}
	if c.History.DSN == "" {
		c.History.DSN = DefaultHistoryDSN
	}

	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	if err := c.Logging.validate(); err != nil {
		return err
	}

	if c.Gcloud != nil {
		if c.Gcloud.App == "" {
			return fmt.Errorf("gcloud.app is required when the gcloud section is present")
		}
		if c.Gcloud.IndexesFile == "" {
			c.Gcloud.IndexesFile = "index.yaml"
		}
		if c.Gcloud.AppYAML == "" {
			c.Gcloud.AppYAML = "app.yaml"
		}
	}

	return nil
}

func (m *MigrationConfig) validate() error {
	earliest, latest := statemigration.EarliestVersion(), statemigration.LatestVersion()

	// Apply default target version if missing
	if m.TargetVersion == nil {
		target := latest
		m.TargetVersion = &target
	}
	if *m.TargetVersion < earliest || *m.TargetVersion > latest {
		return fmt.Errorf("migration.target_version must be between %d and %d, got %d", earliest, latest, *m.TargetVersion)
	}

	if m.Concurrency == 0 {
		m.Concurrency = DefaultConcurrency
	}
	if m.Concurrency < 1 {
		return fmt.Errorf("migration.concurrency must be >= 1, got %d", m.Concurrency)
	}

	if m.LockTTL == 0 {
		m.LockTTL = DefaultLockTTL
	}
	if m.LockTTL < time.Second {
		return fmt.Errorf("migration.lock_ttl must be at least 1s, got %s", m.LockTTL)
	}

	return nil
}

func (l *LoggingConfig) validate() error {
	if l.Level == "" {
		l.Level = DefaultLogLevel
	}
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s (must be 'debug', 'info', 'warn', or 'error')", l.Level)
	}

	if l.Format == "" {
		l.Format = DefaultLogFormat
	}
	if l.Format != "json" && l.Format != "console" {
		return fmt.Errorf("invalid logging.format: %s (must be 'json' or 'console')", l.Format)
	}

	return nil
}

// Default returns a validated configuration with every default applied.
func Default() *QuillConfig {
	c := &QuillConfig{Version: "1.0"}
	if err := c.Validate(); err != nil {
		// Defaults are always valid
		panic(err)
	}
	return c
}

// Load reads and validates quill.yml from the specified path
func Load(path string) (*QuillConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config QuillConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
