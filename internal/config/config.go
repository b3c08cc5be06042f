package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration for a chainstore node
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Table    TableConfig    `yaml:"table"`
	Database DatabaseConfig `yaml:"database"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`

	// Tables names the tables to open, one directory each under data_dir
	Tables []string `yaml:"tables"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// TableConfig holds per-table engine settings
type TableConfig struct {
	FlushThreshold   int64   `yaml:"flush_threshold"`
	CompactionFactor int     `yaml:"compaction_factor"`
	SyncWrites       bool    `yaml:"sync_writes"`
	WALBufferSize    int     `yaml:"wal_buffer_size"`
	BloomFilterFP    float64 `yaml:"bloom_filter_fp"`
	CacheSize        int     `yaml:"cache_size"`
	MaxKeySize       int     `yaml:"max_key_size"`
	MaxValueSize     int     `yaml:"max_value_size"`
	DebugLog         *bool   `yaml:"debug_log"`
	// Comparator is "length_first" or "lexicographic"
	Comparator string `yaml:"comparator"`
}

// DatabaseConfig holds settings for the table set
type DatabaseConfig struct {
	Workers         int           `yaml:"workers"`
	RecoverOnStart  *bool         `yaml:"recover_on_start"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled             bool          `yaml:"enabled"`
	Host                string        `yaml:"host"`
	Port                int           `yaml:"port"`
	Path                string        `yaml:"path"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig loads configuration from a file
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates YAML configuration
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func boolPtr(v bool) *bool {
	return &v
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "/var/lib/chainstore"
	}

	if cfg.Table.FlushThreshold == 0 {
		cfg.Table.FlushThreshold = 4 * 1024 * 1024 // 4MB
	}
	if cfg.Table.CompactionFactor == 0 {
		cfg.Table.CompactionFactor = 4
	}
	if cfg.Table.WALBufferSize == 0 {
		cfg.Table.WALBufferSize = 64 * 1024
	}
	if cfg.Table.BloomFilterFP == 0 {
		cfg.Table.BloomFilterFP = 0.01
	}
	if cfg.Table.CacheSize == 0 {
		cfg.Table.CacheSize = 10000
	}
	if cfg.Table.DebugLog == nil {
		cfg.Table.DebugLog = boolPtr(true)
	}
	if cfg.Table.Comparator == "" {
		cfg.Table.Comparator = "length_first"
	}

	if cfg.Database.Workers == 0 {
		cfg.Database.Workers = 4
	}
	if cfg.Database.RecoverOnStart == nil {
		cfg.Database.RecoverOnStart = boolPtr(true)
	}
	if cfg.Database.ShutdownTimeout == 0 {
		cfg.Database.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Metrics.Host == "" {
		cfg.Metrics.Host = "0.0.0.0"
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.HealthCheckInterval == 0 {
		cfg.Metrics.HealthCheckInterval = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.Tables) == 0 {
		return fmt.Errorf("tables must list at least one table")
	}
	seen := make(map[string]bool, len(c.Tables))
	for _, name := range c.Tables {
		if name == "" || name == "." || name == ".." {
			return fmt.Errorf("invalid table name %q", name)
		}
		if seen[name] {
			return fmt.Errorf("table %q listed twice", name)
		}
		seen[name] = true
	}
	if c.Table.CompactionFactor < 2 {
		return fmt.Errorf("table.compaction_factor must be at least 2")
	}
	if c.Table.BloomFilterFP <= 0 || c.Table.BloomFilterFP >= 1 {
		return fmt.Errorf("table.bloom_filter_fp must be between 0 and 1")
	}
	if c.Table.CacheSize < 0 {
		return fmt.Errorf("table.cache_size must not be negative")
	}
	switch c.Table.Comparator {
	case "length_first", "lexicographic":
	default:
		return fmt.Errorf("table.comparator must be length_first or lexicographic")
	}
	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console")
	}
	return nil
}
