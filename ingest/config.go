package ingest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration.
type Config struct {
	DataDir   string       `yaml:"data_dir"`
	DBPath    string       `yaml:"db_path"`
	Backend   string       `yaml:"backend"` // fs | sqlite
	MaxFileMB int          `yaml:"max_file_mb"`
	QueueSize int          `yaml:"queue_size"`
	AuditDB   string       `yaml:"audit_db"`  // empty disables the audit trail
	LogLevel  string       `yaml:"log_level"` // debug | info | warn | error
	Vision    VisionConfig `yaml:"vision"`
}

// VisionConfig configures the escalation capability.
type VisionConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	MaxTokens  int    `yaml:"max_tokens"`
	TimeoutSec int    `yaml:"timeout_sec"`
	// EscalateTables additionally escalates PDFs whose table structure
	// was lost locally. Low-quality text always escalates when enabled.
	EscalateTables bool `yaml:"escalate_tables"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir:   "data",
		DBPath:    "ingest.db",
		Backend:   "fs",
		MaxFileMB: 100,
		QueueSize: 16,
		LogLevel:  "info",
		Vision: VisionConfig{
			Enabled:        false,
			MaxTokens:      4096,
			TimeoutSec:     90,
			EscalateTables: true,
		},
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig merged with the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	switch c.Backend {
	case "fs":
		if c.DataDir == "" {
			return fmt.Errorf("data_dir is required for the fs backend")
		}
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("db_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unsupported backend %q (use fs or sqlite)", c.Backend)
	}
	if c.MaxFileMB <= 0 {
		return fmt.Errorf("max_file_mb must be > 0")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue_size must be > 0")
	}
	if c.Vision.Enabled {
		if c.Vision.BaseURL == "" {
			return fmt.Errorf("vision.base_url is required when vision is enabled")
		}
		if c.Vision.Model == "" {
			return fmt.Errorf("vision.model is required when vision is enabled")
		}
	}
	return nil
}

// MaxFileBytes returns max file size in bytes.
func (c *Config) MaxFileBytes() int64 { return int64(c.MaxFileMB) * 1024 * 1024 }
