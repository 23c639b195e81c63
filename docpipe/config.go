package docpipe

import (
	"log/slog"
	"time"
)

// Config configures the document pipeline.
type Config struct {
	// MaxFileSize is the maximum file size to process (default: 100 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// VisionEnabled allows escalating PDFs with lost table structure to the
	// vision capability. The low-quality fallback escalation is independent
	// of this flag.
	VisionEnabled bool `json:"vision_enabled" yaml:"vision_enabled"`

	// VisionTimeout bounds a single escalation call (default: 90s).
	VisionTimeout time.Duration `json:"vision_timeout" yaml:"vision_timeout"`

	// Vision is the escalation capability. Nil means escalations degrade
	// to the local extraction text.
	Vision Vision `json:"-" yaml:"-"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 * 1024 * 1024
	}
	if c.VisionTimeout <= 0 {
		c.VisionTimeout = 90 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
