package incr

import (
	"fmt"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Config carries the tunable parameters of the async persistence pipeline.
//
// BufferCapacityBytes is how many bytes move per producer/writer handoff:
// smaller buffers mean more parallelism and more handoff overhead.
// MaxBufferCount bounds worst-case memory at capacity × count.
// TimeoutMinutes bounds how long a stalled writer may block the producer
// before the build fails instead of hanging.
type Config struct {
	BufferCapacityBytes int `yaml:"bufferCapacityBytes"`
	MaxBufferCount      int `yaml:"maxBufferCount"`
	TimeoutMinutes      int `yaml:"timeoutMinutes"`
}

// DefaultConfig returns the built-in defaults: 64 KiB buffers, 16 of them,
// 5-minute timeout.
func DefaultConfig() Config {
	return Config{
		BufferCapacityBytes: 64 * 1024,
		MaxBufferCount:      16,
		TimeoutMinutes:      5,
	}
}

// LoadConfig reads a YAML config file, fills unset fields with defaults and
// validates the result.
func LoadConfig(fs afero.Fs, path string) (Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills zero-valued fields from DefaultConfig.
func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.BufferCapacityBytes == 0 {
		cfg.BufferCapacityBytes = def.BufferCapacityBytes
	}
	if cfg.MaxBufferCount == 0 {
		cfg.MaxBufferCount = def.MaxBufferCount
	}
	if cfg.TimeoutMinutes == 0 {
		cfg.TimeoutMinutes = def.TimeoutMinutes
	}
}

// Validate checks that every tunable is positive.
func (c Config) Validate() error {
	if c.BufferCapacityBytes <= 0 {
		return fmt.Errorf("bufferCapacityBytes must be positive, got %d", c.BufferCapacityBytes)
	}
	if c.MaxBufferCount <= 0 {
		return fmt.Errorf("maxBufferCount must be positive, got %d", c.MaxBufferCount)
	}
	if c.TimeoutMinutes <= 0 {
		return fmt.Errorf("timeoutMinutes must be positive, got %d", c.TimeoutMinutes)
	}
	return nil
}

// Timeout returns the configured timeout as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}
