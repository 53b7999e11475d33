// Package config loads and validates the clipcast runtime settings.
//
// Settings are resolved in three layers: built-in defaults, then an
// optional YAML file, then CLIPCAST_* environment variables. Later
// layers override earlier ones field by field.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/clipcast/clipcast/internal/clip"
)

// Duration is a time.Duration that unmarshals from YAML strings such
// as "30s" or "2h45m".
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// RetryConfig controls the per-upload retry loop.
type RetryConfig struct {
	MaxAttempts    int      `yaml:"maxAttempts"`
	BaseDelay      Duration `yaml:"baseDelay"`
	MaxDelay       Duration `yaml:"maxDelay"`
	JitterFraction float64  `yaml:"jitterFraction"`
}

// BatchConfig controls pacing between clips within a batch.
type BatchConfig struct {
	Stagger        Duration `yaml:"stagger"`
	RandomDelayMax Duration `yaml:"randomDelayMax"`
}

// PlatformLimit is a sliding-window upload quota. A zero value
// disables limiting.
type PlatformLimit struct {
	MaxUploads int      `yaml:"maxUploads"`
	Window     Duration `yaml:"window"`
}

// RateLimitConfig holds the default quota plus per-platform overrides.
type RateLimitConfig struct {
	Default   PlatformLimit            `yaml:"default"`
	Platforms map[string]PlatformLimit `yaml:"platforms"`
}

// SchedulerConfig controls the scheduled-upload loop.
type SchedulerConfig struct {
	TickInterval Duration `yaml:"tickInterval"`
	Retention    Duration `yaml:"retention"`
}

// Config holds all runtime settings.
type Config struct {
	LogLevel      string `yaml:"logLevel"`
	LogFile       string `yaml:"logFile"`
	AnalyticsPath string `yaml:"analyticsPath"`

	// MaxFileSize bounds clip files in bytes.
	MaxFileSize int64 `yaml:"maxFileSize"`

	Retry     RetryConfig     `yaml:"retry"`
	Batch     BatchConfig     `yaml:"batch"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// Default returns the built-in settings used when no file or
// environment overrides are present.
func Default() *Config {
	return &Config{
		LogLevel:    "normal",
		MaxFileSize: clip.DefaultMaxFileSize,
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   Duration(2 * time.Second),
			MaxDelay:    Duration(2 * time.Minute),
		},
		Batch: BatchConfig{
			Stagger: Duration(10 * time.Second),
		},
		RateLimit: RateLimitConfig{
			Default: PlatformLimit{MaxUploads: 6, Window: Duration(time.Hour)},
		},
		Scheduler: SchedulerConfig{
			TickInterval: Duration(time.Minute),
			Retention:    Duration(24 * time.Hour),
		},
	}
}

// DefaultDir returns the per-user clipcast state directory.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".clipcast"), nil
}

// Load builds the effective configuration. filePath may be empty, in
// which case only defaults and environment variables apply.
func Load(filePath string) (*Config, error) {
	cfg := Default()

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AnalyticsFile returns the analytics state path, falling back to
// the default state directory when unset.
func (c *Config) AnalyticsFile() (string, error) {
	if c.AnalyticsPath != "" {
		return c.AnalyticsPath, nil
	}
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "analytics.json"), nil
}

// applyEnv overrides individual fields from CLIPCAST_* environment
// variables.
func (c *Config) applyEnv() error {
	envString("CLIPCAST_LOG_LEVEL", &c.LogLevel)
	envString("CLIPCAST_LOG_FILE", &c.LogFile)
	envString("CLIPCAST_ANALYTICS_PATH", &c.AnalyticsPath)

	if err := envInt64("CLIPCAST_MAX_FILE_SIZE", &c.MaxFileSize); err != nil {
		return err
	}
	if err := envInt("CLIPCAST_MAX_ATTEMPTS", &c.Retry.MaxAttempts); err != nil {
		return err
	}
	if err := envDuration("CLIPCAST_BASE_DELAY", &c.Retry.BaseDelay); err != nil {
		return err
	}
	if err := envDuration("CLIPCAST_MAX_DELAY", &c.Retry.MaxDelay); err != nil {
		return err
	}
	if err := envFloat("CLIPCAST_JITTER_FRACTION", &c.Retry.JitterFraction); err != nil {
		return err
	}
	if err := envDuration("CLIPCAST_STAGGER", &c.Batch.Stagger); err != nil {
		return err
	}
	if err := envDuration("CLIPCAST_RANDOM_DELAY_MAX", &c.Batch.RandomDelayMax); err != nil {
		return err
	}
	if err := envInt("CLIPCAST_RATE_LIMIT_MAX_UPLOADS", &c.RateLimit.Default.MaxUploads); err != nil {
		return err
	}
	if err := envDuration("CLIPCAST_RATE_LIMIT_WINDOW", &c.RateLimit.Default.Window); err != nil {
		return err
	}
	if err := envDuration("CLIPCAST_TICK_INTERVAL", &c.Scheduler.TickInterval); err != nil {
		return err
	}
	if err := envDuration("CLIPCAST_RETENTION", &c.Scheduler.Retention); err != nil {
		return err
	}
	return nil
}

// validate rejects settings the upload pipeline cannot run with.
func (c *Config) validate() error {
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("maxFileSize must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry maxAttempts must be at least 1")
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxDelay < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	if c.Retry.JitterFraction < 0 || c.Retry.JitterFraction >= 1 {
		return fmt.Errorf("retry jitterFraction must be in [0, 1)")
	}
	if c.Batch.Stagger < 0 || c.Batch.RandomDelayMax < 0 {
		return fmt.Errorf("batch delays must not be negative")
	}
	if err := validateLimit("default", c.RateLimit.Default); err != nil {
		return err
	}
	for name, limit := range c.RateLimit.Platforms {
		if err := validateLimit(name, limit); err != nil {
			return err
		}
	}
	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("scheduler tickInterval must be positive")
	}
	if c.Scheduler.Retention < 0 {
		return fmt.Errorf("scheduler retention must not be negative")
	}
	return nil
}

func validateLimit(name string, limit PlatformLimit) error {
	if limit.MaxUploads < 0 {
		return fmt.Errorf("rate limit for %s: maxUploads must not be negative", name)
	}
	if limit.Window < 0 {
		return fmt.Errorf("rate limit for %s: window must not be negative", name)
	}
	if limit.MaxUploads > 0 && limit.Window <= 0 {
		return fmt.Errorf("rate limit for %s: window is required when maxUploads is set", name)
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envInt64(key string, dst *int64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = f
	return nil
}

func envDuration(key string, dst *Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = Duration(d)
	return nil
}
