package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fenilsonani/reclaim/internal/security"
	"gopkg.in/yaml.v3"
)

// Config represents the resolved application configuration. The core
// packages only read values from it; loading and editing belong to the CLI.
type Config struct {
	Thresholds      Thresholds `yaml:"thresholds"`
	Safety          Safety     `yaml:"safety"`
	Cache           Cache      `yaml:"cache"`
	ExcludePatterns []string   `yaml:"exclude_patterns"`
	Verbose         bool       `yaml:"verbose"`
}

// Thresholds defines the age and size cut-offs used by the scanner.
type Thresholds struct {
	ProjectAgeDays int `yaml:"project_age_days"` // build artifacts from projects idle this long
	MinAgeDays     int `yaml:"min_age_days"`     // downloads/old files must be at least this old
	MinSizeMB      int `yaml:"min_size_mb"`      // large-file threshold
}

// Safety defines deletion safeguards the engine and CLI enforce.
type Safety struct {
	AlwaysConfirm      bool  `yaml:"always_confirm"`
	DefaultPermanent   bool  `yaml:"default_permanent"`
	MaxNoConfirm       int   `yaml:"max_no_confirm"`
	MaxSizeNoConfirmMB int64 `yaml:"max_size_no_confirm_mb"`
	SkipLockedFiles    bool  `yaml:"skip_locked_files"`
	DryRunDefault      bool  `yaml:"dry_run_default"`
}

// Cache controls the scan cache store.
type Cache struct {
	Enabled bool `yaml:"enabled"`
}

// Load loads configuration from a file, falling back to defaults when the
// file does not exist.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return GetDefault(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Save saves configuration to a file.
func Save(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Thresholds.ProjectAgeDays < 0 {
		return fmt.Errorf("project age threshold must be >= 0")
	}
	if c.Thresholds.MinAgeDays < 0 {
		return fmt.Errorf("min age threshold must be >= 0")
	}
	if c.Thresholds.MinSizeMB < 0 {
		return fmt.Errorf("min size threshold must be >= 0")
	}
	if c.Safety.MaxNoConfirm < 0 {
		return fmt.Errorf("max_no_confirm must be >= 0")
	}
	if c.Safety.MaxSizeNoConfirmMB < 0 {
		return fmt.Errorf("max_size_no_confirm_mb must be >= 0")
	}

	for _, pattern := range c.ExcludePatterns {
		if err := security.ValidateGlobPattern(pattern); err != nil {
			return fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
	}

	return nil
}

// MinSizeBytes returns the large-file threshold in bytes.
func (c *Config) MinSizeBytes() int64 {
	return int64(c.Thresholds.MinSizeMB) * 1024 * 1024
}

// GetConfigPath returns the default config path.
func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "reclaim", "config.yaml"), nil
}
