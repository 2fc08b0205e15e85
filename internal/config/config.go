// Package config loads the pipeline configuration from a YAML or JSON
// file. Credentials never live in the file; live-mode sources name the
// environment variable that carries their token.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SourceConfig describes one live discovery source.
type SourceConfig struct {
	Name     string  `yaml:"name" json:"name"`
	URL      string  `yaml:"url" json:"url"`
	Weight   float64 `yaml:"weight,omitempty" json:"weight,omitempty"`
	TokenEnv string  `yaml:"token_env,omitempty" json:"token_env,omitempty"`
}

// DiscoveryConfig bounds the Discovery stage for both modes.
type DiscoveryConfig struct {
	TopN        int            `yaml:"top_n,omitempty" json:"top_n,omitempty"`
	WindowHours int            `yaml:"window_hours,omitempty" json:"window_hours,omitempty"`
	FixturePath string         `yaml:"fixture_path,omitempty" json:"fixture_path,omitempty"`
	Sources     []SourceConfig `yaml:"sources,omitempty" json:"sources,omitempty"`
}

// VerificationConfig holds the acceptance rules applied to matched items.
type VerificationConfig struct {
	MinConfidence     float64 `yaml:"min_confidence,omitempty" json:"min_confidence,omitempty"`
	RequirePartnerURL bool    `yaml:"require_partner_url" json:"require_partner_url"`
}

// PublishConfig points at the publishing target. An empty BaseURL selects
// the fixture publisher.
type PublishConfig struct {
	BaseURL  string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	TokenEnv string `yaml:"token_env,omitempty" json:"token_env,omitempty"`
}

// RetryConfig bounds controller-driven retries of execution errors.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts,omitempty" json:"max_attempts,omitempty"`
}

// Config is the full pipeline configuration.
type Config struct {
	DataDir              string             `yaml:"data_dir,omitempty" json:"data_dir,omitempty"`
	DBPath               string             `yaml:"db_path,omitempty" json:"db_path,omitempty"`
	Mode                 string             `yaml:"mode,omitempty" json:"mode,omitempty"`
	Retry                RetryConfig        `yaml:"retry,omitempty" json:"retry,omitempty"`
	Discovery            DiscoveryConfig    `yaml:"discovery,omitempty" json:"discovery,omitempty"`
	Verification         VerificationConfig `yaml:"verification,omitempty" json:"verification,omitempty"`
	Publish              PublishConfig      `yaml:"publish,omitempty" json:"publish,omitempty"`
	AllowDegradedPublish *bool              `yaml:"allow_degraded_publish,omitempty" json:"allow_degraded_publish,omitempty"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		DataDir: ".trendpress/runs",
		DBPath:  ".trendpress/trendpress.db",
		Mode:    "fixture",
		Retry:   RetryConfig{MaxAttempts: 2},
		Discovery: DiscoveryConfig{
			TopN:        20,
			WindowHours: 24,
		},
		Verification: VerificationConfig{
			MinConfidence:     0.7,
			RequirePartnerURL: true,
		},
	}
}

// DegradedPublishAllowed resolves the configurable policy for letting
// degraded upstream artifacts reach the gate-protected Publish stage.
// Unset means allowed: the pipeline publishes whatever survived review.
func (c Config) DegradedPublishAllowed() bool {
	if c.AllowDegradedPublish == nil {
		return true
	}
	return *c.AllowDegradedPublish
}

// Validate checks cross-field constraints that defaulting cannot fix.
func (c Config) Validate() error {
	if c.Mode != "fixture" && c.Mode != "live" {
		return fmt.Errorf("config: mode must be fixture or live, got %q", c.Mode)
	}
	if c.Discovery.TopN < 1 || c.Discovery.TopN > 20 {
		return fmt.Errorf("config: discovery.top_n must be 1..20, got %d", c.Discovery.TopN)
	}
	if c.Discovery.WindowHours < 1 {
		return fmt.Errorf("config: discovery.window_hours must be positive, got %d", c.Discovery.WindowHours)
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("config: retry.max_attempts must be >= 0, got %d", c.Retry.MaxAttempts)
	}
	if c.Verification.MinConfidence < 0 || c.Verification.MinConfidence > 1 {
		return fmt.Errorf("config: verification.min_confidence must be 0..1, got %v", c.Verification.MinConfidence)
	}
	return nil
}

// LoadFromPath reads a config file (YAML or JSON) and merges it over the
// defaults. Format is detected by extension or by content.
func LoadFromPath(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Load(data, filepath.Ext(path))
}

// Load parses config bytes over the defaults: fields the file leaves out
// keep their default value, and explicit values (including zeros, such as
// retry.max_attempts: 0 to disable re-invocation) are taken as written.
// ext is the file extension for a format hint; empty means detect from
// content (JSON objects start with "{").
func Load(data []byte, ext string) (Config, error) {
	cfg := Default()
	ext = strings.ToLower(ext)
	if ext == ".yml" {
		ext = ".yaml"
	}
	useJSON := ext == ".json"
	if ext == "" {
		useJSON = strings.HasPrefix(strings.TrimSpace(string(data)), "{")
	}
	if useJSON {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse yaml: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
