package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Hue             HueConfig      `yaml:"hue"`
	Plex            PlexConfig     `yaml:"plex"`
	Group           GroupConfig    `yaml:"group"`
	Webhook         WebhookConfig  `yaml:"webhook"`
	EventBus        EventBusConfig `yaml:"eventbus"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	Log             LogConfig      `yaml:"log"`
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// HueConfig contains Hue bridge connection settings
type HueConfig struct {
	Bridge       string   `yaml:"bridge"`
	Token        string   `yaml:"token"`
	Timeout      Duration `yaml:"timeout"`        // Per-request timeout for bridge calls
	RateLimitRPS float64  `yaml:"rate_limit_rps"` // Max bridge requests per second
}

// PlexConfig contains the webhook admission whitelists
type PlexConfig struct {
	Users         []string `yaml:"users"`          // Account.title values allowed to drive the lights
	Players       []string `yaml:"players"`        // Player.uuid values allowed to drive the lights
	ExcludedTypes []string `yaml:"excluded_types"` // Metadata.type values that are ignored
}

// GroupConfig describes the managed light group
type GroupConfig struct {
	Name    string   `yaml:"name"`    // Reserved name of the group plexhue owns
	Sources []string `yaml:"sources"` // Groups whose lights seed a newly created group
}

// WebhookConfig contains webhook HTTP server settings
type WebhookConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	Path          string `yaml:"path"`
	MaxFormMemory int64  `yaml:"max_form_memory"` // Bytes of multipart data kept in memory
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 1)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// LedgerConfig contains audit ledger settings
type LedgerConfig struct {
	Enabled         *bool    `yaml:"enabled"`
	Path            string   `yaml:"path"`
	RetentionDays   int      `yaml:"retention_days"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
}

// IsEnabled returns whether the ledger is enabled (default: true)
func (c *LedgerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Retention returns the retention window as a duration
func (c *LedgerConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// GetLevel returns the configured log level
func (c *LogConfig) GetLevel() string {
	return strings.ToLower(c.Level)
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration from raw YAML, applies defaults and validates it
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) setDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// Hue defaults
	if cfg.Hue.Timeout == 0 {
		cfg.Hue.Timeout = Duration(10 * time.Second)
	}
	if cfg.Hue.RateLimitRPS == 0 {
		cfg.Hue.RateLimitRPS = 10.0 // 10 requests per second
	}

	// Plex defaults - audio-only playback never drives the lights
	if cfg.Plex.ExcludedTypes == nil {
		cfg.Plex.ExcludedTypes = []string{"track"}
	}

	if cfg.Group.Name == "" {
		cfg.Group.Name = "Plex Home Theater"
	}

	// Webhook defaults
	if cfg.Webhook.Host == "" {
		cfg.Webhook.Host = "0.0.0.0"
	}
	if cfg.Webhook.Port == 0 {
		cfg.Webhook.Port = 3042
	}
	if cfg.Webhook.Path == "" {
		cfg.Webhook.Path = "/webhook"
	}
	if cfg.Webhook.MaxFormMemory == 0 {
		cfg.Webhook.MaxFormMemory = 1 << 20
	}

	// Single worker keeps event handling strictly in arrival order
	if cfg.EventBus.Workers <= 0 {
		cfg.EventBus.Workers = 1
	}
	if cfg.EventBus.QueueSize <= 0 {
		cfg.EventBus.QueueSize = 100
	}

	// Ledger defaults
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = "./plexhue.sqlite"
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate checks that all required settings are present
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.Hue.Bridge == "" {
		errs = append(errs, errors.New("hue.bridge is required"))
	}
	if cfg.Hue.Token == "" {
		errs = append(errs, errors.New("hue.token is required"))
	}
	if len(cfg.Plex.Users) == 0 {
		errs = append(errs, errors.New("plex.users must list at least one account"))
	}
	if len(cfg.Plex.Players) == 0 {
		errs = append(errs, errors.New("plex.players must list at least one player uuid"))
	}
	if cfg.Webhook.Port < 1 || cfg.Webhook.Port > 65535 {
		errs = append(errs, fmt.Errorf("webhook.port %d out of range", cfg.Webhook.Port))
	}
	if !strings.HasPrefix(cfg.Webhook.Path, "/") {
		errs = append(errs, fmt.Errorf("webhook.path %q must start with /", cfg.Webhook.Path))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Addr returns the webhook listen address
func (c *WebhookConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
