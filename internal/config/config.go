package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
	Campaign CampaignConfig `yaml:"campaign"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Auth     AuthConfig     `yaml:"auth"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DatabaseConfig contains SQLite settings for users and sessions
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig contains bbolt settings for campaign snapshots and
// rate-limit counters
type StorageConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// CampaignConfig contains campaign scheduling settings
type CampaignConfig struct {
	// Maximum successful sends per tenant per rolling hour
	MaxPerHour int `yaml:"max_per_hour"`

	// How long the loop waits before re-polling after the hourly cap hits
	LimitBackoff time.Duration `yaml:"limit_backoff"`

	// Pacing interval bounds (seconds). MinInterval is the floor any
	// tenant-supplied value is clamped to.
	MinInterval        int `yaml:"min_interval"`
	DefaultIntervalMin int `yaml:"default_interval_min"`
	DefaultIntervalMax int `yaml:"default_interval_max"`

	// Addressing: which contact field carries the phone number, and how
	// the number is normalized into a channel address.
	AddressField  string `yaml:"address_field"`
	CountryCode   string `yaml:"country_code"`
	AddressSuffix string `yaml:"address_suffix"`

	// How often rate-limit counters are flushed to disk
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// GatewayConfig contains settings for the external messaging gateway
type GatewayConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// AuthConfig contains session settings
type AuthConfig struct {
	SessionTTL   time.Duration `yaml:"session_ttl"`
	SecureCookie bool          `yaml:"secure_cookie"`
}

// Load reads and validates a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with all defaults applied
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":3000"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	// WriteTimeout stays zero unless configured: long-lived SSE streams
	// go through this server.
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	if c.Database.Path == "" {
		c.Database.Path = "data/courier.db"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/campaigns.bolt"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Campaign.MaxPerHour == 0 {
		c.Campaign.MaxPerHour = 50
	}
	if c.Campaign.LimitBackoff == 0 {
		c.Campaign.LimitBackoff = 60 * time.Second
	}
	if c.Campaign.MinInterval == 0 {
		c.Campaign.MinInterval = 10
	}
	if c.Campaign.DefaultIntervalMin == 0 {
		c.Campaign.DefaultIntervalMin = 60
	}
	if c.Campaign.DefaultIntervalMax == 0 {
		c.Campaign.DefaultIntervalMax = 180
	}
	if c.Campaign.AddressField == "" {
		c.Campaign.AddressField = "numero"
	}
	if c.Campaign.AddressSuffix == "" {
		c.Campaign.AddressSuffix = "@c.us"
	}
	if c.Campaign.FlushInterval == 0 {
		c.Campaign.FlushInterval = 10 * time.Second
	}

	if c.Gateway.PollInterval == 0 {
		c.Gateway.PollInterval = 5 * time.Second
	}

	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = time.Hour
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Campaign.MaxPerHour < 1 {
		return fmt.Errorf("campaign.max_per_hour must be positive, got %d", c.Campaign.MaxPerHour)
	}
	if c.Campaign.MinInterval < 1 {
		return fmt.Errorf("campaign.min_interval must be positive, got %d", c.Campaign.MinInterval)
	}
	if c.Campaign.DefaultIntervalMin > c.Campaign.DefaultIntervalMax {
		return fmt.Errorf("campaign.default_interval_min %d exceeds default_interval_max %d",
			c.Campaign.DefaultIntervalMin, c.Campaign.DefaultIntervalMax)
	}
	if c.Campaign.LimitBackoff < time.Second {
		return fmt.Errorf("campaign.limit_backoff too small: %s", c.Campaign.LimitBackoff)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}
