// internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Server() ServerConfig
	Retry() RetryConfig
	Observation() ObservationConfig
	Action() ActionConfig
	Store() StoreConfig

	// Server Setters
	SetServerURL(string)
	SetServerSettleDelay(time.Duration)

	// Observation Setters
	SetObservationViewport(*ViewportConfig)

	// Action Setters
	SetActionGrammar(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	ServerCfg      ServerConfig      `mapstructure:"server" yaml:"server"`
	RetryCfg       RetryConfig       `mapstructure:"retry" yaml:"retry"`
	ObservationCfg ObservationConfig `mapstructure:"observation" yaml:"observation"`
	ActionCfg      ActionConfig      `mapstructure:"action" yaml:"action"`
	StoreCfg       StoreConfig       `mapstructure:"store" yaml:"store"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig           { return c.LoggerCfg }
func (c *Config) Server() ServerConfig           { return c.ServerCfg }
func (c *Config) Retry() RetryConfig             { return c.RetryCfg }
func (c *Config) Observation() ObservationConfig { return c.ObservationCfg }
func (c *Config) Action() ActionConfig           { return c.ActionCfg }
func (c *Config) Store() StoreConfig             { return c.StoreCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetServerURL(u string)                { c.ServerCfg.URL = u }
func (c *Config) SetServerSettleDelay(d time.Duration) { c.ServerCfg.SettleDelay = d }
func (c *Config) SetObservationViewport(v *ViewportConfig) {
	c.ObservationCfg.Viewport = v
}
func (c *Config) SetActionGrammar(g string) { c.ActionCfg.Grammar = g }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ServerConfig describes how to reach the remote automation server.
type ServerConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
	// Width and Height are the browser viewport passed to /start.
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
	// SettleDelay is slept before every goto so the previous page can finish its work.
	SettleDelay    time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	// RateLimit caps requests per second against the server. Zero disables pacing.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// RetryConfig is the policy applied to every remote call.
type RetryConfig struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	MaxAttempts   int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BackoffFactor float64       `mapstructure:"backoff_factor" yaml:"backoff_factor"`
	BaseDelay     time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
}

// ViewportConfig restricts observations to one rectangle of the page.
type ViewportConfig struct {
	X      float64 `mapstructure:"x" yaml:"x"`
	Y      float64 `mapstructure:"y" yaml:"y"`
	Width  float64 `mapstructure:"width" yaml:"width"`
	Height float64 `mapstructure:"height" yaml:"height"`
}

// ObservationConfig controls how the DOM snapshot is turned into text.
type ObservationConfig struct {
	// Viewport is nil when the whole page is rendered.
	Viewport         *ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	RequireVisible   bool            `mapstructure:"require_visible" yaml:"require_visible"`
	RequireFrontmost bool            `mapstructure:"require_frontmost" yaml:"require_frontmost"`
	MaxLabelLength   int             `mapstructure:"max_label_length" yaml:"max_label_length"`
}

// Action grammars understood by the action parser.
const (
	GrammarJSON      = "json"
	GrammarCallChain = "call_chain"
)

// ActionConfig selects the action grammar the agent is prompted with.
type ActionConfig struct {
	Grammar string `mapstructure:"grammar" yaml:"grammar"`
}

// StoreConfig enables trajectory recording to PostgreSQL.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "insta")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Server --
	v.SetDefault("server.url", "http://localhost:3000")
	v.SetDefault("server.width", 1920)
	v.SetDefault("server.height", 1080)
	v.SetDefault("server.settle_delay", "1s")
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.rate_limit", 0.0)
	v.SetDefault("server.rate_burst", 1)

	// -- Retry --
	v.SetDefault("retry.enabled", true)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.backoff_factor", 2.0)
	v.SetDefault("retry.base_delay", "1s")

	// -- Observation --
	v.SetDefault("observation.require_visible", true)
	v.SetDefault("observation.require_frontmost", false)
	v.SetDefault("observation.max_label_length", 100)

	// -- Action --
	v.SetDefault("action.grammar", GrammarJSON)

	// -- Store --
	v.SetDefault("store.enabled", false)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("store.url", "INSTA_STORE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.LoggerCfg.LogFile != "" {
		expanded, err := homedir.Expand(cfg.LoggerCfg.LogFile)
		if err != nil {
			return nil, fmt.Errorf("could not expand logger.log_file: %w", err)
		}
		cfg.LoggerCfg.LogFile = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// DefaultConfigDir returns ~/.insta, the directory searched for config.yaml
// after the working directory.
func DefaultConfigDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".insta"), nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.ServerCfg.URL == "" {
		return fmt.Errorf("server.url is a required configuration field")
	}
	if c.ServerCfg.Width <= 0 || c.ServerCfg.Height <= 0 {
		return fmt.Errorf("server.width and server.height must be positive integers")
	}
	if c.ServerCfg.SettleDelay < 0 {
		return fmt.Errorf("server.settle_delay must not be negative")
	}
	if err := c.RetryCfg.Validate(); err != nil {
		return fmt.Errorf("retry configuration invalid: %w", err)
	}
	if err := c.ObservationCfg.Validate(); err != nil {
		return fmt.Errorf("observation configuration invalid: %w", err)
	}
	switch c.ActionCfg.Grammar {
	case GrammarJSON, GrammarCallChain:
	default:
		return fmt.Errorf("action.grammar must be %q or %q, got %q", GrammarJSON, GrammarCallChain, c.ActionCfg.Grammar)
	}
	if c.StoreCfg.Enabled && c.StoreCfg.URL == "" {
		return fmt.Errorf("store.url is required when the store is enabled. Ensure INSTA_STORE_URL is set")
	}
	return nil
}

// Validate checks the retry policy.
func (r *RetryConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	if r.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be greater than 0")
	}
	if r.BackoffFactor < 0 {
		return fmt.Errorf("backoff_factor must not be negative")
	}
	return nil
}

// Validate checks the observation settings.
func (o *ObservationConfig) Validate() error {
	if o.MaxLabelLength <= 0 {
		return fmt.Errorf("max_label_length must be greater than 0")
	}
	if o.Viewport != nil && (o.Viewport.Width < 0 || o.Viewport.Height < 0) {
		return fmt.Errorf("viewport width and height must not be negative")
	}
	return nil
}
