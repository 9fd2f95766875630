// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Guide() GuideConfig
	Metrics() MetricsConfig

	// Browser Setters
	SetBrowserHeadless(bool)

	// Guide Setters
	SetGuideStepTimeout(d time.Duration)
}

// Config holds the entire application configuration.
// The exported *Cfg fields exist so viper can unmarshal into them; callers go through
// the Interface getters.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	GuideCfg   GuideConfig   `mapstructure:"guide" yaml:"guide"`
	MetricsCfg MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Guide() GuideConfig     { return c.GuideCfg }
func (c *Config) Metrics() MetricsConfig { return c.MetricsCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)             { c.BrowserCfg.Headless = b }
func (c *Config) SetGuideStepTimeout(d time.Duration) { c.GuideCfg.StepTimeout = d }

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

// BrowserConfig holds settings for the browser that hosts the guided application.
type BrowserConfig struct {
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          map[string]int `mapstructure:"viewport" yaml:"viewport"`
	ExecPath          string         `mapstructure:"exec_path" yaml:"exec_path"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// CommandTimeout bounds every single CDP round trip issued by the page session.
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
}

// GuideConfig tunes the guided step engine: resolution, highlighting and detection.
type GuideConfig struct {
	StepTimeout     time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	ResolveTimeout  time.Duration `mapstructure:"resolve_timeout" yaml:"resolve_timeout"`
	ResolveInterval time.Duration `mapstructure:"resolve_interval" yaml:"resolve_interval"`

	HoverDwell   time.Duration `mapstructure:"hover_dwell" yaml:"hover_dwell"`
	ClickMargin  float64       `mapstructure:"click_margin" yaml:"click_margin"`
	FormDebounce time.Duration `mapstructure:"form_debounce" yaml:"form_debounce"`
	ValidFlash   time.Duration `mapstructure:"valid_flash" yaml:"valid_flash"`

	RepositionDebounce time.Duration `mapstructure:"reposition_debounce" yaml:"reposition_debounce"`
	DriftInterval      time.Duration `mapstructure:"drift_interval" yaml:"drift_interval"`
	DriftThreshold     float64       `mapstructure:"drift_threshold" yaml:"drift_threshold"`
	MinHighlightSize   float64       `mapstructure:"min_highlight_size" yaml:"min_highlight_size"`
	ViewportPadding    float64       `mapstructure:"viewport_padding" yaml:"viewport_padding"`
	CalloutGap         float64       `mapstructure:"callout_gap" yaml:"callout_gap"`
	AutoCleanupDelay   time.Duration `mapstructure:"auto_cleanup_delay" yaml:"auto_cleanup_delay"`

	// Shorthands maps a reference prefix (without the colon) to a selector template.
	// The literal "{value}" in the template is replaced by the escaped remainder.
	Shorthands map[string]string `mapstructure:"shorthands" yaml:"shorthands"`

	Navigation NavigationConfig `mapstructure:"navigation" yaml:"navigation"`
}

// NavigationConfig describes how to open the host application's collapsible navigation.
type NavigationConfig struct {
	ToggleSelector string `mapstructure:"toggle_selector" yaml:"toggle_selector"`
	DockedSelector string `mapstructure:"docked_selector" yaml:"docked_selector"`
}

// MetricsConfig controls the Prometheus endpoint that exposes step outcomes.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
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
	v.SetDefault("logger.service_name", "stepwise")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	// Guided sessions are for humans, so the window is visible by default.
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.command_timeout", "10s")

	// -- Guide --
	v.SetDefault("guide.step_timeout", "5m")
	v.SetDefault("guide.resolve_timeout", "3s")
	v.SetDefault("guide.resolve_interval", "500ms")
	v.SetDefault("guide.hover_dwell", "1s")
	v.SetDefault("guide.click_margin", 10.0)
	v.SetDefault("guide.form_debounce", "2s")
	v.SetDefault("guide.valid_flash", "600ms")
	v.SetDefault("guide.reposition_debounce", "120ms")
	v.SetDefault("guide.drift_interval", "250ms")
	v.SetDefault("guide.drift_threshold", 5.0)
	v.SetDefault("guide.min_highlight_size", 12.0)
	v.SetDefault("guide.viewport_padding", 12.0)
	v.SetDefault("guide.callout_gap", 12.0)
	v.SetDefault("guide.auto_cleanup_delay", "5s")
	v.SetDefault("guide.shorthands", map[string]string{
		"framework": `[data-testid="{value}"]`,
	})

	// -- Metrics --
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", "127.0.0.1:2112")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.GuideCfg.Validate(); err != nil {
		return fmt.Errorf("guide configuration invalid: %w", err)
	}
	if c.MetricsCfg.Enabled && strings.TrimSpace(c.MetricsCfg.Address) == "" {
		return fmt.Errorf("metrics.address is required when metrics are enabled")
	}
	return nil
}

// Validate checks the GuideConfig settings.
func (g *GuideConfig) Validate() error {
	if g.StepTimeout <= 0 {
		return fmt.Errorf("step_timeout must be a positive duration")
	}
	if g.ResolveInterval <= 0 {
		return fmt.Errorf("resolve_interval must be a positive duration")
	}
	if g.ResolveTimeout <= 0 {
		return fmt.Errorf("resolve_timeout must be a positive duration")
	}
	// The step timer is a plain racer and does not reach into the resolver's retry loop.
	if g.ResolveTimeout > g.StepTimeout {
		return fmt.Errorf("resolve_timeout (%v) must not exceed step_timeout (%v)", g.ResolveTimeout, g.StepTimeout)
	}
	if g.HoverDwell <= 0 {
		return fmt.Errorf("hover_dwell must be a positive duration")
	}
	if g.FormDebounce <= 0 {
		return fmt.Errorf("form_debounce must be a positive duration")
	}
	if g.ClickMargin < 0 {
		return fmt.Errorf("click_margin must not be negative")
	}
	if g.DriftInterval <= 0 {
		return fmt.Errorf("drift_interval must be a positive duration")
	}
	for prefix, tmpl := range g.Shorthands {
		if !strings.Contains(tmpl, "{value}") {
			return fmt.Errorf("shorthand %q must contain the {value} placeholder", prefix)
		}
	}
	return nil
}
