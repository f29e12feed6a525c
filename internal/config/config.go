// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Dispatcher names accepted by bridge.dispatcher.
const (
	DispatcherDirect = "direct"
	DispatcherSerial = "serial"
)

// Backend names accepted by browser.backend.
const (
	BackendCDP = "cdp"
	BackendSim = "sim"
)

// EnvPrefix is prepended to every environment override, e.g. WEBBRIDGE_BRIDGE_DEBUG.
const EnvPrefix = "WEBBRIDGE"

// Interface is read access to the configuration plus the setters the CLI
// flags need.
type Interface interface {
	Logger() LoggerConfig
	Bridge() BridgeConfig
	Browser() BrowserConfig

	SetBridgeDebug(bool)
	SetBrowserBackend(string)
	SetBrowserHeadless(bool)
	SetBrowserStartURL(string)
}

// Config is the whole application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BridgeCfg  BridgeConfig  `mapstructure:"bridge" yaml:"bridge"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Bridge() BridgeConfig   { return c.BridgeCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }

func (c *Config) SetBridgeDebug(b bool)        { c.BridgeCfg.Debug = b }
func (c *Config) SetBrowserBackend(s string)   { c.BrowserCfg.Backend = s }
func (c *Config) SetBrowserHeadless(b bool)    { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserStartURL(s string) { c.BrowserCfg.StartURL = s }

// LoggerConfig controls the global zap logger.
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

// ColorConfig names the console color of each level.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BridgeConfig tunes the call bridge.
type BridgeConfig struct {
	// Debug turns on script-side logging of every bridge message.
	Debug bool `mapstructure:"debug" yaml:"debug"`
	// EvalTimeout bounds host-to-script evaluations. Zero waits forever.
	EvalTimeout time.Duration `mapstructure:"eval_timeout" yaml:"eval_timeout"`
	// DeliveryTimeout bounds each result delivery to the script.
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout" yaml:"delivery_timeout"`
	// Dispatcher is "direct" to run handlers on the native dispatch goroutine,
	// or "serial" to hop onto a dedicated goroutine.
	Dispatcher string `mapstructure:"dispatcher" yaml:"dispatcher"`
}

// BrowserConfig selects and configures the browser backend.
type BrowserConfig struct {
	Backend  string   `mapstructure:"backend" yaml:"backend"`
	Headless bool     `mapstructure:"headless" yaml:"headless"`
	ExecPath string   `mapstructure:"exec_path" yaml:"exec_path"`
	Args     []string `mapstructure:"args" yaml:"args"`
	// RootFolder is served for every path the bridge does not own. A leading
	// "~" is expanded.
	RootFolder string `mapstructure:"root_folder" yaml:"root_folder"`
	StartURL   string `mapstructure:"start_url" yaml:"start_url"`
}

// NewDefaultConfig returns the configuration produced by the defaults alone.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "webbridge")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Bridge --
	v.SetDefault("bridge.debug", false)
	v.SetDefault("bridge.eval_timeout", "30s")
	v.SetDefault("bridge.delivery_timeout", "10s")
	v.SetDefault("bridge.dispatcher", DispatcherDirect)

	// -- Browser --
	v.SetDefault("browser.backend", BackendCDP)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.root_folder", "")
	v.SetDefault("browser.start_url", "")
}

// BindEnv wires WEBBRIDGE_* environment overrides into v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// NewConfigFromViper decodes, normalizes and validates the configuration held
// by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.BrowserCfg.RootFolder != "" {
		expanded, err := homedir.Expand(cfg.BrowserCfg.RootFolder)
		if err != nil {
			return nil, fmt.Errorf("expanding browser.root_folder: %w", err)
		}
		cfg.BrowserCfg.RootFolder = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	switch c.LoggerCfg.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be \"console\" or \"json\", got %q", c.LoggerCfg.Format)
	}
	if err := c.BridgeCfg.Validate(); err != nil {
		return fmt.Errorf("bridge configuration invalid: %w", err)
	}
	if err := c.BrowserCfg.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the bridge settings.
func (b *BridgeConfig) Validate() error {
	if b.EvalTimeout < 0 {
		return fmt.Errorf("eval_timeout must not be negative")
	}
	if b.DeliveryTimeout <= 0 {
		return fmt.Errorf("delivery_timeout must be positive")
	}
	switch b.Dispatcher {
	case DispatcherDirect, DispatcherSerial:
		return nil
	default:
		return fmt.Errorf("dispatcher must be %q or %q, got %q", DispatcherDirect, DispatcherSerial, b.Dispatcher)
	}
}

// Validate checks the browser settings.
func (b *BrowserConfig) Validate() error {
	switch b.Backend {
	case BackendCDP, BackendSim:
		return nil
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendCDP, BackendSim, b.Backend)
	}
}
