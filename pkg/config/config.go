// Package config provides YAML-based configuration loading for portbus.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	// AppName optional logical name of the process
	AppName string `mapstructure:"app_name"`

	// Log holds logging configuration
	Log LogConfig `mapstructure:"log"`

	// Node controls the local port node
	Node NodeConfig `mapstructure:"node"`

	// NameService tunes the node's own name service
	NameService NameServiceConfig `mapstructure:"nameservice"`

	// Transports lists the bootstrap transports ports can listen on
	Transports []TransportConfig `mapstructure:"transports"`

	// Carriers selects which carriers get registered
	Carriers CarriersConfig `mapstructure:"carriers"`

	// Multicast holds group socket and allocation options
	Multicast MulticastConfig `mapstructure:"multicast"`

	// Metrics controls the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig controls the metrics HTTP listener.
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Listen string `mapstructure:"listen"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		AppName: "portbus",
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/portbus.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Node: NodeConfig{
			Name:          "node-1",
			Transport:     "tcp",
			DialTimeoutMS: 5000,
		},
		NameService: NameServiceConfig{
			LeaseMS:  30000,
			MaxBytes: 16 << 20,
		},
		Transports: []TransportConfig{
			{Kind: "tcp", Listen: "127.0.0.1:0"},
		},
		Carriers: CarriersConfig{
			Enabled: []string{"tcp", "text", "local", "mcast"},
			Default: "tcp",
		},
		Multicast: MulticastConfig{
			Interface: "",
			TTL:       1,
			Loopback:  true,
			GroupBase: "239.255.0.1",
			PortBase:  11000,
		},
		Metrics: MetricsConfig{Enable: false, Listen: ":9464"},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix PORTBUS and `.`/`-` are replaced with `_`.
// Example: PORTBUS_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PORTBUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("app_name", cfg.AppName)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("node.name", cfg.Node.Name)
	v.SetDefault("node.transport", cfg.Node.Transport)
	v.SetDefault("node.dial_timeout_ms", cfg.Node.DialTimeoutMS)
	v.SetDefault("nameservice.lease_ms", cfg.NameService.LeaseMS)
	v.SetDefault("nameservice.max_bytes", cfg.NameService.MaxBytes)
	v.SetDefault("transports", cfg.Transports)
	v.SetDefault("carriers.enabled", cfg.Carriers.Enabled)
	v.SetDefault("carriers.default", cfg.Carriers.Default)
	v.SetDefault("multicast.interface", cfg.Multicast.Interface)
	v.SetDefault("multicast.ttl", cfg.Multicast.TTL)
	v.SetDefault("multicast.loopback", cfg.Multicast.Loopback)
	v.SetDefault("multicast.group_base", cfg.Multicast.GroupBase)
	v.SetDefault("multicast.port_base", cfg.Multicast.PortBase)
	v.SetDefault("metrics.enable", cfg.Metrics.Enable)
	v.SetDefault("metrics.listen", cfg.Metrics.Listen)

	// Choose config file
	if path == "" {
		// Allow override via env var
		if envPath := os.Getenv("PORTBUS_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Search common locations with base name `portbus`
		v.SetConfigName("portbus")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".portbus"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var viperConfigFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &viperConfigFileNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
		// ok
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	if strings.TrimSpace(c.Node.Name) == "" {
		c.Node.Name = "node-1"
	}
	if c.NameService.LeaseMS < 0 {
		return fmt.Errorf("invalid nameservice.lease_ms: %d", c.NameService.LeaseMS)
	}
	for i := range c.Transports {
		c.Transports[i].Kind = strings.ToLower(strings.TrimSpace(c.Transports[i].Kind))
	}
	c.Node.Transport = strings.ToLower(strings.TrimSpace(c.Node.Transport))
	if _, ok := c.Transport(c.Node.Transport); !ok {
		return fmt.Errorf("node.transport %q has no entry in transports", c.Node.Transport)
	}
	if err := c.Carriers.validate(); err != nil {
		return err
	}
	return c.Multicast.validate()
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
