// ABOUTME: Configuration loading for the discovery tools
// ABOUTME: Merges defaults, an optional YAML file and AAXION_ environment variables
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aaxion/aaxion-discovery/pkg/discovery"
)

// EnvPrefix prefixes every environment override, e.g. AAXION_LOG_LEVEL
const EnvPrefix = "AAXION"

// Config is the full tool configuration
type Config struct {
	Discovery Discovery `mapstructure:"discovery"`
	MDNS      MDNS      `mapstructure:"mdns"`
	Probe     Probe     `mapstructure:"probe"`
	Device    Device    `mapstructure:"device"`
	State     State     `mapstructure:"state"`
	Bridge    Bridge    `mapstructure:"bridge"`
	Log       Log       `mapstructure:"log"`
}

// Discovery controls the scan itself
type Discovery struct {
	ServiceType  string        `mapstructure:"service_type"`
	Duration     time.Duration `mapstructure:"duration"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// MDNS configures the mDNS daemon
type MDNS struct {
	Interface       string        `mapstructure:"interface"`
	DisableIPv4     bool          `mapstructure:"disable_ipv4"`
	DisableIPv6     bool          `mapstructure:"disable_ipv6"`
	QueryInterval   time.Duration `mapstructure:"query_interval"`
	UnicastResponse bool          `mapstructure:"unicast_response"`
}

// Probe configures reachability checks
type Probe struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
	Path    string        `mapstructure:"path"`
	Token   string        `mapstructure:"token"`
}

// Device names the server this machine prefers
type Device struct {
	Name string `mapstructure:"name"`
}

// State locates the persisted selection
type State struct {
	File string `mapstructure:"file"`
}

// Bridge configures the websocket bridge
type Bridge struct {
	Listen string `mapstructure:"listen"`
}

// Log configures logging
type Log struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// MDNSConfig converts the mdns section for the daemon adapter
func (c *Config) MDNSConfig() discovery.MDNSConfig {
	return discovery.MDNSConfig{
		Interface:           c.MDNS.Interface,
		DisableIPv4:         c.MDNS.DisableIPv4,
		DisableIPv6:         c.MDNS.DisableIPv6,
		QueryInterval:       c.MDNS.QueryInterval,
		WantUnicastResponse: c.MDNS.UnicastResponse,
	}
}

// Load reads configuration. An explicit path must exist; without one the
// usual locations are searched and a missing file is fine.
func Load(path string) (*Config, error) {
	return load(viper.New(), path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("aaxion")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "aaxion"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("discovery.service_type", discovery.AaxionServiceType)
	v.SetDefault("discovery.duration", discovery.DefaultScanDuration)
	v.SetDefault("discovery.poll_interval", discovery.DefaultPollInterval)

	v.SetDefault("mdns.interface", "")
	v.SetDefault("mdns.disable_ipv4", false)
	v.SetDefault("mdns.disable_ipv6", false)
	v.SetDefault("mdns.query_interval", time.Second)
	v.SetDefault("mdns.unicast_response", false)

	v.SetDefault("probe.enabled", true)
	v.SetDefault("probe.timeout", 500*time.Millisecond)
	v.SetDefault("probe.path", "/")
	v.SetDefault("probe.token", "")

	v.SetDefault("device.name", "")
	v.SetDefault("state.file", defaultStateFile())
	v.SetDefault("bridge.listen", "127.0.0.1:8931")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.file", "aaxion-discover.log")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", false)
}

func defaultStateFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "aaxion-state.yaml"
	}
	return filepath.Join(dir, "aaxion", "state.yaml")
}

// Validate checks value ranges and enumerations
func (c *Config) Validate() error {
	if _, err := discovery.ParseServiceType(c.Discovery.ServiceType); err != nil {
		return fmt.Errorf("discovery.service_type: %w", err)
	}
	if c.Discovery.Duration <= 0 {
		return fmt.Errorf("discovery.duration must be positive")
	}
	if c.Discovery.PollInterval <= 0 {
		return fmt.Errorf("discovery.poll_interval must be positive")
	}
	if c.MDNS.DisableIPv4 && c.MDNS.DisableIPv6 {
		return fmt.Errorf("mdns: IPv4 and IPv6 cannot both be disabled")
	}
	if c.Probe.Timeout <= 0 {
		return fmt.Errorf("probe.timeout must be positive")
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q is not text or json", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Output) {
	case "stdout", "stderr":
	case "file":
		if c.Log.File == "" {
			return fmt.Errorf("log.file is required when log.output is file")
		}
	default:
		return fmt.Errorf("log.output %q is not stdout, stderr or file", c.Log.Output)
	}
	return nil
}
