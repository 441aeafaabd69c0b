// Package config loads channels settings from defaults, an optional TOML or
// YAML file, and CHANNELS_* environment variables (in increasing priority).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"channels/loadbalance"
	"channels/protocol"
)

// EnvPrefix prefixes every environment override: discovery.port is read
// from CHANNELS_DISCOVERY_PORT.
const EnvPrefix = "CHANNELS"

// Registry backends.
const (
	BackendBroadcast = "broadcast"
	BackendEtcd      = "etcd"
)

type Config struct {
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Service   ServiceConfig   `mapstructure:"service"`
	Client    ClientConfig    `mapstructure:"client"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// DiscoveryConfig is shared by announcers and scanners; both sides must agree
// on host and port.
type DiscoveryConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	AnnounceInterval time.Duration `mapstructure:"announce_interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

type ServiceConfig struct {
	Host          string        `mapstructure:"host"`
	QueueCapacity int           `mapstructure:"queue_capacity"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RateLimit     float64       `mapstructure:"rate_limit"` // requests/s, 0 disables
	RateBurst     int           `mapstructure:"rate_burst"`

	// RequestTimeout bounds one HTTP exchange on the service; 0 disables.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type ClientConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	Balancer   string        `mapstructure:"balancer"`
}

type RegistryConfig struct {
	Backend       string        `mapstructure:"backend"`
	EtcdEndpoints []string      `mapstructure:"etcd_endpoints"`
	EtcdTTL       time.Duration `mapstructure:"etcd_ttl"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the endpoint
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("discovery.host", protocol.DefaultDiscoveryHost)
	v.SetDefault("discovery.port", protocol.DefaultDiscoveryPort)
	v.SetDefault("discovery.announce_interval", time.Second)
	v.SetDefault("discovery.timeout", 5*time.Second)
	v.SetDefault("service.host", protocol.LocalHost)
	v.SetDefault("service.queue_capacity", 0)
	v.SetDefault("service.poll_interval", 500*time.Millisecond)
	v.SetDefault("service.rate_limit", 0.0)
	v.SetDefault("service.rate_burst", 1)
	v.SetDefault("service.request_timeout", 0)
	v.SetDefault("client.timeout", 5*time.Second)
	v.SetDefault("client.retries", 0)
	v.SetDefault("client.retry_delay", 100*time.Millisecond)
	v.SetDefault("client.balancer", "first")
	v.SetDefault("registry.backend", BackendBroadcast)
	v.SetDefault("registry.etcd_endpoints", []string{})
	v.SetDefault("registry.etcd_ttl", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("metrics.addr", "")
}

// Default returns the configuration with nothing overridden.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	_ = v.Unmarshal(&c)
	return c
}

// Load reads configuration. An explicit path must exist; otherwise
// $CHANNELS_CONFIG or $HOME/.config/channels/config.{toml,yaml} is read if
// present. The result is validated.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	explicit := path != ""
	if explicit {
		v.SetConfigFile(path)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "channels"))
		}
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every invalid setting, joined into one error.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Discovery.Host != "", "discovery.host is empty")
	check(c.Discovery.Port > 0 && c.Discovery.Port <= 65535, "discovery.port %d out of range", c.Discovery.Port)
	check(c.Discovery.AnnounceInterval > 0, "discovery.announce_interval must be positive")
	check(c.Discovery.Timeout > 0, "discovery.timeout must be positive")
	check(c.Service.Host != "", "service.host is empty")
	check(c.Service.QueueCapacity >= 0, "service.queue_capacity %d is negative", c.Service.QueueCapacity)
	check(c.Service.PollInterval > 0, "service.poll_interval must be positive")
	check(c.Service.RateLimit >= 0, "service.rate_limit is negative")
	check(c.Service.RateLimit == 0 || c.Service.RateBurst > 0, "service.rate_burst must be positive when rate_limit is set")
	check(c.Service.RequestTimeout >= 0, "service.request_timeout is negative")
	check(c.Client.Timeout >= 0, "client.timeout is negative")
	check(c.Client.Retries >= 0, "client.retries is negative")

	if _, err := loadbalance.ByName(c.Client.Balancer, ""); err != nil {
		errs = append(errs, fmt.Errorf("client.balancer: %w", err))
	}

	switch c.Registry.Backend {
	case BackendBroadcast:
	case BackendEtcd:
		check(len(c.Registry.EtcdEndpoints) > 0, "registry.etcd_endpoints is required for the etcd backend")
		check(c.Registry.EtcdTTL >= time.Second, "registry.etcd_ttl must be at least 1s")
	default:
		errs = append(errs, fmt.Errorf("registry.backend %q is not %q or %q", c.Registry.Backend, BackendBroadcast, BackendEtcd))
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
