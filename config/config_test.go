package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps the developer's own config and CHANNELS_* vars out of the test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CHANNELS_CONFIG", "")
}

func TestDefaults(t *testing.T) {
	isolate(t)
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", c.Discovery.Host)
	assert.Equal(t, 58987, c.Discovery.Port)
	assert.Equal(t, time.Second, c.Discovery.AnnounceInterval)
	assert.Equal(t, 5*time.Second, c.Discovery.Timeout)
	assert.Equal(t, 0, c.Service.QueueCapacity)
	assert.Equal(t, 500*time.Millisecond, c.Service.PollInterval)
	assert.Equal(t, BackendBroadcast, c.Registry.Backend)
	assert.Equal(t, "info", c.Log.Level)
	assert.Empty(t, c.Metrics.Addr)

	assert.Equal(t, c, Default())
}

func TestFileAndEnvOverrides(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "channels.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[service]
queue_capacity = 10
poll_interval = "250ms"

[registry]
backend = "etcd"
etcd_endpoints = ["127.0.0.1:2379"]
`), 0o644))

	t.Setenv("CHANNELS_DISCOVERY_PORT", "59000")
	t.Setenv("CHANNELS_LOG_LEVEL", "debug")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, c.Service.QueueCapacity)
	assert.Equal(t, 250*time.Millisecond, c.Service.PollInterval)
	assert.Equal(t, BackendEtcd, c.Registry.Backend)
	assert.Equal(t, []string{"127.0.0.1:2379"}, c.Registry.EtcdEndpoints)
	assert.Equal(t, 59000, c.Discovery.Port)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestExplicitMissingFileFails(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"port":        func(c *Config) { c.Discovery.Port = 70000 },
		"interval":    func(c *Config) { c.Discovery.AnnounceInterval = 0 },
		"capacity":    func(c *Config) { c.Service.QueueCapacity = -1 },
		"poll":        func(c *Config) { c.Service.PollInterval = 0 },
		"backend":     func(c *Config) { c.Registry.Backend = "zookeeper" },
		"etcd":        func(c *Config) { c.Registry.Backend = BackendEtcd },
		"level":       func(c *Config) { c.Log.Level = "loud" },
		"balancer":    func(c *Config) { c.Client.Balancer = "weighted" },
		"burst":       func(c *Config) { c.Service.RateLimit = 5; c.Service.RateBurst = 0 },
		"retries":     func(c *Config) { c.Client.Retries = -1 },
		"reqTimeout":  func(c *Config) { c.Service.RequestTimeout = -time.Second },
		"serviceHost": func(c *Config) { c.Service.Host = "" },
	}

	require.NoError(t, Default().Validate())
	for name, mutate := range cases {
		c := Default()
		mutate(&c)
		assert.Error(t, c.Validate(), name)
	}
}

func TestValidateReportsEverySetting(t *testing.T) {
	c := Default()
	c.Discovery.Port = 0
	c.Service.PollInterval = 0
	c.Log.Level = "loud"

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discovery.port")
	assert.Contains(t, err.Error(), "service.poll_interval")
	assert.Contains(t, err.Error(), "log.level")
}

func TestRequestTimeoutFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("CHANNELS_SERVICE_REQUEST_TIMEOUT", "2s")
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, c.Service.RequestTimeout)
	assert.Zero(t, Default().Service.RequestTimeout)
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	isolate(t)
	t.Setenv("CHANNELS_SERVICE_QUEUE_CAPACITY", "-5")
	_, err := Load("")
	assert.Error(t, err)
}
