// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relay-dev/relay/internal/config"
	"github.com/relay-dev/relay/internal/router"
	relayerr "github.com/relay-dev/relay/pkg/errors"
	"github.com/relay-dev/relay/pkg/health"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8420", cfg.Networking.Listen)
	assert.Equal(t, 60, cfg.Networking.RateLimitPerMinute)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, []string{"google", "openai", "anthropic"}, cfg.Routing.ExtractText)
	assert.Equal(t, []string{"anthropic", "google", "openai"}, cfg.Routing.AnalyzeContent)
	assert.Equal(t, health.DefaultPolicy(), cfg.HealthPolicy())

	require.Contains(t, cfg.Providers, "openai")
	assert.Equal(t, "gpt-4.1", cfg.Providers["openai"].Model)
	assert.Equal(t, 60*time.Second, cfg.Providers["google"].Timeout)
	assert.Empty(t, cfg.Providers["anthropic"].APIKey)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
networking:
  listen: "0.0.0.0:9999"
providers:
  openai:
    api_key: "sk-test"
    timeout: 15s
routing:
  extract_text: [openai, google]
health:
  unhealthy_after: 5
  base_cooldown: 1m
  max_cooldown: 1h
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.Networking.Listen)
	assert.Equal(t, "sk-test", cfg.Providers["openai"].APIKey)
	assert.Equal(t, 15*time.Second, cfg.Providers["openai"].Timeout)
	assert.Equal(t, "gpt-4.1", cfg.Providers["openai"].Model, "unset keys keep their defaults")

	orders := cfg.Orders()
	assert.Equal(t, []string{"openai", "google"}, orders[router.JobExtractText])
	assert.Equal(t, []string{"anthropic", "google", "openai"}, orders[router.JobAnalyzeContent])

	assert.Equal(t, health.Policy{
		DegradedAfter:  1,
		UnhealthyAfter: 5,
		BaseCooldown:   time.Minute,
		MaxCooldown:    time.Hour,
	}, cfg.HealthPolicy())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("RELAY_NETWORKING_LISTEN", "10.0.0.1:8080")
	t.Setenv("RELAY_PROVIDERS_ANTHROPIC_API_KEY", "sk-ant-env")
	t.Setenv("RELAY_STORAGE_BACKEND", "memory")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8080", cfg.Networking.Listen)
	assert.Equal(t, "sk-ant-env", cfg.Providers["anthropic"].APIKey)
	assert.Equal(t, "memory", cfg.Storage.Backend)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, relayerr.CodeConfigLoadReadFailure, relayerr.CodeOf(err))
}

func TestLoad_ValidationCalledAtLoadTime(t *testing.T) {
	path := writeConfig(t, `
routing:
  analyze_content: [anthropic, mistral]
`)
	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `routing.analyze_content[1] references unknown provider "mistral"`)
}

func TestLoad_DefaultYAMLIsValid(t *testing.T) {
	path := writeConfig(t, string(config.DefaultConfigYAML))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "keyring://relay/openai", cfg.Providers["openai"].APIKey)
	assert.Equal(t, 10*time.Minute, cfg.Health.MaxCooldown)
}

func TestFromViper(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	v.Set("storage.backend", "postgres")
	v.Set("storage.dsn", "postgres://relay@localhost/relay")

	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
}

// validConfig returns a minimal config that passes all validation.
func validConfig() *config.Config {
	return &config.Config{
		Networking: config.NetworkingConfig{Listen: "127.0.0.1:8420"},
		Providers: map[string]config.ProviderConfig{
			"anthropic": {APIKey: "test-key"},
		},
		Routing: config.RoutingConfig{
			ExtractText:    []string{"google", "openai", "anthropic"},
			AnalyzeContent: []string{"anthropic", "google", "openai"},
		},
		Health: config.HealthConfig{
			DegradedAfter:  1,
			UnhealthyAfter: 3,
			BaseCooldown:   30 * time.Second,
			MaxCooldown:    10 * time.Minute,
		},
		Storage: config.StorageConfig{Backend: "sqlite"},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.Empty(t, validConfig().Validate())
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"empty listen", func(c *config.Config) { c.Networking.Listen = "" }, "networking.listen must not be empty"},
		{"listen without port", func(c *config.Config) { c.Networking.Listen = "localhost" }, "valid host:port"},
		{"listen port range", func(c *config.Config) { c.Networking.Listen = ":70000" }, "between 1 and 65535"},
		{"negative rate limit", func(c *config.Config) { c.Networking.RateLimitPerMinute = -1 }, "rate_limit_per_minute"},
		{"unknown provider section", func(c *config.Config) {
			c.Providers["mistral"] = config.ProviderConfig{}
		}, "providers.mistral is not a known provider"},
		{"negative timeout", func(c *config.Config) {
			c.Providers["anthropic"] = config.ProviderConfig{Timeout: -time.Second}
		}, "providers.anthropic.timeout"},
		{"empty order", func(c *config.Config) { c.Routing.ExtractText = nil }, "routing.extract_text must list at least one provider"},
		{"duplicate in order", func(c *config.Config) {
			c.Routing.AnalyzeContent = []string{"google", "google"}
		}, `lists "google" twice`},
		{"zero degraded threshold", func(c *config.Config) { c.Health.DegradedAfter = 0 }, "health.degraded_after"},
		{"unhealthy below degraded", func(c *config.Config) {
			c.Health.DegradedAfter = 4
		}, "must not be less than health.degraded_after"},
		{"zero base cooldown", func(c *config.Config) { c.Health.BaseCooldown = 0 }, "health.base_cooldown"},
		{"max below base", func(c *config.Config) { c.Health.MaxCooldown = time.Second }, "health.max_cooldown"},
		{"unknown backend", func(c *config.Config) { c.Storage.Backend = "redis" }, "storage.backend must be one of [memory, postgres, sqlite]"},
		{"postgres without dsn", func(c *config.Config) { c.Storage.Backend = "postgres" }, "storage.dsn is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			errs := cfg.Validate()
			require.NotEmpty(t, errs)

			var msgs []string
			for _, err := range errs {
				assert.True(t, relayerr.IsInvalidInput(err))
				msgs = append(msgs, err.Error())
			}
			assert.Contains(t, strings.Join(msgs, "\n"), tt.want)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Networking.Listen = ""
	cfg.Routing.ExtractText = []string{"nope"}
	cfg.Storage.Backend = "postgres"

	assert.Len(t, cfg.Validate(), 3)
}

func TestProviderNames(t *testing.T) {
	cfg := validConfig()
	cfg.Routing.ExtractText = []string{"openai"}
	cfg.Routing.AnalyzeContent = []string{"anthropic", "openai"}
	assert.Equal(t, []string{"anthropic", "openai"}, cfg.ProviderNames())
}

func TestOrdersAreCopies(t *testing.T) {
	cfg := validConfig()
	orders := cfg.Orders()
	orders[router.JobExtractText][0] = "changed"
	assert.Equal(t, "google", cfg.Routing.ExtractText[0])
}

func TestResolveStoragePath(t *testing.T) {
	cfg := validConfig()
	cfg.DataDir = "/var/lib/relay"
	assert.Equal(t, filepath.Join("/var/lib/relay", "relay.db"), cfg.ResolveStoragePath())

	cfg.Storage.Path = "/tmp/custom.db"
	assert.Equal(t, "/tmp/custom.db", cfg.ResolveStoragePath())
}

func TestBootstrapConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "relay.yaml")

	assert.True(t, config.BootstrapConfig(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(config.DefaultConfigYAML, data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	assert.False(t, config.BootstrapConfig(path), "existing file is left alone")
}
