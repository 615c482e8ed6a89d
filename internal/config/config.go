// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package config

import (
	"errors"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/relay-dev/relay/internal/provider"
	"github.com/relay-dev/relay/internal/router"
	"github.com/relay-dev/relay/internal/store"
	relayerr "github.com/relay-dev/relay/pkg/errors"
	"github.com/relay-dev/relay/pkg/health"
)

// EnvPrefix prefixes every environment override, e.g. RELAY_NETWORKING_LISTEN.
const EnvPrefix = "RELAY"

// Config is the top-level relay configuration.
type Config struct {
	Networking NetworkingConfig          `mapstructure:"networking"`
	Providers  map[string]ProviderConfig `mapstructure:"providers"`
	Routing    RoutingConfig             `mapstructure:"routing"`
	Health     HealthConfig              `mapstructure:"health"`
	Storage    StorageConfig             `mapstructure:"storage"`
	Telemetry  TelemetryConfig           `mapstructure:"telemetry"`
	DataDir    string                    `mapstructure:"data_dir"`
}

// NetworkingConfig controls the HTTP listener.
type NetworkingConfig struct {
	Listen             string   `mapstructure:"listen"`
	CORSOrigins        []string `mapstructure:"cors_origins"`
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute"`
}

// ProviderConfig holds the credential and endpoint for one provider.
// APIKey may be a keyring:// URI resolved at startup.
type ProviderConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RoutingConfig is the per-job-type provider priority.
type RoutingConfig struct {
	ExtractText    []string `mapstructure:"extract_text"`
	AnalyzeContent []string `mapstructure:"analyze_content"`
}

// HealthConfig sets the health store's status policy.
type HealthConfig struct {
	DegradedAfter  int64         `mapstructure:"degraded_after"`
	UnhealthyAfter int64         `mapstructure:"unhealthy_after"`
	BaseCooldown   time.Duration `mapstructure:"base_cooldown"`
	MaxCooldown    time.Duration `mapstructure:"max_cooldown"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	DSN     string `mapstructure:"dsn"`
}

// TelemetryConfig controls OpenTelemetry metric export.
type TelemetryConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	OTLPEndpoint string        `mapstructure:"otlp_endpoint"`
	Interval     time.Duration `mapstructure:"interval"`
}

// StorageBackends lists the storage.backend values the binary ships.
var StorageBackends = []string{"memory", "postgres", "sqlite"}

// SetDefaults registers every default on v. Provider keys are registered
// individually so RELAY_PROVIDERS_<NAME>_API_KEY overrides work without a
// config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("networking.listen", "127.0.0.1:8420")
	v.SetDefault("networking.cors_origins", []string{})
	v.SetDefault("networking.rate_limit_per_minute", 60)

	defaultModels := map[string]string{
		provider.NameAnthropic: "claude-sonnet-4-5",
		provider.NameOpenAI:    "gpt-4.1",
		provider.NameGoogle:    "gemini-2.5-flash",
	}
	for _, name := range provider.BuiltinNames {
		prefix := "providers." + name + "."
		v.SetDefault(prefix+"api_key", "")
		v.SetDefault(prefix+"base_url", "")
		v.SetDefault(prefix+"model", defaultModels[name])
		v.SetDefault(prefix+"timeout", "60s")
	}

	orders := router.DefaultOrders()
	v.SetDefault("routing.extract_text", orders[router.JobExtractText])
	v.SetDefault("routing.analyze_content", orders[router.JobAnalyzeContent])

	v.SetDefault("health.degraded_after", health.DefaultDegradedAfter)
	v.SetDefault("health.unhealthy_after", health.DefaultUnhealthyAfter)
	v.SetDefault("health.base_cooldown", health.DefaultBaseCooldown.String())
	v.SetDefault("health.max_cooldown", health.DefaultMaxCooldown.String())

	v.SetDefault("storage.backend", store.DefaultBackend)
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.dsn", "")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.interval", "15s")

	v.SetDefault("data_dir", "")
}

// SetupEnv enables RELAY_-prefixed environment overrides.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix RELAY_).
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, relayerr.Errorf(relayerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, relayerr.Errorf(relayerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, relayerr.Errorf(relayerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Orders returns the routing priorities in router form.
func (c *Config) Orders() router.Orders {
	return router.Orders{
		router.JobExtractText:    slices.Clone(c.Routing.ExtractText),
		router.JobAnalyzeContent: slices.Clone(c.Routing.AnalyzeContent),
	}
}

// HealthPolicy returns the health store policy.
func (c *Config) HealthPolicy() health.Policy {
	return health.Policy{
		DegradedAfter:  c.Health.DegradedAfter,
		UnhealthyAfter: c.Health.UnhealthyAfter,
		BaseCooldown:   c.Health.BaseCooldown,
		MaxCooldown:    c.Health.MaxCooldown,
	}
}

// ProviderNames returns every provider referenced by routing, sorted and
// without duplicates.
func (c *Config) ProviderNames() []string {
	names := append(slices.Clone(c.Routing.ExtractText), c.Routing.AnalyzeContent...)
	slices.Sort(names)
	return slices.Compact(names)
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateNetworking()...)
	errs = append(errs, c.validateProviders()...)
	errs = append(errs, c.validateRouting()...)
	errs = append(errs, c.validateHealth()...)
	errs = append(errs, c.validateStorage()...)

	return errs
}

func invalid(format string, args ...any) error {
	return relayerr.Errorf(relayerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func (c *Config) validateNetworking() []error {
	var errs []error

	if c.Networking.Listen == "" {
		errs = append(errs, invalid("networking.listen must not be empty"))
	} else {
		_, portStr, err := net.SplitHostPort(c.Networking.Listen)
		if err != nil {
			errs = append(errs, invalid("networking.listen must be a valid host:port address, got %q: %w",
				c.Networking.Listen, err))
		} else if port, err := strconv.Atoi(portStr); err != nil {
			errs = append(errs, invalid("networking.listen port must be a number, got %q", portStr))
		} else if port < 1 || port > 65535 {
			errs = append(errs, invalid("networking.listen port must be between 1 and 65535, got %d", port))
		}
	}

	if c.Networking.RateLimitPerMinute < 0 {
		errs = append(errs, invalid("networking.rate_limit_per_minute must not be negative, got %d",
			c.Networking.RateLimitPerMinute))
	}

	return errs
}

func (c *Config) validateProviders() []error {
	var errs []error

	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		p := c.Providers[name]
		if !provider.IsBuiltin(name) {
			errs = append(errs, invalid("providers.%s is not a known provider (known: %s)",
				name, strings.Join(provider.BuiltinNames, ", ")))
		}
		if p.Timeout < 0 {
			errs = append(errs, invalid("providers.%s.timeout must not be negative, got %s", name, p.Timeout))
		}
	}

	return errs
}

func (c *Config) validateRouting() []error {
	var errs []error

	check := func(key string, order []string) {
		if len(order) == 0 {
			errs = append(errs, invalid("routing.%s must list at least one provider", key))
			return
		}
		seen := map[string]bool{}
		for i, name := range order {
			if !provider.IsBuiltin(name) {
				errs = append(errs, invalid("routing.%s[%d] references unknown provider %q", key, i, name))
			}
			if seen[name] {
				errs = append(errs, invalid("routing.%s[%d] lists %q twice", key, i, name))
			}
			seen[name] = true
		}
	}
	check(string(router.JobExtractText), c.Routing.ExtractText)
	check(string(router.JobAnalyzeContent), c.Routing.AnalyzeContent)

	return errs
}

func (c *Config) validateHealth() []error {
	var errs []error
	h := c.Health

	if h.DegradedAfter <= 0 {
		errs = append(errs, invalid("health.degraded_after must be greater than 0, got %d", h.DegradedAfter))
	}
	if h.UnhealthyAfter <= 0 {
		errs = append(errs, invalid("health.unhealthy_after must be greater than 0, got %d", h.UnhealthyAfter))
	} else if h.UnhealthyAfter < h.DegradedAfter {
		errs = append(errs, invalid("health.unhealthy_after (%d) must not be less than health.degraded_after (%d)",
			h.UnhealthyAfter, h.DegradedAfter))
	}
	if h.BaseCooldown <= 0 {
		errs = append(errs, invalid("health.base_cooldown must be positive, got %s", h.BaseCooldown))
	}
	if h.MaxCooldown < h.BaseCooldown {
		errs = append(errs, invalid("health.max_cooldown (%s) must not be less than health.base_cooldown (%s)",
			h.MaxCooldown, h.BaseCooldown))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	valid := StorageBackends
	if !slices.Contains(valid, c.Storage.Backend) {
		errs = append(errs, invalid("storage.backend must be one of [%s], got %q",
			strings.Join(valid, ", "), c.Storage.Backend))
	}
	if c.Storage.Backend == "postgres" && c.Storage.DSN == "" {
		errs = append(errs, invalid("storage.dsn is required for the postgres backend"))
	}

	return errs
}
