// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/relay-dev/relay/internal/config"
	"github.com/relay-dev/relay/internal/provider"
	anthropicprov "github.com/relay-dev/relay/internal/provider/anthropic"
	googleprov "github.com/relay-dev/relay/internal/provider/google"
	openaiprov "github.com/relay-dev/relay/internal/provider/openai"
	"github.com/relay-dev/relay/internal/router"
	"github.com/relay-dev/relay/internal/server"
	"github.com/relay-dev/relay/internal/store"
	_ "github.com/relay-dev/relay/internal/store/postgres" // register postgres backend
	_ "github.com/relay-dev/relay/internal/store/sqlite"   // register sqlite backend
	"github.com/relay-dev/relay/internal/telemetry"
	relayerr "github.com/relay-dev/relay/pkg/errors"
)

// Engine holds the routing subsystems shared by the gateway and the local
// extract/analyze commands.
type Engine struct {
	Config    *config.Config
	Store     store.Store
	Registry  *provider.Registry
	Recorder  *telemetry.Recorder
	Router    *router.Router
	Telemetry *telemetry.Provider
}

// Gateway is an Engine served over HTTP.
type Gateway struct {
	*Engine
	Server *server.Server
}

// WireEngine opens the store, builds the configured adapters and wires the
// router. Callers must Close the engine.
func WireEngine(ctx context.Context, cfg *config.Config) (*Engine, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	eng := &Engine{Config: cfg, Store: st}

	names := cfg.ProviderNames()
	if err := st.Health().Seed(ctx, names); err != nil {
		_ = eng.Close(ctx)
		return nil, relayerr.Errorf(relayerr.CodeCLISetupFailure, "seeding provider health: %w", err)
	}

	eng.Registry = provider.NewRegistry()
	if err := registerAdapters(cfg, eng.Registry); err != nil {
		_ = eng.Close(ctx)
		return nil, err
	}

	eng.Telemetry, err = telemetry.Setup(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		ServiceVersion: version,
		Interval:       cfg.Telemetry.Interval,
	})
	if err != nil {
		_ = eng.Close(ctx)
		return nil, relayerr.Errorf(relayerr.CodeCLISetupFailure, "setting up telemetry: %w", err)
	}

	eng.Recorder, err = telemetry.NewRecorder(st.Health(), st.Jobs(), telemetry.WithMeter(eng.Telemetry.Meter))
	if err != nil {
		_ = eng.Close(ctx)
		return nil, relayerr.Errorf(relayerr.CodeCLISetupFailure, "creating recorder: %w", err)
	}

	eng.Router, err = router.New(router.Config{
		Orders:   cfg.Orders(),
		Adapters: eng.Registry,
		Health:   st.Health(),
		Recorder: eng.Recorder,
	})
	if err != nil {
		_ = eng.Close(ctx)
		return nil, relayerr.Errorf(relayerr.CodeCLISetupFailure, "creating router: %w", err)
	}

	return eng, nil
}

// openStore opens the configured storage backend. The sqlite file's
// directory is created on demand.
func openStore(cfg *config.Config) (store.Store, error) {
	storeCfg := &store.StorageConfig{
		Backend: cfg.Storage.Backend,
		DSN:     cfg.Storage.DSN,
		Policy:  cfg.HealthPolicy(),
	}
	if storeCfg.Backend == "sqlite" || storeCfg.Backend == "" {
		storeCfg.Path = cfg.ResolveStoragePath()
		if err := os.MkdirAll(filepath.Dir(storeCfg.Path), 0o700); err != nil {
			return nil, relayerr.Errorf(relayerr.CodeCLISetupFailure, "creating data directory: %w", err)
		}
	}

	st, err := store.New(storeCfg)
	if err != nil {
		return nil, relayerr.Errorf(relayerr.CodeCLISetupFailure, "opening %s store: %w", storeCfg.Backend, err)
	}
	return st, nil
}

// WireGateway wires an Engine and the HTTP server in front of it.
func WireGateway(ctx context.Context, cfg *config.Config) (*Gateway, error) {
	eng, err := WireEngine(ctx, cfg)
	if err != nil {
		return nil, err
	}

	services, err := server.NewServices(eng.Router, eng.Store.Health(), eng.Store.Jobs(), cfg.ProviderNames())
	if err != nil {
		_ = eng.Close(ctx)
		return nil, relayerr.Errorf(relayerr.CodeCLISetupFailure, "creating services: %w", err)
	}

	srv, err := server.New(server.Config{
		ListenAddr:    cfg.Networking.Listen,
		CORSOrigins:   cfg.Networking.CORSOrigins,
		JobsPerMinute: cfg.Networking.RateLimitPerMinute,
		Services:      services,
		Version:       version,
	})
	if err != nil {
		_ = eng.Close(ctx)
		return nil, relayerr.Errorf(relayerr.CodeCLISetupFailure, "creating server: %w", err)
	}

	return &Gateway{Engine: eng, Server: srv}, nil
}

// Start runs the HTTP server and blocks until the context is cancelled.
func (gw *Gateway) Start(ctx context.Context) error {
	return gw.Server.Start(ctx)
}

// Close flushes telemetry and releases the store.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	if err := e.Telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// adapterFactory builds a provider.Adapter from a ProviderConfig.
type adapterFactory func(config.ProviderConfig) (provider.Adapter, error)

// builtinAdapterFactories maps provider names to their constructors.
// Declared as a variable so tests can inject stand-ins.
var builtinAdapterFactories = map[string]adapterFactory{
	provider.NameAnthropic: func(pc config.ProviderConfig) (provider.Adapter, error) {
		return anthropicprov.New(anthropicprov.Config{APIKey: pc.APIKey, BaseURL: pc.BaseURL, Model: pc.Model, Timeout: pc.Timeout})
	},
	provider.NameGoogle: func(pc config.ProviderConfig) (provider.Adapter, error) {
		return googleprov.New(googleprov.Config{APIKey: pc.APIKey, BaseURL: pc.BaseURL, Model: pc.Model, Timeout: pc.Timeout})
	},
	provider.NameOpenAI: func(pc config.ProviderConfig) (provider.Adapter, error) {
		return openaiprov.New(openaiprov.Config{APIKey: pc.APIKey, BaseURL: pc.BaseURL, Model: pc.Model, Timeout: pc.Timeout})
	},
}

// registerAdapters registers an adapter for every provider that routing
// references. A provider without a key is still registered: its attempts
// fail with a configuration error and the router moves on.
func registerAdapters(cfg *config.Config, reg *provider.Registry) error {
	for _, name := range cfg.ProviderNames() {
		factory, ok := builtinAdapterFactories[name]
		if !ok {
			return relayerr.Errorf(relayerr.CodeCLISetupFailure, "no adapter for provider %q", name)
		}

		pc := cfg.Providers[name]
		if pc.APIKey == "" {
			slog.Warn("provider has no API key; its attempts will fail", "provider", name)
		}

		a, err := factory(pc)
		if err != nil {
			return relayerr.Wrapf(err, relayerr.CodeCLISetupFailure, "creating %s adapter", name)
		}
		reg.Register(name, a)
		slog.Debug("registered provider", "provider", name)
	}
	return nil
}
