// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package main

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/relay-dev/relay/internal/config"
	"github.com/relay-dev/relay/internal/provider"
	relayerr "github.com/relay-dev/relay/pkg/errors"
)

// doctorHTTPClient issues the credential checks. Overridden in tests.
var doctorHTTPClient = &http.Client{Timeout: 10 * time.Second}

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long: "Check the configuration, the storage backend, a running gateway and every configured " +
			"provider credential. Credentials are checked with a models listing call; no job is sent.",
		RunE: runDoctor,
	}

	cmd.Flags().String("address", "", "gateway address to check (defaults to networking.listen)")
	cmd.Flags().Bool("skip-providers", false, "do not contact provider APIs")

	return cmd
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(w, "%-20s %s\n", "Config:", err)
		return err
	}

	addr, _ := cmd.Flags().GetString("address")
	if addr == "" {
		addr = cfg.Networking.Listen
	}
	skipProviders, _ := cmd.Flags().GetBool("skip-providers")

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Config", checkConfig},
		{"Storage", func() string { return checkStorage(cfg) }},
		{"Gateway", func() string { return checkGateway(ctx, addr) }},
	}
	if !skipProviders {
		for _, name := range cfg.ProviderNames() {
			pc := cfg.Providers[name]
			checks = append(checks, struct {
				name string
				fn   func() string
			}{"Provider " + name, func() string { return checkProvider(ctx, name, pc) }})
		}
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

func checkBinary() string {
	return fmt.Sprintf("relay %s (%s/%s, %s)", version, runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkConfig() string {
	if cfgFile := viper.ConfigFileUsed(); cfgFile != "" {
		return fmt.Sprintf("loaded from %s", cfgFile)
	}
	return "using defaults (no config file found)"
}

func checkStorage(cfg *config.Config) string {
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Sprintf("error: %s", err)
	}
	_ = st.Close()

	if cfg.Storage.Backend == "sqlite" {
		return "sqlite at " + cfg.ResolveStoragePath()
	}
	return cfg.Storage.Backend
}

func checkGateway(ctx context.Context, addr string) string {
	gw := newGatewayClient(addr)
	gw.http = &http.Client{Timeout: 2 * time.Second}

	var body struct {
		Status string `json:"status"`
	}
	if err := gw.getJSON(ctx, "/health", &body); err != nil {
		if relayerr.HasCode(err, relayerr.CodeCLIGatewayNotRunning) {
			return fmt.Sprintf("not running at %s (run 'relay start')", addr)
		}
		return fmt.Sprintf("error: %s", err)
	}
	return fmt.Sprintf("%s at %s", body.Status, addr)
}

func checkProvider(ctx context.Context, name string, pc config.ProviderConfig) string {
	err := provider.ValidateKey(ctx, doctorHTTPClient, name, pc.APIKey, pc.BaseURL)
	switch {
	case err == nil:
		return "ok"
	case relayerr.IsConfigurationMissing(err):
		return fmt.Sprintf("no API key (run 'relay secret set %s')", name)
	case relayerr.HasCode(err, relayerr.CodeProviderKeyInvalid):
		return "invalid API key"
	default:
		return fmt.Sprintf("error: %s", err)
	}
}
