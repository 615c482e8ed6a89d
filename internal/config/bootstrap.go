// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package config

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	relayerr "github.com/relay-dev/relay/pkg/errors"
)

//go:embed relay.yaml.default
var DefaultConfigYAML []byte

// DefaultConfigPath returns ~/.config/relay/relay.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", relayerr.Errorf(relayerr.CodeConfigLoadReadFailure, "resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "relay", "relay.yaml"), nil
}

// DefaultDataDir returns ~/.local/share/relay, falling back to ./.relay
// when no home directory is available.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".relay"
	}
	return filepath.Join(home, ".local", "share", "relay")
}

// BootstrapConfig writes the default commented config to path unless a file
// is already there. It returns true when it wrote the file. Failures are
// logged at debug level and reported as false.
func BootstrapConfig(path string) bool {
	if _, err := os.Stat(path); err == nil {
		return false
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		slog.Debug("skipping config bootstrap: cannot create directory", "path", dir, "error", err)
		return false
	}

	if err := os.WriteFile(path, DefaultConfigYAML, 0o600); err != nil {
		slog.Debug("skipping config bootstrap: cannot write config", "path", path, "error", err)
		return false
	}

	slog.Info("created default config", "path", path)
	return true
}

// ResolveStoragePath returns the sqlite file to open: storage.path when set,
// otherwise relay.db inside the data directory.
func (c *Config) ResolveStoragePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	dir := c.DataDir
	if dir == "" {
		dir = DefaultDataDir()
	}
	return filepath.Join(dir, "relay.db")
}
