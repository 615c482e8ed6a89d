// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package store

import (
	"slices"
	"sync"

	relayerr "github.com/relay-dev/relay/pkg/errors"
)

// DefaultBackend is used when StorageConfig.Backend is empty.
const DefaultBackend = "sqlite"

// Factory opens a Store for the given configuration.
type Factory func(cfg *StorageConfig) (Store, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

func init() {
	RegisterBackend("memory", func(cfg *StorageConfig) (Store, error) {
		return NewMemoryStore(cfg), nil
	})
}

// RegisterBackend registers the factory for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Backends returns the names of all registered backends.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// resolveBackend returns the effective backend name, defaulting to "sqlite".
func resolveBackend(cfg *StorageConfig) string {
	if cfg == nil || cfg.Backend == "" {
		return DefaultBackend
	}
	return cfg.Backend
}

// New opens the store for the configured backend.
func New(cfg *StorageConfig) (Store, error) {
	if cfg == nil {
		cfg = &StorageConfig{}
	}
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, relayerr.Errorf(relayerr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}
	return factory(cfg)
}
