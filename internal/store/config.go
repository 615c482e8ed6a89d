// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package store

import (
	"time"

	"github.com/relay-dev/relay/pkg/health"
)

// StorageConfig controls which backend the store factory uses.
type StorageConfig struct {
	Backend string // "sqlite" (default), "postgres" or "memory"
	Path    string // sqlite database file
	DSN     string // postgres connection string
	Policy  health.Policy

	// Now overrides the clock used to stamp records (for testing).
	Now func() time.Time
}

// Clock returns the configured time source, defaulting to time.Now.
func (c *StorageConfig) Clock() func() time.Time {
	if c == nil || c.Now == nil {
		return time.Now
	}
	return c.Now
}
