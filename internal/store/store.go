// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package store

import (
	"context"

	"github.com/relay-dev/relay/pkg/health"
)

// Store groups the persistent state of a relay instance.
type Store interface {
	Health() HealthStore
	Jobs() JobLog
	Close() error
}

// HealthStore persists one health record per provider name.
//
// Writers do not coordinate: concurrent UpdateHealth calls for the same
// provider may interleave and the last write wins.
type HealthStore interface {
	// Get returns records for the named providers. Providers without a row
	// are absent from the map; callers treat them as healthy.
	Get(ctx context.Context, providers []string) (map[string]health.Record, error)

	// List returns every stored record ordered by provider name.
	List(ctx context.Context) ([]health.Record, error)

	// UpdateHealth folds one attempt outcome into the provider's record using
	// the store's health policy and returns the updated record.
	UpdateHealth(ctx context.Context, outcome health.Outcome) (health.Record, error)

	// Seed inserts a healthy row for each provider that has none yet.
	Seed(ctx context.Context, providers []string) error
}

// JobLog records the outcome of every routed job.
type JobLog interface {
	Append(ctx context.Context, entry *JobEntry) error
	Query(ctx context.Context, filter JobFilter) ([]*JobEntry, error)
}
