// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	relayerr "github.com/relay-dev/relay/pkg/errors"
	"github.com/relay-dev/relay/pkg/health"
)

var (
	_ Store       = (*MemoryStore)(nil)
	_ HealthStore = (*memoryHealth)(nil)
	_ JobLog      = (*memoryJobs)(nil)
)

// MemoryStore keeps all state in process memory. It is used by tests and by
// deployments that accept losing health history on restart.
type MemoryStore struct {
	health *memoryHealth
	jobs   *memoryJobs
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(cfg *StorageConfig) *MemoryStore {
	var policy health.Policy
	if cfg != nil {
		policy = cfg.Policy
	}
	return &MemoryStore{
		health: &memoryHealth{records: map[string]health.Record{}, policy: policy, now: cfg.Clock()},
		jobs:   &memoryJobs{},
	}
}

func (m *MemoryStore) Health() HealthStore { return m.health }
func (m *MemoryStore) Jobs() JobLog        { return m.jobs }
func (m *MemoryStore) Close() error        { return nil }

type memoryHealth struct {
	mu      sync.RWMutex
	records map[string]health.Record
	policy  health.Policy
	now     func() time.Time
}

func (s *memoryHealth) Get(_ context.Context, providers []string) (map[string]health.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]health.Record, len(providers))
	for _, p := range providers {
		if rec, ok := s.records[p]; ok {
			out[p] = cloneRecord(rec)
		}
	}
	return out, nil
}

func (s *memoryHealth) List(_ context.Context) ([]health.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]health.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, cloneRecord(rec))
	}
	slices.SortFunc(out, func(a, b health.Record) int { return strings.Compare(a.Provider, b.Provider) })
	return out, nil
}

func (s *memoryHealth) UpdateHealth(_ context.Context, o health.Outcome) (health.Record, error) {
	if o.Provider == "" {
		return health.Record{}, relayerr.Wrap(ErrInvalidInput, relayerr.CodeStoreInvalidInput, "provider name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[o.Provider]
	if !ok {
		rec = health.Healthy(o.Provider)
	}
	rec = s.policy.Apply(rec, o, s.now())
	s.records[o.Provider] = rec
	return cloneRecord(rec), nil
}

func (s *memoryHealth) Seed(_ context.Context, providers []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, p := range providers {
		if _, ok := s.records[p]; ok {
			continue
		}
		rec := health.Healthy(p)
		rec.UpdatedAt = now
		s.records[p] = rec
	}
	return nil
}

// SetRecord overwrites a provider's record. Tests use it to stage states
// that are tedious to reach through UpdateHealth.
func (m *MemoryStore) SetRecord(rec health.Record) {
	m.health.mu.Lock()
	defer m.health.mu.Unlock()
	m.health.records[rec.Provider] = cloneRecord(rec)
}

func cloneRecord(rec health.Record) health.Record {
	if rec.CooldownUntil != nil {
		t := *rec.CooldownUntil
		rec.CooldownUntil = &t
	}
	return rec
}

type memoryJobs struct {
	mu      sync.RWMutex
	entries []*JobEntry
}

func (s *memoryJobs) Append(_ context.Context, entry *JobEntry) error {
	if entry == nil || entry.ID == "" {
		return relayerr.Wrap(ErrInvalidInput, relayerr.CodeStoreInvalidInput, "job entry id is required")
	}
	cp := *entry
	s.mu.Lock()
	s.entries = append(s.entries, &cp)
	s.mu.Unlock()
	return nil
}

func (s *memoryJobs) Query(_ context.Context, filter JobFilter) ([]*JobEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit := filter.EffectiveLimit()
	var out []*JobEntry
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if filter.Matches(s.entries[i]) {
			cp := *s.entries[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}
