// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

// Package storetest holds the behaviour every store backend must share.
// Backend test packages call Run with a constructor for their backend.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/relay-dev/relay/internal/store"
	"github.com/relay-dev/relay/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Opener returns a fresh, empty store for cfg. It should register cleanup
// with t itself.
type Opener func(t *testing.T, cfg *store.StorageConfig) store.Store

// Epoch is the fixed clock used by the suite. Whole seconds keep round trips
// exact on backends with microsecond precision.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedConfig() *store.StorageConfig {
	return &store.StorageConfig{
		Policy: health.Policy{DegradedAfter: 1, UnhealthyAfter: 2, BaseCooldown: 30 * time.Second, MaxCooldown: 5 * time.Minute},
		Now:    func() time.Time { return Epoch },
	}
}

// Run executes the shared backend suite.
func Run(t *testing.T, open Opener) {
	t.Run("GetEmpty", func(t *testing.T) { testGetEmpty(t, open) })
	t.Run("SeedIsIdempotent", func(t *testing.T) { testSeed(t, open) })
	t.Run("FailureProgression", func(t *testing.T) { testFailureProgression(t, open) })
	t.Run("SuccessResets", func(t *testing.T) { testSuccessResets(t, open) })
	t.Run("ListSorted", func(t *testing.T) { testListSorted(t, open) })
	t.Run("RejectsEmptyProvider", func(t *testing.T) { testRejectsEmptyProvider(t, open) })
	t.Run("ConcurrentUpdates", func(t *testing.T) { testConcurrentUpdates(t, open) })
	t.Run("JobLog", func(t *testing.T) { testJobLog(t, open) })
}

func testGetEmpty(t *testing.T, open Opener) {
	s := open(t, fixedConfig())
	got, err := s.Health().Get(context.Background(), []string{"google", "openai"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testSeed(t *testing.T, open Opener) {
	ctx := context.Background()
	s := open(t, fixedConfig())
	hs := s.Health()

	require.NoError(t, hs.Seed(ctx, []string{"google", "openai"}))
	_, err := hs.UpdateHealth(ctx, health.Outcome{Provider: "google", Error: "boom", LatencyMs: 10})
	require.NoError(t, err)
	require.NoError(t, hs.Seed(ctx, []string{"google", "openai", "anthropic"}))

	got, err := hs.Get(ctx, []string{"google", "openai", "anthropic"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, health.StatusDegraded, got["google"].Status, "seed must not overwrite existing rows")
	assert.Equal(t, health.StatusHealthy, got["openai"].Status)
	assert.Equal(t, health.StatusHealthy, got["anthropic"].Status)
}

func testFailureProgression(t *testing.T, open Opener) {
	ctx := context.Background()
	s := open(t, fixedConfig())
	hs := s.Health()
	fail := health.Outcome{Provider: "openai", Error: "openai API error (status 500)", LatencyMs: 120}

	rec, err := hs.UpdateHealth(ctx, fail)
	require.NoError(t, err)
	assert.Equal(t, health.StatusDegraded, rec.Status)

	rec, err = hs.UpdateHealth(ctx, fail)
	require.NoError(t, err)
	require.Equal(t, health.StatusUnhealthy, rec.Status)

	got, err := hs.Get(ctx, []string{"openai"})
	require.NoError(t, err)
	stored := got["openai"]
	assert.Equal(t, health.StatusUnhealthy, stored.Status)
	require.NotNil(t, stored.CooldownUntil)
	assert.True(t, stored.CooldownUntil.Equal(Epoch.Add(30*time.Second)), "cooldown_until = %s", stored.CooldownUntil)
	assert.True(t, stored.InCooldown(Epoch))
	assert.False(t, stored.InCooldown(Epoch.Add(time.Minute)))
	assert.Equal(t, int64(2), stored.ConsecutiveFailures)
	assert.Equal(t, int64(2), stored.TotalFailures)
	assert.Equal(t, int64(120), stored.LastLatencyMs)
	assert.Equal(t, "openai API error (status 500)", stored.LastError)
	assert.True(t, stored.UpdatedAt.Equal(Epoch))
}

func testSuccessResets(t *testing.T, open Opener) {
	ctx := context.Background()
	s := open(t, fixedConfig())
	hs := s.Health()

	for range 3 {
		_, err := hs.UpdateHealth(ctx, health.Outcome{Provider: "anthropic", Error: "timeout"})
		require.NoError(t, err)
	}
	rec, err := hs.UpdateHealth(ctx, health.Outcome{Provider: "anthropic", Success: true, LatencyMs: 900})
	require.NoError(t, err)
	assert.Equal(t, health.StatusHealthy, rec.Status)

	got, err := hs.Get(ctx, []string{"anthropic"})
	require.NoError(t, err)
	stored := got["anthropic"]
	assert.Equal(t, health.StatusHealthy, stored.Status)
	assert.Nil(t, stored.CooldownUntil)
	assert.Zero(t, stored.ConsecutiveFailures)
	assert.Equal(t, int64(3), stored.TotalFailures)
	assert.Equal(t, int64(1), stored.TotalSuccesses)
	assert.Equal(t, int64(900), stored.LastLatencyMs)
	assert.Empty(t, stored.LastError)
}

func testListSorted(t *testing.T, open Opener) {
	ctx := context.Background()
	s := open(t, fixedConfig())
	require.NoError(t, s.Health().Seed(ctx, []string{"openai", "anthropic", "google"}))

	recs, err := s.Health().List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "anthropic", recs[0].Provider)
	assert.Equal(t, "google", recs[1].Provider)
	assert.Equal(t, "openai", recs[2].Provider)
}

func testRejectsEmptyProvider(t *testing.T, open Opener) {
	s := open(t, fixedConfig())
	_, err := s.Health().UpdateHealth(context.Background(), health.Outcome{})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func testConcurrentUpdates(t *testing.T, open Opener) {
	ctx := context.Background()
	s := open(t, fixedConfig())
	hs := s.Health()

	const workers, perWorker = 4, 5
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWorker {
				_, err := hs.UpdateHealth(ctx, health.Outcome{
					Provider: "google",
					Error:    fmt.Sprintf("worker %d attempt %d", w, i),
				})
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := hs.Get(ctx, []string{"google"})
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker), got["google"].TotalFailures)
	assert.Equal(t, health.StatusUnhealthy, got["google"].Status)
}

func testJobLog(t *testing.T, open Opener) {
	ctx := context.Background()
	s := open(t, fixedConfig())
	jl := s.Jobs()

	entries := []*store.JobEntry{
		{ID: "job-1", JobType: "extract_text", Provider: "google", Success: true, LatencyMs: 800, Cost: 0.0012, Attempts: 1},
		{ID: "job-2", JobType: "analyze_content", Provider: "anthropic", Success: true, LatencyMs: 1500, Cost: 0.03, Attempts: 1},
		{ID: "job-3", JobType: "extract_text", Success: false, Attempts: 3, Error: "all providers failed"},
		{ID: "job-4", JobType: "extract_text", Provider: "openai", Success: true, LatencyMs: 950, Cost: 0.02, Attempts: 2},
	}
	for i, e := range entries {
		e.CreatedAt = Epoch.Add(time.Duration(i) * time.Second)
		require.NoError(t, jl.Append(ctx, e))
	}

	all, err := jl.Query(ctx, store.JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "job-4", all[0].ID, "newest first")
	assert.Equal(t, "job-1", all[3].ID)
	assert.True(t, all[3].CreatedAt.Equal(Epoch))
	assert.InDelta(t, 0.0012, all[3].Cost, 1e-9)

	failed := all[1]
	assert.Equal(t, "job-3", failed.ID)
	assert.False(t, failed.Success)
	assert.Empty(t, failed.Provider)
	assert.Equal(t, 3, failed.Attempts)
	assert.Equal(t, "all providers failed", failed.Error)

	extracts, err := jl.Query(ctx, store.JobFilter{JobType: "extract_text", Limit: 2})
	require.NoError(t, err)
	require.Len(t, extracts, 2)
	assert.Equal(t, "job-4", extracts[0].ID)
	assert.Equal(t, "job-3", extracts[1].ID)

	byProvider, err := jl.Query(ctx, store.JobFilter{Provider: "anthropic"})
	require.NoError(t, err)
	require.Len(t, byProvider, 1)
	assert.Equal(t, "analyze_content", byProvider[0].JobType)

	assert.Error(t, jl.Append(ctx, &store.JobEntry{}))
}
