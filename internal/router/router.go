// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

// Package router sends each job to the first eligible provider in a fixed
// per-job-type order, failing over sequentially until one succeeds.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"time"

	"github.com/relay-dev/relay/internal/provider"
	"github.com/relay-dev/relay/internal/store"
	relayerr "github.com/relay-dev/relay/pkg/errors"
	"github.com/relay-dev/relay/pkg/health"
)

// HealthReader is the read side of the health store.
type HealthReader interface {
	Get(ctx context.Context, providers []string) (map[string]health.Record, error)
}

// Recorder receives every attempt outcome and every finished job.
// Implementations must not fail the job; they report their own errors.
type Recorder interface {
	RecordAttempt(ctx context.Context, o health.Outcome)
	RecordJob(ctx context.Context, e store.JobEntry)
}

// AdapterSource resolves provider names to adapters.
type AdapterSource interface {
	Get(name string) (provider.Adapter, error)
}

// Config holds the Router's dependencies.
type Config struct {
	Orders   Orders
	Adapters AdapterSource
	Health   HealthReader
	Recorder Recorder
	Logger   *slog.Logger
	Now      func() time.Time
}

// Router orders, filters and attempts providers for a job.
type Router struct {
	orders   Orders
	adapters AdapterSource
	health   HealthReader
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Router. A nil Orders uses DefaultOrders.
func New(cfg Config) (*Router, error) {
	if cfg.Adapters == nil {
		return nil, relayerr.New(relayerr.CodeServerConfigInvalid, "router requires an adapter source")
	}
	if cfg.Health == nil {
		return nil, relayerr.New(relayerr.CodeServerConfigInvalid, "router requires a health reader")
	}
	if cfg.Recorder == nil {
		return nil, relayerr.New(relayerr.CodeServerConfigInvalid, "router requires a recorder")
	}

	orders := cfg.Orders
	if orders == nil {
		orders = DefaultOrders()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Router{
		orders:   orders.Clone(),
		adapters: cfg.Adapters,
		health:   cfg.Health,
		recorder: cfg.Recorder,
		logger:   logger,
		now:      now,
	}, nil
}

// Order returns the configured priority list for t.
func (r *Router) Order(t JobType) []string {
	return slices.Clone(r.orders[t])
}

// Candidates returns the providers eligible for t, in configured order.
// A provider is dropped only while it is unhealthy with a cooldown still in
// the future; a provider with no stored record counts as healthy.
func (r *Router) Candidates(ctx context.Context, t JobType) ([]string, error) {
	if !t.Valid() {
		return nil, relayerr.New(relayerr.CodeRouterRequestInvalid,
			fmt.Sprintf("unknown job type %q", t), relayerr.FieldJobType(string(t)))
	}

	order := r.orders[t]
	if len(order) == 0 {
		return nil, nil
	}

	records, err := r.health.Get(ctx, order)
	if err != nil {
		return nil, relayerr.Wrap(err, relayerr.CodeRouterHealthReadFailure, "loading provider health",
			relayerr.FieldJobType(string(t)))
	}

	now := r.now()
	out := make([]string, 0, len(order))
	for _, name := range order {
		if rec, ok := records[name]; ok && rec.InCooldown(now) {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

// Submit runs job against its eligible providers one at a time and returns
// the first success. Attempt failures are recorded and skipped; only
// router.routing.no_providers and router.routing.exhausted (plus invalid
// jobs and health read failures) reach the caller.
func (r *Router) Submit(ctx context.Context, job Job) (*Result, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	candidates, err := r.Candidates(ctx, job.Type)
	if err != nil {
		return nil, err
	}

	jobType := string(job.Type)
	if len(candidates) == 0 {
		r.logger.Error("no healthy providers", "job_type", jobType)
		r.recorder.RecordJob(ctx, store.JobEntry{
			JobType: jobType,
			Error:   "no healthy providers",
		})
		return nil, relayerr.New(relayerr.CodeRouterNoProviders, "no healthy providers",
			relayerr.FieldJobType(jobType))
	}

	var lastErr error
	for i, name := range candidates {
		output, latency, err := r.attempt(ctx, name, job)
		if err != nil {
			lastErr = err
			kind := relayerr.AttemptKind(err)
			r.recorder.RecordAttempt(ctx, health.Outcome{
				Provider:  name,
				Success:   false,
				LatencyMs: latency,
				Error:     err.Error(),
				Kind:      kind,
			})
			level := slog.LevelWarn
			if kind == relayerr.KindUnexpected {
				level = slog.LevelError
			}
			r.logger.Log(ctx, level, "provider attempt failed",
				"provider", name,
				"job_type", jobType,
				"latency_ms", latency,
				"error_kind", kind,
				"error", err)
			continue
		}

		r.recorder.RecordAttempt(ctx, health.Outcome{Provider: name, Success: true, LatencyMs: latency})

		res := &Result{
			Output:    output,
			Provider:  name,
			LatencyMs: latency,
			Cost:      provider.EstimateCost(name, len(output)),
			Attempts:  i + 1,
		}
		r.logger.Debug("provider attempt succeeded",
			"provider", name,
			"job_type", jobType,
			"latency_ms", latency,
			"attempts", res.Attempts)
		r.recorder.RecordJob(ctx, store.JobEntry{
			JobType:   jobType,
			Provider:  name,
			Success:   true,
			LatencyMs: latency,
			Cost:      res.Cost,
			Attempts:  res.Attempts,
		})
		return res, nil
	}

	last := lastErr.Error()
	r.logger.Error("all providers failed",
		"job_type", jobType,
		"attempts", len(candidates),
		"last_error", last)
	r.recorder.RecordJob(ctx, store.JobEntry{
		JobType:  jobType,
		Provider: candidates[len(candidates)-1],
		Attempts: len(candidates),
		Error:    last,
	})
	return nil, relayerr.New(relayerr.CodeRouterExhausted, "all providers failed",
		relayerr.FieldJobType(jobType),
		relayerr.FieldLastError(last),
		relayerr.Field("attempts", len(candidates)))
}

// attempt makes one provider call and returns its output and wall-clock
// latency in milliseconds. A panicking adapter is reported as a transport
// failure.
func (r *Router) attempt(ctx context.Context, name string, job Job) (output string, latencyMs int64, err error) {
	adapter, err := r.adapters.Get(name)
	if err != nil {
		return "", 0, provider.ConfigurationError(name, "no adapter registered")
	}

	start := r.now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("provider adapter panic recovered",
				"provider", name,
				"panic", rec,
				"stack", string(debug.Stack()))
			output = ""
			err = provider.TransportError(name, fmt.Errorf("adapter panic: %v", rec))
		}
		latencyMs = r.now().Sub(start).Milliseconds()
	}()

	switch job.Type {
	case JobExtractText:
		output, err = adapter.Extract(ctx, *job.Extract)
	case JobAnalyzeContent:
		output, err = adapter.Analyze(ctx, *job.Analyze)
	}
	return output, latencyMs, err
}
