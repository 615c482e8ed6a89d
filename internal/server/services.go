// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package server

import (
	"context"
	"slices"
	"time"

	"github.com/relay-dev/relay/internal/router"
	"github.com/relay-dev/relay/internal/store"
	relayerr "github.com/relay-dev/relay/pkg/errors"
	"github.com/relay-dev/relay/pkg/health"
)

// JobRouter runs jobs. *router.Router satisfies it.
type JobRouter interface {
	Submit(ctx context.Context, job router.Job) (*router.Result, error)
}

// HealthReader exposes stored provider health.
type HealthReader interface {
	Get(ctx context.Context, providers []string) (map[string]health.Record, error)
}

// JobReader reads the job log.
type JobReader interface {
	Query(ctx context.Context, filter store.JobFilter) ([]*store.JobEntry, error)
}

// Services holds dependencies injected into route handlers.
// Each field is an interface so subsystems can be mocked in tests.
type Services struct {
	router    JobRouter
	health    HealthReader
	jobs      JobReader // optional; nil = job log endpoint returns an empty list
	providers []string
	now       func() time.Time
}

// NewServices creates a Services instance with validation. providers is the
// set of configured provider names reported by the health endpoints.
func NewServices(r JobRouter, h HealthReader, jobs JobReader, providers []string) (*Services, error) {
	if r == nil {
		return nil, relayerr.New(relayerr.CodeServerConfigInvalid, "job router is required")
	}
	if h == nil {
		return nil, relayerr.New(relayerr.CodeServerConfigInvalid, "health reader is required")
	}

	names := slices.Clone(providers)
	slices.Sort(names)
	names = slices.Compact(names)

	return &Services{
		router:    r,
		health:    h,
		jobs:      jobs,
		providers: names,
		now:       time.Now,
	}, nil
}

// WithClock overrides the time used to compute in_cooldown.
func (s *Services) WithClock(now func() time.Time) *Services {
	s.now = now
	return s
}

// ProviderHealthDetail is the API view of one provider's health.
type ProviderHealthDetail struct {
	Provider            string     `json:"provider" yaml:"provider" doc:"Provider name"`
	Status              string     `json:"status" yaml:"status" enum:"healthy,degraded,unhealthy" doc:"Health status"`
	InCooldown          bool       `json:"in_cooldown" yaml:"in_cooldown" doc:"Whether the router currently skips this provider"`
	CooldownUntil       *time.Time `json:"cooldown_until,omitempty" yaml:"cooldown_until,omitempty" doc:"End of the current cooldown"`
	LastLatencyMs       int64      `json:"last_latency_ms" yaml:"last_latency_ms"`
	LastError           string     `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	ConsecutiveFailures int64      `json:"consecutive_failures" yaml:"consecutive_failures"`
	TotalFailures       int64      `json:"total_failures" yaml:"total_failures"`
	TotalSuccesses      int64      `json:"total_successes" yaml:"total_successes"`
	UpdatedAt           *time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

func (s *Services) providerHealth(ctx context.Context, names []string) ([]ProviderHealthDetail, error) {
	records, err := s.health.Get(ctx, names)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]ProviderHealthDetail, 0, len(names))
	for _, name := range names {
		rec, ok := records[name]
		if !ok {
			rec = health.Healthy(name)
		}
		out = append(out, NewProviderHealthDetail(rec, now))
	}
	return out, nil
}

func (s *Services) knows(name string) bool {
	_, found := slices.BinarySearch(s.providers, name)
	return found
}

// NewProviderHealthDetail builds the view of rec as of now.
func NewProviderHealthDetail(rec health.Record, now time.Time) ProviderHealthDetail {
	d := ProviderHealthDetail{
		Provider:            rec.Provider,
		Status:              string(rec.Status),
		InCooldown:          rec.InCooldown(now),
		LastLatencyMs:       rec.LastLatencyMs,
		LastError:           rec.LastError,
		ConsecutiveFailures: rec.ConsecutiveFailures,
		TotalFailures:       rec.TotalFailures,
		TotalSuccesses:      rec.TotalSuccesses,
	}
	if rec.Status == health.StatusUnhealthy && rec.CooldownUntil != nil {
		t := *rec.CooldownUntil
		d.CooldownUntil = &t
	}
	if !rec.UpdatedAt.IsZero() {
		t := rec.UpdatedAt
		d.UpdatedAt = &t
	}
	return d
}
