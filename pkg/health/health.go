// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

// Package health defines the provider health model shared by the router,
// the telemetry recorder and every health store backend.
package health

import (
	"strings"
	"time"
)

// Status is the coarse health classification of a provider.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusHealthy, StatusDegraded, StatusUnhealthy:
		return true
	}
	return false
}

// ParseStatus converts a stored status string. Unknown values read as healthy
// so that a corrupt row never blocks routing.
func ParseStatus(raw string) Status {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return StatusHealthy
	}
	return s
}

// Record is the persisted health row for one provider.
//
// CooldownUntil is only meaningful while Status is unhealthy.
type Record struct {
	Provider            string     `json:"provider" yaml:"provider"`
	Status              Status     `json:"status" yaml:"status"`
	CooldownUntil       *time.Time `json:"cooldown_until,omitempty" yaml:"cooldown_until,omitempty"`
	LastLatencyMs       int64      `json:"last_latency_ms" yaml:"last_latency_ms"`
	LastError           string     `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	ConsecutiveFailures int64      `json:"consecutive_failures" yaml:"consecutive_failures"`
	TotalFailures       int64      `json:"total_failures" yaml:"total_failures"`
	TotalSuccesses      int64      `json:"total_successes" yaml:"total_successes"`
	UpdatedAt           time.Time  `json:"updated_at" yaml:"updated_at"`
}

// Healthy returns the record a provider has before anything is known about it.
func Healthy(provider string) Record {
	return Record{Provider: provider, Status: StatusHealthy}
}

// InCooldown reports whether the provider must be skipped at time now.
// It is evaluated against the supplied clock on every call.
func (r Record) InCooldown(now time.Time) bool {
	return r.Status == StatusUnhealthy && r.CooldownUntil != nil && r.CooldownUntil.After(now)
}

// Outcome is one attempt reported back to the health store.
type Outcome struct {
	Provider  string
	Success   bool
	LatencyMs int64
	Error     string
	// Kind labels a failure (transport, upstream, ...). Empty on success.
	Kind string
}
