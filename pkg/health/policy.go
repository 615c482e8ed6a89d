// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package health

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultDegradedAfter  = 1
	DefaultUnhealthyAfter = 3
	DefaultBaseCooldown   = 30 * time.Second
	DefaultMaxCooldown    = 10 * time.Minute
)

// Policy turns a stream of outcomes into status transitions. It is owned by
// the health store; the router only ever reads Status and CooldownUntil.
type Policy struct {
	DegradedAfter  int64
	UnhealthyAfter int64
	BaseCooldown   time.Duration
	MaxCooldown    time.Duration
}

// DefaultPolicy returns the policy used when configuration leaves it unset.
func DefaultPolicy() Policy {
	return Policy{
		DegradedAfter:  DefaultDegradedAfter,
		UnhealthyAfter: DefaultUnhealthyAfter,
		BaseCooldown:   DefaultBaseCooldown,
		MaxCooldown:    DefaultMaxCooldown,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.DegradedAfter <= 0 {
		p.DegradedAfter = d.DegradedAfter
	}
	if p.UnhealthyAfter <= 0 {
		p.UnhealthyAfter = d.UnhealthyAfter
	}
	if p.UnhealthyAfter < p.DegradedAfter {
		p.UnhealthyAfter = p.DegradedAfter
	}
	if p.BaseCooldown <= 0 {
		p.BaseCooldown = d.BaseCooldown
	}
	if p.MaxCooldown < p.BaseCooldown {
		p.MaxCooldown = p.BaseCooldown
	}
	return p
}

// Apply folds an outcome into rec and returns the new record.
func (p Policy) Apply(rec Record, o Outcome, now time.Time) Record {
	p = p.normalized()

	rec.Provider = o.Provider
	rec.LastLatencyMs = o.LatencyMs
	rec.UpdatedAt = now

	if o.Success {
		rec.Status = StatusHealthy
		rec.CooldownUntil = nil
		rec.ConsecutiveFailures = 0
		rec.LastError = ""
		rec.TotalSuccesses++
		return rec
	}

	rec.ConsecutiveFailures++
	rec.TotalFailures++
	rec.LastError = o.Error

	switch {
	case rec.ConsecutiveFailures >= p.UnhealthyAfter:
		until := now.Add(p.Cooldown(rec.ConsecutiveFailures - p.UnhealthyAfter))
		rec.Status = StatusUnhealthy
		rec.CooldownUntil = &until
	case rec.ConsecutiveFailures >= p.DegradedAfter:
		rec.Status = StatusDegraded
		rec.CooldownUntil = nil
	default:
		rec.Status = StatusHealthy
		rec.CooldownUntil = nil
	}
	return rec
}

// Cooldown returns the cooldown length for the n-th failure past the
// unhealthy threshold (n = 0 is the first). It doubles from BaseCooldown and
// is capped at MaxCooldown.
func (p Policy) Cooldown(n int64) time.Duration {
	p = p.normalized()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseCooldown
	b.MaxInterval = p.MaxCooldown
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.NextBackOff()
	for i := int64(0); i < n && d < p.MaxCooldown; i++ {
		d = b.NextBackOff()
	}
	if d > p.MaxCooldown {
		d = p.MaxCooldown
	}
	return d
}
