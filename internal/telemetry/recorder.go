// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/relay-dev/relay/internal/store"
	relayerr "github.com/relay-dev/relay/pkg/errors"
	"github.com/relay-dev/relay/pkg/health"
)

const meterName = "github.com/relay-dev/relay/internal/telemetry"

// Recorder is the write side of the health contract. The router hands it
// every attempt outcome and every finished job.
//
// Store failures are logged and counted, never returned: a job that reached a
// provider must not fail because its bookkeeping could not be written.
type Recorder struct {
	health store.HealthStore
	jobs   store.JobLog
	logger *slog.Logger
	now    func() time.Time
	meter  metric.Meter

	attempts   metric.Int64Counter
	latency    metric.Float64Histogram
	jobsTotal  metric.Int64Counter
	cost       metric.Float64Counter
	writeFails metric.Int64Counter
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithMeter sets the meter instruments are created from. The global meter
// provider is used otherwise.
func WithMeter(m metric.Meter) Option {
	return func(r *Recorder) { r.meter = m }
}

// WithLogger sets the logger. slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// WithClock overrides the time source used for job timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a Recorder writing to hs and jl. jl may be nil, in
// which case jobs are only logged and counted.
func NewRecorder(hs store.HealthStore, jl store.JobLog, opts ...Option) (*Recorder, error) {
	if hs == nil {
		return nil, relayerr.New(relayerr.CodeServerConfigInvalid, "telemetry recorder requires a health store")
	}

	r := &Recorder{health: hs, jobs: jl}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.meter == nil {
		r.meter = otel.Meter(meterName)
	}

	if err := r.initInstruments(); err != nil {
		return nil, relayerr.Wrapf(err, relayerr.CodeServerConfigInvalid, "creating telemetry instruments")
	}
	return r, nil
}

func (r *Recorder) initInstruments() error {
	var err error

	r.attempts, err = r.meter.Int64Counter(
		"relay.provider.attempts",
		metric.WithDescription("Provider attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return err
	}

	r.latency, err = r.meter.Float64Histogram(
		"relay.provider.latency",
		metric.WithDescription("Wall-clock latency of provider attempts"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	r.jobsTotal, err = r.meter.Int64Counter(
		"relay.jobs",
		metric.WithDescription("Routed jobs by type and outcome"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return err
	}

	r.cost, err = r.meter.Float64Counter(
		"relay.jobs.cost",
		metric.WithDescription("Estimated cost of successful jobs"),
	)
	if err != nil {
		return err
	}

	r.writeFails, err = r.meter.Int64Counter(
		"relay.telemetry.write_failures",
		metric.WithDescription("Health or job log writes that failed"),
		metric.WithUnit("{write}"),
	)
	return err
}

// RecordAttempt folds one attempt outcome into the health store.
func (r *Recorder) RecordAttempt(ctx context.Context, o health.Outcome) {
	kvs := []attribute.KeyValue{
		attribute.String("provider", o.Provider),
		attribute.String("outcome", outcomeLabel(o.Success)),
	}
	if !o.Success {
		kind := o.Kind
		if kind == "" {
			kind = relayerr.KindUnexpected
		}
		kvs = append(kvs, attribute.String("error_kind", kind))
	}
	attrs := metric.WithAttributes(kvs...)
	r.attempts.Add(ctx, 1, attrs)
	r.latency.Record(ctx, float64(o.LatencyMs), attrs)

	rec, err := r.health.UpdateHealth(ctx, o)
	if err != nil {
		r.writeFails.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "health")))
		r.logger.Error("health update failed",
			"provider", o.Provider,
			"success", o.Success,
			"error", err)
		return
	}

	if rec.Status != health.StatusHealthy {
		r.logger.Warn("provider health changed",
			"provider", rec.Provider,
			"status", rec.Status,
			"consecutive_failures", rec.ConsecutiveFailures,
			"cooldown_until", rec.CooldownUntil)
	}
}

// RecordJob appends a finished job to the job log. A missing ID or
// timestamp is filled in.
func (r *Recorder) RecordJob(ctx context.Context, e store.JobEntry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}

	r.jobsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_type", e.JobType),
		attribute.String("outcome", outcomeLabel(e.Success)),
	))
	if e.Success {
		r.cost.Add(ctx, e.Cost, metric.WithAttributes(attribute.String("provider", e.Provider)))
	}

	if r.jobs == nil {
		return
	}
	if err := r.jobs.Append(ctx, &e); err != nil {
		r.writeFails.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "job")))
		r.logger.Error("job log append failed",
			"job_id", e.ID,
			"job_type", e.JobType,
			"error", err)
	}
}

func outcomeLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
