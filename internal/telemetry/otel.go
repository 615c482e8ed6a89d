// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

// Package telemetry records provider attempts and routed jobs: health store
// writes, job log entries, structured logs and OpenTelemetry metrics.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	relayerr "github.com/relay-dev/relay/pkg/errors"
)

// DefaultExportInterval is how often metrics are pushed to the collector.
const DefaultExportInterval = 15 * time.Second

// Config controls metric export.
type Config struct {
	Enabled        bool
	OTLPEndpoint   string
	ServiceName    string
	ServiceVersion string
	Interval       time.Duration
}

// Provider owns the process meter provider.
type Provider struct {
	MeterProvider *sdkmetric.MeterProvider
	Meter         metric.Meter
}

// Setup builds the meter provider. With export disabled the returned meter
// is a no-op and nothing is installed globally.
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "relay"
	}
	if !cfg.Enabled {
		return &Provider{Meter: noop.NewMeterProvider().Meter(cfg.ServiceName)}, nil
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultExportInterval
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, relayerr.Wrapf(err, relayerr.CodeServerConfigInvalid, "building telemetry resource")
	}

	exporterOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
	if cfg.OTLPEndpoint != "" {
		exporterOpts = append(exporterOpts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint))
	}
	exporter, err := otlpmetricgrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, relayerr.Wrapf(err, relayerr.CodeServerStartFailure, "creating metric exporter")
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(cfg.Interval),
		)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return &Provider{
		MeterProvider: mp,
		Meter:         mp.Meter(cfg.ServiceName),
	}, nil
}

// Shutdown flushes and stops the meter provider, if one was started.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.MeterProvider == nil {
		return nil
	}
	return p.MeterProvider.Shutdown(ctx)
}
