// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package metrics wires Context Cleaner's process-level counters into a
// Prometheus-scraped OTel SDK MeterProvider (spec §11): batches flushed,
// breaker trips, widget cache hit rate, and port conflicts resolved,
// exposed on the orchestrator's /metrics endpoint. Instrument
// registration follows the teacher's `dag` package lazy-Once pattern
// (`meter.Int64Counter(name, metric.WithDescription(...))`); Setup itself
// has no teacher precedent (the teacher only ever consumes an externally
// injected provider) and is grounded on the OTel SDK's own documented
// MeterProvider/TracerProvider construction instead.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var meter = otel.Meter("contextcleaner/metrics")

var (
	instrumentsOnce sync.Once
	batchesFlushed  metric.Int64Counter
	breakerTrips    metric.Int64Counter
	widgetCacheHit  metric.Int64Counter
	widgetCacheMiss metric.Int64Counter
	portConflicts   metric.Int64Counter
	serviceRestarts metric.Int64Counter
)

// initInstruments lazily registers every instrument against whatever
// MeterProvider is globally current at first use. Safe to call from
// every recorder below; errors are swallowed per the teacher's
// graceful-degradation stance (a nil instrument's Add is a guarded no-op).
func initInstruments() {
	instrumentsOnce.Do(func() {
		batchesFlushed, _ = meter.Int64Counter("contextcleaner_batches_flushed_total",
			metric.WithDescription("Bulk-insert batches flushed to the analytic store"))
		breakerTrips, _ = meter.Int64Counter("contextcleaner_breaker_trips_total",
			metric.WithDescription("Circuit breaker transitions into the open state"))
		widgetCacheHit, _ = meter.Int64Counter("contextcleaner_widget_cache_hits_total",
			metric.WithDescription("Widget Get() calls served from a fresh cached snapshot"))
		widgetCacheMiss, _ = meter.Int64Counter("contextcleaner_widget_cache_misses_total",
			metric.WithDescription("Widget Get() calls that recomputed their snapshot"))
		portConflicts, _ = meter.Int64Counter("contextcleaner_port_conflicts_resolved_total",
			metric.WithDescription("Port candidates skipped by ReservePort because they were already held or bound"))
		serviceRestarts, _ = meter.Int64Counter("contextcleaner_service_restarts_total",
			metric.WithDescription("Orchestrator-initiated service restarts, by service"))
	})
}

// BatchFlushed records rows flushed to table.
func BatchFlushed(ctx context.Context, table string, rows int) {
	initInstruments()
	if batchesFlushed == nil || rows <= 0 {
		return
	}
	batchesFlushed.Add(ctx, int64(rows), metric.WithAttributes(attribute.String("table", table)))
}

// BreakerTripped records one breaker transitioning to the open state.
func BreakerTripped(ctx context.Context, name string) {
	initInstruments()
	if breakerTrips == nil {
		return
	}
	breakerTrips.Add(ctx, 1, metric.WithAttributes(attribute.String("breaker", name)))
}

// WidgetCacheHit records a Get() served from the TTL cache without
// recomputation.
func WidgetCacheHit(ctx context.Context, kind string) {
	initInstruments()
	if widgetCacheHit == nil {
		return
	}
	widgetCacheHit.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// WidgetCacheMiss records a Get() that recomputed its snapshot.
func WidgetCacheMiss(ctx context.Context, kind string) {
	initInstruments()
	if widgetCacheMiss == nil {
		return
	}
	widgetCacheMiss.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// PortConflictResolved records one already-held or already-bound port
// candidate ReservePort skipped before landing on a free one.
func PortConflictResolved(ctx context.Context) {
	initInstruments()
	if portConflicts == nil {
		return
	}
	portConflicts.Add(ctx, 1)
}

// ServiceRestarted records the orchestrator restarting service, whether
// from a failed health probe or an adoption-time unresponsive process.
func ServiceRestarted(ctx context.Context, service string) {
	initInstruments()
	if serviceRestarts == nil {
		return
	}
	serviceRestarts.Add(ctx, 1, metric.WithAttributes(attribute.String("service", service)))
}

// Provider owns whichever global providers Setup constructed, for
// shutdown.
type Provider struct {
	mp *sdkmetric.MeterProvider
	tp *sdktrace.TracerProvider // nil unless otlpEndpoint was non-empty
}

// Setup registers a Prometheus-backed MeterProvider as the process-wide
// default (serviced by Handler below), and, when otlpEndpoint is
// non-empty, a TracerProvider that re-exports this process's own spans
// over OTLP/gRPC to the same collector address the telemetry bridge
// receives the agent's feed on (spec §6, §11 "Outbound re-export of
// ingest-pipeline spans").
func Setup(ctx context.Context, serviceName, otlpEndpoint string) (*Provider, error) {
	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", serviceName)))
	if err != nil {
		return nil, fmt.Errorf("metrics: building resource: %w", err)
	}

	exp, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("metrics: building prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)
	initInstruments()

	p := &Provider{mp: mp}

	if otlpEndpoint != "" {
		texp, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(otlpEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("metrics: building trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(texp), sdktrace.WithResource(res))
		otel.SetTracerProvider(tp)
		p.tp = tp
	}

	return p, nil
}

// Handler serves the Prometheus text exposition format for the
// MeterProvider Setup registered.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Shutdown flushes and closes whichever providers Setup constructed.
func (p *Provider) Shutdown(ctx context.Context) error {
	var err error
	if p.tp != nil {
		if e := p.tp.Shutdown(ctx); e != nil {
			err = e
		}
	}
	if p.mp != nil {
		if e := p.mp.Shutdown(ctx); e != nil && err == nil {
			err = e
		}
	}
	return err
}
