// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/contextcleaner/contextcleaner/internal/breaker"
	"github.com/contextcleaner/contextcleaner/internal/logging"
)

// HealthStatus is one sample's classification (spec §4.6.4).
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthFailing  HealthStatus = "failing"
	HealthUnknown  HealthStatus = "unknown"
)

// HealthBandMS is the response-time threshold X used to classify a
// sample (spec §4.6.4 "healthy < X, degraded < 2X, else failing").
const HealthBandMS = 200

// Classify buckets a probe's response time (latencyMS < 0 means the
// probe failed to respond at all).
func Classify(latencyMS int64, ok bool) HealthStatus {
	if !ok {
		return HealthFailing
	}
	switch {
	case latencyMS < HealthBandMS:
		return HealthHealthy
	case latencyMS < 2*HealthBandMS:
		return HealthDegraded
	default:
		return HealthFailing
	}
}

// healthFailureThreshold is the "three consecutive failings" trip point
// from spec §4.6.4.
const healthFailureThreshold = 3

// ServiceHealth tracks one service's rolling classification and the
// breaker that gates its restarts.
type ServiceHealth struct {
	Name    ServiceName
	Breaker *breaker.Breaker

	mu               sync.Mutex
	last             HealthStatus
	consecutiveFails int
	terminal         bool // escalated past repeated restart failures
}

// NewServiceHealth constructs a tracker whose breaker trips after three
// consecutive failing samples and attempts recovery after recoveryTimeout
// (spec §4.6.4).
func NewServiceHealth(name ServiceName, recoveryTimeout time.Duration, log *logging.Logger) *ServiceHealth {
	b := breaker.New(breaker.Config{
		Name:             string(name),
		FailureThreshold: healthFailureThreshold,
		RecoveryTimeout:  recoveryTimeout,
	})
	return &ServiceHealth{Name: name, Breaker: b, last: HealthUnknown}
}

// Record ingests one classified sample and reports the updated status.
func (h *ServiceHealth) Record(status HealthStatus) HealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = status
	if status == HealthFailing {
		h.consecutiveFails++
	} else {
		h.consecutiveFails = 0
	}
	return status
}

// Status returns the most recently recorded classification.
func (h *ServiceHealth) Status() HealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// Terminal reports whether this service has escalated past repeated
// restart failures and should no longer be auto-restarted (spec §4.6.4
// "escalate to a failing terminal state that is surfaced but not
// infinitely retried").
func (h *ServiceHealth) Terminal() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminal
}

// MarkTerminal flags the service as no longer eligible for automatic
// restart, called once the breaker's own retry budget (spec §4.1) has
// been exhausted by the orchestrator's restart loop.
func (h *ServiceHealth) MarkTerminal() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.terminal = true
}

// Monitor polls every service in graph with probe every interval until
// ctx is cancelled, recording samples and invoking onUnhealthy whenever a
// service's breaker is open and not yet terminal (the orchestrator's
// restart trigger).
type Monitor struct {
	services map[ServiceName]*ServiceHealth
	probe    func(ctx context.Context, name ServiceName) (latencyMS int64, ok bool)
	interval time.Duration
	log      *logging.Logger

	onUnhealthy func(name ServiceName)
}

// NewMonitor constructs a Monitor over names, each backed by its own
// ServiceHealth.
func NewMonitor(names []ServiceName, recoveryTimeout, interval time.Duration, probe func(ctx context.Context, name ServiceName) (int64, bool), log *logging.Logger) *Monitor {
	if log == nil {
		log = logging.Default()
	}
	services := make(map[ServiceName]*ServiceHealth, len(names))
	for _, n := range names {
		services[n] = NewServiceHealth(n, recoveryTimeout, log)
	}
	return &Monitor{services: services, probe: probe, interval: interval, log: log.With("component", "health_monitor")}
}

// OnUnhealthy registers a callback invoked once per service the instant
// its breaker trips open.
func (m *Monitor) OnUnhealthy(fn func(name ServiceName)) { m.onUnhealthy = fn }

// Health returns the tracker for name, if monitored.
func (m *Monitor) Health(name ServiceName) (*ServiceHealth, bool) {
	h, ok := m.services[name]
	return h, ok
}

// Run polls every service every m.interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollOnce(ctx)
		}
	}
}

func (m *Monitor) pollOnce(ctx context.Context) {
	for name, h := range m.services {
		if h.Terminal() {
			continue
		}
		latencyMS, ok := m.probe(ctx, name)
		status := Classify(latencyMS, ok)
		h.Record(status)

		wasClosed := h.Breaker.Snapshot().State != breaker.Open
		_ = h.Breaker.Execute(func() error {
			if status == HealthFailing {
				return errFailingSample
			}
			return nil
		})
		if wasClosed && h.Breaker.Snapshot().State == breaker.Open {
			m.log.Warn("orchestrator: service breaker tripped open", "service", name)
			if m.onUnhealthy != nil {
				m.onUnhealthy(name)
			}
		}
	}
}

var errFailingSample = failingSampleError{}

type failingSampleError struct{}

func (failingSampleError) Error() string { return "orchestrator: health sample failing" }
