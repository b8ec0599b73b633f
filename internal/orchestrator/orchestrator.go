// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/contextcleaner/contextcleaner/internal/logging"
	"github.com/contextcleaner/contextcleaner/internal/metrics"
	"github.com/contextcleaner/contextcleaner/internal/state"
)

// Runnable is one managed service's lifecycle hooks. The orchestrator
// never knows what a service actually does; it only starts it (with the
// port it was assigned), probes it, and stops it.
type Runnable interface {
	// Start launches the service bound to port and returns once it is
	// listening (or returns an error). It must not block past startup.
	Start(ctx context.Context, port int) (pid int, err error)
}

// Options configures an Orchestrator.
type Options struct {
	Registry        *state.Registry
	PortRange       PortRange
	GraceWindow     time.Duration // spec §4.6.5
	HealthInterval  time.Duration // T_health, spec §4.6.4
	RecoveryTimeout time.Duration // spec §4.6.4 breaker recovery_timeout
	Probe           Prober
	Log             *logging.Logger
}

// Orchestrator runs the dependency graph's startup/shutdown sequence,
// the port registry, process adoption, and health monitoring (spec
// §4.6).
type Orchestrator struct {
	graph   *Graph
	opts    Options
	log     *logging.Logger
	monitor *Monitor

	mu       sync.Mutex
	cancel   context.CancelFunc
	running  map[ServiceName]int // name -> pid, for services this instance started or adopted
	runnable map[ServiceName]Runnable
}

// New constructs an Orchestrator over graph with opts. Unset Options
// fields take spec-stated defaults.
func New(graph *Graph, opts Options) *Orchestrator {
	if opts.GraceWindow <= 0 {
		opts.GraceWindow = 10 * time.Second
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = 5 * time.Second
	}
	if opts.RecoveryTimeout <= 0 {
		opts.RecoveryTimeout = 30 * time.Second
	}
	if opts.Probe == nil {
		opts.Probe = HTTPProber(2 * time.Second)
	}
	if opts.Log == nil {
		opts.Log = logging.Default()
	}
	return &Orchestrator{
		graph:    graph,
		opts:     opts,
		log:      opts.Log.With("component", "orchestrator"),
		running:  make(map[ServiceName]int),
		runnable: make(map[ServiceName]Runnable),
	}
}

// Register binds a Runnable implementation to name; Start will launch or
// adopt it in topological order.
func (o *Orchestrator) Register(name ServiceName, r Runnable) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runnable[name] = r
}

// Start walks the graph's startup order, adopting, restarting, or
// launching each continuously-running service per spec §4.6.3, then
// begins health monitoring. OnDemand services (migration_engine) are
// skipped — they are invoked directly by their caller.
func (o *Orchestrator) Start(ctx context.Context) error {
	order := o.graph.StartupOrder()

	var monitored []ServiceName
	for _, name := range order {
		spec, _ := o.graph.Spec(name)
		if spec.OnDemand {
			continue
		}
		if err := o.startOne(ctx, name); err != nil {
			return fmt.Errorf("orchestrator: starting %q: %w", name, err)
		}
		monitored = append(monitored, name)
	}

	o.monitor = NewMonitor(monitored, o.opts.RecoveryTimeout, o.opts.HealthInterval, o.probeOne, o.log)
	o.monitor.OnUnhealthy(o.handleUnhealthy)

	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()
	go o.monitor.Run(runCtx)

	return nil
}

func (o *Orchestrator) startOne(ctx context.Context, name ServiceName) error {
	rec, hasRecord := o.opts.Registry.Get(string(name))
	disposition := Decide(ctx, rec, hasRecord, o.opts.Probe)

	switch disposition {
	case DispositionAdopt:
		o.log.Info("orchestrator: adopting running service", "service", name, "pid", rec.PID, "port", rec.Port)
		o.mu.Lock()
		o.running[name] = rec.PID
		o.mu.Unlock()
		return nil

	case DispositionRestart:
		o.log.Warn("orchestrator: service alive but unresponsive, restarting", "service", name, "pid", rec.PID)
		metrics.ServiceRestarted(ctx, string(name))
		if err := Terminate(rec.PID, o.opts.GraceWindow); err != nil {
			o.log.Warn("orchestrator: terminate failed, proceeding to start anyway", "service", name, "error", err)
		}
		if err := o.opts.Registry.Remove(string(name)); err != nil {
			return err
		}
		return o.launch(ctx, name)

	default: // DispositionStart
		return o.launch(ctx, name)
	}
}

func (o *Orchestrator) launch(ctx context.Context, name ServiceName) error {
	o.mu.Lock()
	r, ok := o.runnable[name]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("orchestrator: no Runnable registered for %q", name)
	}

	rec, err := ReservePort(o.opts.Registry, string(name), os.Getpid(), "", o.opts.PortRange)
	if err != nil {
		return err
	}

	pid, err := r.Start(ctx, rec.Port)
	if err != nil {
		_ = o.opts.Registry.Remove(string(name))
		return err
	}
	rec.PID = pid
	rec.StartedAt = time.Now()
	if err := o.opts.Registry.Publish(rec); err != nil {
		return err
	}

	o.mu.Lock()
	o.running[name] = pid
	o.mu.Unlock()
	o.log.Info("orchestrator: started service", "service", name, "pid", pid, "port", rec.Port)
	return nil
}

func (o *Orchestrator) probeOne(ctx context.Context, name ServiceName) (int64, bool) {
	rec, ok := o.opts.Registry.Get(string(name))
	if !ok {
		return 0, false
	}
	start := time.Now()
	ok = o.opts.Probe(ctx, rec)
	return time.Since(start).Milliseconds(), ok
}

// handleUnhealthy is the Monitor's trip callback: it attempts one
// restart, escalating to a terminal state if the relaunch itself fails
// (spec §4.6.4 "repeated failures escalate to a failing terminal state").
func (o *Orchestrator) handleUnhealthy(name ServiceName) {
	o.log.Warn("orchestrator: restarting unhealthy service", "service", name)
	metrics.ServiceRestarted(context.Background(), string(name))

	o.mu.Lock()
	pid := o.running[name]
	o.mu.Unlock()

	if pid > 0 {
		_ = Terminate(pid, o.opts.GraceWindow)
	}
	_ = o.opts.Registry.Remove(string(name))

	if err := o.launch(context.Background(), name); err != nil {
		o.log.Error("orchestrator: restart failed, marking service terminal", "service", name, "error", err)
		if h, ok := o.monitor.Health(name); ok {
			h.MarkTerminal()
		}
	}
}

// Stop walks the graph's shutdown order (spec §4.6.5): each running
// service is sent a termination signal with GraceWindow to exit, the
// registry is updated before and after, and health monitoring stops.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.mu.Unlock()

	var firstErr error
	for _, name := range o.graph.ShutdownOrder() {
		o.mu.Lock()
		pid, started := o.running[name]
		o.mu.Unlock()
		if !started {
			continue
		}

		o.log.Info("orchestrator: stopping service", "service", name, "pid", pid)
		if err := Terminate(pid, o.opts.GraceWindow); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("orchestrator: stopping %q: %w", name, err)
		}
		if err := o.opts.Registry.Remove(string(name)); err != nil && firstErr == nil {
			firstErr = err
		}

		o.mu.Lock()
		delete(o.running, name)
		o.mu.Unlock()
	}
	return firstErr
}

// CancellationToken is the cooperative cancellation handle passed to long
// operations (spec §4.6.6): on Done, the holder must drain in-flight
// work, flush batches, persist cursors, and write checkpoints before
// exiting.
type CancellationToken struct {
	ctx context.Context
}

// NewCancellationToken wraps ctx for components that only need the
// Done/Err surface, not the full context.Context interface.
func NewCancellationToken(ctx context.Context) CancellationToken {
	return CancellationToken{ctx: ctx}
}

// Done returns the channel closed when cancellation is requested.
func (t CancellationToken) Done() <-chan struct{} { return t.ctx.Done() }

// Err returns the context's error once cancellation has occurred.
func (t CancellationToken) Err() error { return t.ctx.Err() }
