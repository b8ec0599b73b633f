// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/contextcleaner/contextcleaner/internal/orchestrator"
	"github.com/contextcleaner/contextcleaner/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Bring up and supervise the ingest worker, telemetry bridge, and dashboard",
	Long: `Starts the Service Orchestrator, which brings up (or adopts, if already
running from a prior invocation) the telemetry feed, ingest worker,
widget bridge, and dashboard API as child processes, port-registers
them, and monitors their health until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.AddCommand(internalRoleCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	graph, err := orchestrator.NewGraph(orchestrator.DefaultGraph())
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	o := orchestrator.New(graph, orchestrator.Options{
		Registry:  a.registry,
		PortRange: orchestrator.PortRange{Low: a.cfg.PortRangeLow, High: a.cfg.PortRangeHigh},
		Log:       a.log,
	})
	o.Register(orchestrator.ServiceStore, &storeRunnable{client: a.store})
	o.Register(orchestrator.ServiceTelemetryFeed, &childProcessRunnable{role: "telemetry_feed"})
	o.Register(orchestrator.ServiceIngestWorker, &childProcessRunnable{role: "ingest_worker"})
	o.Register(orchestrator.ServiceBridge, &childProcessRunnable{role: "bridge"})
	o.Register(orchestrator.ServiceDashboardAPI, &childProcessRunnable{role: "dashboard_api"})

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := o.Start(ctx); err != nil {
		return fmt.Errorf("serve: starting services: %w", err)
	}
	a.log.Info("serve: all services up")

	<-ctx.Done()
	a.log.Info("serve: shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	return o.Stop(stopCtx)
}

// storeRunnable treats the analytic store as an externally-owned service
// (spec §4.6.1 "provided externally, but lifecycled here when
// co-located"): it has no OS process of its own to launch, so Start only
// confirms reachability and reports a sentinel pid that Decide/Terminate
// always treat as already-exited.
type storeRunnable struct {
	client store.Client
}

func (r *storeRunnable) Start(ctx context.Context, _ int) (int, error) {
	status, err := r.client.HealthCheck(ctx)
	if err != nil {
		return 0, fmt.Errorf("store unreachable: %w", err)
	}
	if !status.OK {
		return 0, fmt.Errorf("store reported unhealthy")
	}
	return 0, nil
}

// childProcessRunnable launches this same binary, re-invoked against its
// hidden "serve internal-role" entry point with the service's name and
// assigned port, so each continuously-running service is a distinct OS
// process the orchestrator can adopt, probe, and terminate independently.
type childProcessRunnable struct {
	role string
}

func (r *childProcessRunnable) Start(ctx context.Context, port int) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}
	cmd := exec.Command(exe, "serve", "internal-role", "--role", r.role, "--port", strconv.Itoa(port))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("launching %s: %w", r.role, err)
	}
	go func() { _ = cmd.Wait() }() // reap this process's own child to avoid a zombie
	return cmd.Process.Pid, nil
}
