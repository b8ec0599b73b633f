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
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/contextcleaner/contextcleaner/internal/breaker"
	"github.com/contextcleaner/contextcleaner/internal/ingest/batch"
	"github.com/contextcleaner/contextcleaner/internal/ingest/tail"
	"github.com/contextcleaner/contextcleaner/internal/metrics"
	"github.com/contextcleaner/contextcleaner/internal/orchestrator"
	"github.com/contextcleaner/contextcleaner/internal/store"
	"github.com/contextcleaner/contextcleaner/internal/telemetry"
	"github.com/contextcleaner/contextcleaner/internal/widget"
)

var (
	internalRoleName string
	internalRolePort int
)

// internalRoleCmd is the hidden child entry point childProcessRunnable
// re-execs into: "contextcleaner serve internal-role --role X --port N".
// It is never invoked directly by an operator.
var internalRoleCmd = &cobra.Command{
	Use:    "internal-role",
	Hidden: true,
	RunE:   runInternalRole,
}

func init() {
	internalRoleCmd.Flags().StringVar(&internalRoleName, "role", "", "service role to run")
	internalRoleCmd.Flags().IntVar(&internalRolePort, "port", 0, "port assigned by the orchestrator")
	internalRoleCmd.MarkFlagRequired("role")
	internalRoleCmd.MarkFlagRequired("port")
}

func runInternalRole(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch orchestrator.ServiceName(internalRoleName) {
	case orchestrator.ServiceTelemetryFeed:
		return runTelemetryFeedRole(ctx, a, internalRolePort)
	case orchestrator.ServiceIngestWorker:
		return runIngestWorkerRole(ctx, a)
	case orchestrator.ServiceBridge:
		return runBridgeRole(ctx, a)
	case orchestrator.ServiceDashboardAPI:
		return runDashboardAPIRole(ctx, a, internalRolePort)
	default:
		return fmt.Errorf("internal-role: unknown role %q", internalRoleName)
	}
}

// runTelemetryFeedRole runs the OTLP log-ingestion gRPC server, bulk
// loading every normalized Event into the store (spec §4.5, "telemetry
// collector").
func runTelemetryFeedRole(ctx context.Context, a *app, port int) error {
	retry := breaker.NewRetryPolicy(breaker.New(breaker.Config{
		Name: "telemetry-feed", FailureThreshold: 3, RecoveryTimeout: 30 * time.Second,
	}))
	events := batch.NewQueue("telemetry_events",
		[]string{"name", "session_id", "tool_name", "model", "input_tokens", "output_tokens", "cost_usd", "duration_ms", "status_code"},
		a.store, retry, 5*time.Second, a.log)
	go events.Run(ctx)

	sink := func(ctx context.Context, ev telemetry.Event) error {
		return events.Add(ctx, store.Row{
			"name": string(ev.Name), "session_id": ev.SessionID, "tool_name": ev.ToolName,
			"model": ev.Model, "input_tokens": ev.InputTokens, "output_tokens": ev.OutputTokens,
			"cost_usd": ev.CostUSD, "duration_ms": ev.DurationMS, "status_code": ev.StatusCode,
		})
	}

	bridge := telemetry.New(sink, a.log)
	a.log.Info("internal-role: telemetry_feed listening", "port", port)
	return bridge.Serve(ctx, "127.0.0.1:"+strconv.Itoa(port))
}

// runIngestWorkerRole runs the same incremental tailer as the standalone
// "tail" command, as a supervised child process instead of a foreground
// command.
func runIngestWorkerRole(ctx context.Context, a *app) error {
	retry := breaker.NewRetryPolicy(breaker.New(breaker.Config{
		Name: "ingest-worker", FailureThreshold: 3, RecoveryTimeout: 30 * time.Second,
	}))
	messages := batch.NewQueue("messages", []string{"session_id", "content_text"}, a.store, retry, 5*time.Second, a.log)
	go messages.Run(ctx)

	t := tail.New(a.cursors, tailSink(messages, a.redactor, a.log), a.log)
	a.log.Info("internal-role: ingest_worker watching", "root", a.cfg.ProjectsDir)
	return t.Watch(ctx, []string{a.cfg.ProjectsDir}, 5*time.Second)
}

// runBridgeRole keeps the widget Bridge's view of dependency availability
// current: per spec §4.5.3 it decides, for each external dependency,
// whether the bound implementation is real or a stub. Reads against the
// store happen lazily, behind the breaker, from dashboard_api itself
// (spec §9 "Cyclic graphs" — the bridge reconciles read-time cycles by
// opening reads lazily rather than holding a standing connection), so
// this role's job is limited to periodic reachability logging that feeds
// the orchestrator's own health probe for the node.
func runBridgeRole(ctx context.Context, a *app) error {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		status, err := a.store.HealthCheck(ctx)
		if err != nil {
			a.log.Warn("internal-role: bridge store check failed", "error", err)
		} else {
			a.log.Info("internal-role: bridge store reachable", "latency_ms", status.LatencyMS)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// runDashboardAPIRole serves the widget JSON API and the data-explorer
// endpoint (spec §4.5.2, §4.5.4) on port.
func runDashboardAPIRole(ctx context.Context, a *app, port int) error {
	deps := widget.Dependencies{Store: a.store}
	manager := widget.NewManager(deps, a.log)
	widget.QuerySet{Client: a.store}.RegisterAll(manager)

	hub := widget.NewHub(a.log)
	manager.OnUpdate(hub.Broadcast)

	audit := func(e widget.AuditEntry) {
		a.log.Info("explorer: query", "caller", e.CallerID, "rows", e.RowCount, "ms", e.ExecutionMS, "error", e.Err)
	}
	explorer := widget.NewExplorer(a.store, a.log, audit, 5, 10)

	router := widget.NewRouter("contextcleaner-dashboard")
	router.GET("/widgets/:kind", func(c *gin.Context) {
		snap, err := manager.Get(c.Request.Context(), widget.Kind(c.Param("kind")))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, snap)
	})
	router.GET("/widgets", func(c *gin.Context) {
		c.JSON(http.StatusOK, manager.FreshnessReportNow())
	})
	router.GET("/widgets/stream", hub.HandleWS)
	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	explorer.RegisterRoutes(router, "/explorer/query")

	srv := &http.Server{Addr: "127.0.0.1:" + strconv.Itoa(port), Handler: router}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	a.log.Info("internal-role: dashboard_api listening", "port", port)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
