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
	"time"

	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, store reachability, and registered services",
	Long: `Validates configuration, probes the analytic store, and reports every
service currently recorded in the local IPC registry — a quick sanity
check before running "serve" or "migrate".`,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return fmt.Errorf("doctor: %w", err)
	}
	defer a.close()

	fmt.Printf("config: data_dir=%s projects_dir=%s privacy_level=%s port_range=%d-%d\n",
		a.cfg.DataDir, a.cfg.ProjectsDir, a.cfg.PrivacyLevel, a.cfg.PortRangeLow, a.cfg.PortRangeHigh)

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	if a.store.IsStub() {
		fmt.Println("store: disabled (stub client)")
	} else {
		status, err := a.store.HealthCheck(ctx)
		if err != nil {
			fmt.Printf("store: UNREACHABLE (%v)\n", err)
		} else {
			fmt.Printf("store: ok=%v latency_ms=%d version=%q\n", status.OK, status.LatencyMS, status.Version)
		}
	}

	recs, err := a.registry.List()
	if err != nil {
		return fmt.Errorf("doctor: listing registry: %w", err)
	}
	if len(recs) == 0 {
		fmt.Println("registry: no services currently recorded")
		return nil
	}
	for _, rec := range recs {
		fmt.Printf("registry: %-16s pid=%-8d port=%-6d started=%s\n",
			rec.Name, rec.PID, rec.Port, rec.StartedAt.Format(time.RFC3339))
	}
	return nil
}
