// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/contextcleaner/contextcleaner/internal/state"
)

// Disposition is the adoption decision for one registry entry (spec
// §4.6.3).
type Disposition string

const (
	DispositionAdopt   Disposition = "adopt"
	DispositionRestart Disposition = "restart"
	DispositionStart   Disposition = "start"
)

// Prober checks whether a running service answers its health endpoint.
// Swapped out in tests.
type Prober func(ctx context.Context, rec state.ServiceRecord) bool

// HTTPProber builds a Prober issuing a GET against
// "http://127.0.0.1:<port>/healthz" with timeout.
func HTTPProber(timeout time.Duration) Prober {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context, rec state.ServiceRecord) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthzURL(rec.Port), nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}
}

func healthzURL(port int) string {
	return "http://127.0.0.1:" + strconv.Itoa(port) + "/healthz"
}

// processAlive reports whether pid names a live OS process (spec §4.6.3
// "process alive"). On POSIX this is signal 0, which checks existence and
// permission without affecting the target process.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Decide implements the per-entry adoption rule (spec §4.6.3):
//
//   - process alive and responsive  -> adopt (do not restart)
//   - process alive but unresponsive -> terminate and restart
//   - process absent                 -> start fresh
func Decide(ctx context.Context, rec state.ServiceRecord, hasRecord bool, probe Prober) Disposition {
	if !hasRecord || !processAlive(rec.PID) {
		return DispositionStart
	}
	if probe(ctx, rec) {
		return DispositionAdopt
	}
	return DispositionRestart
}

// Terminate sends SIGTERM to pid, giving a grace window before SIGKILL
// (spec §4.6.5 "grace window ... escalates to a forced kill"). pid is not
// necessarily a child of this process (an adopted or crashed prior
// instance isn't), so exit is observed by polling liveness rather than
// Wait, which only reaps this process's own children.
func Terminate(pid int, grace time.Duration) error {
	if !processAlive(pid) {
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if !processAlive(pid) {
			return nil
		}
		return err
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	if !processAlive(pid) {
		return nil
	}
	return proc.Signal(syscall.SIGKILL)
}
