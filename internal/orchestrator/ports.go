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
	"net"

	"github.com/contextcleaner/contextcleaner/internal/metrics"
	"github.com/contextcleaner/contextcleaner/internal/state"
)

// PortRange bounds candidate ports (spec §4.6.2, config.Config
// PortRangeLow/PortRangeHigh).
type PortRange struct {
	Low, High int
}

// probeBind reports whether port is currently free on the host. Swapped
// out in tests so the port registry's conflict logic can be exercised
// without binding real sockets.
var probeBind = func(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

// ReservePort implements spec §4.6.2: a service is assigned the lowest
// port in r not already held by another registry entry and not currently
// bound on the host. On conflict it rebinds to the next free candidate.
func ReservePort(reg *state.Registry, name string, pid int, version string, r PortRange) (state.ServiceRecord, error) {
	return reg.ReserveCandidatePort(func(held map[int]bool) (state.ServiceRecord, error) {
		for p := r.Low; p <= r.High; p++ {
			if held[p] {
				metrics.PortConflictResolved(context.Background())
				continue
			}
			if !probeBind(p) {
				metrics.PortConflictResolved(context.Background())
				continue
			}
			return state.ServiceRecord{Name: name, PID: pid, Port: p, Version: version}, nil
		}
		return state.ServiceRecord{}, fmt.Errorf("orchestrator: no free port for %q in [%d, %d]", name, r.Low, r.High)
	})
}
