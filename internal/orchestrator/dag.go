// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator implements the Service Orchestrator (spec §4.6): a
// small build-time dependency DAG over the system's own services, a port
// registry, process adoption on startup, health monitoring gated by
// per-service circuit breakers, and graceful shutdown in reverse
// topological order.
package orchestrator

import "fmt"

// ServiceName identifies one node in the dependency graph (spec §4.6.1).
type ServiceName string

// Canonical service set (spec §4.6.1).
const (
	ServiceStore           ServiceName = "store"
	ServiceTelemetryFeed   ServiceName = "telemetry_feed"
	ServiceIngestWorker    ServiceName = "ingest_worker"
	ServiceMigrationEngine ServiceName = "migration_engine"
	ServiceBridge          ServiceName = "bridge"
	ServiceDashboardAPI    ServiceName = "dashboard_api"
)

// ServiceSpec declares one node of the build-time DAG: its dependencies
// and whether it runs continuously or only on demand.
type ServiceSpec struct {
	Name      ServiceName
	DependsOn []ServiceName
	// OnDemand services (migration_engine) are declared in the graph for
	// ordering purposes but are not started by Orchestrator.Start; they
	// are invoked directly by their caller (spec §4.6.1 "invoked on
	// demand, not always running").
	OnDemand bool
}

// DefaultGraph is the canonical dependency set from spec §4.6.1.
func DefaultGraph() []ServiceSpec {
	return []ServiceSpec{
		{Name: ServiceStore},
		{Name: ServiceTelemetryFeed, DependsOn: []ServiceName{ServiceStore}},
		{Name: ServiceIngestWorker, DependsOn: []ServiceName{ServiceStore, ServiceTelemetryFeed}},
		{Name: ServiceMigrationEngine, DependsOn: []ServiceName{ServiceStore}, OnDemand: true},
		{Name: ServiceBridge, DependsOn: []ServiceName{ServiceStore, ServiceTelemetryFeed}},
		{Name: ServiceDashboardAPI, DependsOn: []ServiceName{ServiceBridge}},
	}
}

// Graph is a resolved dependency DAG over a ServiceSpec set.
type Graph struct {
	specs map[ServiceName]ServiceSpec
	order []ServiceName // topological order, computed once at construction
}

// NewGraph validates specs (no unknown dependency, no cycle) and returns
// a Graph with its startup order precomputed.
func NewGraph(specs []ServiceSpec) (*Graph, error) {
	byName := make(map[ServiceName]ServiceSpec, len(specs))
	for _, s := range specs {
		if _, dup := byName[s.Name]; dup {
			return nil, fmt.Errorf("orchestrator: duplicate service %q", s.Name)
		}
		byName[s.Name] = s
	}
	for _, s := range specs {
		for _, dep := range s.DependsOn {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("orchestrator: %q depends on undeclared service %q", s.Name, dep)
			}
		}
	}

	order, err := topoSort(specs, byName)
	if err != nil {
		return nil, err
	}
	return &Graph{specs: byName, order: order}, nil
}

// StartupOrder returns services in dependency-first order.
func (g *Graph) StartupOrder() []ServiceName {
	out := make([]ServiceName, len(g.order))
	copy(out, g.order)
	return out
}

// ShutdownOrder returns services in reverse startup order (spec §4.6.5
// "stop() walks services in reverse topological order").
func (g *Graph) ShutdownOrder() []ServiceName {
	startup := g.StartupOrder()
	out := make([]ServiceName, len(startup))
	for i, n := range startup {
		out[len(startup)-1-i] = n
	}
	return out
}

// Spec returns the declared spec for name.
func (g *Graph) Spec(name ServiceName) (ServiceSpec, bool) {
	s, ok := g.specs[name]
	return s, ok
}

// topoSort visits nodes in declaration order (declared, the original
// slice) so that runs over the same ServiceSpec set always produce the
// same startup order, even though specs (the lookup map) does not
// preserve it.
func topoSort(declared []ServiceSpec, specs map[ServiceName]ServiceSpec) ([]ServiceName, error) {
	const (
		gray  = 1
		black = 2
	)
	color := make(map[ServiceName]int, len(specs))
	var order []ServiceName

	var visit func(n ServiceName) error
	visit = func(n ServiceName) error {
		switch color[n] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("orchestrator: dependency cycle detected at %q", n)
		}
		color[n] = gray
		for _, dep := range specs[n].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[n] = black
		order = append(order, n)
		return nil
	}

	for _, s := range declared {
		if err := visit(s.Name); err != nil {
			return nil, err
		}
	}
	return order, nil
}
