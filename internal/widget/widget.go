// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package widget implements the Telemetry Bridge & Widget Manager (spec
// §4.5): the closed set of dashboard widgets, their per-kind TTL cache,
// service-availability detection, and the data-explorer SQL gateway.
package widget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/contextcleaner/contextcleaner/internal/logging"
	"github.com/contextcleaner/contextcleaner/internal/metrics"
	"github.com/contextcleaner/contextcleaner/internal/model"
	"github.com/contextcleaner/contextcleaner/internal/store"
)

var tracer = otel.Tracer("contextcleaner/widget")

// Kind is one member of the closed widget-kind set (spec §4.5.1).
type Kind string

const (
	KindErrorMonitor          Kind = "error_monitor"
	KindCostTracker           Kind = "cost_tracker"
	KindToolOptimizer         Kind = "tool_optimizer"
	KindWorkflowPerformance   Kind = "workflow_performance"
	KindContextRotMeter       Kind = "context_rot_meter"
	KindConversationTimeline  Kind = "conversation_timeline"
	KindCodePatternAnalysis   Kind = "code_pattern_analysis"
	KindContentSearchWidget   Kind = "content_search_widget"
	KindJSONLProcessingStatus Kind = "jsonl_processing_status"

	// KindSessionSummary supplements the spec's closed set with a
	// per-session rollup (see SPEC_FULL §12): token totals, cost, file
	// touch count, and duration in one panel.
	KindSessionSummary Kind = "session_summary"
)

// counterTTL and analyticalTTL are the two default TTL tiers (spec
// §4.5.1).
const (
	counterTTL    = 30 * time.Second
	analyticalTTL = 60 * time.Second
)

// defaultTTLs maps each Kind to its default TTL tier.
var defaultTTLs = map[Kind]time.Duration{
	KindErrorMonitor:          counterTTL,
	KindCostTracker:           counterTTL,
	KindJSONLProcessingStatus: counterTTL,
	KindToolOptimizer:         analyticalTTL,
	KindWorkflowPerformance:   analyticalTTL,
	KindContextRotMeter:       analyticalTTL,
	KindConversationTimeline:  analyticalTTL,
	KindCodePatternAnalysis:   analyticalTTL,
	KindContentSearchWidget:   analyticalTTL,
	KindSessionSummary:        analyticalTTL,
}

// Titles are the human-facing panel names; Service-Availability Detection
// appends " (Demo)" when any dependency is stubbed (spec §4.5.3).
var titles = map[Kind]string{
	KindErrorMonitor:          "Error Monitor",
	KindCostTracker:           "Cost Tracker",
	KindToolOptimizer:         "Tool Optimizer",
	KindWorkflowPerformance:   "Workflow Performance",
	KindContextRotMeter:       "Context Rot Meter",
	KindConversationTimeline:  "Conversation Timeline",
	KindCodePatternAnalysis:   "Code Pattern Analysis",
	KindContentSearchWidget:   "Content Search",
	KindJSONLProcessingStatus: "JSONL Processing Status",
	KindSessionSummary:        "Session Summary",
}

// Generator computes a fresh payload for one widget kind.
type Generator func(ctx context.Context) (any, error)

// Dependencies reports, per external dependency, whether the bound
// implementation is a stub (spec §4.5.3).
type Dependencies struct {
	Store            store.Client
	TelemetryStubbed bool
	FileStateStubbed bool
}

func (d Dependencies) anyStubbed() bool {
	return (d.Store != nil && d.Store.IsStub()) || d.TelemetryStubbed || d.FileStateStubbed
}

func (d Dependencies) snapshot() map[string]bool {
	storeStub := d.Store == nil || d.Store.IsStub()
	return map[string]bool{
		"store":      !storeStub,
		"telemetry":  !d.TelemetryStubbed,
		"file_state": !d.FileStateStubbed,
	}
}

// Manager owns the widget cache, the registered generators, and the
// freshness tracker (spec §4.5.2, §4.5.5).
type Manager struct {
	mu         sync.Mutex
	snapshots  map[Kind]model.WidgetSnapshot
	generators map[Kind]Generator
	deps       Dependencies
	log        *logging.Logger
	onUpdate   func(Kind, model.WidgetSnapshot)
}

// OnUpdate registers fn to be called, outside the lock, every time Get
// computes (not falls back to) a fresh snapshot. The dashboard_api role
// wires this to the websocket Hub's Broadcast so subscribers get pushed
// invalidation instead of having to poll (spec §11 push-channel row).
func (m *Manager) OnUpdate(fn func(Kind, model.WidgetSnapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// NewManager constructs an empty Manager; generators are registered with
// Register.
func NewManager(deps Dependencies, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.Default()
	}
	return &Manager{
		snapshots:  make(map[Kind]model.WidgetSnapshot),
		generators: make(map[Kind]Generator),
		deps:       deps,
		log:        log.With("component", "widget_manager"),
	}
}

// Register binds kind to gen. Called once per kind at startup.
func (m *Manager) Register(kind Kind, gen Generator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generators[kind] = gen
}

// Get serves kind's snapshot per the cache rule (spec §4.5.2): fresh if
// within TTL, else recomputed; on computation failure the previous
// snapshot is served tagged fallback (spec §4.5.2 step 3).
func (m *Manager) Get(ctx context.Context, kind Kind) (model.WidgetSnapshot, error) {
	m.mu.Lock()
	prev, hadPrev := m.snapshots[kind]
	gen, hasGen := m.generators[kind]
	m.mu.Unlock()

	if !hasGen {
		return model.WidgetSnapshot{}, fmt.Errorf("widget: no generator registered for %q", kind)
	}
	if hadPrev && prev.Fresh(time.Now()) {
		metrics.WidgetCacheHit(ctx, string(kind))
		return prev, nil
	}
	metrics.WidgetCacheMiss(ctx, string(kind))

	ctx, span := tracer.Start(ctx, "widget.generate", oteltrace.WithAttributes(attribute.String("kind", string(kind))))
	defer span.End()

	data, err := gen(ctx)
	now := time.Now()
	title := m.titleFor(kind)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if hadPrev {
			fallback := prev
			fallback.DataSource = model.DataSourceFallback
			fallback.FallbackMode = true
			fallback.FallbackReason = err.Error()
			m.log.Warn("widget: generation failed, serving cached snapshot", "kind", kind, "error", err)
			return fallback, nil
		}
		return model.WidgetSnapshot{}, fmt.Errorf("widget: generating %q: %w", kind, err)
	}

	snap := model.WidgetSnapshot{
		WidgetKind:          string(kind),
		Title:               title,
		Data:                data,
		GeneratedAt:         now,
		TTL:                 m.ttlFor(kind),
		DataSource:          model.DataSourceLive,
		ServiceAvailability: m.deps.snapshot(),
		FallbackMode:        m.deps.anyStubbed(),
	}

	m.mu.Lock()
	m.snapshots[kind] = snap
	onUpdate := m.onUpdate
	m.mu.Unlock()

	if onUpdate != nil {
		onUpdate(kind, snap)
	}
	return snap, nil
}

func (m *Manager) titleFor(kind Kind) string {
	t := titles[kind]
	if t == "" {
		t = string(kind)
	}
	if m.deps.anyStubbed() {
		t += " (Demo)"
	}
	return t
}

func (m *Manager) ttlFor(kind Kind) time.Duration {
	if ttl, ok := defaultTTLs[kind]; ok {
		return ttl
	}
	return analyticalTTL
}

// ClearCache drops every cached snapshot, forcing a fresh computation on
// the next Get (spec §4.5.2 "A global operation clears all entries", and
// §4.5.5 clear_cache()).
func (m *Manager) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = make(map[Kind]model.WidgetSnapshot)
}

// FreshnessReport aggregates per-widget freshness across every cached
// entry, plus the current service-availability map (spec §4.5.5
// freshness_report()).
type FreshnessReport struct {
	Widgets  map[Kind]WidgetFreshness
	Services map[string]bool
}

// WidgetFreshness is one widget's entry in a FreshnessReport.
type WidgetFreshness struct {
	LastGenerated time.Time
	TTL           time.Duration
	DataSource    model.DataSource
	Stale         bool
}

// FreshnessReport computes the current report (spec §4.5.5).
func (m *Manager) FreshnessReportNow() FreshnessReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := FreshnessReport{Widgets: make(map[Kind]WidgetFreshness), Services: m.deps.snapshot()}
	now := time.Now()
	for kind, snap := range m.snapshots {
		out.Widgets[kind] = WidgetFreshness{
			LastGenerated: snap.GeneratedAt,
			TTL:           snap.TTL,
			DataSource:    snap.DataSource,
			Stale:         !snap.Fresh(now),
		}
	}
	return out
}

// HealthRollup is the stuck/zeroed widget summary (spec §4.5.5
// widget_health()).
type HealthRollup struct {
	Total        int
	Stuck        []Kind // cached entries stale for more than 5x their TTL
	FallbackOnly []Kind // every computation since startup has fallen back
}

// WidgetHealth computes a rollup across every registered widget kind,
// regardless of whether it has been requested yet (spec §4.5.5).
func (m *Manager) WidgetHealth() HealthRollup {
	m.mu.Lock()
	defer m.mu.Unlock()

	rollup := HealthRollup{Total: len(m.generators)}
	now := time.Now()
	for kind := range m.generators {
		snap, ok := m.snapshots[kind]
		if !ok {
			continue
		}
		if now.Sub(snap.GeneratedAt) > 5*snap.TTL {
			rollup.Stuck = append(rollup.Stuck, kind)
		}
		if snap.FallbackMode && snap.DataSource == model.DataSourceFallback {
			rollup.FallbackOnly = append(rollup.FallbackOnly, kind)
		}
	}
	return rollup
}
