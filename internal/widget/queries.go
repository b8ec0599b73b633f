// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package widget

import (
	"context"
	"fmt"

	"github.com/contextcleaner/contextcleaner/internal/store"
)

// QuerySet binds every widget kind's SQL template against a Client,
// producing the Generator funcs registered with a Manager (spec §4.5.1
// "Each kind has: a SQL template ... and a transform into a
// widget-specific payload").
type QuerySet struct {
	Client store.Client
}

// RegisterAll binds every closed-set kind plus session_summary onto m.
func (q QuerySet) RegisterAll(m *Manager) {
	m.Register(KindErrorMonitor, q.ErrorMonitor)
	m.Register(KindCostTracker, q.CostTracker)
	m.Register(KindToolOptimizer, q.ToolOptimizer)
	m.Register(KindWorkflowPerformance, q.WorkflowPerformance)
	m.Register(KindContextRotMeter, q.ContextRotMeter)
	m.Register(KindConversationTimeline, q.ConversationTimeline)
	m.Register(KindCodePatternAnalysis, q.CodePatternAnalysis)
	m.Register(KindContentSearchWidget, q.ContentSearchPlaceholder)
	m.Register(KindJSONLProcessingStatus, q.JSONLProcessingStatus)
	m.Register(KindSessionSummary, q.SessionSummary)
}

// ErrorMonitor tallies api_error events by tool and status code over the
// last hour.
func (q QuerySet) ErrorMonitor(ctx context.Context) (any, error) {
	rows, err := q.Client.Execute(ctx, `
		SELECT tool_name, status_code, count(*) AS n
		FROM events
		WHERE name = 'claude_code.api_error' AND ts > now() - interval '1 hour'
		GROUP BY tool_name, status_code
		ORDER BY n DESC
		LIMIT 50`, nil)
	if err != nil {
		return nil, fmt.Errorf("widget: error_monitor query: %w", err)
	}
	return rows, nil
}

// CostTracker sums cost_usd by model over the last 24 hours.
func (q QuerySet) CostTracker(ctx context.Context) (any, error) {
	rows, err := q.Client.Execute(ctx, `
		SELECT model, sum(cost_usd) AS total_cost, sum(input_tokens) AS input_tokens,
		       sum(output_tokens) AS output_tokens, count(*) AS requests
		FROM events
		WHERE name = 'claude_code.api_request' AND ts > now() - interval '24 hours'
		GROUP BY model
		ORDER BY total_cost DESC`, nil)
	if err != nil {
		return nil, fmt.Errorf("widget: cost_tracker query: %w", err)
	}
	return rows, nil
}

// ToolOptimizer ranks tools by invocation count and mean duration.
func (q QuerySet) ToolOptimizer(ctx context.Context) (any, error) {
	rows, err := q.Client.Execute(ctx, `
		SELECT tool_name, count(*) AS invocations, avg(duration_ms) AS avg_duration_ms
		FROM tool_executions
		WHERE ts > now() - interval '7 days'
		GROUP BY tool_name
		ORDER BY invocations DESC
		LIMIT 20`, nil)
	if err != nil {
		return nil, fmt.Errorf("widget: tool_optimizer query: %w", err)
	}
	return rows, nil
}

// WorkflowPerformance buckets session duration and message volume by day.
func (q QuerySet) WorkflowPerformance(ctx context.Context) (any, error) {
	rows, err := q.Client.Execute(ctx, `
		SELECT date_trunc('day', ts) AS day, count(DISTINCT session_id) AS sessions,
		       count(*) AS messages
		FROM messages
		WHERE ts > now() - interval '30 days'
		GROUP BY day
		ORDER BY day`, nil)
	if err != nil {
		return nil, fmt.Errorf("widget: workflow_performance query: %w", err)
	}
	return rows, nil
}

// ContextRotMeter estimates conversation-length-to-assistant-error
// correlation (spec's "context rot" concept): it buckets messages by
// position-in-session and reports the error rate observed at each bucket.
func (q QuerySet) ContextRotMeter(ctx context.Context) (any, error) {
	rows, err := q.Client.Execute(ctx, `
		SELECT width_bucket(seq_in_session, 0, 200, 20) AS position_bucket,
		       avg(CASE WHEN is_error THEN 1.0 ELSE 0.0 END) AS error_rate,
		       count(*) AS n
		FROM messages
		WHERE ts > now() - interval '30 days'
		GROUP BY position_bucket
		ORDER BY position_bucket`, nil)
	if err != nil {
		return nil, fmt.Errorf("widget: context_rot_meter query: %w", err)
	}
	return rows, nil
}

// ConversationTimeline returns the most recent sessions with their
// message counts and span.
func (q QuerySet) ConversationTimeline(ctx context.Context) (any, error) {
	rows, err := q.Client.Execute(ctx, `
		SELECT session_id, min(ts) AS started_at, max(ts) AS last_seen,
		       count(*) AS messages
		FROM messages
		GROUP BY session_id
		ORDER BY last_seen DESC
		LIMIT 25`, nil)
	if err != nil {
		return nil, fmt.Errorf("widget: conversation_timeline query: %w", err)
	}
	return rows, nil
}

// CodePatternAnalysis aggregates file-access language/extension
// distribution over the last 30 days.
func (q QuerySet) CodePatternAnalysis(ctx context.Context) (any, error) {
	rows, err := q.Client.Execute(ctx, `
		SELECT language, operation, count(*) AS n
		FROM file_accesses
		WHERE ts > now() - interval '30 days'
		GROUP BY language, operation
		ORDER BY n DESC
		LIMIT 50`, nil)
	if err != nil {
		return nil, fmt.Errorf("widget: code_pattern_analysis query: %w", err)
	}
	return rows, nil
}

// ContentSearchPlaceholder serves the widget's static shape; the actual
// search terms arrive per-request through the data-explorer gateway
// rather than a fixed SQL template, so the cached snapshot only reports
// the indexed row count (spec §4.5.1 "a small composition of SQL
// queries").
func (q QuerySet) ContentSearchPlaceholder(ctx context.Context) (any, error) {
	rows, err := q.Client.Execute(ctx, `SELECT count(*) AS indexed_messages FROM messages`, nil)
	if err != nil {
		return nil, fmt.Errorf("widget: content_search_widget query: %w", err)
	}
	return rows, nil
}

// JSONLProcessingStatus summarizes ingest throughput: files touched and
// records ingested in the last hour.
func (q QuerySet) JSONLProcessingStatus(ctx context.Context) (any, error) {
	rows, err := q.Client.Execute(ctx, `
		SELECT count(DISTINCT source_file) AS files_touched, count(*) AS records_ingested
		FROM messages
		WHERE ts > now() - interval '1 hour'`, nil)
	if err != nil {
		return nil, fmt.Errorf("widget: jsonl_processing_status query: %w", err)
	}
	return rows, nil
}

// SessionSummary rolls up total cost, tokens, and file touches across
// every session (supplemented widget, SPEC_FULL §12).
func (q QuerySet) SessionSummary(ctx context.Context) (any, error) {
	rows, err := q.Client.Execute(ctx, `
		SELECT session_id, sum(cost_usd) AS total_cost,
		       sum(input_tokens) + sum(output_tokens) AS total_tokens,
		       count(DISTINCT source_file) AS files_touched,
		       max(ts) - min(ts) AS duration
		FROM events
		WHERE name = 'claude_code.api_request'
		GROUP BY session_id
		ORDER BY max(ts) DESC
		LIMIT 25`, nil)
	if err != nil {
		return nil, fmt.Errorf("widget: session_summary query: %w", err)
	}
	return rows, nil
}
