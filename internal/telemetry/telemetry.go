// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package telemetry implements the Telemetry Bridge's OTLP-gRPC ingress
// (spec §6 "Telemetry feed (consumed)"): a logs-service receiver that
// normalizes the agent's event stream into session/cost/error events for
// the widget manager.
package telemetry

import (
	"context"
	"fmt"
	"net"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	"google.golang.org/grpc"

	"github.com/contextcleaner/contextcleaner/internal/logging"
)

var tracer = otel.Tracer("contextcleaner/telemetry")

// EventName is one of the agent's well-known log event names (spec §6).
type EventName string

const (
	EventAPIRequest  EventName = "claude_code.api_request"
	EventToolDecision EventName = "claude_code.tool_decision"
	EventAPIError    EventName = "claude_code.api_error"
)

// Event is a normalized telemetry record, attribute maps flattened into Go
// values for downstream consumers (cost tracker, error monitor, tool
// optimizer widgets).
type Event struct {
	Name          EventName
	SessionID     string
	ToolName      string
	Model         string
	InputTokens   int64
	OutputTokens  int64
	CostUSD       float64
	CostEstimated bool
	DurationMS    int64
	StatusCode    int64
	ServiceName   string
	ServiceVersion string
	Attributes    map[string]any
}

// Sink receives every normalized Event. Returning an error only logs; it
// never aborts the gRPC stream (a malformed or unsinkable event must not
// take down ingestion of the rest of the feed).
type Sink func(context.Context, Event) error

// Bridge is a gRPC LogsServiceServer that normalizes incoming OTLP log
// export requests into Events and hands them to a Sink.
type Bridge struct {
	collogspb.UnimplementedLogsServiceServer
	sink Sink
	log  *logging.Logger
}

// New constructs a Bridge delivering normalized events to sink.
func New(sink Sink, log *logging.Logger) *Bridge {
	if log == nil {
		log = logging.Default()
	}
	return &Bridge{sink: sink, log: log.With("component", "telemetry_bridge")}
}

// Export implements collogspb.LogsServiceServer: it is the fixed ingress point
// the agent's OTLP exporter calls (spec §6 "OTLP-gRPC at 127.0.0.1:4317").
func (b *Bridge) Export(ctx context.Context, req *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	ctx, span := tracer.Start(ctx, "telemetry.Export",
		oteltrace.WithAttributes(attribute.Int("telemetry.resource_logs", len(req.GetResourceLogs()))),
	)
	defer span.End()

	var normalized, rejected int
	for _, rl := range req.GetResourceLogs() {
		resAttrs := attrsToMap(rl.GetResource().GetAttributes())
		serviceName, _ := resAttrs["service.name"].(string)
		serviceVersion, _ := resAttrs["service.version"].(string)

		for _, sl := range rl.GetScopeLogs() {
			for _, rec := range sl.GetLogRecords() {
				ev := normalize(rec, serviceName, serviceVersion)
				if ev.Name == "" {
					continue
				}
				normalized++
				if err := b.sink(ctx, ev); err != nil {
					rejected++
					b.log.Warn("telemetry: sink rejected event", "event", ev.Name, "error", err)
				}
			}
		}
	}

	span.SetAttributes(
		attribute.Int("telemetry.events_normalized", normalized),
		attribute.Int("telemetry.events_rejected", rejected),
	)
	if rejected > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d events rejected by sink", rejected, normalized))
	}
	return &collogspb.ExportLogsServiceResponse{}, nil
}

// normalize flattens one LogRecord's attribute map into an Event,
// preferring the record's structured EventName field and falling back to
// an "event.name" attribute for older exporter versions.
func normalize(rec *logspb.LogRecord, serviceName, serviceVersion string) Event {
	attrs := attrsToMap(rec.GetAttributes())

	name := EventName(rec.GetEventName())
	if name == "" {
		if v, ok := attrs["event.name"].(string); ok {
			name = EventName(v)
		}
	}

	ev := Event{
		Name:           name,
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Attributes:     attrs,
	}
	if v, ok := attrs["session.id"].(string); ok {
		ev.SessionID = v
	} else if v, ok := attrs["session_id"].(string); ok {
		ev.SessionID = v
	}
	if v, ok := attrs["tool_name"].(string); ok {
		ev.ToolName = v
	} else if v, ok := attrs["tool.name"].(string); ok {
		ev.ToolName = v
	}
	if v, ok := attrs["model"].(string); ok {
		ev.Model = v
	}
	ev.InputTokens = intAttr(attrs, "input_tokens", "tokens.input")
	ev.OutputTokens = intAttr(attrs, "output_tokens", "tokens.output")
	ev.DurationMS = intAttr(attrs, "duration_ms", "duration.ms")
	ev.StatusCode = intAttr(attrs, "status_code", "status.code")

	if cost, ok := floatAttr(attrs, "cost_usd"); ok {
		ev.CostUSD = cost
	} else {
		ev.CostEstimated = true
	}
	return ev
}

func intAttr(attrs map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := attrs[k].(type) {
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}

func floatAttr(attrs map[string]any, key string) (float64, bool) {
	switch v := attrs[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func attrsToMap(kvs []*commonpb.KeyValue) map[string]any {
	out := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		out[kv.GetKey()] = anyValue(kv.GetValue())
	}
	return out
}

func anyValue(v *commonpb.AnyValue) any {
	if v == nil {
		return nil
	}
	switch {
	case v.GetStringValue() != "":
		return v.GetStringValue()
	case v.GetIntValue() != 0:
		return v.GetIntValue()
	case v.GetDoubleValue() != 0:
		return v.GetDoubleValue()
	case v.GetBoolValue():
		return v.GetBoolValue()
	default:
		return nil
	}
}

// Serve runs the gRPC server on addr (default "127.0.0.1:4317") until ctx
// is cancelled.
func (b *Bridge) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		addr = "127.0.0.1:4317"
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("telemetry: listening on %s: %w", addr, err)
	}

	srv := grpc.NewServer()
	collogspb.RegisterLogsServiceServer(srv, b)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()

	select {
	case <-ctx.Done():
		srv.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}
