package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
)

func strAttr(k, v string) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: k, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: v}}}
}

func intAttrKV(k string, v int64) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: k, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: v}}}
}

func doubleAttrKV(k string, v float64) *commonpb.KeyValue {
	return &commonpb.KeyValue{Key: k, Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_DoubleValue{DoubleValue: v}}}
}

func TestBridge_ExportNormalizesAPIRequestEvent(t *testing.T) {
	var got []Event
	b := New(func(_ context.Context, e Event) error {
		got = append(got, e)
		return nil
	}, nil)

	req := &collogspb.ExportLogsServiceRequest{
		ResourceLogs: []*logspb.ResourceLogs{
			{
				Resource: &resourcepb.Resource{Attributes: []*commonpb.KeyValue{
					strAttr("service.name", "claude-code"),
					strAttr("service.version", "1.2.3"),
				}},
				ScopeLogs: []*logspb.ScopeLogs{
					{
						LogRecords: []*logspb.LogRecord{
							{
								EventName: "claude_code.api_request",
								Attributes: []*commonpb.KeyValue{
									strAttr("session_id", "s1"),
									strAttr("model", "claude-x"),
									intAttrKV("input_tokens", 100),
									intAttrKV("output_tokens", 50),
									doubleAttrKV("cost_usd", 0.02),
									intAttrKV("duration_ms", 1200),
									intAttrKV("status_code", 200),
								},
							},
						},
					},
				},
			},
		},
	}

	_, err := b.Export(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, got, 1)

	ev := got[0]
	assert.Equal(t, EventAPIRequest, ev.Name)
	assert.Equal(t, "s1", ev.SessionID)
	assert.Equal(t, "claude-code", ev.ServiceName)
	assert.EqualValues(t, 100, ev.InputTokens)
	assert.EqualValues(t, 50, ev.OutputTokens)
	assert.InDelta(t, 0.02, ev.CostUSD, 0.0001)
	assert.False(t, ev.CostEstimated)
}

func TestBridge_SkipsRecordsWithNoEventName(t *testing.T) {
	var got []Event
	b := New(func(_ context.Context, e Event) error {
		got = append(got, e)
		return nil
	}, nil)

	req := &collogspb.ExportLogsServiceRequest{
		ResourceLogs: []*logspb.ResourceLogs{
			{ScopeLogs: []*logspb.ScopeLogs{{LogRecords: []*logspb.LogRecord{{}}}}},
		},
	}
	_, err := b.Export(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBridge_MissingCostMarksEstimated(t *testing.T) {
	var got []Event
	b := New(func(_ context.Context, e Event) error {
		got = append(got, e)
		return nil
	}, nil)

	req := &collogspb.ExportLogsServiceRequest{
		ResourceLogs: []*logspb.ResourceLogs{
			{ScopeLogs: []*logspb.ScopeLogs{{LogRecords: []*logspb.LogRecord{
				{EventName: "claude_code.api_error"},
			}}}},
		},
	}
	_, err := b.Export(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].CostEstimated)
}
