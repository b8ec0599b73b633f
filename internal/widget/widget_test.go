package widget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextcleaner/contextcleaner/internal/store"
)

type fakeStoreClient struct {
	store.Client
	stub bool
}

func (f *fakeStoreClient) IsStub() bool { return f.stub }

func TestManager_ServesFreshThenCachedWithinTTL(t *testing.T) {
	calls := 0
	m := NewManager(Dependencies{Store: &fakeStoreClient{}}, nil)
	m.Register(KindCostTracker, func(context.Context) (any, error) {
		calls++
		return calls, nil
	})

	snap1, err := m.Get(context.Background(), KindCostTracker)
	require.NoError(t, err)
	assert.Equal(t, 1, snap1.Data)

	snap2, err := m.Get(context.Background(), KindCostTracker)
	require.NoError(t, err)
	assert.Equal(t, 1, snap2.Data, "second call within TTL must be served from cache")
	assert.Equal(t, 1, calls)
}

func TestManager_FallsBackToPreviousSnapshotOnError(t *testing.T) {
	fail := false
	m := NewManager(Dependencies{Store: &fakeStoreClient{}}, nil)
	m.Register(KindErrorMonitor, func(context.Context) (any, error) {
		if fail {
			return nil, errors.New("store unreachable")
		}
		return "ok", nil
	})

	first, err := m.Get(context.Background(), KindErrorMonitor)
	require.NoError(t, err)
	assert.Equal(t, "ok", first.Data)

	m.ClearCache()
	fail = true

	second, err := m.Get(context.Background(), KindErrorMonitor)
	require.NoError(t, err)
	assert.Equal(t, "ok", second.Data, "must serve the previous snapshot on failure")
	assert.True(t, second.FallbackMode)
	assert.Equal(t, "store unreachable", second.FallbackReason)
}

func TestManager_TitleSuffixedDemoWhenStoreStubbed(t *testing.T) {
	m := NewManager(Dependencies{Store: &fakeStoreClient{stub: true}}, nil)
	m.Register(KindCostTracker, func(context.Context) (any, error) { return 1, nil })

	snap, err := m.Get(context.Background(), KindCostTracker)
	require.NoError(t, err)
	assert.Contains(t, snap.Title, "(Demo)")
	assert.True(t, snap.FallbackMode)
	assert.False(t, snap.ServiceAvailability["store"])
}

func TestManager_ClearCacheForcesRecomputation(t *testing.T) {
	calls := 0
	m := NewManager(Dependencies{Store: &fakeStoreClient{}}, nil)
	m.Register(KindCostTracker, func(context.Context) (any, error) {
		calls++
		return calls, nil
	})

	_, err := m.Get(context.Background(), KindCostTracker)
	require.NoError(t, err)
	m.ClearCache()
	snap, err := m.Get(context.Background(), KindCostTracker)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Data)
	assert.Equal(t, 2, calls)
}

func TestManager_WidgetHealthFlagsStuckEntries(t *testing.T) {
	m := NewManager(Dependencies{Store: &fakeStoreClient{}}, nil)
	m.Register(KindCostTracker, func(context.Context) (any, error) { return 1, nil })
	_, err := m.Get(context.Background(), KindCostTracker)
	require.NoError(t, err)

	m.mu.Lock()
	snap := m.snapshots[KindCostTracker]
	snap.GeneratedAt = time.Now().Add(-10 * time.Minute)
	snap.TTL = time.Second
	m.snapshots[KindCostTracker] = snap
	m.mu.Unlock()

	rollup := m.WidgetHealth()
	assert.Contains(t, rollup.Stuck, KindCostTracker)
}

func TestManager_FreshnessReportIncludesServiceMap(t *testing.T) {
	m := NewManager(Dependencies{Store: &fakeStoreClient{}, TelemetryStubbed: true}, nil)
	m.Register(KindCostTracker, func(context.Context) (any, error) { return 1, nil })
	_, err := m.Get(context.Background(), KindCostTracker)
	require.NoError(t, err)

	report := m.FreshnessReportNow()
	assert.False(t, report.Services["telemetry"])
	assert.Contains(t, report.Widgets, KindCostTracker)
}
