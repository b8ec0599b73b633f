package orchestrator

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextcleaner/contextcleaner/internal/state"
)

type fakeRunnable struct {
	mu      sync.Mutex
	starts  int
	nextPID int
}

// fakeRunnable.Start returns PIDs far outside any real process range so
// Terminate's signal calls in these tests are guaranteed no-ops (ESRCH)
// rather than touching an unrelated live process.
func (f *fakeRunnable) Start(context.Context, int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.nextPID++
	return 9_000_000 + f.nextPID, nil
}

func newTestGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := NewGraph([]ServiceSpec{
		{Name: ServiceStore},
		{Name: ServiceTelemetryFeed, DependsOn: []ServiceName{ServiceStore}},
	})
	require.NoError(t, err)
	return g
}

func TestOrchestrator_StartLaunchesServicesInTopologicalOrderAndPublishesRegistry(t *testing.T) {
	reg := openTestRegistry(t)
	graph := newTestGraph(t)

	old := probeBind
	probeBind = func(int) bool { return true }
	defer func() { probeBind = old }()

	storeRunnable := &fakeRunnable{}
	feedRunnable := &fakeRunnable{}

	o := New(graph, Options{
		Registry:  reg,
		PortRange: PortRange{Low: 9500, High: 9510},
		Probe:     func(context.Context, state.ServiceRecord) bool { return false },
	})
	o.Register(ServiceStore, storeRunnable)
	o.Register(ServiceTelemetryFeed, feedRunnable)

	require.NoError(t, o.Start(context.Background()))
	defer func() { _ = o.Stop(context.Background()) }()

	assert.Equal(t, 1, storeRunnable.starts)
	assert.Equal(t, 1, feedRunnable.starts)

	_, ok := reg.Get(string(ServiceStore))
	assert.True(t, ok)
	_, ok = reg.Get(string(ServiceTelemetryFeed))
	assert.True(t, ok)
}

func TestOrchestrator_StopRemovesRegistryEntries(t *testing.T) {
	reg := openTestRegistry(t)
	graph := newTestGraph(t)

	old := probeBind
	probeBind = func(int) bool { return true }
	defer func() { probeBind = old }()

	o := New(graph, Options{
		Registry:    reg,
		PortRange:   PortRange{Low: 9600, High: 9610},
		GraceWindow: 50 * time.Millisecond,
		Probe:       func(context.Context, state.ServiceRecord) bool { return false },
	})
	o.Register(ServiceStore, &fakeRunnable{})
	o.Register(ServiceTelemetryFeed, &fakeRunnable{})

	require.NoError(t, o.Start(context.Background()))
	require.NoError(t, o.Stop(context.Background()))

	_, ok := reg.Get(string(ServiceStore))
	assert.False(t, ok)
}

func TestOrchestrator_AdoptsAliveAndResponsiveService(t *testing.T) {
	reg := openTestRegistry(t)
	graph := newTestGraph(t)

	old := probeBind
	probeBind = func(int) bool { return true }
	defer func() { probeBind = old }()

	require.NoError(t, reg.Publish(state.ServiceRecord{Name: string(ServiceStore), PID: os.Getpid(), Port: 9700}))

	storeRunnable := &fakeRunnable{}
	o := New(graph, Options{
		Registry:  reg,
		PortRange: PortRange{Low: 9700, High: 9710},
		Probe:     func(context.Context, state.ServiceRecord) bool { return true },
	})
	o.Register(ServiceStore, storeRunnable)
	o.Register(ServiceTelemetryFeed, &fakeRunnable{})

	require.NoError(t, o.Start(context.Background()))
	defer func() { _ = o.Stop(context.Background()) }()

	assert.Equal(t, 0, storeRunnable.starts, "an adopted service must not be relaunched")
}
