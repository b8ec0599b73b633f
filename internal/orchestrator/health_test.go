package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_BandsByLatency(t *testing.T) {
	assert.Equal(t, HealthHealthy, Classify(50, true))
	assert.Equal(t, HealthDegraded, Classify(250, true))
	assert.Equal(t, HealthFailing, Classify(500, true))
	assert.Equal(t, HealthFailing, Classify(0, false))
}

func TestMonitor_TripsBreakerAfterThreeConsecutiveFailures(t *testing.T) {
	var tripped []ServiceName
	probe := func(context.Context, ServiceName) (int64, bool) { return 0, false }

	m := NewMonitor([]ServiceName{ServiceStore}, time.Minute, time.Millisecond, probe, nil)
	m.OnUnhealthy(func(name ServiceName) { tripped = append(tripped, name) })

	for i := 0; i < 3; i++ {
		m.pollOnce(context.Background())
	}

	assert.Contains(t, tripped, ServiceStore)
	h, ok := m.Health(ServiceStore)
	require.True(t, ok)
	assert.Equal(t, HealthFailing, h.Status())
}

func TestMonitor_SkipsTerminalServices(t *testing.T) {
	calls := 0
	probe := func(context.Context, ServiceName) (int64, bool) {
		calls++
		return 0, true
	}
	m := NewMonitor([]ServiceName{ServiceStore}, time.Minute, time.Millisecond, probe, nil)
	h, _ := m.Health(ServiceStore)
	h.MarkTerminal()

	m.pollOnce(context.Background())
	assert.Equal(t, 0, calls)
}
