package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexOf(names []ServiceName, n ServiceName) int {
	for i, x := range names {
		if x == n {
			return i
		}
	}
	return -1
}

func TestNewGraph_StartupOrderRespectsDependencies(t *testing.T) {
	g, err := NewGraph(DefaultGraph())
	require.NoError(t, err)

	order := g.StartupOrder()
	assert.Less(t, indexOf(order, ServiceStore), indexOf(order, ServiceTelemetryFeed))
	assert.Less(t, indexOf(order, ServiceTelemetryFeed), indexOf(order, ServiceIngestWorker))
	assert.Less(t, indexOf(order, ServiceBridge), indexOf(order, ServiceDashboardAPI))
}

func TestNewGraph_ShutdownOrderIsExactReverseOfStartup(t *testing.T) {
	g, err := NewGraph(DefaultGraph())
	require.NoError(t, err)

	startup := g.StartupOrder()
	shutdown := g.ShutdownOrder()
	require.Len(t, shutdown, len(startup))
	for i := range startup {
		assert.Equal(t, startup[i], shutdown[len(shutdown)-1-i])
	}
}

func TestNewGraph_RejectsUndeclaredDependency(t *testing.T) {
	_, err := NewGraph([]ServiceSpec{
		{Name: ServiceIngestWorker, DependsOn: []ServiceName{"nonexistent"}},
	})
	assert.Error(t, err)
}

func TestNewGraph_RejectsCycle(t *testing.T) {
	_, err := NewGraph([]ServiceSpec{
		{Name: "a", DependsOn: []ServiceName{"b"}},
		{Name: "b", DependsOn: []ServiceName{"a"}},
	})
	assert.Error(t, err)
}

func TestNewGraph_RejectsDuplicateService(t *testing.T) {
	_, err := NewGraph([]ServiceSpec{
		{Name: ServiceStore},
		{Name: ServiceStore},
	})
	assert.Error(t, err)
}

func TestNewGraph_OrderIsDeterministicAcrossCalls(t *testing.T) {
	g1, err := NewGraph(DefaultGraph())
	require.NoError(t, err)
	g2, err := NewGraph(DefaultGraph())
	require.NoError(t, err)
	assert.Equal(t, g1.StartupOrder(), g2.StartupOrder())
}
