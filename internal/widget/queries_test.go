package widget

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextcleaner/contextcleaner/internal/store"
)

func TestQuerySet_RegisterAllBindsEveryClosedSetKind(t *testing.T) {
	client := &queryingClient{rows: []store.Row{{"n": 1}}}
	m := NewManager(Dependencies{Store: client}, nil)
	QuerySet{Client: client}.RegisterAll(m)

	for _, kind := range []Kind{
		KindErrorMonitor, KindCostTracker, KindToolOptimizer, KindWorkflowPerformance,
		KindContextRotMeter, KindConversationTimeline, KindCodePatternAnalysis,
		KindContentSearchWidget, KindJSONLProcessingStatus, KindSessionSummary,
	} {
		snap, err := m.Get(context.Background(), kind)
		require.NoError(t, err, "kind %s", kind)
		assert.NotNil(t, snap.Data)
	}
}

func TestQuerySet_PropagatesClientErrors(t *testing.T) {
	client := &queryingClient{err: assertErr{}}
	q := QuerySet{Client: client}
	_, err := q.CostTracker(context.Background())
	assert.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
