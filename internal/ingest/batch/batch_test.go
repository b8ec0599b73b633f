package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextcleaner/contextcleaner/internal/breaker"
	"github.com/contextcleaner/contextcleaner/internal/store"
)

type fakeClient struct {
	store.Client
	mu      sync.Mutex
	calls   int
	failing bool
	rows    []store.Row
}

func (f *fakeClient) BulkInsert(_ context.Context, _ string, _ []string, rows []store.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failing {
		return &breaker.TransientError{Err: errors.New("boom")}
	}
	f.rows = append(f.rows, rows...)
	return nil
}

func newTestQueue(client store.Client) *Queue {
	b := breaker.New(breaker.Config{FailureThreshold: 100, RecoveryTimeout: time.Millisecond})
	retry := breaker.NewRetryPolicy(b)
	retry.MaxAttempts = 1
	return NewQueue("messages", []string{"a"}, client, retry, time.Hour, nil)
}

func TestQueue_FlushesAtAdaptedBatchSize(t *testing.T) {
	fc := &fakeClient{}
	q := newTestQueue(fc)

	for i := 0; i < startBatchSize-1; i++ {
		require.NoError(t, q.Add(context.Background(), store.Row{"i": i}))
	}
	fc.mu.Lock()
	assert.Equal(t, 0, fc.calls, "should not flush before reaching batch size")
	fc.mu.Unlock()

	require.NoError(t, q.Add(context.Background(), store.Row{"i": startBatchSize}))
	fc.mu.Lock()
	assert.Equal(t, 1, fc.calls)
	fc.mu.Unlock()
}

func TestQueue_ShrinksOnLowSuccessRate(t *testing.T) {
	fc := &fakeClient{failing: true}
	q := newTestQueue(fc)
	q.pending = []store.Row{{"a": 1}}

	require.Error(t, q.Flush(context.Background()))
	assert.Less(t, q.BatchSize(), startBatchSize)
}

func TestQueue_DeadLettersExhaustedBatches(t *testing.T) {
	fc := &fakeClient{failing: true}
	q := newTestQueue(fc)
	q.pending = []store.Row{{"a": 1}}

	require.Error(t, q.Flush(context.Background()))
	require.Len(t, q.DeadLetters(), 1)
	assert.Equal(t, "messages", q.DeadLetters()[0].Table)
}

func TestQueue_BatchSizeNeverBelowFloorOrAboveCeiling(t *testing.T) {
	assert.Equal(t, minBatchSize, clampBatchSize(1))
	assert.Equal(t, maxBatchSize, clampBatchSize(10000))
}

func TestBackpressureQueue_OfferFailsWhenFull(t *testing.T) {
	q := NewBackpressureQueue(1)
	assert.True(t, q.Offer(store.Row{"a": 1}))
	assert.False(t, q.Offer(store.Row{"a": 2}), "second offer must fail fast once the bound is reached")
}
