package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_TripsAfterNConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig("store")
	cfg.FailureThreshold = 3
	cfg.RecoveryTimeout = time.Hour
	b := New(cfg)

	boom := errors.New("boom")
	calls := 0
	failing := func() error { calls++; return boom }

	for i := 0; i < 3; i++ {
		err := b.Execute(failing)
		require.ErrorIs(t, err, boom)
	}
	require.Equal(t, 3, calls)

	// Fourth call fails fast without invoking the callable.
	err := b.Execute(failing)
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 3, calls, "callee must not be invoked while open")
	assert.Equal(t, Open, b.Snapshot().State)
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	cfg := DefaultConfig("store")
	cfg.FailureThreshold = 3
	cfg.RecoveryTimeout = 10 * time.Millisecond
	b := New(cfg)

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		_ = b.Execute(func() error { return boom })
	}
	require.Equal(t, Open, b.Snapshot().State)

	time.Sleep(15 * time.Millisecond)

	// Next call is admitted (half-open) and, on success, two more
	// successes close the breaker.
	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, HalfOpen, b.Snapshot().State)
	require.NoError(t, b.Execute(func() error { return nil }))
	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, Closed, b.Snapshot().State)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	cfg := DefaultConfig("store")
	cfg.FailureThreshold = 1
	cfg.RecoveryTimeout = 5 * time.Millisecond
	b := New(cfg)

	_ = b.Execute(func() error { return errors.New("x") })
	require.Equal(t, Open, b.Snapshot().State)

	time.Sleep(10 * time.Millisecond)
	err := b.Execute(func() error { return errors.New("still down") })
	require.Error(t, err)
	assert.Equal(t, Open, b.Snapshot().State)
}

func TestBreaker_StateChangeCallback(t *testing.T) {
	var transitions [][2]State
	cfg := DefaultConfig("x")
	cfg.FailureThreshold = 1
	cfg.OnStateChange = func(name string, from, to State) {
		transitions = append(transitions, [2]State{from, to})
	}
	b := New(cfg)
	_ = b.Execute(func() error { return errors.New("boom") })
	require.Len(t, transitions, 1)
	assert.Equal(t, Closed, transitions[0][0])
	assert.Equal(t, Open, transitions[0][1])
}

func TestRetryPolicy_NonTransientPropagatesImmediately(t *testing.T) {
	b := New(DefaultConfig("x"))
	p := NewRetryPolicy(b)
	calls := 0
	permanentErr := errors.New("400 bad request")

	err := p.Do(nil, func() error { calls++; return permanentErr })
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
