// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package breaker provides the circuit breaker and retry fabric shared by
// every I/O boundary in Context Cleaner: the store client, the migration
// engine's batch writer, the ingest pipeline's file reads on monitored
// trees, and the orchestrator's service health probes.
//
// # States
//
//   - Closed: normal operation, calls flow through.
//   - Open: calls are rejected immediately with ErrCircuitOpen.
//   - HalfOpen: a limited number of calls are admitted to test recovery.
//
// # State Diagram
//
//	   ┌─────────────────────────────────────┐
//	   │                                     │
//	   ▼                                     │
//	CLOSED ──[failure_count >= N]──► OPEN ───┘
//	   ▲                              │
//	   │                              │
//	   └──[3 successes]◄── HALF_OPEN ◄┘
//	                      [recovery_timeout elapsed]
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/contextcleaner/contextcleaner/internal/metrics"
)

// State is one of Closed, Open, HalfOpen.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ErrCircuitOpen is returned by Execute when the breaker is open and the
// call is rejected without invoking the wrapped function.
var ErrCircuitOpen = errors.New("breaker: circuit is open")

// halfOpenSuccessRequired is fixed at 3 per spec §4.1.
const halfOpenSuccessRequired = 3

// Config configures a Breaker.
type Config struct {
	// Name identifies the breaker in Snapshot and logs.
	Name string

	// FailureThreshold is the number of consecutive failures that trips
	// the breaker from Closed to Open.
	FailureThreshold int

	// RecoveryTimeout is how long the breaker stays Open before allowing
	// a single trial call in HalfOpen.
	RecoveryTimeout time.Duration

	// OnStateChange, if set, is invoked (synchronously) on every
	// transition. Callers needing asynchronous notification should
	// dispatch their own goroutine from the callback.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns conservative defaults: 5 failures, 30s recovery.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	}
}

// Breaker implements the three-state circuit breaker described in spec §4.1.
// Safe for concurrent use.
type Breaker struct {
	cfg Config

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int // consecutive successes while HalfOpen
	lastFailureTime time.Time
}

// New constructs a Breaker in the Closed state.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	return &Breaker{cfg: cfg, state: Closed}
}

// Snapshot is the observable state of a breaker, per spec §4.1.
type Snapshot struct {
	Name            string
	State           State
	FailureCount    int
	SuccessCount    int
	LastFailureTime time.Time
}

// Snapshot returns the breaker's current observable state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:            b.cfg.Name,
		State:           b.state,
		FailureCount:    b.failureCount,
		SuccessCount:    b.successCount,
		LastFailureTime: b.lastFailureTime,
	}
}

// Execute runs fn through the breaker. If the breaker is Open and the
// recovery timeout has not elapsed, fn is never called and ErrCircuitOpen
// is returned. Otherwise fn is called once and its result feeds the state
// machine transition.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	b.record(err == nil)
	return err
}

// allow decides whether a call may proceed, transitioning Open -> HalfOpen
// when the recovery timeout has elapsed.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		return true
	case Open:
		if time.Since(b.lastFailureTime) >= b.cfg.RecoveryTimeout {
			b.transition(HalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		if success {
			b.failureCount = 0
			return
		}
		b.failureCount++
		b.lastFailureTime = time.Now()
		if b.failureCount >= b.cfg.FailureThreshold {
			b.transition(Open)
		}
	case HalfOpen:
		if success {
			b.successCount++
			if b.successCount >= halfOpenSuccessRequired {
				b.transition(Closed)
			}
			return
		}
		b.lastFailureTime = time.Now()
		b.transition(Open)
	case Open:
		// A call slipped through the race between allow() and record();
		// treat it like any other Open-state failure bookkeeping.
		if !success {
			b.lastFailureTime = time.Now()
		}
	}
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	switch to {
	case Closed:
		b.failureCount = 0
		b.successCount = 0
	case Open:
		b.successCount = 0
		metrics.BreakerTripped(context.Background(), b.cfg.Name)
	case HalfOpen:
		b.successCount = 0
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}
