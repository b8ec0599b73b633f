// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package batch implements the adaptive per-table batcher between the
// ingest pipeline and the Store Client (spec §4.3.6): size-adaptive
// flushing, a bounded dead-letter queue for exhausted retries, and a
// bounded backpressure queue on the producer side (spec §4.3.7).
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/contextcleaner/contextcleaner/internal/breaker"
	"github.com/contextcleaner/contextcleaner/internal/logging"
	"github.com/contextcleaner/contextcleaner/internal/metrics"
	"github.com/contextcleaner/contextcleaner/internal/store"
	"github.com/contextcleaner/contextcleaner/pkg/ring"
)

const (
	startBatchSize  = 50
	minBatchSize    = 10
	maxBatchSize    = 200
	targetBatchTime = time.Second

	// sampleWindow bounds how many recent (size, duration, success)
	// observations drive the adaptation decision (spec §4.3.6 "a short
	// ring").
	sampleWindow = 10

	deadLetterCapacity = 100
)

// sample is one completed flush observation.
type sample struct {
	size     int
	duration time.Duration
	success  bool
}

// DeadLetter is a batch that exhausted its retry budget (spec §4.3.6).
type DeadLetter struct {
	Table     string
	Columns   []string
	Rows      []store.Row
	Err       error
	Timestamp time.Time
}

// Queue is one per-table adaptive batch queue. Producers call Add; a
// background Run loop drains on size or flush_interval, whichever comes
// first (spec §4.3.6).
type Queue struct {
	table   string
	columns []string
	client  store.Client
	retry   *breaker.RetryPolicy
	log     *logging.Logger

	flushInterval time.Duration

	mu        sync.Mutex
	pending   []store.Row
	batchSize int
	samples   []sample

	deadLetters *ring.Buffer[DeadLetter]
}

// NewQueue constructs a Queue for table, backed by client and gated by
// retry (whose embedded Breaker admits or fast-fails each flush attempt).
func NewQueue(table string, columns []string, client store.Client, retry *breaker.RetryPolicy, flushInterval time.Duration, log *logging.Logger) *Queue {
	if log == nil {
		log = logging.Default()
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Queue{
		table:         table,
		columns:       columns,
		client:        client,
		retry:         retry,
		log:           log.With("table", table),
		flushInterval: flushInterval,
		batchSize:     startBatchSize,
		deadLetters:   ring.New[DeadLetter](deadLetterCapacity),
	}
}

// Add enqueues a row, flushing immediately if the current adapted
// batch_size is reached.
func (q *Queue) Add(ctx context.Context, row store.Row) error {
	q.mu.Lock()
	q.pending = append(q.pending, row)
	shouldFlush := len(q.pending) >= q.batchSize
	q.mu.Unlock()

	if shouldFlush {
		return q.Flush(ctx)
	}
	return nil
}

// Flush drains whatever is pending (possibly nothing) through the store
// client via the retry policy, recording the outcome for adaptation and,
// on exhaustion, moving the batch to the dead-letter queue.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	rows := q.pending
	q.pending = nil
	q.mu.Unlock()

	if len(rows) == 0 {
		return nil
	}

	start := time.Now()
	err := q.retry.Do(ctx, func() error {
		return q.client.BulkInsert(ctx, q.table, q.columns, rows)
	})
	duration := time.Since(start)

	q.recordSample(sample{size: len(rows), duration: duration, success: err == nil})

	if err != nil {
		q.log.Warn("batch: flush failed, retry budget exhausted", "rows", len(rows), "error", err)
		if dropped := q.deadLetters.Push(DeadLetter{
			Table: q.table, Columns: q.columns, Rows: rows, Err: err, Timestamp: time.Now(),
		}); dropped {
			q.log.Error("batch: dead-letter queue full, oldest entry dropped", "table", q.table)
		}
		return err
	}
	metrics.BatchFlushed(ctx, q.table, len(rows))
	return nil
}

// recordSample appends to the bounded sample window and re-derives
// batch_size per spec §4.3.6's adaptation rules.
func (q *Queue) recordSample(s sample) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.samples = append(q.samples, s)
	if len(q.samples) > sampleWindow {
		q.samples = q.samples[len(q.samples)-sampleWindow:]
	}

	successRate, avgDuration := summarize(q.samples)
	switch {
	case successRate < 0.80:
		q.batchSize = clampBatchSize(q.batchSize - q.batchSize*20/100)
	case avgDuration < targetBatchTime && successRate > 0.95:
		q.batchSize = clampBatchSize(q.batchSize + q.batchSize*10/100)
	case avgDuration > 2*targetBatchTime:
		q.batchSize = clampBatchSize(q.batchSize - q.batchSize*10/100)
	}
}

func summarize(samples []sample) (successRate float64, avgDuration time.Duration) {
	if len(samples) == 0 {
		return 1, 0
	}
	var successes int
	var total time.Duration
	for _, s := range samples {
		if s.success {
			successes++
		}
		total += s.duration
	}
	return float64(successes) / float64(len(samples)), total / time.Duration(len(samples))
}

func clampBatchSize(size int) int {
	if size < minBatchSize {
		return minBatchSize
	}
	if size > maxBatchSize {
		return maxBatchSize
	}
	if size == 0 {
		return minBatchSize
	}
	return size
}

// BatchSize reports the currently adapted batch size, for tests and
// metrics.
func (q *Queue) BatchSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.batchSize
}

// DeadLetters returns every dead-lettered batch currently retained,
// oldest first.
func (q *Queue) DeadLetters() []DeadLetter {
	return q.deadLetters.ToSlice()
}

// Run drains the queue on flush_interval until ctx is cancelled, flushing
// once more on the way out (spec §4.6.6 "batches flush their current
// work ... before the component exits").
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = q.Flush(context.Background())
			return
		case <-ticker.C:
			if err := q.Flush(ctx); err != nil {
				q.log.Debug("batch: periodic flush failed", "error", err)
			}
		}
	}
}

// BackpressureQueue is the bounded hop between the tailer and the
// batcher's parser/redact workers (spec §4.3.7): when full, Offer fails
// fast instead of blocking so the tailer can refuse the event and leave
// the cursor unmoved.
type BackpressureQueue struct {
	ch chan store.Row
}

// NewBackpressureQueue creates a queue with the given bound (default 1000
// per spec §4.3.7).
func NewBackpressureQueue(capacity int) *BackpressureQueue {
	if capacity <= 0 {
		capacity = 1000
	}
	return &BackpressureQueue{ch: make(chan store.Row, capacity)}
}

// Offer attempts to enqueue row without blocking. It returns false
// immediately if the queue is full.
func (q *BackpressureQueue) Offer(row store.Row) bool {
	select {
	case q.ch <- row:
		return true
	default:
		return false
	}
}

// Take blocks until a row is available or ctx is cancelled.
func (q *BackpressureQueue) Take(ctx context.Context) (store.Row, bool) {
	select {
	case row, ok := <-q.ch:
		return row, ok
	case <-ctx.Done():
		return nil, false
	}
}

// Len reports the number of rows currently queued.
func (q *BackpressureQueue) Len() int { return len(q.ch) }
