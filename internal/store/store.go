// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store implements the typed client for the external columnar
// analytic store (spec §4.2): parameterized queries, chunked bulk insert,
// and a health probe, all behind the breaker/retry fabric. A Stub
// implementation satisfies the same interface for when the store is
// disabled (spec §9 "Duck-typed stubs").
package store

import (
	"context"
	"fmt"
)

// ErrorKind classifies a ClientError, per spec §4.2.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindServer    ErrorKind = "server"
	KindDecode    ErrorKind = "decode"
)

// ClientError is returned by Execute.
type ClientError struct {
	Kind ErrorKind
	Err  error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Kind, e.Err)
}
func (e *ClientError) Unwrap() error { return e.Err }

// RejectedRow is one row the store refused during a bulk insert.
type RejectedRow struct {
	Index  int
	Reason string
}

// BulkError is returned by BulkInsert when some rows were rejected.
type BulkError struct {
	AcceptedCount int
	Rejected      []RejectedRow
}

func (e *BulkError) Error() string {
	return fmt.Sprintf("store: bulk insert accepted %d, rejected %d", e.AcceptedCount, len(e.Rejected))
}

// Row is a single result row, keyed by column name.
type Row map[string]any

// HealthStatus is the result of a health probe.
type HealthStatus struct {
	OK        bool
	LatencyMS int64
	Version   string
}

// Client is the typed analytic-store surface every component depends on.
// Both the real HTTP-backed client and Stub implement it, so callers never
// special-case "is the store configured" — they ask IsStub instead (spec
// §9).
type Client interface {
	// Execute runs a parameterized SQL-like query; params are bound by
	// name, never substituted into the statement text.
	Execute(ctx context.Context, sql string, params map[string]any) ([]Row, error)

	// BulkInsert sends a homogeneous batch of records to table, chunked
	// internally to MaxBatchRows. Idempotent only for replacing-on-key
	// tables (spec §4.2).
	BulkInsert(ctx context.Context, table string, columns []string, rows []Row) error

	// HealthCheck performs a cheap liveness + catalog probe.
	HealthCheck(ctx context.Context) (HealthStatus, error)

	// IsStub reports whether this Client is a no-op stand-in for a
	// disabled store, per spec §4.5.3 / §9.
	IsStub() bool
}

// MaxBatchRows bounds a single bulk-insert request so the client never
// issues a statement exceeding the store's request-size limit (spec §4.2).
const MaxBatchRows = 500

// chunk splits rows into groups of at most MaxBatchRows.
func chunk(rows []Row, size int) [][]Row {
	if size <= 0 {
		size = MaxBatchRows
	}
	var out [][]Row
	for len(rows) > 0 {
		n := size
		if n > len(rows) {
			n = len(rows)
		}
		out = append(out, rows[:n])
		rows = rows[n:]
	}
	return out
}
