// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package widget

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/contextcleaner/contextcleaner/internal/logging"
	"github.com/contextcleaner/contextcleaner/internal/store"
)

// Default limits for the data-explorer endpoint (spec §4.5.4).
const (
	DefaultRowCap  = 10000
	DefaultTimeout = 20 * time.Second
)

var allowedVerb = regexp.MustCompile(`(?is)^\s*(SELECT|WITH)\b`)

// AuditEntry records one data-explorer call (spec §4.5.4 "records each
// call for rate limiting and auditing").
type AuditEntry struct {
	SQL         string
	CallerID    string
	At          time.Time
	ExecutionMS int64
	RowCount    int
	Err         string
}

// AuditSink receives every AuditEntry. Never blocks the request path on
// failure.
type AuditSink func(AuditEntry)

// Explorer is the ad-hoc SQL gateway (spec §4.5.4). One Explorer is
// shared across requests; per-caller rate limiters are created lazily.
type Explorer struct {
	client  store.Client
	log     *logging.Logger
	audit   AuditSink
	rowCap  int
	timeout time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	ratePerS float64
	burst    int
}

// NewExplorer constructs an Explorer. ratePerSecond/burst configure the
// per-caller token bucket (spec's "records each call for rate limiting");
// a ratePerSecond of 0 disables limiting.
func NewExplorer(client store.Client, log *logging.Logger, audit AuditSink, ratePerSecond float64, burst int) *Explorer {
	if log == nil {
		log = logging.Default()
	}
	if audit == nil {
		audit = func(AuditEntry) {}
	}
	return &Explorer{
		client:   client,
		log:      log.With("component", "data_explorer"),
		audit:    audit,
		rowCap:   DefaultRowCap,
		timeout:  DefaultTimeout,
		limiters: make(map[string]*rate.Limiter),
		ratePerS: ratePerSecond,
		burst:    burst,
	}
}

// queryRequest is the endpoint's input shape (spec §4.5.4 "{sql,
// params?}").
type queryRequest struct {
	SQL    string         `json:"sql" binding:"required"`
	Params map[string]any `json:"params"`
}

// queryResponse is the endpoint's output shape (spec §4.5.4 "{columns,
// data, execution_ms, error?}").
type queryResponse struct {
	Columns     []string    `json:"columns"`
	Data        []store.Row `json:"data"`
	ExecutionMS int64       `json:"execution_ms"`
	Error       string      `json:"error,omitempty"`
}

// RegisterRoutes mounts the gateway on router under the given path.
func (e *Explorer) RegisterRoutes(router *gin.Engine, path string) {
	router.POST(path, e.handle)
}

// NewRouter builds a standalone gin.Engine with OTel instrumentation
// wired in, mirroring the teacher's otelgin.Middleware convention.
func NewRouter(serviceName string) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware(serviceName))
	return router
}

func (e *Explorer) handle(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, queryResponse{Error: err.Error()})
		return
	}

	caller := c.ClientIP()
	if !e.allow(caller) {
		c.JSON(http.StatusTooManyRequests, queryResponse{Error: "rate limit exceeded"})
		return
	}

	resp := e.run(c.Request.Context(), req, caller)
	status := http.StatusOK
	if resp.Error != "" {
		status = http.StatusBadRequest
	}
	c.JSON(status, resp)
}

// Query runs req directly, for callers that are not going through the
// HTTP handler (e.g. an in-process admin CLI).
func (e *Explorer) Query(ctx context.Context, req queryRequest, callerID string) queryResponse {
	return e.run(ctx, req, callerID)
}

func (e *Explorer) run(ctx context.Context, req queryRequest, callerID string) queryResponse {
	start := time.Now()
	entry := AuditEntry{SQL: req.SQL, CallerID: callerID, At: start}

	if !allowedVerb.MatchString(req.SQL) {
		entry.Err = "statement must begin with SELECT or WITH"
		entry.ExecutionMS = time.Since(start).Milliseconds()
		e.audit(entry)
		return queryResponse{Error: entry.Err}
	}
	if containsWriteVerb(req.SQL) {
		entry.Err = "statement contains a disallowed write verb"
		entry.ExecutionMS = time.Since(start).Milliseconds()
		e.audit(entry)
		return queryResponse{Error: entry.Err}
	}

	qctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rows, err := e.client.Execute(qctx, req.SQL, req.Params)
	entry.ExecutionMS = time.Since(start).Milliseconds()

	if err != nil {
		entry.Err = err.Error()
		e.audit(entry)
		return queryResponse{ExecutionMS: entry.ExecutionMS, Error: err.Error()}
	}

	if len(rows) > e.rowCap {
		rows = rows[:e.rowCap]
	}
	entry.RowCount = len(rows)
	e.audit(entry)

	return queryResponse{
		Columns:     columnsOf(rows),
		Data:        rows,
		ExecutionMS: entry.ExecutionMS,
	}
}

func (e *Explorer) allow(callerID string) bool {
	if e.ratePerS <= 0 {
		return true
	}
	e.mu.Lock()
	lim, ok := e.limiters[callerID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(e.ratePerS), e.burst)
		e.limiters[callerID] = lim
	}
	e.mu.Unlock()
	return lim.Allow()
}

// writeVerbs are rejected anywhere in the statement text, guarding
// against a SELECT-prefixed statement that smuggles a write via a CTE or
// subquery (e.g. "WITH x AS (DELETE FROM ... RETURNING *) SELECT * FROM x").
var writeVerbs = []string{"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "TRUNCATE", "CREATE", "GRANT", "REVOKE", "ATTACH", "COPY"}

func containsWriteVerb(sql string) bool {
	upper := strings.ToUpper(sql)
	for _, v := range writeVerbs {
		if strings.Contains(upper, v) {
			return true
		}
	}
	return false
}

func columnsOf(rows []store.Row) []string {
	if len(rows) == 0 {
		return nil
	}
	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		cols = append(cols, k)
	}
	return cols
}
