package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/contextcleaner/contextcleaner/internal/breaker"
)

// HTTPClient is the real Client implementation: a typed wrapper around an
// external analytic store speaking a SQL-like dialect over HTTP (spec
// §4.2). Every call passes through a dedicated breaker and a client-side
// deadline.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	retry      *breaker.RetryPolicy
	timeout    time.Duration
}

// NewHTTPClient builds a real client against baseURL, wrapping every call
// in br via a default RetryPolicy.
func NewHTTPClient(baseURL string, br *breaker.Breaker) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		retry:      breaker.NewRetryPolicy(br),
		timeout:    20 * time.Second,
	}
}

func (c *HTTPClient) IsStub() bool { return false }

type executeRequest struct {
	SQL    string         `json:"sql"`
	Params map[string]any `json:"params,omitempty"`
}

type executeResponse struct {
	Columns []string `json:"columns"`
	Data    []Row    `json:"data"`
	Error   string   `json:"error,omitempty"`
}

// Execute implements Client.
func (c *HTTPClient) Execute(ctx context.Context, sql string, params map[string]any) ([]Row, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var result []Row
	err := c.retry.Do(ctx, func() error {
		body, err := json.Marshal(executeRequest{SQL: sql, Params: params})
		if err != nil {
			return &ClientError{Kind: KindDecode, Err: err}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(body))
		if err != nil {
			return &ClientError{Kind: KindTransport, Err: err}
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &breaker.TransientError{Err: &ClientError{Kind: KindTransport, Err: err}}
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return &breaker.TransientError{Err: &ClientError{Kind: KindTransport, Err: err}}
		}

		if resp.StatusCode >= 500 {
			return &breaker.TransientError{Err: &ClientError{Kind: KindServer, Err: fmt.Errorf("status %d: %s", resp.StatusCode, data)}}
		}
		if resp.StatusCode >= 400 {
			return &ClientError{Kind: KindServer, Err: fmt.Errorf("status %d: %s", resp.StatusCode, data)}
		}

		var out executeResponse
		if err := json.Unmarshal(data, &out); err != nil {
			return &ClientError{Kind: KindDecode, Err: err}
		}
		if out.Error != "" {
			return &ClientError{Kind: KindServer, Err: fmt.Errorf("%s", out.Error)}
		}
		result = out.Data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type bulkInsertRequest struct {
	Table   string `json:"table"`
	Columns []string `json:"columns"`
	Rows    []Row  `json:"rows"`
}

type bulkInsertResponse struct {
	AcceptedCount int           `json:"accepted_count"`
	Rejected      []RejectedRow `json:"rejected,omitempty"`
}

// BulkInsert implements Client, chunking rows to MaxBatchRows per request.
func (c *HTTPClient) BulkInsert(ctx context.Context, table string, columns []string, rows []Row) error {
	var accepted int
	var rejected []RejectedRow

	for _, part := range chunk(rows, MaxBatchRows) {
		err := c.retry.Do(ctx, func() error {
			body, err := json.Marshal(bulkInsertRequest{Table: table, Columns: columns, Rows: part})
			if err != nil {
				return &ClientError{Kind: KindDecode, Err: err}
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/insert", bytes.NewReader(body))
			if err != nil {
				return &ClientError{Kind: KindTransport, Err: err}
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return &breaker.TransientError{Err: &ClientError{Kind: KindTransport, Err: err}}
			}
			defer resp.Body.Close()

			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return &breaker.TransientError{Err: &ClientError{Kind: KindTransport, Err: err}}
			}
			if resp.StatusCode >= 500 {
				return &breaker.TransientError{Err: &ClientError{Kind: KindServer, Err: fmt.Errorf("status %d", resp.StatusCode)}}
			}
			if resp.StatusCode >= 400 {
				return &ClientError{Kind: KindServer, Err: fmt.Errorf("status %d: %s", resp.StatusCode, data)}
			}

			var out bulkInsertResponse
			if err := json.Unmarshal(data, &out); err != nil {
				return &ClientError{Kind: KindDecode, Err: err}
			}
			accepted += out.AcceptedCount
			rejected = append(rejected, out.Rejected...)
			return nil
		})
		if err != nil {
			return err
		}
	}

	if len(rejected) > 0 {
		return &BulkError{AcceptedCount: accepted, Rejected: rejected}
	}
	return nil
}

// HealthCheck implements Client with a cheap SELECT-1-class probe plus a
// catalog round trip, per spec §4.2.
func (c *HTTPClient) HealthCheck(ctx context.Context) (HealthStatus, error) {
	start := time.Now()
	rows, err := c.Execute(ctx, "SELECT 1 AS ok", nil)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return HealthStatus{OK: false, LatencyMS: latency}, err
	}
	version := ""
	if len(rows) > 0 {
		if v, ok := rows[0]["version"].(string); ok {
			version = v
		}
	}
	return HealthStatus{OK: true, LatencyMS: latency, Version: version}, nil
}
