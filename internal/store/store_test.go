package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextcleaner/contextcleaner/internal/breaker"
)

func TestChunk_SplitsAtMaxBatchRows(t *testing.T) {
	rows := make([]Row, 1205)
	parts := chunk(rows, 500)
	require.Len(t, parts, 3)
	assert.Len(t, parts[0], 500)
	assert.Len(t, parts[1], 500)
	assert.Len(t, parts[2], 205)
}

func TestHTTPClient_Execute_DecodesRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req executeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "SELECT * FROM messages WHERE session_id = :sid", req.SQL)
		assert.Equal(t, "s1", req.Params["sid"])
		_ = json.NewEncoder(w).Encode(executeResponse{Columns: []string{"a"}, Data: []Row{{"a": 1}}})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, breaker.New(breaker.DefaultConfig("store")))
	rows, err := c.Execute(context.Background(), "SELECT * FROM messages WHERE session_id = :sid", map[string]any{"sid": "s1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 1, rows[0]["a"])
}

func TestHTTPClient_BulkInsert_SurfacesRejections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(bulkInsertResponse{
			AcceptedCount: 1,
			Rejected:      []RejectedRow{{Index: 0, Reason: "bad column"}},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, breaker.New(breaker.DefaultConfig("store")))
	err := c.BulkInsert(context.Background(), "messages", []string{"a"}, []Row{{"a": 1}, {"a": 2}})
	require.Error(t, err)
	var bulkErr *BulkError
	require.ErrorAs(t, err, &bulkErr)
	assert.Equal(t, 1, bulkErr.AcceptedCount)
}

func TestHTTPClient_ServerErrorOpensBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	br := breaker.New(breaker.Config{Name: "store", FailureThreshold: 1, RecoveryTimeout: 1000000000})
	c := &HTTPClient{baseURL: srv.URL, httpClient: srv.Client(), retry: &breaker.RetryPolicy{Breaker: br, MaxAttempts: 1}, timeout: srv.Client().Timeout}
	_, err := c.Execute(context.Background(), "SELECT 1", nil)
	require.Error(t, err)

	_, err = c.Execute(context.Background(), "SELECT 1", nil)
	require.ErrorIs(t, err, breaker.ErrCircuitOpen)
}

func TestStub_IsStub(t *testing.T) {
	var c Client = Stub{}
	assert.True(t, c.IsStub())
	status, err := c.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.False(t, status.OK)
}
