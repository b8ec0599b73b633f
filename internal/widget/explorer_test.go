package widget

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextcleaner/contextcleaner/internal/store"
)

type queryingClient struct {
	store.Client
	rows []store.Row
	err  error
}

func (q *queryingClient) Execute(context.Context, string, map[string]any) ([]store.Row, error) {
	return q.rows, q.err
}
func (q *queryingClient) IsStub() bool { return false }

func TestExplorer_RejectsNonSelectStatements(t *testing.T) {
	e := NewExplorer(&queryingClient{}, nil, nil, 0, 0)
	resp := e.Query(context.Background(), queryRequest{SQL: "DELETE FROM messages"}, "caller-1")
	assert.NotEmpty(t, resp.Error)
}

func TestExplorer_RejectsWriteVerbSmuggledInCTE(t *testing.T) {
	e := NewExplorer(&queryingClient{}, nil, nil, 0, 0)
	resp := e.Query(context.Background(), queryRequest{
		SQL: "WITH x AS (DELETE FROM messages RETURNING *) SELECT * FROM x",
	}, "caller-1")
	assert.NotEmpty(t, resp.Error)
}

func TestExplorer_RunsSelectAndCapsRows(t *testing.T) {
	rows := make([]store.Row, 3)
	for i := range rows {
		rows[i] = store.Row{"n": i}
	}
	client := &queryingClient{rows: rows}
	e := NewExplorer(client, nil, nil, 0, 0)
	e.rowCap = 2

	resp := e.Query(context.Background(), queryRequest{SQL: "SELECT * FROM messages"}, "caller-1")
	require.Empty(t, resp.Error)
	assert.Len(t, resp.Data, 2)
}

func TestExplorer_SurfacesClientError(t *testing.T) {
	client := &queryingClient{err: errors.New("boom")}
	e := NewExplorer(client, nil, nil, 0, 0)
	resp := e.Query(context.Background(), queryRequest{SQL: "SELECT 1"}, "caller-1")
	assert.Equal(t, "boom", resp.Error)
}

func TestExplorer_AuditSinkRecordsEveryCall(t *testing.T) {
	var entries []AuditEntry
	client := &queryingClient{rows: []store.Row{{"a": 1}}}
	e := NewExplorer(client, nil, func(a AuditEntry) { entries = append(entries, a) }, 0, 0)

	_ = e.Query(context.Background(), queryRequest{SQL: "SELECT 1"}, "caller-1")
	require.Len(t, entries, 1)
	assert.Equal(t, "caller-1", entries[0].CallerID)
	assert.Equal(t, 1, entries[0].RowCount)
}

func TestExplorer_RateLimitRejectsBurstOverflow(t *testing.T) {
	client := &queryingClient{rows: []store.Row{{"a": 1}}}
	e := NewExplorer(client, nil, nil, 1, 1)

	assert.True(t, e.allow("caller-1"))
	assert.False(t, e.allow("caller-1"), "second call within the same instant must exceed the burst of 1")
	assert.True(t, e.allow("caller-2"), "a distinct caller gets its own bucket")
}
