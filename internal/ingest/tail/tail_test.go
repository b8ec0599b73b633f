package tail

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextcleaner/contextcleaner/internal/model"
)

type fakeCursorStore struct {
	mu      sync.Mutex
	cursors map[string]model.FileCursor
}

func newFakeCursorStore() *fakeCursorStore {
	return &fakeCursorStore{cursors: make(map[string]model.FileCursor)}
}

func (f *fakeCursorStore) Get(path string) (model.FileCursor, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cursors[path]
	return c, ok
}

func (f *fakeCursorStore) Put(c model.FileCursor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors[c.FilePath] = c
	return nil
}

func TestTailer_DeliversOnlyNewLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"a\":1}\n{\"a\":2}\n"), 0o644))

	cs := newFakeCursorStore()
	var got []string
	tr := New(cs, func(_ context.Context, _ string, line []byte) error {
		got = append(got, string(line))
		return nil
	}, nil)

	require.NoError(t, tr.TailOnce(context.Background(), path))
	assert.Equal(t, []string{`{"a":1}`, `{"a":2}`}, got)

	// Appending more data should only deliver the new line on a rescan.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{\"a\":3}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, tr.TailOnce(context.Background(), path))
	assert.Equal(t, []string{`{"a":1}`, `{"a":2}`, `{"a":3}`}, got)
}

func TestTailer_HoldsPartialTrailingLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"a":1}`+"\n"+`{"a":2`), 0o644))

	cs := newFakeCursorStore()
	var got []string
	tr := New(cs, func(_ context.Context, _ string, line []byte) error {
		got = append(got, string(line))
		return nil
	}, nil)

	require.NoError(t, tr.TailOnce(context.Background(), path))
	assert.Equal(t, []string{`{"a":1}`}, got, "the unterminated trailing fragment must not be delivered yet")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, tr.TailOnce(context.Background(), path))
	assert.Equal(t, []string{`{"a":1}`, `{"a":2}`}, got, "completing the newline must deliver the joined fragment")
}

func TestTailer_BackpressureStopsCursorAdvance(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"a\":1}\n{\"a\":2}\n"), 0o644))

	cs := newFakeCursorStore()
	calls := 0
	tr := New(cs, func(_ context.Context, _ string, _ []byte) error {
		calls++
		if calls == 2 {
			return assertErrQueueFull
		}
		return nil
	}, nil)

	require.NoError(t, tr.TailOnce(context.Background(), path))
	cur, ok := cs.Get(path)
	require.True(t, ok)
	assert.Equal(t, int64(8), cur.OffsetBytes, "cursor should stop right after the first accepted line")
}

var assertErrQueueFull = errQueueFullForTest{}

type errQueueFullForTest struct{}

func (errQueueFullForTest) Error() string { return "queue full" }
