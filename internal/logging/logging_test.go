package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesToLogFile(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Config{Level: LevelInfo, LogDir: dir, Component: "ingest"})
	require.NoError(t, err)
	defer l.Close()

	l.Info("hello", "session_id", "abc")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "abc")
}

func TestWith_AddsScopedFields(t *testing.T) {
	l := Default()
	child := l.With("widget_kind", "cost_tracker")
	assert.NotNil(t, child)
}
