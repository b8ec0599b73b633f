package migration

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextcleaner/contextcleaner/internal/config"
	"github.com/contextcleaner/contextcleaner/internal/ingest/discovery"
	"github.com/contextcleaner/contextcleaner/internal/ingest/redact"
	"github.com/contextcleaner/contextcleaner/internal/model"
	"github.com/contextcleaner/contextcleaner/internal/state"
	"github.com/contextcleaner/contextcleaner/internal/store"
)

type recordingClient struct {
	mu   sync.Mutex
	rows map[string]int
}

func newRecordingClient() *recordingClient { return &recordingClient{rows: make(map[string]int)} }

func (c *recordingClient) Execute(context.Context, string, map[string]any) ([]store.Row, error) {
	return nil, nil
}
func (c *recordingClient) BulkInsert(_ context.Context, table string, _ []string, rows []store.Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[table] += len(rows)
	return nil
}
func (c *recordingClient) HealthCheck(context.Context) (store.HealthStatus, error) {
	return store.HealthStatus{OK: true}, nil
}
func (c *recordingClient) IsStub() bool { return false }

func openTestState(t *testing.T) *state.Store {
	t.Helper()
	s, err := state.Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeTranscript(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEngine_RunProcessesAllValidFilesAndClearsCheckpoint(t *testing.T) {
	dir := t.TempDir()
	writeTranscript(t, dir, "a.jsonl", []string{
		`{"uuid":"u1","sessionId":"s1","timestamp":"2026-01-01T00:00:00Z","type":"user","message":{"role":"user","content":"hi"}}`,
		`{"uuid":"u2","sessionId":"s1","timestamp":"2026-01-01T00:00:01Z","type":"assistant","message":{"role":"assistant","content":"hello"}}`,
	})

	s := openTestState(t)
	cps := state.NewCheckpointStore(s)
	cursors := state.NewCursorStore(s)
	client := newRecordingClient()

	eng := New(cps, cursors, client, redact.New(config.PrivacyStandard), nil)
	eng.CheckpointEvery = 1

	manifest, err := discovery.Scan(discovery.Options{AllowedRoots: []string{dir}})
	require.NoError(t, err)

	report, err := eng.Run(context.Background(), "run-1", manifest)
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesDone)
	assert.EqualValues(t, 2, report.RecordsDone)
	assert.True(t, report.ValidationOK)

	_, exists := cps.Load("run-1")
	assert.False(t, exists, "finalization must clear the checkpoint")

	client.mu.Lock()
	assert.Equal(t, 2, client.rows["messages"])
	client.mu.Unlock()
}

func TestEngine_ResumeSkipsAlreadyDoneFiles(t *testing.T) {
	dir := t.TempDir()
	writeTranscript(t, dir, "a.jsonl", []string{
		`{"uuid":"u1","sessionId":"s1","timestamp":"2026-01-01T00:00:00Z","type":"user","message":{"role":"user","content":"hi"}}`,
	})
	writeTranscript(t, dir, "b.jsonl", []string{
		`{"uuid":"u2","sessionId":"s1","timestamp":"2026-01-01T00:00:01Z","type":"user","message":{"role":"user","content":"again"}}`,
	})

	s := openTestState(t)
	cps := state.NewCheckpointStore(s)
	cursors := state.NewCursorStore(s)
	client := newRecordingClient()

	manifest, err := discovery.Scan(discovery.Options{AllowedRoots: []string{dir}})
	require.NoError(t, err)

	pre := model.NewCheckpoint("run-resume", len(manifest.Entries))
	pre.FilesDone = []string{filepath.Join(dir, "a.jsonl")}
	pre.LastRecordByFile[filepath.Join(dir, "a.jsonl")] = 1
	require.NoError(t, cps.Save(pre))

	eng := New(cps, cursors, client, redact.New(config.PrivacyStandard), nil)
	report, err := eng.Run(context.Background(), pre.RunID, manifest)
	require.NoError(t, err)
	assert.Equal(t, 2, report.FilesDone, "both files counted done after resume completes the remaining one")

	client.mu.Lock()
	assert.Equal(t, 1, client.rows["messages"], "only the unresumed file's record should be freshly inserted")
	client.mu.Unlock()
}
