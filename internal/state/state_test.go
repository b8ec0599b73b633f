package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextcleaner/contextcleaner/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCursorStore_MonotonicOffset(t *testing.T) {
	cs := NewCursorStore(openTestStore(t))

	require.NoError(t, cs.Put(model.FileCursor{FilePath: "a.jsonl", OffsetBytes: 100, SizeBytes: 100}))

	cur, ok := cs.Get("a.jsonl")
	require.True(t, ok)
	assert.Equal(t, int64(100), cur.OffsetBytes)

	// A stale write with a smaller offset must not regress the cursor.
	require.NoError(t, cs.Put(model.FileCursor{FilePath: "a.jsonl", OffsetBytes: 10, SizeBytes: 10}))
	cur, ok = cs.Get("a.jsonl")
	require.True(t, ok)
	assert.Equal(t, int64(100), cur.OffsetBytes)
}

func TestCursorStore_GetMissingReturnsFalse(t *testing.T) {
	cs := NewCursorStore(openTestStore(t))
	_, ok := cs.Get("never-seen.jsonl")
	assert.False(t, ok)
}

func TestCheckpointStore_SaveLoadClear(t *testing.T) {
	cps := NewCheckpointStore(openTestStore(t))
	cp := model.NewCheckpoint("run-1", 10)
	cp.RecordsDone = 500

	require.NoError(t, cps.Save(cp))

	loaded, ok := cps.Load("run-1")
	require.True(t, ok)
	assert.EqualValues(t, 500, loaded.RecordsDone)

	require.NoError(t, cps.Clear("run-1"))
	_, ok = cps.Load("run-1")
	assert.False(t, ok)
}

func TestRegistry_ReserveCandidatePortAvoidsHeldPorts(t *testing.T) {
	reg := NewRegistry(openTestStore(t))
	require.NoError(t, reg.Publish(ServiceRecord{Name: "store", Port: 9000, PID: 1, StartedAt: time.Now()}))

	rec, err := reg.ReserveCandidatePort(func(held map[int]bool) (ServiceRecord, error) {
		candidate := 9000
		for held[candidate] {
			candidate++
		}
		return ServiceRecord{Name: "bridge", Port: candidate, PID: 2, StartedAt: time.Now()}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 9001, rec.Port)

	all, err := reg.List()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
