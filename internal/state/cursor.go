package state

import (
	"errors"
	"sync"

	"github.com/contextcleaner/contextcleaner/internal/model"
)

const cursorKeyPrefix = "cursor/"

// CursorStore persists File-State Cursors (spec §3, §4.3.3). Writers for
// a given file path are serialized by a per-path lock, per spec §5
// "The File-State Cursor store is single-writer per file path".
type CursorStore struct {
	store *Store
	locks sync.Map // file path -> *sync.Mutex
}

// NewCursorStore wraps an open Store for cursor persistence.
func NewCursorStore(s *Store) *CursorStore {
	return &CursorStore{store: s}
}

func (c *CursorStore) lockFor(path string) *sync.Mutex {
	v, _ := c.locks.LoadOrStore(path, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Get returns the persisted cursor for path, or (zero value, false) if
// none has ever been recorded.
func (c *CursorStore) Get(path string) (model.FileCursor, bool) {
	mu := c.lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	var cur model.FileCursor
	err := c.store.getJSON(cursorKeyPrefix+path, &cur)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.FileCursor{}, false
		}
		return model.FileCursor{}, false
	}
	return cur, true
}

// Put persists cur, serialized against concurrent writers for the same
// path. Cursor.OffsetBytes must be monotonically non-decreasing across
// calls for the same path per spec §8 "Cursor monotonicity"; callers that
// violate this get the larger of the two offsets persisted.
func (c *CursorStore) Put(cur model.FileCursor) error {
	mu := c.lockFor(cur.FilePath)
	mu.Lock()
	defer mu.Unlock()

	var existing model.FileCursor
	if err := c.store.getJSON(cursorKeyPrefix+cur.FilePath, &existing); err == nil {
		if existing.OffsetBytes > cur.OffsetBytes {
			cur.OffsetBytes = existing.OffsetBytes
		}
	}
	return c.store.putJSON(cursorKeyPrefix+cur.FilePath, cur)
}
