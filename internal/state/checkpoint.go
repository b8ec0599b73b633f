package state

import (
	"fmt"

	"github.com/contextcleaner/contextcleaner/internal/model"
)

const checkpointKeyPrefix = "checkpoint/"

// CheckpointStore persists Migration Engine checkpoints (spec §3, §4.4).
// The underlying Badger transaction gives atomic write-to-temp+rename
// semantics without the engine managing temp files itself, satisfying
// spec §5's "writes are atomic" requirement for the checkpoint store.
type CheckpointStore struct {
	store *Store
}

// NewCheckpointStore wraps an open Store for checkpoint persistence.
func NewCheckpointStore(s *Store) *CheckpointStore {
	return &CheckpointStore{store: s}
}

// Save writes cp atomically, overwriting any prior checkpoint for the same
// RunID.
func (c *CheckpointStore) Save(cp *model.Checkpoint) error {
	if cp.RunID == "" {
		return fmt.Errorf("state: checkpoint requires a RunID")
	}
	return c.store.putJSON(checkpointKeyPrefix+cp.RunID, cp)
}

// Load returns the checkpoint for runID, or (nil, false) if none exists —
// the case of a clean run with no resume needed.
func (c *CheckpointStore) Load(runID string) (*model.Checkpoint, bool) {
	var cp model.Checkpoint
	if err := c.store.getJSON(checkpointKeyPrefix+runID, &cp); err != nil {
		return nil, false
	}
	return &cp, true
}

// Clear removes the checkpoint for runID, called on successful
// finalization (spec §4.4 "Finalization ... clears transient checkpoints").
func (c *CheckpointStore) Clear(runID string) error {
	return c.store.delete(checkpointKeyPrefix + runID)
}
