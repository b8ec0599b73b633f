package model

import "time"

// FileCursor is the per-file tailing position (spec §3 "File-State
// Cursor"). Unchanged iff (SizeBytes, ModTime) match the file's current
// stat; otherwise scanning resumes at OffsetBytes.
type FileCursor struct {
	FilePath    string
	OffsetBytes int64
	SizeBytes   int64
	ModTime     time.Time
}

// Unchanged reports whether a file with the given size/mtime has moved
// since this cursor was recorded.
func (c FileCursor) Unchanged(size int64, modTime time.Time) bool {
	return c.SizeBytes == size && c.ModTime.Equal(modTime)
}

// Checkpoint is a periodic snapshot of migration progress (spec §3, §4.4),
// enabling resume-from-failure. ProcessedUUIDs tracks emitted record UUIDs
// per file so append-only relations can be resumed idempotently even
// though they aren't replace-on-key.
type Checkpoint struct {
	RunID            string
	StartedAt        time.Time
	UpdatedAt        time.Time
	FilesTotal       int
	FilesDone        []string          // file paths fully processed
	LastRecordByFile map[string]int    // file path -> last committed record index
	ProcessedUUIDs   map[string][]string // file path -> emitted record uuids
	RecordsDone      int64
	TokensDone       int64
	Errors           []string
}

// NewCheckpoint starts an empty checkpoint for a migration run.
func NewCheckpoint(runID string, filesTotal int) *Checkpoint {
	return &Checkpoint{
		RunID:            runID,
		StartedAt:        time.Now(),
		UpdatedAt:        time.Now(),
		FilesTotal:       filesTotal,
		LastRecordByFile: make(map[string]int),
		ProcessedUUIDs:   make(map[string][]string),
	}
}

// DataSource is the provenance label on a served widget snapshot (spec §3,
// GLOSSARY).
type DataSource string

const (
	DataSourceLive     DataSource = "live"
	DataSourceCached   DataSource = "cached"
	DataSourceFallback DataSource = "fallback"
	DataSourceMinimal  DataSource = "minimal"
)

// WidgetSnapshot is the ephemeral, cached payload for one dashboard panel
// (spec §3, §4.5). Exactly one snapshot exists per widget kind at a time;
// the cache replaces it atomically.
type WidgetSnapshot struct {
	WidgetKind          string
	Title               string
	Data                any
	GeneratedAt         time.Time
	TTL                 time.Duration
	DataSource          DataSource
	ServiceAvailability map[string]bool
	FallbackMode        bool
	FallbackReason      string
}

// Fresh reports whether the snapshot is still valid at now, per the cache
// rule in spec §4.5.2 ("now - inserted_at < ttl").
func (w WidgetSnapshot) Fresh(now time.Time) bool {
	return now.Sub(w.GeneratedAt) < w.TTL
}
