// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tail implements incremental tailing of JSONL transcript files
// (spec §4.3.3, §4.3.7): on each modification, read only the bytes new
// since the persisted File-State Cursor, hold incomplete trailing lines,
// and apply backpressure without losing unread data.
package tail

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/contextcleaner/contextcleaner/internal/ingest/discovery"
	"github.com/contextcleaner/contextcleaner/internal/logging"
	"github.com/contextcleaner/contextcleaner/internal/model"
)

// CursorStore is the subset of state.CursorStore the tailer depends on,
// kept as an interface so tests can fake it without an embedded database.
type CursorStore interface {
	Get(path string) (model.FileCursor, bool)
	Put(model.FileCursor) error
}

// Sink receives complete lines read from a file. Returning an error is
// treated as "queue full" (spec §4.3.7): the tailer refuses to advance
// the cursor past that line so the next rescan picks it up again.
type Sink func(ctx context.Context, filePath string, line []byte) error

// Tailer watches a set of files and incrementally delivers new lines to a
// Sink, persisting progress through CursorStore.
type Tailer struct {
	cursors CursorStore
	sink    Sink
	log     *logging.Logger

	// partial holds an unterminated trailing line fragment per file,
	// carried across tail invocations until a newline completes it
	// (spec §4.3.3 "Partial trailing lines").
	partial map[string][]byte
}

// New constructs a Tailer delivering complete lines to sink.
func New(cursors CursorStore, sink Sink, log *logging.Logger) *Tailer {
	if log == nil {
		log = logging.Default()
	}
	return &Tailer{cursors: cursors, sink: sink, log: log, partial: make(map[string][]byte)}
}

// TailOnce reads and delivers every complete line appended to path since
// its last recorded cursor, then advances and persists the cursor (spec
// §4.3.3). If the current (size, mtime) match the cursor exactly, TailOnce
// does nothing.
func (t *Tailer) TailOnce(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("tail: stat %s: %w", path, err)
	}

	cur, ok := t.cursors.Get(path)
	if ok && cur.Unchanged(info.Size(), info.ModTime()) {
		return nil
	}
	if ok && info.Size() <= cur.SizeBytes {
		// File shrank (truncated/rotated) — restart from zero rather
		// than seeking past EOF.
		cur = model.FileCursor{FilePath: path}
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("tail: open %s: %w", path, err)
	}
	defer f.Close()

	startOffset := cur.OffsetBytes
	if _, err := f.Seek(startOffset, io.SeekStart); err != nil {
		return fmt.Errorf("tail: seek %s: %w", path, err)
	}

	reader := bufio.NewReader(f)
	offset := startOffset
	buf := t.partial[path]

	for {
		chunk, readErr := reader.ReadBytes('\n')
		if len(chunk) > 0 {
			buf = append(buf, chunk...)
			if chunk[len(chunk)-1] == '\n' {
				line := buf[:len(buf)-1]
				if err := t.sink(ctx, path, cloneBytes(line)); err != nil {
					// Backpressure: stop advancing past this line; it
					// will be re-read on the next modification or
					// periodic rescan (spec §4.3.7).
					t.log.Warn("tail: sink refused line, not advancing cursor", "path", path, "error", err)
					t.partial[path] = nil
					return t.persist(path, offset, info)
				}
				offset += int64(len(buf))
				buf = nil
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return fmt.Errorf("tail: reading %s: %w", path, readErr)
		}
	}

	t.partial[path] = buf
	return t.persist(path, offset, info)
}

// rescan re-discovers every valid file under roots and re-TailOnces each
// one. Files whose cursor already matches their current (size, mtime) are
// a cheap no-op inside TailOnce; this is what actually recovers a file
// that stopped being modified right after a sink refusal, which fsnotify
// alone would never re-deliver.
func (t *Tailer) rescan(ctx context.Context, roots []string) {
	manifest, err := discovery.Scan(discovery.Options{AllowedRoots: roots})
	if err != nil {
		t.log.Warn("tail: periodic rescan failed", "error", err)
		return
	}
	for _, entry := range manifest.Entries {
		if entry.Status != discovery.StatusValid {
			continue
		}
		if err := t.TailOnce(ctx, entry.Path); err != nil {
			t.log.Warn("tail: periodic rescan error", "path", entry.Path, "error", err)
		}
	}
}

func (t *Tailer) persist(path string, offset int64, info os.FileInfo) error {
	return t.cursors.Put(model.FileCursor{
		FilePath:    path,
		OffsetBytes: offset,
		SizeBytes:   info.Size(),
		ModTime:     info.ModTime(),
	})
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Watch drives TailOnce from filesystem change notifications for every
// path in roots' subtrees matching the patterns previously discovered,
// until ctx is cancelled. A periodic rescan re-runs discovery.Scan over
// roots and re-TailOnces every valid entry, catching modification events
// fsnotify misses (transient watch overflow) and recovering any file a
// prior sink refusal left stalled mid-cursor once the refusal clears
// without a further write (spec §4.3.7).
func (t *Tailer) Watch(ctx context.Context, roots []string, rescanEvery time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tail: creating watcher: %w", err)
	}
	defer watcher.Close()

	for _, root := range roots {
		if err := watcher.Add(root); err != nil {
			t.log.Warn("tail: failed to watch root", "root", root, "error", err)
		}
	}

	ticker := time.NewTicker(rescanEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := t.TailOnce(ctx, ev.Name); err != nil {
					t.log.Warn("tail: error tailing changed file", "path", ev.Name, "error", err)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			t.log.Warn("tail: watcher error", "error", err)
		case <-ticker.C:
			t.rescan(ctx, roots)
		}
	}
}
