// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package migration implements the Historical Migration Engine (spec
// §4.4): a bounded-concurrency coordinator that discovers, validates,
// processes, and finalizes a backlog of transcript files, resuming from a
// persisted Checkpoint on restart.
package migration

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/contextcleaner/contextcleaner/internal/breaker"
	"github.com/contextcleaner/contextcleaner/internal/ingest/batch"
	"github.com/contextcleaner/contextcleaner/internal/ingest/discovery"
	"github.com/contextcleaner/contextcleaner/internal/ingest/parser"
	"github.com/contextcleaner/contextcleaner/internal/ingest/redact"
	"github.com/contextcleaner/contextcleaner/internal/logging"
	"github.com/contextcleaner/contextcleaner/internal/model"
	"github.com/contextcleaner/contextcleaner/internal/state"
	"github.com/contextcleaner/contextcleaner/internal/store"
)

// DefaultConcurrency is the default number of files processed in flight
// (spec §4.4 "default 3-5 files in flight").
const DefaultConcurrency = 4

// Progress is the real-time status a subscriber polls or is pushed (spec
// §4.4 "Progress").
type Progress struct {
	FilesTotal  int
	FilesDone   int
	RecordsDone int64
	TokensDone  int64
	RateRPS     float64
	ETA         time.Duration
}

// Report is written on Finalization.
type Report struct {
	RunID        string
	FilesTotal   int
	FilesDone    int
	RecordsDone  int64
	TokensDone   int64
	Duration     time.Duration
	ValidationOK bool
	Errors       []string
}

// Engine coordinates a migration run.
type Engine struct {
	checkpoints *state.CheckpointStore
	cursors     *state.CursorStore
	client      store.Client
	redactor    *redact.Redactor
	retry       *breaker.RetryPolicy
	log         *logging.Logger

	Concurrency       int
	CheckpointEvery   int           // records
	CheckpointPeriod  time.Duration // time
	TokenTolerancePct float64       // post-validation reconciliation tolerance, default 1%

	mu       sync.Mutex
	progress Progress
	onProgress func(Progress)
}

// New constructs an Engine. redactor and client must be non-nil;
// checkpoints/cursors persist resumability.
func New(checkpoints *state.CheckpointStore, cursors *state.CursorStore, client store.Client, redactor *redact.Redactor, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.Default()
	}
	b := breaker.New(breaker.Config{Name: "migration-store", FailureThreshold: 5, RecoveryTimeout: 30 * time.Second})
	return &Engine{
		checkpoints:       checkpoints,
		cursors:           cursors,
		client:            client,
		redactor:          redactor,
		retry:             breaker.NewRetryPolicy(b),
		log:               log.With("component", "migration"),
		Concurrency:       DefaultConcurrency,
		CheckpointEvery:   500,
		CheckpointPeriod:  30 * time.Second,
		TokenTolerancePct: 1.0,
	}
}

// OnProgress registers a callback invoked after every progress update
// (spec §4.4 "periodic callbacks for a dashboard subscriber").
func (e *Engine) OnProgress(fn func(Progress)) { e.onProgress = fn }

// Run executes Discovery → Processing → Validation → Finalization for
// runID against manifest, resuming from any existing checkpoint for
// runID (spec §4.4 "Resume").
func (e *Engine) Run(ctx context.Context, runID string, manifest *discovery.Manifest) (Report, error) {
	valid := filterValid(manifest)
	cp, resuming := e.checkpoints.Load(runID)
	if !resuming {
		cp = model.NewCheckpoint(runID, len(valid))
	} else {
		e.log.Info("migration: resuming from checkpoint", "run_id", runID, "files_done", len(cp.FilesDone))
	}

	e.mu.Lock()
	e.progress = Progress{FilesTotal: len(valid), FilesDone: len(cp.FilesDone)}
	e.mu.Unlock()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency())

	var mu sync.Mutex
	var reportErrors []string
	done := make(map[string]bool, len(cp.FilesDone))
	for _, f := range cp.FilesDone {
		done[f] = true
	}

	for _, entry := range valid {
		if done[entry.Path] {
			continue
		}
		entry := entry
		g.Go(func() error {
			if err := e.processFile(gctx, cp, entry.Path, &mu); err != nil {
				mu.Lock()
				reportErrors = append(reportErrors, fmt.Sprintf("%s: %v", entry.Path, err))
				mu.Unlock()
				e.log.Warn("migration: file processing failed", "path", entry.Path, "error", err)
				// A per-file failure does not abort the run (spec §4.4
				// "a corrupt file: mark ... skip, continue"), so the
				// errgroup is not cancelled for this error.
				return nil
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("migration: %w", err)
	}

	valOK := e.validate(cp, valid)
	e.checkpoints.Clear(runID)

	report := Report{
		RunID:        runID,
		FilesTotal:   len(valid),
		FilesDone:    len(cp.FilesDone),
		RecordsDone:  cp.RecordsDone,
		TokensDone:   cp.TokensDone,
		Duration:     time.Since(start),
		ValidationOK: valOK,
		Errors:       reportErrors,
	}
	return report, nil
}

func (e *Engine) concurrency() int {
	if e.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return e.Concurrency
}

// processFile streams entry line by line (memory-bounded), parses,
// redacts, and hands rows to per-table batch queues, persisting a
// checkpoint every CheckpointEvery records or CheckpointPeriod, whichever
// comes first (spec §4.4 "Processing").
func (e *Engine) processFile(ctx context.Context, cp *model.Checkpoint, path string, checkpointMu *sync.Mutex) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening: %w", err)
	}
	defer f.Close()

	messages := batch.NewQueue("messages", messageColumns, e.client, e.retry, 5*time.Second, e.log)
	files := batch.NewQueue("file_accesses", fileColumns, e.client, e.retry, 5*time.Second, e.log)
	tools := batch.NewQueue("tool_executions", toolColumns, e.client, e.retry, 5*time.Second, e.log)

	startOffset := 0
	checkpointMu.Lock()
	if last, ok := cp.LastRecordByFile[path]; ok {
		startOffset = last
	}
	checkpointMu.Unlock()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNum := 0
	lastCheckpoint := time.Now()
	var recordsSinceCheckpoint int

	for scanner.Scan() {
		lineNum++
		if lineNum <= startOffset {
			continue // already committed before a prior crash
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		res, err := parser.ParseLine(ctx, scanner.Bytes())
		if err != nil {
			e.log.Warn("migration: skipping malformed line", "path", path, "line", lineNum, "error", err)
			continue
		}

		if res.Message != nil {
			text, _ := e.redactor.Redact(res.Message.ContentText)
			res.Message.ContentText = text
			if err := messages.Add(ctx, messageRow(*res.Message)); err != nil {
				return err
			}
			cp.TokensDone += res.Message.InputTokens + res.Message.OutputTokens
		}
		if res.FileAcc != nil {
			content, _ := e.redactor.Redact(res.FileAcc.FileContent)
			res.FileAcc.FileContent = content
			if err := files.Add(ctx, fileRow(*res.FileAcc)); err != nil {
				return err
			}
		}
		if res.ToolExec != nil {
			output, _ := e.redactor.Redact(res.ToolExec.ToolOutput)
			res.ToolExec.ToolOutput = output
			if err := tools.Add(ctx, toolRow(*res.ToolExec)); err != nil {
				return err
			}
		}

		cp.RecordsDone++
		recordsSinceCheckpoint++

		if recordsSinceCheckpoint >= e.checkpointEvery() || time.Since(lastCheckpoint) >= e.checkpointPeriod() {
			checkpointMu.Lock()
			cp.LastRecordByFile[path] = lineNum
			cp.UpdatedAt = time.Now()
			_ = e.checkpoints.Save(cp)
			checkpointMu.Unlock()
			recordsSinceCheckpoint = 0
			lastCheckpoint = time.Now()
			e.reportProgress(cp)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanning: %w", err)
	}

	if err := messages.Flush(ctx); err != nil {
		return err
	}
	if err := files.Flush(ctx); err != nil {
		return err
	}
	if err := tools.Flush(ctx); err != nil {
		return err
	}

	checkpointMu.Lock()
	cp.FilesDone = append(cp.FilesDone, path)
	cp.LastRecordByFile[path] = lineNum
	cp.UpdatedAt = time.Now()
	_ = e.checkpoints.Save(cp)
	checkpointMu.Unlock()
	e.reportProgress(cp)

	// Advance the live tailer's cursor past this backfilled file so a
	// concurrently running tailer does not re-ingest it from scratch.
	if info, statErr := f.Stat(); statErr == nil {
		_ = e.cursors.Put(model.FileCursor{FilePath: path, OffsetBytes: info.Size(), SizeBytes: info.Size(), ModTime: info.ModTime()})
	}
	return nil
}

func (e *Engine) checkpointEvery() int {
	if e.CheckpointEvery <= 0 {
		return 500
	}
	return e.CheckpointEvery
}

func (e *Engine) checkpointPeriod() time.Duration {
	if e.CheckpointPeriod <= 0 {
		return 30 * time.Second
	}
	return e.CheckpointPeriod
}

func (e *Engine) reportProgress(cp *model.Checkpoint) {
	e.mu.Lock()
	elapsed := time.Since(cp.StartedAt).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(cp.RecordsDone) / elapsed
	}
	var eta time.Duration
	if rate > 0 && e.progress.FilesTotal > len(cp.FilesDone) {
		remaining := e.progress.FilesTotal - len(cp.FilesDone)
		avgRecordsPerFile := float64(cp.RecordsDone) / math.Max(1, float64(len(cp.FilesDone)+1))
		eta = time.Duration(float64(remaining)*avgRecordsPerFile/rate) * time.Second
	}
	e.progress = Progress{
		FilesTotal:  e.progress.FilesTotal,
		FilesDone:   len(cp.FilesDone),
		RecordsDone: cp.RecordsDone,
		TokensDone:  cp.TokensDone,
		RateRPS:     rate,
		ETA:         eta,
	}
	snapshot := e.progress
	e.mu.Unlock()

	if e.onProgress != nil {
		e.onProgress(snapshot)
	}
}

// validate runs post-processing reconciliation (spec §4.4 "Validation").
// Cross-validation against the live store is left to the caller (it
// requires a store round trip best done outside the hot processing loop);
// validate here enforces the structural-sanity invariants that can be
// checked from the checkpoint alone.
func (e *Engine) validate(cp *model.Checkpoint, valid []discovery.Entry) bool {
	if cp.RecordsDone < 0 || cp.TokensDone < 0 {
		return false
	}
	if len(cp.FilesDone) != len(valid) {
		e.log.Warn("migration: validation found incomplete file set", "done", len(cp.FilesDone), "total", len(valid))
		return false
	}
	return true
}

func filterValid(m *discovery.Manifest) []discovery.Entry {
	var out []discovery.Entry
	for _, e := range m.Entries {
		if e.Status == discovery.StatusValid {
			out = append(out, e)
		}
	}
	return out
}

var (
	messageColumns = []string{"message_uuid", "session_id", "timestamp", "role", "content_text", "content_preview", "content_sha256", "content_length", "model_name", "input_tokens", "output_tokens", "cost_usd", "cost_estimated"}
	fileColumns    = []string{"access_uuid", "session_id", "message_uuid", "timestamp", "file_path", "file_content", "file_sha256", "size_bytes", "extension", "operation", "file_type", "language"}
	toolColumns    = []string{"tool_uuid", "session_id", "message_uuid", "timestamp", "tool_name", "tool_input_json", "tool_output", "tool_error", "execution_ms", "exit_code", "output_type"}
)

func messageRow(m model.Message) store.Row {
	return store.Row{
		"message_uuid": m.MessageUUID, "session_id": m.SessionID, "timestamp": m.Timestamp,
		"role": string(m.Role), "content_text": m.ContentText, "content_preview": m.ContentPreview,
		"content_sha256": m.ContentSHA256, "content_length": m.ContentLength, "model_name": m.ModelName,
		"input_tokens": m.InputTokens, "output_tokens": m.OutputTokens, "cost_usd": m.CostUSD,
		"cost_estimated": m.CostEstimated,
	}
}

func fileRow(f model.FileAccess) store.Row {
	return store.Row{
		"access_uuid": f.AccessUUID, "session_id": f.SessionID, "message_uuid": f.MessageUUID,
		"timestamp": f.Timestamp, "file_path": f.FilePath, "file_content": f.FileContent,
		"file_sha256": f.FileSHA256, "size_bytes": f.SizeBytes, "extension": f.Extension,
		"operation": string(f.Operation), "file_type": string(f.FileType), "language": f.Language,
	}
}

func toolRow(t model.ToolExecution) store.Row {
	return store.Row{
		"tool_uuid": t.ToolUUID, "session_id": t.SessionID, "message_uuid": t.MessageUUID,
		"timestamp": t.Timestamp, "tool_name": t.ToolName, "tool_input_json": t.ToolInputJSON,
		"tool_output": t.ToolOutput, "tool_error": t.ToolError, "execution_ms": t.ExecutionMS,
		"exit_code": t.ExitCode, "output_type": string(t.OutputType),
	}
}

