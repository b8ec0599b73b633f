// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides Context Cleaner's structured logger: stderr by
// default (per Unix daemon convention), optionally teed to a rotating file
// under the data directory's logs/ subdirectory (spec §6 "Persisted state
// layout"). Built on log/slog; component/session/widget scoping is done
// via Logger.With, not a global mutable logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Level mirrors slog's four levels; kept as our own type so config.Config
// can parse it from a plain string without importing slog directly.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func (l Level) toSlog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config configures a Logger.
type Config struct {
	Level   Level
	LogDir  string // if non-empty, logs are also written to LogDir/<Component>_<date>.log
	Component string
}

// Logger wraps slog.Logger with an optional file sink and a Close method
// that flushes it.
type Logger struct {
	*slog.Logger
	file io.Closer
}

// New builds a Logger per cfg. If cfg.LogDir is set, a JSON file sink is
// created alongside a human-readable stderr sink.
func New(cfg Config) (*Logger, error) {
	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level.toSlog()}),
	}
	var closer io.Closer

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("logging: creating log dir: %w", err)
		}
		name := fmt.Sprintf("%s_%s.log", safeComponent(cfg.Component), time.Now().UTC().Format("20060102"))
		f, err := os.OpenFile(filepath.Join(cfg.LogDir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: opening log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: cfg.Level.toSlog()}))
		closer = f
	}

	base := slog.New(multiHandler(handlers))
	if cfg.Component != "" {
		base = base.With("component", cfg.Component)
	}
	return &Logger{Logger: base, file: closer}, nil
}

// Default returns a stderr-only Logger at info level, for tests and small
// tools that don't need file output.
func Default() *Logger {
	l, _ := New(Config{Level: LevelInfo})
	return l
}

// With returns a child Logger carrying additional structured fields
// (e.g. "session_id", "widget_kind") without mutating the receiver.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), file: l.file}
}

// Close flushes and closes the file sink, if any. Safe to call on a Logger
// built without a LogDir.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func safeComponent(s string) string {
	if s == "" {
		return "context-cleaner"
	}
	return s
}

// multiHandler fans out log records to every handler that accepts the
// record's level.
type fanOutHandler struct {
	handlers []slog.Handler
}

func multiHandler(hs []slog.Handler) slog.Handler {
	return &fanOutHandler{handlers: hs}
}

func (h *fanOutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanOutHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, hh := range h.handlers {
		if !hh.Enabled(ctx, r.Level) {
			continue
		}
		if err := hh.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *fanOutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithAttrs(attrs)
	}
	return &fanOutHandler{handlers: next}
}

func (h *fanOutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = hh.WithGroup(name)
	}
	return &fanOutHandler{handlers: next}
}
