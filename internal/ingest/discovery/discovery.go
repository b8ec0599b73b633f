// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package discovery implements secure path handling and filesystem
// discovery for the JSONL ingest pipeline (spec §4.3.1, §4.3.2): path
// canonicalization and root confinement, file admission rules, and the
// classified, prioritized manifest consumed by the tailer and the
// migration engine.
package discovery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Errors returned by path validation (spec §7 "PathSecurity").
var (
	ErrPathTraversal = errors.New("discovery: path escapes allowed roots")
	ErrNotRegular    = errors.New("discovery: not a regular, readable file")
	ErrFileTooLarge  = errors.New("discovery: file exceeds max_file_size")
)

// DefaultMaxFileSize is the default admission ceiling (spec §4.3.1).
const DefaultMaxFileSize int64 = 100 * 1024 * 1024

// Status is the per-file classification in the manifest (spec §4.3.2).
type Status string

const (
	StatusValid      Status = "valid"
	StatusTooLarge   Status = "too_large"
	StatusUnreadable Status = "unreadable"
	StatusCorrupt    Status = "corrupt"
)

// Entry is one file in the manifest.
type Entry struct {
	Path     string
	Status   Status
	SizeBytes int64
	ModTime  time.Time
	Priority float64 // higher sorts first
}

// Manifest is the discovered, classified, prioritized file list feeding
// migration and bootstrapping (spec §4.3.2, GLOSSARY).
type Manifest struct {
	Entries []Entry
}

// CanonicalizeUnder resolves path and confirms it is contained within one
// of allowedRoots after resolving symlinks and ".." segments, rejecting
// traversal attempts per spec §4.3.1. allowedRoots must already be
// absolute, canonical paths.
func CanonicalizeUnder(path string, allowedRoots []string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPathTraversal, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// The file may not exist yet (e.g. a candidate about to be
		// created); fall back to the lexically cleaned absolute path.
		resolved = filepath.Clean(abs)
	}

	for _, root := range allowedRoots {
		rel, err := filepath.Rel(root, resolved)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return resolved, nil
		}
	}
	return "", ErrPathTraversal
}

// Admit checks the admission rules (spec §4.3.1): regular file, readable,
// and at most maxFileSize bytes. maxFileSize <= 0 uses DefaultMaxFileSize.
// The boundary is inclusive: a file of exactly maxFileSize bytes is
// admitted (spec §8).
func Admit(path string, maxFileSize int64) (os.FileInfo, error) {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotRegular, err)
	}
	if !info.Mode().IsRegular() {
		return nil, ErrNotRegular
	}
	if info.Size() > maxFileSize {
		return nil, ErrFileTooLarge
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotRegular, err)
	}
	_ = f.Close()
	return info, nil
}

// Options configures a Scan.
type Options struct {
	AllowedRoots []string
	Patterns     []string // glob patterns matched against base name, e.g. "*.jsonl"
	MaxFileSize  int64
}

// Scan recursively walks every root in opts.AllowedRoots, classifying and
// prioritizing every file matching opts.Patterns into a Manifest (spec
// §4.3.2). Traversal errors on individual entries are recorded as
// StatusUnreadable/StatusCorrupt rather than aborting the whole scan.
func Scan(opts Options) (*Manifest, error) {
	if len(opts.Patterns) == 0 {
		opts.Patterns = []string{"*.jsonl"}
	}

	var entries []Entry
	for _, root := range opts.AllowedRoots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		err = filepath.Walk(absRoot, func(path string, info os.FileInfo, walkErr error) error {
			if walkErr != nil {
				entries = append(entries, Entry{Path: path, Status: StatusUnreadable})
				return nil
			}
			if info.IsDir() {
				return nil
			}
			if !matchesAny(info.Name(), opts.Patterns) {
				return nil
			}

			canon, err := CanonicalizeUnder(path, opts.AllowedRoots)
			if err != nil {
				return nil // silently excluded: not a discovery error, just out of scope
			}

			status := StatusValid
			if _, admitErr := Admit(canon, opts.MaxFileSize); admitErr != nil {
				switch {
				case errors.Is(admitErr, ErrFileTooLarge):
					status = StatusTooLarge
				default:
					status = StatusUnreadable
				}
			}

			entries = append(entries, Entry{
				Path:      canon,
				Status:    status,
				SizeBytes: info.Size(),
				ModTime:   info.ModTime(),
			})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("discovery: scanning %s: %w", root, err)
		}
	}

	assignPriority(entries)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Priority > entries[j].Priority })
	return &Manifest{Entries: entries}, nil
}

func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

// assignPriority scores by recency and size: more recent and smaller
// files process first, so a migration backfill surfaces fresh sessions
// quickly without large files starving the worker pool.
func assignPriority(entries []Entry) {
	if len(entries) == 0 {
		return
	}
	newest := entries[0].ModTime
	for _, e := range entries {
		if e.ModTime.After(newest) {
			newest = e.ModTime
		}
	}
	for i := range entries {
		ageSeconds := newest.Sub(entries[i].ModTime).Seconds()
		recencyScore := 1.0 / (1.0 + ageSeconds/3600.0)
		sizeScore := 1.0 / (1.0 + float64(entries[i].SizeBytes)/float64(1<<20))
		entries[i].Priority = recencyScore*0.7 + sizeScore*0.3
	}
}
