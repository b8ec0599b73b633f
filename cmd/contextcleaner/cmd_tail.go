// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/contextcleaner/contextcleaner/internal/breaker"
	"github.com/contextcleaner/contextcleaner/internal/ingest/batch"
	"github.com/contextcleaner/contextcleaner/internal/ingest/parser"
	"github.com/contextcleaner/contextcleaner/internal/ingest/redact"
	"github.com/contextcleaner/contextcleaner/internal/ingest/tail"
	"github.com/contextcleaner/contextcleaner/internal/logging"
	"github.com/contextcleaner/contextcleaner/internal/store"
)

var tailRescanInterval time.Duration

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Incrementally tail session transcripts in the foreground",
	Long: `Watches the configured projects directory for new and growing JSONL
transcripts, parsing, redacting, and bulk-loading each newly appended
line as it lands. Runs until interrupted (SIGINT/SIGTERM).`,
	RunE: runTail,
}

func init() {
	tailCmd.Flags().DurationVar(&tailRescanInterval, "rescan-interval", 5*time.Second,
		"how often to rescan the projects directory for new files")
}

func runTail(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	retry := breaker.NewRetryPolicy(breaker.New(breaker.Config{
		Name: "tail-ingest", FailureThreshold: 3, RecoveryTimeout: 30 * time.Second,
	}))
	messages := batch.NewQueue("messages", []string{"session_id", "content_text"}, a.store, retry, 5*time.Second, a.log)
	go messages.Run(cmd.Context())

	t := tail.New(a.cursors, tailSink(messages, a.redactor, a.log), a.log)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a.log.Info("tail: watching", "root", a.cfg.ProjectsDir, "interval", tailRescanInterval)
	if err := t.Watch(ctx, []string{a.cfg.ProjectsDir}, tailRescanInterval); err != nil {
		return fmt.Errorf("tail: %w", err)
	}
	return nil
}

// tailSink parses each appended line, redacts any message content it
// carries, and enqueues it onto q. Malformed lines are logged and
// skipped rather than stalling the cursor (spec §4.3.4, §4.3.7).
func tailSink(q *batch.Queue, redactor *redact.Redactor, log *logging.Logger) tail.Sink {
	return func(ctx context.Context, filePath string, line []byte) error {
		res, err := parser.ParseLine(ctx, line)
		if err != nil {
			log.Warn("tail: skipping malformed line", "path", filePath, "error", err)
			return nil
		}
		if res.Message == nil {
			return nil
		}
		text, _ := redactor.Redact(res.Message.ContentText)
		return q.Add(ctx, store.Row{"session_id": res.Message.SessionID, "content_text": text})
	}
}
