// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/contextcleaner/contextcleaner/internal/ingest/discovery"
	"github.com/contextcleaner/contextcleaner/internal/migration"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run the one-shot historical migration over existing transcripts",
	Long: `Scans the configured projects directory for JSONL transcripts, then
parses, redacts, and bulk-loads every admitted file into the analytic
store, checkpointing progress so the run can resume after interruption.`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	manifest, err := discovery.Scan(discovery.Options{
		AllowedRoots: []string{a.cfg.ProjectsDir},
		Patterns:     []string{"*.jsonl"},
		MaxFileSize:  a.cfg.MaxFileSizeBytes,
	})
	if err != nil {
		return fmt.Errorf("scanning %s: %w", a.cfg.ProjectsDir, err)
	}
	a.log.Info("migrate: discovered files", "count", len(manifest.Entries))

	engine := migration.New(a.checkpoints, a.cursors, a.store, a.redactor, a.log)
	engine.OnProgress(func(p migration.Progress) {
		a.log.Info("migrate: progress", "done", p.FilesDone, "total", p.FilesTotal, "eta", p.ETA)
	})

	report, err := engine.Run(cmd.Context(), uuid.NewString(), manifest)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	a.log.Info("migrate: complete",
		"files_done", report.FilesDone,
		"files_total", report.FilesTotal,
		"records_done", report.RecordsDone,
		"validation_ok", report.ValidationOK,
		"errors", len(report.Errors),
	)
	return nil
}
