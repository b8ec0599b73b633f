// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "contextcleaner",
	Short: "Context Cleaner: ingest, migrate, and serve Claude Code session analytics",
	Long: `Context Cleaner tails and migrates Claude Code JSONL transcripts into
a columnar store, bridges the agent's OTLP telemetry feed, and serves
dashboard widgets behind a small service orchestrator.`,
}

func main() {
	rootCmd.AddCommand(serveCmd, migrateCmd, tailCmd, doctorCmd)
	if err := rootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
