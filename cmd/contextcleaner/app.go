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
	"path/filepath"
	"time"

	"github.com/contextcleaner/contextcleaner/internal/breaker"
	"github.com/contextcleaner/contextcleaner/internal/config"
	"github.com/contextcleaner/contextcleaner/internal/ingest/redact"
	"github.com/contextcleaner/contextcleaner/internal/logging"
	"github.com/contextcleaner/contextcleaner/internal/metrics"
	"github.com/contextcleaner/contextcleaner/internal/state"
	"github.com/contextcleaner/contextcleaner/internal/store"
)

// app bundles the handles every subcommand needs, built once from the
// loaded Config. Callers are responsible for calling close() before exit.
type app struct {
	cfg         config.Config
	log         *logging.Logger
	store       store.Client
	stateStore  *state.Store
	cursors     *state.CursorStore
	checkpoints *state.CheckpointStore
	registry    *state.Registry
	redactor    *redact.Redactor
	metrics     *metrics.Provider
}

// newApp loads configuration and wires up the store client, local state,
// and redactor shared by every subcommand, in the teacher's
// PersistentPreRun bootstrap style.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logging.New(logging.Config{Level: logging.Level(cfg.LogLevel), LogDir: filepath.Join(cfg.DataDir, "logs"), Component: "contextcleaner"})
	if err != nil {
		return nil, err
	}

	st, err := state.Open(cfg.DataDir, nil)
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	var client store.Client
	if cfg.StoreURL == "" {
		client = store.Stub{}
	} else {
		br := breaker.New(breaker.Config{Name: "store", FailureThreshold: 3, RecoveryTimeout: 30 * time.Second})
		client = store.NewHTTPClient(cfg.StoreURL, br)
	}

	mp, err := metrics.Setup(context.Background(), "contextcleaner", cfg.OTLPEndpoint)
	if err != nil {
		log.Warn("metrics: setup failed, continuing without a scrape endpoint", "error", err)
	}

	return &app{
		cfg:         cfg,
		log:         log,
		store:       client,
		stateStore:  st,
		cursors:     state.NewCursorStore(st),
		checkpoints: state.NewCheckpointStore(st),
		registry:    state.NewRegistry(st),
		redactor:    redact.New(cfg.PrivacyLevel),
		metrics:     mp,
	}, nil
}

func (a *app) close() {
	if a.metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.metrics.Shutdown(shutdownCtx)
	}
	_ = a.stateStore.Close()
	_ = a.log.Close()
}
