// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and validates Context Cleaner's runtime
// configuration from environment variables (spec §6) with an optional
// YAML override file, in the teacher's plain-struct-with-tags style.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// PrivacyLevel is the configured redaction aggressiveness (spec §4.3.5).
type PrivacyLevel string

const (
	PrivacyMinimal  PrivacyLevel = "minimal"
	PrivacyStandard PrivacyLevel = "standard"
	PrivacyStrict   PrivacyLevel = "strict"
)

func (p PrivacyLevel) valid() bool {
	switch p {
	case PrivacyMinimal, PrivacyStandard, PrivacyStrict:
		return true
	default:
		return false
	}
}

// Config is Context Cleaner's full runtime configuration.
type Config struct {
	DataDir      string       `yaml:"data_dir"`
	ProjectsDir  string       `yaml:"projects_dir"`
	PrivacyLevel PrivacyLevel `yaml:"privacy_level"`
	StoreURL     string       `yaml:"store_url"`
	PortRangeLow  int         `yaml:"port_range_low"`
	PortRangeHigh int         `yaml:"port_range_high"`

	OTLPEndpoint string `yaml:"otlp_endpoint"`

	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes"`
	LogLevel         string `yaml:"log_level"`
}

// Default returns a Config with the defaults named throughout spec.md,
// before environment/file overrides are applied.
func Default() Config {
	return Config{
		DataDir:          defaultDataDir(),
		PrivacyLevel:     PrivacyStandard,
		StoreURL:         "http://127.0.0.1:8123",
		PortRangeLow:     9000,
		PortRangeHigh:    9099,
		OTLPEndpoint:     "127.0.0.1:4317",
		MaxFileSizeBytes: 100 * 1024 * 1024,
		LogLevel:         "info",
	}
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".context-cleaner")
	}
	return ".context-cleaner"
}

// Load builds a Config from defaults, an optional YAML file named by
// CONTEXT_CLEANER_CONFIG_FILE, then environment variables (highest
// precedence), and validates the result.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONTEXT_CLEANER_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CONTEXT_CLEANER_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("CONTEXT_CLEANER_PROJECTS_DIR"); v != "" {
		cfg.ProjectsDir = v
	}
	if v := os.Getenv("CONTEXT_CLEANER_PRIVACY_LEVEL"); v != "" {
		cfg.PrivacyLevel = PrivacyLevel(v)
	}
	if v := os.Getenv("CONTEXT_CLEANER_STORE_URL"); v != "" {
		cfg.StoreURL = v
	}
	if v := os.Getenv("CONTEXT_CLEANER_PORT_RANGE"); v != "" {
		var lo, hi int
		if _, err := fmt.Sscanf(v, "%d-%d", &lo, &hi); err == nil {
			cfg.PortRangeLow, cfg.PortRangeHigh = lo, hi
		}
	}
}

// Validate enforces the constraints spec.md assigns each field; failures
// here are fatal at startup (exit code 64, spec §6, §7).
func (c Config) Validate() error {
	if c.ProjectsDir == "" {
		return fmt.Errorf("config: CONTEXT_CLEANER_PROJECTS_DIR is required")
	}
	if info, err := os.Stat(c.ProjectsDir); err != nil || !info.IsDir() {
		return fmt.Errorf("config: projects dir %q is not an accessible directory", c.ProjectsDir)
	}
	if !c.PrivacyLevel.valid() {
		return fmt.Errorf("config: unknown privacy level %q", c.PrivacyLevel)
	}
	if _, err := url.ParseRequestURI(c.StoreURL); err != nil {
		return fmt.Errorf("config: invalid store url %q: %w", c.StoreURL, err)
	}
	if c.PortRangeLow <= 0 || c.PortRangeHigh <= 0 || c.PortRangeLow > c.PortRangeHigh {
		return fmt.Errorf("config: invalid port range [%d, %d]", c.PortRangeLow, c.PortRangeHigh)
	}
	if c.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("config: max_file_size_bytes must be positive")
	}
	return nil
}
