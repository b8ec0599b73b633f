// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package redact applies privacy-level-scoped pattern redaction to
// transcript free-text fields before they enter a batch (spec §4.3.5).
package redact

import (
	"regexp"
	"sort"

	"github.com/contextcleaner/contextcleaner/internal/config"
)

// pattern is one named redaction rule.
type pattern struct {
	kind string // e.g. "EMAIL" -> replacement "[REDACTED_EMAIL]"
	re   *regexp.Regexp
}

func (p pattern) replacement() string { return "[REDACTED_" + p.kind + "]" }

// minimalPatterns: private keys, cloud keys, host-provider tokens (spec
// §4.3.5 level "minimal").
var minimalPatterns = []pattern{
	{"PRIVATE_KEY", regexp.MustCompile(`(?s)-----BEGIN\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE KEY-----.*?-----END\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE KEY-----`)},
	{"AWS_KEY", regexp.MustCompile(`\b(AKIA|ABIA|ACCA|ASIA)[A-Z0-9]{16}\b`)},
	{"GITHUB_TOKEN", regexp.MustCompile(`\bgh[ps]_[A-Za-z0-9]{36,}\b`)},
	{"SLACK_TOKEN", regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`)},
	{"GENERIC_API_KEY", regexp.MustCompile(`(?i)\b(api[_-]?key|secret[_-]?key)\s*[:=]\s*["']?([a-zA-Z0-9_\-]{16,})["']?`)},
}

// standardPatterns: minimal + emails, passwords, token fields.
var standardPatterns = []pattern{
	{"EMAIL", regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`)},
	{"PASSWORD_URL", regexp.MustCompile(`://[^\s:/@]+:([^\s@]+)@`)},
	{"TOKEN_FIELD", regexp.MustCompile(`(?i)\b(token|auth[_-]?token|bearer)\s*[:=]\s*["']?([A-Za-z0-9_\-\.]{12,})["']?`)},
	{"JWT", regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`)},
}

// strictPatterns: standard + phone, SSN, credit-card, any URL, home-dir paths.
var strictPatterns = []pattern{
	{"PHONE", regexp.MustCompile(`\b(?:\+1[\s\-]?)?\(?\d{3}\)?[\s\-]?\d{3}[\s\-]?\d{4}\b`)},
	{"SSN", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"CREDIT_CARD", regexp.MustCompile(`\b(?:\d[\s\-]?){13,16}\b`)},
	{"URL", regexp.MustCompile(`\bhttps?://[^\s)]+`)},
	{"HOME_PATH", regexp.MustCompile(`(/Users/[a-zA-Z0-9_\-.]+|/home/[a-zA-Z0-9_\-.]+)`)},
}

// RiskLevel is the coarse severity of a redaction analysis (spec §4.3.5).
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Detection is one (kind, count) pair in an Analysis.
type Detection struct {
	Kind  string
	Count int
}

// Analysis is the structured risk report returned alongside redacted text
// (spec §4.3.5).
type Analysis struct {
	ContainsPII         bool
	ContainsSecrets     bool
	ContainsCredentials bool
	RiskLevel           RiskLevel
	Detected            []Detection
}

// secretKinds and credentialKinds classify a detected pattern kind for the
// Analysis booleans; everything else (PII: email/phone/ssn/home path/url)
// sets ContainsPII.
var secretKinds = map[string]bool{
	"PRIVATE_KEY": true, "AWS_KEY": true, "GITHUB_TOKEN": true,
	"SLACK_TOKEN": true, "GENERIC_API_KEY": true, "JWT": true,
}
var credentialKinds = map[string]bool{
	"PASSWORD_URL": true, "TOKEN_FIELD": true,
}

// Redactor applies the pattern set for a configured privacy level.
type Redactor struct {
	level    config.PrivacyLevel
	patterns []pattern
}

// New builds a Redactor for the given privacy level (spec §4.3.5 table).
// An unrecognized level falls back to "strict", the safest default.
func New(level config.PrivacyLevel) *Redactor {
	var patterns []pattern
	switch level {
	case config.PrivacyMinimal:
		patterns = append(patterns, minimalPatterns...)
	case config.PrivacyStandard:
		patterns = append(patterns, minimalPatterns...)
		patterns = append(patterns, standardPatterns...)
	default:
		level = config.PrivacyStrict
		patterns = append(patterns, minimalPatterns...)
		patterns = append(patterns, standardPatterns...)
		patterns = append(patterns, strictPatterns...)
	}
	return &Redactor{level: level, patterns: patterns}
}

// Redact replaces every match of r's pattern set in s with its
// `[REDACTED_<KIND>]` marker and returns the redacted text plus a
// structured risk Analysis (spec §4.3.5).
func (r *Redactor) Redact(s string) (string, Analysis) {
	counts := make(map[string]int)
	out := s
	for _, p := range r.patterns {
		matches := p.re.FindAllString(out, -1)
		if len(matches) == 0 {
			continue
		}
		counts[p.kind] += len(matches)
		out = p.re.ReplaceAllString(out, p.replacement())
	}
	return out, buildAnalysis(counts)
}

func buildAnalysis(counts map[string]int) Analysis {
	var a Analysis
	var kinds []string
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		a.Detected = append(a.Detected, Detection{Kind: k, Count: counts[k]})
		if secretKinds[k] {
			a.ContainsSecrets = true
		} else if credentialKinds[k] {
			a.ContainsCredentials = true
		} else {
			a.ContainsPII = true
		}
	}

	total := 0
	for _, c := range counts {
		total += c
	}
	switch {
	case a.ContainsSecrets || a.ContainsCredentials:
		a.RiskLevel = RiskHigh
	case total > 0:
		a.RiskLevel = RiskMedium
	default:
		a.RiskLevel = RiskLow
	}
	return a
}
