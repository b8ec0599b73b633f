// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package model defines the stored and transient record shapes ingested
// and produced by Context Cleaner, per spec §3. Every constructor enforces
// the invariants called out there (content length/hash/preview, success
// iff no tool error, token arithmetic) so a malformed record cannot be
// built in the first place.
package model

import (
	"crypto/sha256"
	"encoding/hex"
)

// previewLimit is the maximum length of a stored content preview (spec §3).
const previewLimit = 200

// Role is the speaker of a Message Record.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// FileOperation is how a File-Access Record touched its file.
type FileOperation string

const (
	OpRead  FileOperation = "read"
	OpWrite FileOperation = "write"
	OpEdit  FileOperation = "edit"
)

// FileType classifies a File-Access Record by path pattern (spec §4.3.4).
type FileType string

const (
	FileTypeCode          FileType = "code"
	FileTypeConfig        FileType = "config"
	FileTypeData          FileType = "data"
	FileTypeDocumentation FileType = "documentation"
	FileTypeText          FileType = "text"
)

// OutputType classifies a Tool-Execution Record's output shape.
type OutputType string

const (
	OutputText          OutputType = "text"
	OutputJSON           OutputType = "json"
	OutputXML            OutputType = "xml"
	OutputError          OutputType = "error"
	OutputFileContent    OutputType = "file_content"
	OutputCommandOutput  OutputType = "command_output"
	OutputFileOperation  OutputType = "file_operation"
	OutputEmpty          OutputType = "empty"
)

// Message is the stored Message Record (spec §3).
type Message struct {
	MessageUUID   string
	SessionID     string
	Timestamp     int64 // unix millis UTC
	Role          Role
	ContentText   string
	ContentPreview string
	ContentSHA256 string
	ContentLength int
	ModelName     string
	InputTokens   int64
	OutputTokens  int64
	CostUSD       float64
	CostEstimated bool // true when upstream omitted usage.cost_usd (spec §12)
	Languages     []string
}

// NewMessage builds a Message with content-derived fields computed
// (length, sha256, preview) so callers cannot construct an inconsistent
// record. languages is copied and de-duplicated in caller order.
func NewMessage(messageUUID, sessionID string, timestampMillis int64, role Role, content string) Message {
	return Message{
		MessageUUID:    messageUUID,
		SessionID:      sessionID,
		Timestamp:      timestampMillis,
		Role:           role,
		ContentText:    content,
		ContentPreview: Preview(content),
		ContentSHA256:  SHA256Hex(content),
		ContentLength:  len(content),
	}
}

// Preview returns the first previewLimit bytes of s, a pure prefix per
// spec §3 and the round-trip law in spec §8.
func Preview(s string) string {
	if len(s) <= previewLimit {
		return s
	}
	return s[:previewLimit]
}

// SHA256Hex returns the lowercase hex SHA-256 digest of s.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// FileAccess is the stored File-Access Record (spec §3). The store
// deduplicates on (FilePath, FileSHA256), replacing on key, so the most
// recently ingested timestamp for a given content hash wins (spec §8
// scenario 3).
type FileAccess struct {
	AccessUUID  string
	SessionID   string
	MessageUUID string
	Timestamp   int64
	FilePath    string
	FileContent string
	FileSHA256  string
	SizeBytes   int64
	Extension   string
	Operation   FileOperation
	FileType    FileType
	Language    string
}

// NewFileAccess builds a FileAccess with SizeBytes and FileSHA256 derived
// from content.
func NewFileAccess(accessUUID, sessionID, messageUUID string, timestampMillis int64, filePath, content string, op FileOperation) FileAccess {
	return FileAccess{
		AccessUUID:  accessUUID,
		SessionID:   sessionID,
		MessageUUID: messageUUID,
		Timestamp:   timestampMillis,
		FilePath:    filePath,
		FileContent: content,
		FileSHA256:  SHA256Hex(content),
		SizeBytes:   int64(len(content)),
		Operation:   op,
	}
}

// DedupKey returns the (file_path, file_sha256) key the store replaces on.
func (f FileAccess) DedupKey() string { return f.FilePath + "\x00" + f.FileSHA256 }

// ToolExecution is the stored Tool-Execution Record (spec §3). Success is
// derived, never set directly, to preserve the invariant
// "success iff |tool_error| = 0".
type ToolExecution struct {
	ToolUUID      string
	SessionID     string
	MessageUUID   string
	Timestamp     int64
	ToolName      string
	ToolInputJSON string
	ToolOutput    string
	ToolError     string
	ExecutionMS   int64
	ExitCode      int
	OutputType    OutputType
}

// NewToolExecution builds a ToolExecution record.
func NewToolExecution(toolUUID, sessionID, messageUUID string, timestampMillis int64, toolName, inputJSON, output, toolErr string, executionMS int64, exitCode int, outputType OutputType) ToolExecution {
	return ToolExecution{
		ToolUUID:      toolUUID,
		SessionID:     sessionID,
		MessageUUID:   messageUUID,
		Timestamp:     timestampMillis,
		ToolName:      toolName,
		ToolInputJSON: inputJSON,
		ToolOutput:    output,
		ToolError:     toolErr,
		ExecutionMS:   executionMS,
		ExitCode:      exitCode,
		OutputType:    outputType,
	}
}

// Success reports whether the tool call completed without error, per the
// invariant success ⇔ |tool_error| = 0.
func (t ToolExecution) Success() bool { return t.ToolError == "" }

// SessionTokenMetrics is the derived, stored Session Token Metrics row
// (spec §3). CalculatedTotal and AccuracyRatio are computed by Compute,
// never set directly, so the `calculated_total = Σ reported_*` invariant
// cannot be violated.
type SessionTokenMetrics struct {
	SessionID                  string
	ReportedInputTokens        int64
	ReportedOutputTokens       int64
	ReportedCacheCreationTokens int64
	ReportedCacheReadTokens    int64
	CalculatedTotalTokens      int64
	AccuracyRatio              float64
	UndercountPct              float64
	FilesProcessed             int64
	ProcessingMS               int64
}

// Compute derives CalculatedTotalTokens and AccuracyRatio from the
// reported_* fields and an independently observed total (e.g. summed from
// Message Records), clamping AccuracyRatio to [0, 2] per spec §3.
func Compute(reportedInput, reportedOutput, reportedCacheCreate, reportedCacheRead, observedTotal int64) SessionTokenMetrics {
	calculated := reportedInput + reportedOutput + reportedCacheCreate + reportedCacheRead
	var ratio float64
	if observedTotal > 0 {
		ratio = float64(calculated) / float64(observedTotal)
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 2 {
		ratio = 2
	}
	var undercount float64
	if observedTotal > 0 && calculated < observedTotal {
		undercount = 100 * float64(observedTotal-calculated) / float64(observedTotal)
	}
	return SessionTokenMetrics{
		ReportedInputTokens:         reportedInput,
		ReportedOutputTokens:        reportedOutput,
		ReportedCacheCreationTokens: reportedCacheCreate,
		ReportedCacheReadTokens:     reportedCacheRead,
		CalculatedTotalTokens:       calculated,
		AccuracyRatio:               ratio,
		UndercountPct:               undercount,
	}
}

// ContextRot is the stored Context-Rot Measurement (spec §3).
type ContextRot struct {
	Timestamp         int64
	SessionID         string
	RotScore          float64 // [0,1]
	Confidence        float64 // [0,1]
	IndicatorBreakdown map[string]float64
	RequiresAttention bool
}
