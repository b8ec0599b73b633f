// Copyright (C) 2026 Context Cleaner Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package parser decodes a transcript line into Message, File-Access, and
// Tool-Execution records (spec §4.3.4, §6 "Transcript format").
package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/contextcleaner/contextcleaner/internal/model"
)

// rawLine mirrors the subset of the transcript wire shape this parser
// reads (spec §6); unknown fields are ignored.
type rawLine struct {
	UUID      string `json:"uuid"`
	SessionID string `json:"sessionId"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Message   *struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
		Model   string          `json:"model"`
		Usage   *struct {
			InputTokens              int64   `json:"input_tokens"`
			OutputTokens             int64   `json:"output_tokens"`
			CostUSD                  *float64 `json:"cost_usd"`
		} `json:"usage"`
	} `json:"message"`
	ToolUseResult *struct {
		File *struct {
			FilePath string `json:"filePath"`
			Content  string `json:"content"`
		} `json:"file"`
		Stdout   string `json:"stdout"`
		Stderr   string `json:"stderr"`
		ExitCode *int   `json:"exit_code"`
	} `json:"toolUseResult"`
}

// contentPart is one element of an ordered content sequence.
type contentPart struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	Name  string          `json:"name"`  // tool_use
	Input json.RawMessage `json:"input"` // tool_use
}

// Result is everything a single transcript line yields.
type Result struct {
	Message  *model.Message
	FileAcc  *model.FileAccess
	ToolExec *model.ToolExecution
}

// ErrSkipLine marks a malformed line that should be skipped and logged,
// not treated as a fatal parse failure (spec §7 "Decode").
var ErrSkipLine = fmt.Errorf("parser: malformed transcript line")

// ParseLine decodes one JSONL transcript line into up to three derived
// records (spec §4.3.4). A decode failure returns ErrSkipLine wrapped
// with the underlying cause; callers skip the line and continue.
func ParseLine(ctx context.Context, line []byte) (Result, error) {
	var raw rawLine
	if err := json.Unmarshal(line, &raw); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrSkipLine, err)
	}
	if raw.UUID == "" || raw.SessionID == "" {
		return Result{}, fmt.Errorf("%w: missing uuid/sessionId", ErrSkipLine)
	}

	ts, err := ParseTimestamp(raw.Timestamp)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrSkipLine, err)
	}
	millis := ts.UnixMilli()

	var res Result

	if raw.Message != nil && (raw.Type == "user" || raw.Type == "assistant") {
		content, langs, toolParts := reconstructContent(raw.Message.Content)
		role := model.RoleUser
		if raw.Type == "assistant" {
			role = model.RoleAssistant
		}
		msg := model.NewMessage(raw.UUID, raw.SessionID, millis, role, content)
		msg.Languages = langs
		if raw.Message.Model != "" {
			msg.ModelName = raw.Message.Model
		}
		if raw.Message.Usage != nil {
			msg.InputTokens = raw.Message.Usage.InputTokens
			msg.OutputTokens = raw.Message.Usage.OutputTokens
			if raw.Message.Usage.CostUSD != nil {
				msg.CostUSD = *raw.Message.Usage.CostUSD
			} else {
				msg.CostEstimated = true
			}
		} else {
			msg.CostEstimated = true
		}
		res.Message = &msg

		// A tool_use part combined with the sibling toolUseResult yields
		// a Tool-Execution Record (spec §4.3.4).
		if len(toolParts) > 0 && raw.ToolUseResult != nil {
			tp := toolParts[0]
			inputJSON, _ := json.Marshal(json.RawMessage(tp.Input))
			exitCode := 0
			if raw.ToolUseResult.ExitCode != nil {
				exitCode = *raw.ToolUseResult.ExitCode
			}
			out := raw.ToolUseResult.Stdout
			outType := classifyOutput(out, raw.ToolUseResult.Stderr)
			exec := model.NewToolExecution(raw.UUID+":tool", raw.SessionID, raw.UUID, millis,
				tp.Name, string(inputJSON), out, raw.ToolUseResult.Stderr, 0, exitCode, outType)
			res.ToolExec = &exec
		}
	}

	if raw.ToolUseResult != nil && raw.ToolUseResult.File != nil {
		f := raw.ToolUseResult.File
		fa := model.NewFileAccess(raw.UUID+":file", raw.SessionID, raw.UUID, millis, f.FilePath, f.Content, model.OpRead)
		fa.Extension = strings.ToLower(filepath.Ext(f.FilePath))
		fa.Language = DetectLanguage(fa.Extension, f.Content)
		fa.FileType = classifyFileType(f.FilePath, fa.Extension)
		res.FileAcc = &fa
	}

	_ = ctx
	return res, nil
}

// ParseTimestamp parses an ISO-8601 timestamp, treating a trailing "Z" as
// UTC (spec §4.3.4).
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}

func classifyOutput(stdout, stderr string) model.OutputType {
	if stderr != "" {
		return model.OutputError
	}
	trimmed := strings.TrimSpace(stdout)
	switch {
	case trimmed == "":
		return model.OutputEmpty
	case strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "["):
		var js any
		if json.Unmarshal([]byte(trimmed), &js) == nil {
			return model.OutputJSON
		}
	case strings.HasPrefix(trimmed, "<"):
		return model.OutputXML
	}
	return model.OutputCommandOutput
}

var fencedCodeBlock = regexp.MustCompile("```([a-zA-Z0-9_+-]*)\\n")

// keywordSets recognizes a handful of common languages by a small set of
// near-unique keywords appearing in free text (spec §4.3.4 "Programming
// languages are detected by ... language-specific keyword sets").
var keywordSets = map[string][]string{
	"go":         {"func ", "package ", ":= ", "chan "},
	"python":     {"def ", "import ", "self.", "elif "},
	"javascript": {"const ", "=>", "require(", "function "},
	"typescript": {"interface ", ": string", ": number", "implements "},
	"rust":       {"fn ", "let mut ", "impl ", "::"},
	"bash":       {"#!/bin/bash", "#!/bin/sh", "fi\n", "echo "},
}

// reconstructContent concatenates text parts in order, appends a tool-use
// marker for each tool_use part, and detects languages from fenced code
// blocks and keyword sets, deduplicated in first-seen order (spec §4.3.4).
func reconstructContent(raw json.RawMessage) (string, []string, []contentPart) {
	var asString string
	if json.Unmarshal(raw, &asString) == nil {
		langs := detectTextLanguages(asString)
		return asString, langs, nil
	}

	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", nil, nil
	}

	var sb strings.Builder
	var toolParts []contentPart
	for _, p := range parts {
		switch p.Type {
		case "text":
			sb.WriteString(p.Text)
		case "tool_use":
			pretty, err := prettyJSON(p.Input)
			if err != nil {
				pretty = string(p.Input)
			}
			fmt.Fprintf(&sb, "\n[TOOL_USE: %s]\nInput: %s\n", p.Name, pretty)
			toolParts = append(toolParts, p)
		}
	}
	content := sb.String()
	return content, detectTextLanguages(content), toolParts
}

func prettyJSON(raw json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	out, err := json.MarshalIndent(v, "", "  ")
	return string(out), err
}

func detectTextLanguages(content string) []string {
	seen := make(map[string]bool)
	var langs []string
	add := func(lang string) {
		if !seen[lang] {
			seen[lang] = true
			langs = append(langs, lang)
		}
	}

	for _, m := range fencedCodeBlock.FindAllStringSubmatch(content, -1) {
		if m[1] != "" {
			add(normalizeTag(m[1]))
		}
	}
	for lang, keywords := range keywordSets {
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(content, kw) {
				hits++
			}
		}
		if hits >= 2 {
			add(lang)
		}
	}
	return langs
}

func normalizeTag(tag string) string {
	switch strings.ToLower(tag) {
	case "js":
		return "javascript"
	case "ts":
		return "typescript"
	case "py":
		return "python"
	case "sh", "shell":
		return "bash"
	default:
		return strings.ToLower(tag)
	}
}

// extensionLanguages is the primary, authoritative extension → language
// map (spec §4.3.4 "Extension map drives language detection").
var extensionLanguages = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".rs":   "rust",
	".rb":   "ruby",
	".java": "java",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".sh":   "bash",
	".bash": "bash",
}

// ambiguousExtensions have no single authoritative language and fall
// through to content-heuristic detection.
var ambiguousExtensions = map[string]bool{
	"":      true,
	".txt":  true,
	".conf": true,
	".cfg":  true,
}

// contentGrammars are the tree-sitter grammars used to disambiguate
// content whose extension does not determine language: the candidate
// that parses with the fewest ERROR nodes wins (spec §4.3.4).
var contentGrammars = map[string]*sitter.Language{
	"go":         golang.GetLanguage(),
	"python":     python.GetLanguage(),
	"javascript": javascript.GetLanguage(),
	"bash":       bash.GetLanguage(),
}

// DetectLanguage determines a File-Access Record's language: the
// extension map first, content heuristics for ambiguous extensions
// (spec §4.3.4).
func DetectLanguage(extension, content string) string {
	if lang, ok := extensionLanguages[extension]; ok {
		return lang
	}
	if !ambiguousExtensions[extension] {
		// Unknown but non-ambiguous extension (e.g. a novel file type):
		// still attempt a content heuristic rather than giving up.
	}
	if strings.TrimSpace(content) == "" {
		return ""
	}
	return detectLanguageByParsing(content)
}

// detectLanguageByParsing attempts every candidate grammar and returns the
// one producing the fewest tree-sitter ERROR nodes, grounded on the
// rootNode.HasError() check used elsewhere in the corpus's AST tooling.
func detectLanguageByParsing(content string) string {
	best := ""
	bestErrors := -1
	src := []byte(content)

	for lang, grammar := range contentGrammars {
		p := sitter.NewParser()
		p.SetLanguage(grammar)
		tree, err := p.ParseCtx(context.Background(), nil, src)
		if err != nil || tree == nil {
			continue
		}
		errCount := countErrorNodes(tree.RootNode())
		if bestErrors == -1 || errCount < bestErrors {
			best = lang
			bestErrors = errCount
		}
	}
	return best
}

const nodeTypeError = "ERROR"

func countErrorNodes(n *sitter.Node) int {
	if n == nil {
		return 0
	}
	count := 0
	if n.Type() == nodeTypeError || n.IsMissing() {
		count++
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		count += countErrorNodes(n.Child(i))
	}
	return count
}

// configPatterns and docPatterns drive file-type classification by path
// (spec §4.3.4 "File type is derived by path patterns").
var (
	configPatterns = []string{".yaml", ".yml", ".toml", ".ini", ".conf", ".cfg", ".env"}
	docPatterns    = []string{".md", ".rst", ".adoc", ".txt"}
	dataPatterns   = []string{".json", ".csv", ".tsv", ".parquet", ".xml"}
)

func classifyFileType(path, extension string) model.FileType {
	base := strings.ToLower(filepath.Base(path))
	if base == "dockerfile" || strings.HasPrefix(base, "makefile") {
		return model.FileTypeConfig
	}
	if extensionLanguages[extension] != "" {
		return model.FileTypeCode
	}
	if contains(configPatterns, extension) {
		return model.FileTypeConfig
	}
	if contains(docPatterns, extension) {
		return model.FileTypeDocumentation
	}
	if contains(dataPatterns, extension) {
		return model.FileTypeData
	}
	return model.FileTypeText
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// FormatExitCode renders an exit code for display/log contexts where the
// model's int is embedded in a free-text string.
func FormatExitCode(code int) string { return strconv.Itoa(code) }
