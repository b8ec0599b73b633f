package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contextcleaner/contextcleaner/internal/model"
)

func TestParseLine_SimpleUserMessage(t *testing.T) {
	line := []byte(`{"uuid":"u1","sessionId":"s1","timestamp":"2026-01-01T00:00:00Z","type":"user","message":{"role":"user","content":"hello world"}}`)
	res, err := ParseLine(context.Background(), line)
	require.NoError(t, err)
	require.NotNil(t, res.Message)
	assert.Equal(t, "hello world", res.Message.ContentText)
	assert.Equal(t, model.RoleUser, res.Message.Role)
	assert.True(t, res.Message.CostEstimated)
}

func TestParseLine_ToolUsePartAppendsMarkerAndProducesToolExecution(t *testing.T) {
	line := []byte(`{"uuid":"u2","sessionId":"s1","timestamp":"2026-01-01T00:00:01Z","type":"assistant",` +
		`"message":{"role":"assistant","content":[{"type":"text","text":"running it"},` +
		`{"type":"tool_use","name":"Bash","input":{"command":"ls"}}]},` +
		`"toolUseResult":{"stdout":"a.go\n","stderr":""}}`)

	res, err := ParseLine(context.Background(), line)
	require.NoError(t, err)
	require.NotNil(t, res.Message)
	assert.Contains(t, res.Message.ContentText, "[TOOL_USE: Bash]")
	assert.Contains(t, res.Message.ContentText, `"command": "ls"`)

	require.NotNil(t, res.ToolExec)
	assert.Equal(t, "Bash", res.ToolExec.ToolName)
	assert.True(t, res.ToolExec.Success())
}

func TestParseLine_FileAccessFromToolUseResult(t *testing.T) {
	line := []byte(`{"uuid":"u3","sessionId":"s1","timestamp":"2026-01-01T00:00:02Z",` +
		`"toolUseResult":{"file":{"filePath":"/repo/main.go","content":"package main\nfunc main() {}\n"}}}`)

	res, err := ParseLine(context.Background(), line)
	require.NoError(t, err)
	require.NotNil(t, res.FileAcc)
	assert.Equal(t, "go", res.FileAcc.Language)
	assert.Equal(t, model.FileTypeCode, res.FileAcc.FileType)
	assert.Equal(t, ".go", res.FileAcc.Extension)
}

func TestParseLine_MalformedJSONIsSkipped(t *testing.T) {
	_, err := ParseLine(context.Background(), []byte(`not json`))
	require.ErrorIs(t, err, ErrSkipLine)
}

func TestParseTimestamp_TreatsZAsUTC(t *testing.T) {
	ts, err := ParseTimestamp("2026-03-05T12:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, 0, ts.Nanosecond())
	assert.Equal(t, "UTC", ts.Location().String())
}

func TestDetectLanguage_ExtensionMapTakesPriority(t *testing.T) {
	assert.Equal(t, "python", DetectLanguage(".py", "whatever content"))
}

func TestDetectLanguage_ContentHeuristicForAmbiguousExtension(t *testing.T) {
	goSrc := "package main\n\nfunc main() {\n\tprintln(\"hi\")\n}\n"
	assert.Equal(t, "go", DetectLanguage("", goSrc))
}

func TestDetectTextLanguages_FencedCodeBlockAndKeywords(t *testing.T) {
	content := "some notes\n```python\ndef f():\n    return 1\n```\n"
	langs := detectTextLanguages(content)
	assert.Contains(t, langs, "python")
}
