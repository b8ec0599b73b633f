package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMessage_Invariants(t *testing.T) {
	content := strings.Repeat("a", 500)
	m := NewMessage("msg-1", "sess-1", 1000, RoleUser, content)

	assert.Equal(t, len(content), m.ContentLength)
	assert.Equal(t, SHA256Hex(content), m.ContentSHA256)
	assert.True(t, strings.HasPrefix(content, m.ContentPreview))
	assert.Len(t, m.ContentPreview, previewLimit)
}

func TestPreview_ShortContentUnchanged(t *testing.T) {
	assert.Equal(t, "short", Preview("short"))
}

func TestToolExecution_SuccessDerivedFromError(t *testing.T) {
	ok := NewToolExecution("t1", "s1", "m1", 0, "Read", "{}", "out", "", 10, 0, OutputText)
	assert.True(t, ok.Success())

	failed := NewToolExecution("t2", "s1", "m1", 0, "Read", "{}", "", "boom", 10, 1, OutputError)
	assert.False(t, failed.Success())
}

func TestCompute_TokenArithmetic(t *testing.T) {
	m := Compute(100, 50, 10, 5, 150)
	assert.Equal(t, int64(165), m.CalculatedTotalTokens)
	assert.GreaterOrEqual(t, m.AccuracyRatio, 0.0)
	assert.LessOrEqual(t, m.AccuracyRatio, 2.0)
}

func TestCompute_AccuracyRatioClampedTo2(t *testing.T) {
	m := Compute(1000, 1000, 0, 0, 1)
	assert.Equal(t, 2.0, m.AccuracyRatio)
}

func TestFileAccess_DedupKey(t *testing.T) {
	a := NewFileAccess("a1", "s1", "m1", 0, "/x.go", "content", OpRead)
	b := NewFileAccess("a2", "s1", "m1", 1, "/x.go", "content", OpWrite)
	assert.Equal(t, a.DedupKey(), b.DedupKey(), "same path+hash must dedup regardless of operation")
}
