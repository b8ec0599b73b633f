package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeUnder_RejectsTraversal(t *testing.T) {
	root := t.TempDir()
	_, err := CanonicalizeUnder(filepath.Join(root, "..", "etc", "passwd"), []string{root})
	require.ErrorIs(t, err, ErrPathTraversal)
}

func TestCanonicalizeUnder_AllowsNestedPath(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "project", "transcript.jsonl")
	require.NoError(t, os.MkdirAll(filepath.Dir(nested), 0o755))
	require.NoError(t, os.WriteFile(nested, []byte("{}"), 0o644))

	resolved, err := CanonicalizeUnder(nested, []string{root})
	require.NoError(t, err)
	assert.Equal(t, nested, resolved)
}

func TestAdmit_ExactMaxSizeBoundaryIsAdmitted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jsonl")
	require.NoError(t, os.WriteFile(path, make([]byte, 100), 0o644))

	_, err := Admit(path, 100)
	assert.NoError(t, err, "exact boundary must be admitted")

	_, err = Admit(path, 99)
	assert.ErrorIs(t, err, ErrFileTooLarge, "+1 byte over must be rejected")
}

func TestScan_ClassifiesAndPrioritizes(t *testing.T) {
	root := t.TempDir()
	small := filepath.Join(root, "small.jsonl")
	big := filepath.Join(root, "big.jsonl")
	require.NoError(t, os.WriteFile(small, []byte(`{"a":1}`), 0o644))
	require.NoError(t, os.WriteFile(big, make([]byte, 5<<20), 0o644))

	m, err := Scan(Options{AllowedRoots: []string{root}, MaxFileSize: DefaultMaxFileSize})
	require.NoError(t, err)
	require.Len(t, m.Entries, 2)
	for _, e := range m.Entries {
		assert.Equal(t, StatusValid, e.Status)
	}
}

func TestScan_IgnoresNonMatchingFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hi"), 0o644))
	m, err := Scan(Options{AllowedRoots: []string{root}})
	require.NoError(t, err)
	assert.Empty(t, m.Entries)
}
