package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_RejectsUnknownPrivacyLevel(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.ProjectsDir = dir
	cfg.PrivacyLevel = "paranoid"
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidate_RejectsInvertedPortRange(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.ProjectsDir = dir
	cfg.PortRangeLow = 9100
	cfg.PortRangeHigh = 9000
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsMissingProjectsDir(t *testing.T) {
	cfg := Default()
	cfg.ProjectsDir = "/nonexistent/path/does/not/exist"
	require.Error(t, cfg.Validate())
}

func TestLoad_EnvOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CONTEXT_CLEANER_PROJECTS_DIR", dir)
	t.Setenv("CONTEXT_CLEANER_PRIVACY_LEVEL", "strict")
	t.Setenv("CONTEXT_CLEANER_CONFIG_FILE", "")
	os.Unsetenv("CONTEXT_CLEANER_CONFIG_FILE")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.ProjectsDir)
	assert.Equal(t, PrivacyStrict, cfg.PrivacyLevel)
}
