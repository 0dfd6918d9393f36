package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectRootDefaultsToCwd(t *testing.T) {
	root, err := projectRoot(nil)
	require.NoError(t, err)

	cwd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, cwd, root)
}

func TestProjectRootResolvesRelative(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "project")
	require.NoError(t, os.Mkdir(sub, 0o755))

	root, err := projectRoot([]string{sub})
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(root))
	assert.Equal(t, sub, root)
}

func TestProjectRootRejectsFiles(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.ts")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := projectRoot([]string{file})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestProjectRootRejectsMissing(t *testing.T) {
	_, err := projectRoot([]string{filepath.Join(t.TempDir(), "gone")})
	assert.Error(t, err)
}

func TestLoadConfigAppliesOverrides(t *testing.T) {
	dir := t.TempDir()
	flagConfig = ""
	flagDataDir = dir
	flagLog = "debug"
	t.Cleanup(func() {
		flagConfig, flagDataDir, flagLog = "", "", ""
	})

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigRejectsBadLevel(t *testing.T) {
	flagLog = "loud"
	t.Cleanup(func() { flagLog = "" })

	_, err := loadConfig()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "log"), "error should mention the log level: %v", err)
}
