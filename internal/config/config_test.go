package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, EmbedderDeterministic, cfg.Embedder)
	assert.Equal(t, DefaultBudgetBytes, cfg.BudgetBytes)
	assert.NotEmpty(t, cfg.DataDir)
	assert.Contains(t, cfg.IgnorePatterns, "**/node_modules/**")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, cfg.TopK)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctxd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"data_dir: /tmp/ctxd-test\nbudget_bytes: 4096\nlog_level: warn\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/ctxd-test", cfg.DataDir)
	assert.Equal(t, 4096, cfg.BudgetBytes)
	assert.Equal(t, "warn", cfg.LogLevel)
	// Untouched fields keep their defaults.
	assert.Equal(t, DefaultTopK, cfg.TopK)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctxd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctxd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("budget_bytes: 4096\n"), 0o644))

	t.Setenv("CTXD_BUDGET_BYTES", "2048")
	t.Setenv("CTXD_EMBEDDER", "DETERMINISTIC")
	t.Setenv("CTXD_WORKERS", "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2048, cfg.BudgetBytes)
	assert.Equal(t, EmbedderDeterministic, cfg.Embedder)
	assert.Equal(t, 2, cfg.Workers)
}

func TestEnvIgnoresNonNumeric(t *testing.T) {
	t.Setenv("CTXD_TOP_K", "lots")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, cfg.TopK)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"unknown embedder", func(c *Config) { c.Embedder = "oracle" }},
		{"remote without endpoint", func(c *Config) { c.Embedder = EmbedderRemote; c.RemoteEndpoint = "" }},
		{"zero budget", func(c *Config) { c.BudgetBytes = 0 }},
		{"zero top k", func(c *Config) { c.TopK = 0 }},
		{"negative retries", func(c *Config) { c.RetryCount = -1 }},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestValidateNormalizesOptionalFields(t *testing.T) {
	cfg := Default()
	cfg.Workers = 0
	cfg.MinExcerptBytes = -5
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, DefaultMinExcerptBytes, cfg.MinExcerptBytes)
}

func TestDerivedPaths(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/data"
	assert.Equal(t, filepath.Join("/data", "index.snapshot"), cfg.SnapshotPath())
	assert.Equal(t, filepath.Join("/data", "index.journal"), cfg.JournalPath())
	assert.Equal(t, filepath.Join("/data", "catalog.db"), cfg.CatalogPath())
	assert.Equal(t, filepath.Join("/data", "ctxd.lock"), cfg.LockPath())
}

func TestRemoteTimeout(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultRemoteTimeoutMs, int(cfg.RemoteTimeout().Milliseconds()))

	cfg.RemoteTimeoutMs = 250
	assert.Equal(t, 250, int(cfg.RemoteTimeout().Milliseconds()))
}
