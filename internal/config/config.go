package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Embedder variant names recognized in configuration.
const (
	EmbedderDeterministic = "deterministic"
	EmbedderRemote        = "remote"
)

// Defaults applied when the config file or a field is absent.
const (
	DefaultBudgetBytes     = 8192
	DefaultTopK            = 20
	DefaultRemoteTimeoutMs = 10000
	DefaultRetryCount      = 3
	DefaultWorkers         = 4
	DefaultMinExcerptBytes = 64
	DefaultVectorDim       = 256
)

var (
	// ErrInvalidConfig is returned when configuration fails validation
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config is the in-memory representation of ctxd.yaml plus CTXD_* env
// overrides. All components receive their settings from here; nothing
// reads the environment on its own.
type Config struct {
	// DataDir holds the catalog database, index snapshot, and journal.
	DataDir string `yaml:"data_dir"`

	// IgnorePatterns are doublestar globs matched against paths relative
	// to the project root. Matching files and directories are skipped.
	IgnorePatterns []string `yaml:"ignore_patterns,omitempty"`

	// BudgetBytes bounds the total excerpt size of an assembled bundle.
	BudgetBytes int `yaml:"budget_bytes,omitempty"`

	// TopK is the candidate pool size retrieved per query before
	// deduplication and budget filling.
	TopK int `yaml:"top_k,omitempty"`

	// Embedder selects the embedding variant: deterministic or remote.
	Embedder string `yaml:"embedder,omitempty"`

	// RemoteEndpoint is the OpenAI-compatible embeddings URL used by the
	// remote variant. The API key comes from CTXD_REMOTE_API_KEY only.
	RemoteEndpoint string `yaml:"remote_endpoint,omitempty"`
	RemoteModel    string `yaml:"remote_model,omitempty"`

	RemoteTimeoutMs int `yaml:"remote_timeout_ms,omitempty"`
	RetryCount      int `yaml:"retry_count,omitempty"`

	// Workers bounds the extract/embed worker pool.
	Workers int `yaml:"workers,omitempty"`

	// MinExcerptBytes is the minimum useful excerpt length; candidates
	// that would truncate below it are skipped instead.
	MinExcerptBytes int `yaml:"min_excerpt_bytes,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`
}

// Default returns a Config populated with defaults. DataDir falls back to
// ~/.ctxd when the home directory is resolvable, else .ctxd.
func Default() *Config {
	dataDir := ".ctxd"
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		dataDir = filepath.Join(home, ".ctxd")
	}
	return &Config{
		DataDir: dataDir,
		IgnorePatterns: []string{
			"**/node_modules/**",
			"**/.git/**",
			"**/dist/**",
			"**/build/**",
		},
		BudgetBytes:     DefaultBudgetBytes,
		TopK:            DefaultTopK,
		Embedder:        EmbedderDeterministic,
		RemoteTimeoutMs: DefaultRemoteTimeoutMs,
		RetryCount:      DefaultRetryCount,
		Workers:         DefaultWorkers,
		MinExcerptBytes: DefaultMinExcerptBytes,
		LogLevel:        "info",
	}
}

// Load reads the config file at path, merges it over the defaults, then
// applies env overrides. A missing file is not an error; the defaults and
// environment alone are a valid configuration.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays CTXD_* environment variables onto the config.
func (c *Config) applyEnv() {
	if v := os.Getenv("CTXD_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("CTXD_EMBEDDER"); v != "" {
		c.Embedder = strings.ToLower(v)
	}
	if v := os.Getenv("CTXD_REMOTE_ENDPOINT"); v != "" {
		c.RemoteEndpoint = v
	}
	if v := os.Getenv("CTXD_REMOTE_MODEL"); v != "" {
		c.RemoteModel = v
	}
	if v := os.Getenv("CTXD_LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v, ok := envInt("CTXD_BUDGET_BYTES"); ok {
		c.BudgetBytes = v
	}
	if v, ok := envInt("CTXD_TOP_K"); ok {
		c.TopK = v
	}
	if v, ok := envInt("CTXD_REMOTE_TIMEOUT_MS"); ok {
		c.RemoteTimeoutMs = v
	}
	if v, ok := envInt("CTXD_RETRY_COUNT"); ok {
		c.RetryCount = v
	}
	if v, ok := envInt("CTXD_WORKERS"); ok {
		c.Workers = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is required", ErrInvalidConfig)
	}
	if c.Embedder != EmbedderDeterministic && c.Embedder != EmbedderRemote {
		return fmt.Errorf("%w: unknown embedder %q", ErrInvalidConfig, c.Embedder)
	}
	if c.Embedder == EmbedderRemote && c.RemoteEndpoint == "" {
		return fmt.Errorf("%w: remote embedder requires remote_endpoint", ErrInvalidConfig)
	}
	if c.BudgetBytes <= 0 {
		return fmt.Errorf("%w: budget_bytes must be positive", ErrInvalidConfig)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive", ErrInvalidConfig)
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.MinExcerptBytes <= 0 {
		c.MinExcerptBytes = DefaultMinExcerptBytes
	}
	if c.RetryCount < 0 {
		return fmt.Errorf("%w: retry_count cannot be negative", ErrInvalidConfig)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	return nil
}

// RemoteTimeout returns the remote embedder timeout as a duration.
func (c *Config) RemoteTimeout() time.Duration {
	if c.RemoteTimeoutMs <= 0 {
		return time.Duration(DefaultRemoteTimeoutMs) * time.Millisecond
	}
	return time.Duration(c.RemoteTimeoutMs) * time.Millisecond
}

// SnapshotPath returns the canonical index snapshot location.
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.DataDir, "index.snapshot")
}

// JournalPath returns the index journal location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.DataDir, "index.journal")
}

// CatalogPath returns the catalog database location.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.DataDir, "catalog.db")
}

// LockPath returns the single-writer lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "ctxd.lock")
}
