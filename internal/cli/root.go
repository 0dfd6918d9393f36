package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pattern-foundry/ctxd/internal/config"
	"github.com/pattern-foundry/ctxd/internal/engine"
)

var (
	flagConfig  string
	flagDataDir string
	flagLog     string
)

var rootCmd = &cobra.Command{
	Use:          "ctxd",
	Short:        "ctxd - incremental context engine for JS/TS codebases",
	SilenceUsage: true, // don't print usage on operational errors
	Long: `ctxd scans a JavaScript/TypeScript project, extracts components, hooks,
stores and utilities, embeds them, and serves budget-bounded context
bundles for natural-language queries. Indexing is incremental: only
files whose content hash changed are reprocessed.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to ctxd.yaml (default: $CTXD_CONFIG or none)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "override the data directory")
	rootCmd.PersistentFlags().StringVar(&flagLog, "log-level", "", "override the log level (debug, info, warn, error)")
}

// Execute is called by main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig merges the config file, environment, and command-line
// overrides.
func loadConfig() (*config.Config, error) {
	path := flagConfig
	if path == "" {
		path = os.Getenv("CTXD_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if flagLog != "" {
		cfg.LogLevel = flagLog
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds a text slog writing to stderr. Stdout stays clean for
// command output and, under serve, the MCP protocol.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openEngine loads configuration and opens the engine. Callers must
// Close it.
func openEngine() (*engine.Engine, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	eng, err := engine.Open(cfg, newLogger(cfg))
	if err != nil {
		return nil, nil, err
	}
	return eng, cfg, nil
}

// projectRoot resolves the positional path argument, defaulting to the
// current directory.
func projectRoot(args []string) (string, error) {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("cannot resolve path %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("cannot access %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", abs)
	}
	return abs, nil
}
