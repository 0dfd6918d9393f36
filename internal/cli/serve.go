package cli

import (
	"github.com/spf13/cobra"

	"github.com/pattern-foundry/ctxd/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Long: `Serve exposes the engine to MCP clients over stdin/stdout. Stdout
carries protocol frames only; logs go to stderr. Runs until the client
closes the stream or the process is interrupted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	eng, cfg, err := openEngine()
	if err != nil {
		return err
	}

	log := newLogger(cfg)
	srv, err := mcp.NewServer(eng, log)
	if err != nil {
		_ = eng.Close()
		return err
	}

	log.Info("mcp server ready, listening on stdio",
		"data_dir", cfg.DataDir, "embedder", cfg.Embedder)

	// Serve owns the engine from here and closes it on shutdown.
	return srv.Serve(cmd.Context())
}
