package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pattern-foundry/ctxd/internal/tracker"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Keep a project continuously indexed",
	Long: `Watch performs an initial sync, then monitors the filesystem and
re-syncs after changes settle. Runs until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, err := projectRoot(args)
	if err != nil {
		return err
	}

	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Watching %s (ctrl-c to stop)\n", root)
	err = eng.Watch(ctx, root, func(stats *tracker.Stats, err error) {
		if err != nil {
			fmt.Printf("sync failed: %v\n", err)
			return
		}
		fmt.Printf("synced: %d added, %d modified, %d removed (%s)\n",
			stats.FilesAdded, stats.FilesModified, stats.FilesRemoved,
			stats.Duration.Round(time.Millisecond))
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
