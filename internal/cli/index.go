package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var flagForce bool

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a project incrementally",
	Long: `Index walks the project, diffs file hashes against the stored snapshot,
and reprocesses only what changed. With --force the snapshot is
discarded and every file is rescanned.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "discard the snapshot and rescan every file")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	root, err := projectRoot(args)
	if err != nil {
		return err
	}

	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	stats, err := eng.Sync(cmd.Context(), root, flagForce)
	if err != nil {
		return err
	}

	fmt.Printf("Indexed %s in %s\n", root, stats.Duration.Round(time.Millisecond))
	fmt.Printf("  files:  %d added, %d modified, %d removed, %d failed\n",
		stats.FilesAdded, stats.FilesModified, stats.FilesRemoved, stats.FilesFailed)
	fmt.Printf("  units:  %d indexed, %d removed, %d degraded\n",
		stats.UnitsIndexed, stats.UnitsRemoved, stats.UnitsDegraded)
	if stats.FullRescan {
		fmt.Println("  full rescan performed")
	}
	for _, msg := range stats.ErrorMessages {
		fmt.Printf("  error: %s\n", msg)
	}
	return nil
}
