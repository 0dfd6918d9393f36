package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pattern-foundry/ctxd/internal/catalog"
)

var statusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Show indexing status and statistics",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	root, err := projectRoot(args)
	if err != nil {
		return err
	}

	eng, cfg, err := openEngine()
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	status, err := eng.Status(cmd.Context(), root)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			fmt.Printf("%s is not indexed. Run 'ctxd index %s' first.\n", root, root)
			return nil
		}
		return err
	}

	fmt.Printf("Project:  %s\n", status.Project.Project.RootPath)
	fmt.Printf("Indexed:  %s\n", status.Project.LastIndexedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Files:    %d\n", status.Project.FilesCount)
	fmt.Printf("Units:    %d (%d degraded)\n", status.Project.UnitsCount, status.Project.DegradedCount)

	kinds := make([]string, 0, len(status.Project.KindCounts))
	for k := range status.Project.KindCounts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Printf("  %-10s %d\n", k, status.Project.KindCounts[k])
	}

	fmt.Printf("Index:    %d live, %d tombstoned, dimension %d\n",
		status.Index.Live, status.Index.Tombstoned, status.Index.Dimension)
	fmt.Printf("Embedder: %s\n", status.Embedder)
	fmt.Printf("Build:    %s sqlite driver\n", status.BuildMode)
	fmt.Printf("Data dir: %s\n", cfg.DataDir)
	return nil
}
