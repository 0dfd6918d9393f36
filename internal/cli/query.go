package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pattern-foundry/ctxd/pkg/types"
)

var (
	flagQueryPath   string
	flagQueryBudget int
	flagQueryTopK   int
	flagQueryKinds  []string
	flagQueryGlob   string
	flagQueryJSON   bool
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Assemble a context bundle for a query",
	Long: `Query embeds the given text, ranks indexed units by cosine similarity,
and prints the highest-scoring excerpts that fit the byte budget.
Identical queries against an unchanged index print identical bundles.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&flagQueryPath, "path", "p", ".", "project root")
	queryCmd.Flags().IntVar(&flagQueryBudget, "budget", 0, "bundle byte budget (default from config)")
	queryCmd.Flags().IntVarP(&flagQueryTopK, "top-k", "k", 0, "candidate pool size (default from config)")
	queryCmd.Flags().StringSliceVar(&flagQueryKinds, "kind", nil, "restrict to unit kinds (component, hook, store, util, raw)")
	queryCmd.Flags().StringVar(&flagQueryGlob, "glob", "", "restrict to unit paths matching this glob")
	queryCmd.Flags().BoolVar(&flagQueryJSON, "json", false, "emit the bundle as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	root, err := projectRoot([]string{flagQueryPath})
	if err != nil {
		return err
	}

	query := types.Query{
		Text:   strings.Join(args, " "),
		Budget: flagQueryBudget,
		K:      flagQueryTopK,
	}
	query.Filters.PathGlob = flagQueryGlob
	for _, name := range flagQueryKinds {
		kind := types.Kind(name)
		if !types.ValidKind(kind) {
			return fmt.Errorf("unknown kind %q (want component, hook, store, util, or raw)", name)
		}
		query.Filters.Kinds = append(query.Filters.Kinds, kind)
	}

	eng, _, err := openEngine()
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	resp, err := eng.Query(cmd.Context(), root, query)
	if err != nil {
		return err
	}

	if flagQueryJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp.Bundle)
	}

	if len(resp.Bundle.Entries) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, e := range resp.Bundle.Entries {
		marker := ""
		if e.Truncated {
			marker = " [truncated]"
		}
		if e.Degraded {
			marker += " [degraded]"
		}
		fmt.Printf("%d. %s  %s (%s)  score=%.3f%s\n", i+1, e.SymbolName, e.Path, e.Kind, e.Score, marker)
		fmt.Println(indent(e.Excerpt, "   "))
	}
	fmt.Printf("\n%d entries, %d bytes, %d candidates, %s\n",
		len(resp.Bundle.Entries), resp.Bundle.Size(), resp.Candidates, resp.Duration.Round(time.Microsecond))
	return nil
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i := range lines {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}
