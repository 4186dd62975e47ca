package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gundog/gundog/internal/query"
)

func newQueryCmd() *cobra.Command {
	var (
		name        string
		root        string
		topK        int
		expand      bool
		expandDepth int
		minScore    float64
		hasMinScore bool
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "query TEXT...",
		Short: "Run a one-shot hybrid query against an index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ms *float64
			if hasMinScore {
				ms = &minScore
			}
			return runQuery(cmd, name, root, ".", query.Request{
				Text: strings.Join(args, " "), TopK: topK, Expand: expand, ExpandDepth: expandDepth, MinScore: ms,
			}, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&name, "index", "", "Registered index name")
	cmd.Flags().StringVar(&root, "root", "", "Explicit index root directory (overrides --index)")
	cmd.Flags().IntVar(&topK, "top-k", query.DefaultTopK, "Number of direct hits to return")
	cmd.Flags().BoolVar(&expand, "expand", false, "Expand direct hits via the similarity graph")
	cmd.Flags().IntVar(&expandDepth, "expand-depth", 1, "Graph expansion depth (used with --expand)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Minimum raw cosine score for a direct hit")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		hasMinScore = cmd.Flags().Changed("min-score")
		return nil
	}

	return cmd
}

func runQuery(cmd *cobra.Command, name, root, path string, req query.Request, jsonOutput bool) error {
	reg, err := openRegistry()
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	indexRoot, err := resolveIndexRoot(reg, name, root, path)
	if err != nil {
		return err
	}

	ix, err := openIndexAt(indexRoot)
	if err != nil {
		return fmt.Errorf("open index at %s: %w", indexRoot, err)
	}
	defer ix.Close()

	engine := query.New(buildEmbedder(ix.Config))
	result, err := engine.Query(cmd.Context(), ix, req)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return printQueryResult(cmd, result)
}

func printQueryResult(cmd *cobra.Command, result *query.Result) error {
	out := cmd.OutOrStdout()
	if len(result.Direct) == 0 {
		fmt.Fprintln(out, "No matches.")
		return nil
	}
	for i, hit := range result.Direct {
		fmt.Fprintf(out, "%2d. %-60s score=%.3f cosine=%.3f bm25=%.3f\n", i+1, hit.Path, hit.Display, hit.RawCosine, hit.BM25Score)
	}
	if len(result.Related) > 0 {
		fmt.Fprintln(out, "\nRelated (via similarity graph):")
		for _, r := range result.Related {
			fmt.Fprintf(out, "    %-60s via=%s weight=%.3f depth=%d\n", r.Path, r.Via, r.Weight, r.Depth)
		}
	}
	return nil
}
