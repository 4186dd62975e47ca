package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gundog/gundog/internal/ingest"
	"github.com/gundog/gundog/internal/scanner"
)

func newIngestCmd() *cobra.Command {
	var (
		name string
		root string
		full bool
	)

	cmd := &cobra.Command{
		Use:   "ingest [path]",
		Short: "Re-scan and re-embed an existing index",
		Long: `Run an ingest cycle against an existing index: scan configured
sources, diff against the manifest, chunk and embed changed files, and
rebuild the similarity graph.

Use --full to force a from-scratch rebuild of every file rather than
an incremental diff.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIngest(cmd, name, root, path, full)
		},
	}

	cmd.Flags().StringVar(&name, "index", "", "Registered index name")
	cmd.Flags().StringVar(&root, "root", "", "Explicit index root directory (overrides --index)")
	cmd.Flags().BoolVar(&full, "full", false, "Force a full rebuild")

	return cmd
}

func runIngest(cmd *cobra.Command, name, root, path string, full bool) error {
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

	embedder := buildEmbedder(ix.Config)
	builder := ingest.New(scanner.New(), embedder, gitResolvers(ix.Config.Sources))

	stats, err := builder.Build(cmd.Context(), ix, full)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "added=%d modified=%d removed=%d unchanged=%d binary=%d\n",
		stats.Added, stats.Modified, stats.Removed, stats.Unchanged, stats.Binary)
	return nil
}
