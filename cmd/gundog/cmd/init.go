package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gundog/gundog/internal/config"
	"github.com/gundog/gundog/internal/index"
	"github.com/gundog/gundog/internal/ingest"
	"github.com/gundog/gundog/internal/scanner"
)

func newInitCmd() *cobra.Command {
	var (
		name    string
		model   string
		backend string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create and ingest a new index over a directory",
		Long: `Create a new index rooted at <path>/.gundog (config.yaml, stores),
register it with the daemon, and run the first full ingest.

Use --name to register the index under a name other than the
directory's base name, and --force to reinitialize an existing index
directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runInit(cmd, path, name, model, backend, force)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Name to register the index under (default: the directory's base name)")
	cmd.Flags().StringVar(&model, "model", "", "Embedding model identifier (default: BAAI/bge-small-en-v1.5)")
	cmd.Flags().StringVar(&backend, "backend", "", "Vector storage backend: dense-file (default) or columnar-ann")
	cmd.Flags().BoolVar(&force, "force", false, "Reinitialize even if .gundog already exists")

	return cmd
}

func runInit(cmd *cobra.Command, path, name, model, backend string, force bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("access path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

	root := filepath.Join(absPath, indexDirName)
	configPath := filepath.Join(root, "config.yaml")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to reinitialize)", configPath)
	}

	cfg := config.DefaultProject()
	cfg.Sources = []scanner.Source{{Path: absPath}}
	if model != "" {
		cfg.Embedding.Model = model
	}
	if backend != "" {
		cfg.Storage.Backend = config.StorageBackend(backend)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.WriteYAML(configPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", configPath)

	embedder := buildEmbedder(cfg)
	ix, err := index.Open(root, cfg, embedder.Dimension())
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer ix.Close()

	builder := ingest.New(scanner.New(), embedder, gitResolvers(cfg.Sources))

	fmt.Fprintln(cmd.OutOrStdout(), "Indexing...")
	stats, err := builder.Build(cmd.Context(), ix, true)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d files (%d binary skipped)\n", stats.Added, stats.Binary)

	reg, err := openRegistry()
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	if name == "" {
		name = filepath.Base(absPath)
	}
	if err := reg.Add(name, root); err != nil {
		return fmt.Errorf("register index: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Registered index %q -> %s\n", name, root)

	return nil
}
