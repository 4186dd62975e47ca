package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/gundog/gundog/internal/config"
	"github.com/gundog/gundog/internal/embed"
	"github.com/gundog/gundog/internal/index"
	"github.com/gundog/gundog/internal/registry"
)

// indexDirName is the conventional per-project index root when a command
// is pointed at a project path rather than a registered index name
// (spec §6.1 names this directory `.<index>/`; gundog uses this fixed
// name for the common one-index-per-project case).
const indexDirName = ".gundog"

// openRegistry opens the daemon-config-backed index registry (spec
// §4.10) at its default location.
func openRegistry() (*registry.Registry, error) {
	return registry.Open(config.DefaultDaemonConfigPath())
}

// resolveIndexRoot turns the --index/--root/positional-path flags common
// to gundog's index-facing commands into a concrete on-disk index root:
//
//   - an explicit root always wins
//   - otherwise an explicit name is looked up in the registry
//   - otherwise the registry's default index is used
//   - otherwise projectPath/.gundog is assumed
func resolveIndexRoot(reg *registry.Registry, name, root, projectPath string) (string, error) {
	if root != "" {
		return root, nil
	}
	if name != "" {
		p, ok := reg.Get(name)
		if !ok {
			return "", fmt.Errorf("index %q is not registered; run 'gundog index ls'", name)
		}
		return p, nil
	}
	if d, ok := reg.Default(); ok {
		p, _ := reg.Get(d) // Get always succeeds: Default only names a registered index.
		return p, nil
	}
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(abs, indexDirName), nil
}

// openIndexAt loads the project config and opens the index rooted at
// root, sizing its VectorStore from the configured embedder's dimension
// on a first-ever ingest (before any manifest has pinned one).
func openIndexAt(root string) (*index.Index, error) {
	cfg, err := config.LoadProject(filepath.Join(root, "config.yaml"))
	if err != nil {
		return nil, err
	}
	return index.Open(root, cfg, buildEmbedder(cfg).Dimension())
}

// defaultProjectConfig returns the default registered index's project
// config, or config.DefaultProject() if none is registered -- used by
// `serve` to pick the single embedder it shares across every loaded
// index.
func defaultProjectConfig(reg *registry.Registry) *config.Project {
	if name, ok := reg.Default(); ok {
		if root, ok := reg.Get(name); ok {
			if cfg, err := config.LoadProject(filepath.Join(root, "config.yaml")); err == nil {
				return cfg
			}
		}
	}
	return config.DefaultProject()
}

// buildEmbedder returns the embedder an index's config names, wrapped in
// the shared LRU cache (spec §4.3: "the embedder is an external
// contract identified by a stable string").
func buildEmbedder(cfg *config.Project) embed.Embedder {
	return embed.NewCachedEmbedder(embed.NewStaticEmbedder(cfg.Embedding.Model), embed.DefaultCacheSize)
}
