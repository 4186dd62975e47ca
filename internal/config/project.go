// Package config loads and validates gundog's project and daemon YAML
// configuration files.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/gundog/gundog/internal/scanner"
)

// StorageBackend selects the VectorStore implementation.
type StorageBackend string

const (
	BackendDenseFile   StorageBackend = "dense-file"
	BackendColumnarANN StorageBackend = "columnar-ann"
)

// GraphConfig controls similarity-graph construction and query-time
// expansion.
type GraphConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	ExpandThreshold     float64 `yaml:"expand_threshold"`
	MaxExpandDepth      int     `yaml:"max_expand_depth"`
}

// HybridConfig controls the vector/BM25 fusion weights.
type HybridConfig struct {
	Enabled     bool    `yaml:"enabled"`
	BM25Weight  float64 `yaml:"bm25_weight"`
	VectorWeight float64 `yaml:"vector_weight"`
}

// RecencyConfig controls the recency boost applied during ranking.
type RecencyConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Weight        float64 `yaml:"weight"`
	HalfLifeDays  float64 `yaml:"half_life_days"`
}

// ChunkingConfig mirrors chunk.Config in its YAML-facing shape.
type ChunkingConfig struct {
	Enabled       bool `yaml:"enabled"`
	MaxTokens     int  `yaml:"max_tokens"`
	OverlapTokens int  `yaml:"overlap_tokens"`
}

// StorageConfig selects and locates the VectorStore backend.
type StorageConfig struct {
	Backend StorageBackend `yaml:"backend"`
	Path    string         `yaml:"path"`
}

// EmbeddingConfig names the embedding model used for this index.
type EmbeddingConfig struct {
	Model string `yaml:"model"`
}

// Project is the per-index configuration stored at
// `.<index>/config.yaml`.
type Project struct {
	Sources   []scanner.Source `yaml:"sources"`
	Embedding EmbeddingConfig  `yaml:"embedding"`
	Storage   StorageConfig    `yaml:"storage"`
	Graph     GraphConfig      `yaml:"graph"`
	Hybrid    HybridConfig     `yaml:"hybrid"`
	Recency   RecencyConfig    `yaml:"recency"`
	Chunking  ChunkingConfig   `yaml:"chunking"`
}

// DefaultProject returns the documented defaults from the project config
// schema.
func DefaultProject() *Project {
	return &Project{
		Embedding: EmbeddingConfig{Model: "BAAI/bge-small-en-v1.5"},
		Storage:   StorageConfig{Backend: BackendDenseFile, Path: "storage"},
		Graph: GraphConfig{
			SimilarityThreshold: 0.7,
			ExpandThreshold:     0.5,
			MaxExpandDepth:      2,
		},
		Hybrid: HybridConfig{Enabled: true, BM25Weight: 0.5, VectorWeight: 0.5},
		Recency: RecencyConfig{Enabled: false, Weight: 0.15, HalfLifeDays: 30},
		Chunking: ChunkingConfig{Enabled: false, MaxTokens: 512, OverlapTokens: 50},
	}
}

// LoadProject reads and validates a project config file, applying defaults
// for any field the file leaves zero-valued. A missing file is not an
// error: it yields DefaultProject() unmodified (callers still need at
// least one source configured before ingest).
func LoadProject(path string) (*Project, error) {
	cfg := DefaultProject()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read project config %s: %w", path, err)
	}

	var parsed Project
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse project config %s: %w", path, err)
	}
	mergeProject(cfg, &parsed)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project config %s: %w", path, err)
	}
	return cfg, nil
}

// mergeProject overlays non-zero fields of other onto base.
func mergeProject(base, other *Project) {
	if len(other.Sources) > 0 {
		base.Sources = other.Sources
	}
	if other.Embedding.Model != "" {
		base.Embedding.Model = other.Embedding.Model
	}
	if other.Storage.Backend != "" {
		base.Storage.Backend = other.Storage.Backend
	}
	if other.Storage.Path != "" {
		base.Storage.Path = other.Storage.Path
	}
	if other.Graph.SimilarityThreshold != 0 {
		base.Graph.SimilarityThreshold = other.Graph.SimilarityThreshold
	}
	if other.Graph.ExpandThreshold != 0 {
		base.Graph.ExpandThreshold = other.Graph.ExpandThreshold
	}
	if other.Graph.MaxExpandDepth != 0 {
		base.Graph.MaxExpandDepth = other.Graph.MaxExpandDepth
	}
	base.Hybrid.Enabled = other.Hybrid.Enabled || base.Hybrid.Enabled
	if other.Hybrid.BM25Weight != 0 {
		base.Hybrid.BM25Weight = other.Hybrid.BM25Weight
	}
	if other.Hybrid.VectorWeight != 0 {
		base.Hybrid.VectorWeight = other.Hybrid.VectorWeight
	}
	base.Recency.Enabled = other.Recency.Enabled || base.Recency.Enabled
	if other.Recency.Weight != 0 {
		base.Recency.Weight = other.Recency.Weight
	}
	if other.Recency.HalfLifeDays != 0 {
		base.Recency.HalfLifeDays = other.Recency.HalfLifeDays
	}
	base.Chunking.Enabled = other.Chunking.Enabled || base.Chunking.Enabled
	if other.Chunking.MaxTokens != 0 {
		base.Chunking.MaxTokens = other.Chunking.MaxTokens
	}
	if other.Chunking.OverlapTokens != 0 {
		base.Chunking.OverlapTokens = other.Chunking.OverlapTokens
	}
}

// Validate rejects configurations that would violate a documented
// invariant or produce a pathological ranker.
func (p *Project) Validate() error {
	if p.Storage.Backend != BackendDenseFile && p.Storage.Backend != BackendColumnarANN {
		return fmt.Errorf("storage.backend must be %q or %q, got %q", BackendDenseFile, BackendColumnarANN, p.Storage.Backend)
	}
	if p.Graph.SimilarityThreshold < 0 || p.Graph.SimilarityThreshold > 1 {
		return fmt.Errorf("graph.similarity_threshold must be in [0,1], got %f", p.Graph.SimilarityThreshold)
	}
	if p.Hybrid.BM25Weight < 0 || p.Hybrid.VectorWeight < 0 {
		return fmt.Errorf("hybrid weights must be non-negative")
	}
	if p.Chunking.OverlapTokens >= p.Chunking.MaxTokens && p.Chunking.Enabled {
		return fmt.Errorf("chunking.overlap_tokens (%d) must be less than max_tokens (%d)", p.Chunking.OverlapTokens, p.Chunking.MaxTokens)
	}
	for i, src := range p.Sources {
		if src.Path == "" {
			return fmt.Errorf("sources[%d].path must not be empty", i)
		}
	}
	return nil
}

// WriteYAML marshals the project config and writes it to path, creating
// parent directories as needed.
func (p *Project) WriteYAML(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal project config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
