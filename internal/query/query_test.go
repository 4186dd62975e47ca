package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gundog/gundog/internal/config"
	"github.com/gundog/gundog/internal/index"
	"github.com/gundog/gundog/internal/manifest"
	"github.com/gundog/gundog/internal/store"
)

// fixedEmbedder maps known query texts to a fixed 2-dim vector, giving
// tests full control over kNN ranking without depending on
// StaticEmbedder's hashing scheme.
type fixedEmbedder struct {
	vectors map[string][]float32
}

func (f *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := f.vectors[t]
		if !ok {
			v = []float32{0, 0}
		}
		out[i] = v
	}
	return out, nil
}
func (f *fixedEmbedder) Identifier() string { return "fixed/test" }
func (f *fixedEmbedder) Dimension() int     { return 2 }

func newTestIndex(t *testing.T) *index.Index {
	t.Helper()
	cfg := config.DefaultProject()
	cfg.Storage.Backend = config.BackendDenseFile
	cfg.Graph.ExpandThreshold = 0.5
	cfg.Graph.MaxExpandDepth = 2
	cfg.Hybrid = config.HybridConfig{Enabled: true, BM25Weight: 0.5, VectorWeight: 0.5}

	ix, err := index.Open(t.TempDir(), cfg, 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func publishManifest(t *testing.T, ix *index.Index, embedderID string, dim int, files map[string]manifest.FileEntry) {
	t.Helper()
	m := &manifest.Manifest{
		FormatVersion:      manifest.FormatVersion,
		EmbeddingModel:     embedderID,
		EmbeddingDimension: dim,
		StorageBackend:     string(ix.Config.Storage.Backend),
		Files:              files,
	}
	ix.Publish(m)
}

func TestQueryReturnsDirectHitsByCosine(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	docA := manifest.DocID("a.go")
	docB := manifest.DocID("b.go")
	chunkA := manifest.ChunkID(docA, 0)
	chunkB := manifest.ChunkID(docB, 0)

	require.NoError(t, ix.Vector.Upsert(ctx, chunkA, []float32{1, 0}))
	require.NoError(t, ix.Vector.Upsert(ctx, chunkB, []float32{0, 1}))
	require.NoError(t, ix.Keyword.Upsert(ctx, chunkA, "alpha beta"))
	require.NoError(t, ix.Keyword.Upsert(ctx, chunkB, "gamma delta"))

	embedder := &fixedEmbedder{vectors: map[string][]float32{"alpha query": {1, 0}}}
	publishManifest(t, ix, embedder.Identifier(), embedder.Dimension(), map[string]manifest.FileEntry{
		"a.go": {DocID: docA, ChunkCount: 1},
		"b.go": {DocID: docB, ChunkCount: 1},
	})

	engine := New(embedder)
	result, err := engine.Query(ctx, ix, Request{Text: "alpha query", TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, result.Direct)
	assert.Equal(t, "a.go", result.Direct[0].Path)
}

func TestQueryRejectsEmptyText(t *testing.T) {
	ix := newTestIndex(t)
	embedder := &fixedEmbedder{vectors: map[string][]float32{}}
	engine := New(embedder)

	_, err := engine.Query(context.Background(), ix, Request{Text: "   "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_REQUEST")
}

func TestQueryRejectsEmbedderMismatch(t *testing.T) {
	ix := newTestIndex(t)
	publishManifest(t, ix, "some/other-model", 99, map[string]manifest.FileEntry{
		"a.go": {DocID: manifest.DocID("a.go"), ChunkCount: 1},
	})

	embedder := &fixedEmbedder{vectors: map[string][]float32{"x": {1, 0}}}
	engine := New(embedder)

	_, err := engine.Query(context.Background(), ix, Request{Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUERY_FAILED")
}

func TestQueryRejectsWhenIndexBusy(t *testing.T) {
	ix := newTestIndex(t)
	end, err := ix.BeginBuild()
	require.NoError(t, err)
	defer end()

	embedder := &fixedEmbedder{vectors: map[string][]float32{"x": {1, 0}}}
	engine := New(embedder)

	_, err = engine.Query(context.Background(), ix, Request{Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INDEX_BUSY")
}

func TestQueryExpandIncludesRelatedViaGraph(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	docA := manifest.DocID("a.go")
	docB := manifest.DocID("b.go")
	docC := manifest.DocID("c.go")
	chunkA := manifest.ChunkID(docA, 0)
	chunkB := manifest.ChunkID(docB, 0)
	chunkC := manifest.ChunkID(docC, 0)

	require.NoError(t, ix.Vector.Upsert(ctx, chunkA, []float32{1, 0}))
	require.NoError(t, ix.Vector.Upsert(ctx, chunkB, []float32{0, 1}))
	require.NoError(t, ix.Vector.Upsert(ctx, chunkC, []float32{0, -1}))
	require.NoError(t, ix.Keyword.Upsert(ctx, chunkA, "alpha"))
	require.NoError(t, ix.Keyword.Upsert(ctx, chunkB, "beta"))
	require.NoError(t, ix.Keyword.Upsert(ctx, chunkC, "gamma"))

	require.NoError(t, ix.Graph.ReplaceAll([]store.Edge{{A: docA, B: docC, Weight: 0.8}}))

	embedder := &fixedEmbedder{vectors: map[string][]float32{"alpha query": {1, 0}}}
	publishManifest(t, ix, embedder.Identifier(), embedder.Dimension(), map[string]manifest.FileEntry{
		"a.go": {DocID: docA, ChunkCount: 1},
		"b.go": {DocID: docB, ChunkCount: 1},
		"c.go": {DocID: docC, ChunkCount: 1},
	})

	engine := New(embedder)
	result, err := engine.Query(ctx, ix, Request{Text: "alpha query", TopK: 1, Expand: true, ExpandDepth: 1})
	require.NoError(t, err)
	require.Len(t, result.Direct, 1)
	assert.Equal(t, "a.go", result.Direct[0].Path)

	require.Len(t, result.Related, 1)
	assert.Equal(t, "c.go", result.Related[0].Path)
}

func TestQueryMinScoreFiltersDirectHits(t *testing.T) {
	ix := newTestIndex(t)
	ctx := context.Background()

	docA := manifest.DocID("a.go")
	docB := manifest.DocID("b.go")
	chunkA := manifest.ChunkID(docA, 0)
	chunkB := manifest.ChunkID(docB, 0)

	require.NoError(t, ix.Vector.Upsert(ctx, chunkA, []float32{1, 0}))
	require.NoError(t, ix.Vector.Upsert(ctx, chunkB, []float32{0.1, 0.995}))
	require.NoError(t, ix.Keyword.Upsert(ctx, chunkA, "alpha"))
	require.NoError(t, ix.Keyword.Upsert(ctx, chunkB, "beta"))

	embedder := &fixedEmbedder{vectors: map[string][]float32{"q": {1, 0}}}
	publishManifest(t, ix, embedder.Identifier(), embedder.Dimension(), map[string]manifest.FileEntry{
		"a.go": {DocID: docA, ChunkCount: 1},
		"b.go": {DocID: docB, ChunkCount: 1},
	})

	engine := New(embedder)
	threshold := 0.5
	result, err := engine.Query(ctx, ix, Request{Text: "q", TopK: 5, MinScore: &threshold})
	require.NoError(t, err)
	require.NotEmpty(t, result.Direct, "chunkA's perfect cosine match should survive the filter")
	for _, hit := range result.Direct {
		assert.GreaterOrEqual(t, float64(hit.RawCosine), threshold)
	}
}
