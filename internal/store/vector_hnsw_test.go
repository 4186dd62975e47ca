package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHNSWStoreUpsertAndKNN(t *testing.T) {
	s := NewHNSWStore(filepath.Join(t.TempDir(), "vectors.hnsw"), 2)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "a", []float32{1, 0}))
	require.NoError(t, s.Upsert(ctx, "b", []float32{0, 1}))
	require.NoError(t, s.Upsert(ctx, "c", []float32{1, 1}))

	results, err := s.KNN(ctx, []float32{1, 0}, 1, -2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Cosine, 1e-3)
}

func TestHNSWStoreUpsertReplacesVector(t *testing.T) {
	s := NewHNSWStore(filepath.Join(t.TempDir(), "vectors.hnsw"), 2)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "a", []float32{1, 0}))
	require.NoError(t, s.Upsert(ctx, "a", []float32{0, 1}))
	assert.Equal(t, 1, s.Count())

	results, err := s.KNN(ctx, []float32{0, 1}, 1, -2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Cosine, 1e-3)
}

func TestHNSWStoreDeleteOrphansNode(t *testing.T) {
	s := NewHNSWStore(filepath.Join(t.TempDir(), "vectors.hnsw"), 2)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "a", []float32{1, 0}))
	require.NoError(t, s.Upsert(ctx, "b", []float32{0, 1}))
	require.NoError(t, s.Delete(ctx, "a"))

	assert.Equal(t, 1, s.Count())
	assert.Greater(t, s.orphanRatio(), 0.0)

	results, err := s.KNN(ctx, []float32{1, 0}, 10, -2)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "a", r.ID)
	}
}

func TestHNSWStoreAllPairsAbove(t *testing.T) {
	s := NewHNSWStore(filepath.Join(t.TempDir(), "vectors.hnsw"), 2)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "a", []float32{1, 0}))
	require.NoError(t, s.Upsert(ctx, "b", []float32{1, 0.01}))
	require.NoError(t, s.Upsert(ctx, "c", []float32{0, 1}))

	pairs, err := s.AllPairsAbove(ctx, 0.9)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "a", pairs[0].A)
	assert.Equal(t, "b", pairs[0].B)
}

func TestHNSWStoreSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	ctx := context.Background()

	s := NewHNSWStore(path, 2)
	require.NoError(t, s.Upsert(ctx, "a", []float32{1, 0}))
	require.NoError(t, s.Upsert(ctx, "b", []float32{0, 1}))
	require.NoError(t, s.Save())

	loaded := NewHNSWStore(path, 2)
	require.NoError(t, loaded.Load())
	assert.Equal(t, 2, loaded.Count())

	results, err := loaded.KNN(ctx, []float32{1, 0}, 1, -2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestHNSWStoreLoadMissingFileIsNotError(t *testing.T) {
	s := NewHNSWStore(filepath.Join(t.TempDir(), "missing.hnsw"), 2)
	assert.NoError(t, s.Load())
	assert.Equal(t, 0, s.Count())
}

func TestHNSWStoreRejectsWrongDimension(t *testing.T) {
	s := NewHNSWStore(filepath.Join(t.TempDir(), "vectors.hnsw"), 3)
	err := s.Upsert(context.Background(), "a", []float32{1, 0})
	assert.Error(t, err)
}

func TestHNSWStoreCompactDropsOrphans(t *testing.T) {
	s := NewHNSWStore(filepath.Join(t.TempDir(), "vectors.hnsw"), 2)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Upsert(ctx, string(rune('a'+i)), []float32{float32(i + 1), 0}))
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Delete(ctx, string(rune('a'+i))))
	}
	require.True(t, s.NeedsCompaction())

	require.NoError(t, s.Compact())

	assert.False(t, s.NeedsCompaction())
	assert.Equal(t, 7, s.Count())
	assert.Equal(t, s.graph.Len(), len(s.idMap), "compaction should leave no orphaned graph nodes")

	results, err := s.KNN(ctx, []float32{1, 0}, 10, -2)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "a", r.ID)
	}
}
