package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gundog/gundog/internal/config"
	gundogerrors "github.com/gundog/gundog/internal/errors"
	"github.com/gundog/gundog/internal/manifest"
)

func TestOpenOnEmptyRootYieldsEmptyManifest(t *testing.T) {
	cfg := config.DefaultProject()
	ix, err := Open(t.TempDir(), cfg, 2)
	require.NoError(t, err)
	defer ix.Close()

	m := ix.Handle()
	assert.Equal(t, manifest.FormatVersion, m.FormatVersion)
	assert.Empty(t, m.Files)
	assert.False(t, ix.Busy())
}

func TestPublishSwapsManifestSnapshot(t *testing.T) {
	cfg := config.DefaultProject()
	ix, err := Open(t.TempDir(), cfg, 2)
	require.NoError(t, err)
	defer ix.Close()

	before := ix.Handle()
	next := &manifest.Manifest{FormatVersion: manifest.FormatVersion, EmbeddingModel: "m", EmbeddingDimension: 2}
	ix.Publish(next)

	after := ix.Handle()
	assert.NotSame(t, before, after)
	assert.Same(t, next, after)
}

func TestBeginBuildEnforcesSingleWriter(t *testing.T) {
	cfg := config.DefaultProject()
	ix, err := Open(t.TempDir(), cfg, 2)
	require.NoError(t, err)
	defer ix.Close()

	assert.False(t, ix.Busy())

	end, err := ix.BeginBuild()
	require.NoError(t, err)
	assert.True(t, ix.Busy())

	_, err = ix.BeginBuild()
	require.Error(t, err)
	assert.Equal(t, gundogerrors.CodeIndexBusy, gundogerrors.CodeOf(err))

	end()
	assert.False(t, ix.Busy())

	end2, err := ix.BeginBuild()
	require.NoError(t, err, "BeginBuild should succeed again once the first build has ended")
	end2()
}

func TestOpenColumnarANNBackendUsesHNSWStore(t *testing.T) {
	root := t.TempDir()
	cfg := config.DefaultProject()
	cfg.Storage.Backend = config.BackendColumnarANN

	ix, err := Open(root, cfg, 2)
	require.NoError(t, err)
	defer ix.Close()

	require.NoError(t, ix.Vector.Upsert(context.Background(), "a", []float32{1, 0}))
	assert.Equal(t, 1, ix.Vector.Count())
}

func TestOpenPrefersManifestDimensionOverDefault(t *testing.T) {
	root := t.TempDir()
	cfg := config.DefaultProject()

	seed := &manifest.Manifest{FormatVersion: manifest.FormatVersion, EmbeddingDimension: 3, Files: map[string]manifest.FileEntry{"x": {}}}
	require.NoError(t, seed.SaveAtomic(filepath.Join(root, ManifestFile)))

	// Pass a default dimension of 2, which must be ignored in favor of the
	// manifest's already-pinned 3.
	ix, err := Open(root, cfg, 2)
	require.NoError(t, err)
	defer ix.Close()

	require.NoError(t, ix.Vector.Upsert(context.Background(), "a", []float32{1, 2, 3}))
	assert.Equal(t, 1, ix.Vector.Count())
}
