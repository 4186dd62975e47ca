package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gundog/gundog/internal/manifest"
)

func openRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "daemon.yaml")
	r, err := Open(path)
	require.NoError(t, err)
	return r, path
}

func TestAddRegistersAndDefaultsFirstIndex(t *testing.T) {
	r, _ := openRegistry(t)

	require.NoError(t, r.Add("docs", "/var/gundog/docs"))

	p, ok := r.Get("docs")
	assert.True(t, ok)
	assert.Equal(t, "/var/gundog/docs", p)

	name, ok := r.Default()
	assert.True(t, ok)
	assert.Equal(t, "docs", name)
}

func TestAddSecondIndexDoesNotOverrideDefault(t *testing.T) {
	r, _ := openRegistry(t)
	require.NoError(t, r.Add("docs", "/var/gundog/docs"))
	require.NoError(t, r.Add("code", "/var/gundog/code"))

	name, ok := r.Default()
	assert.True(t, ok)
	assert.Equal(t, "docs", name)
}

func TestAddConflictingPathFails(t *testing.T) {
	r, _ := openRegistry(t)
	require.NoError(t, r.Add("docs", "/var/gundog/docs"))
	assert.Error(t, r.Add("docs", "/var/gundog/other"))
}

func TestAddSamePathIsIdempotent(t *testing.T) {
	r, _ := openRegistry(t)
	require.NoError(t, r.Add("docs", "/var/gundog/docs"))
	assert.NoError(t, r.Add("docs", "/var/gundog/docs"))
}

func TestRemoveUnknownIndexFails(t *testing.T) {
	r, _ := openRegistry(t)
	assert.Error(t, r.Remove("nope"))
}

func TestRemoveClearsDefaultWhenItWasTheDefault(t *testing.T) {
	r, _ := openRegistry(t)
	require.NoError(t, r.Add("docs", "/var/gundog/docs"))
	require.NoError(t, r.Remove("docs"))

	_, ok := r.Default()
	assert.False(t, ok)
	_, ok = r.Get("docs")
	assert.False(t, ok)
}

func TestSwitchDefaultRejectsUnregisteredIndex(t *testing.T) {
	r, _ := openRegistry(t)
	assert.Error(t, r.SwitchDefault("nope"))
}

func TestSwitchDefaultPersistsAcrossReopen(t *testing.T) {
	r, path := openRegistry(t)
	require.NoError(t, r.Add("docs", "/var/gundog/docs"))
	require.NoError(t, r.Add("code", "/var/gundog/code"))
	require.NoError(t, r.SwitchDefault("code"))

	reopened, err := Open(path)
	require.NoError(t, err)
	name, ok := reopened.Default()
	assert.True(t, ok)
	assert.Equal(t, "code", name)
}

func TestListSkipsIndexesWithoutAReadableManifest(t *testing.T) {
	r, _ := openRegistry(t)
	require.NoError(t, r.Add("ghost", filepath.Join(t.TempDir(), "nonexistent")))

	infos := r.List()
	assert.Empty(t, infos)
}

func TestListAggregatesManifestHeader(t *testing.T) {
	r, _ := openRegistry(t)
	indexDir := t.TempDir()
	require.NoError(t, r.Add("docs", indexDir))

	m := manifest.Empty()
	m.EmbeddingModel = "BAAI/bge-small-en-v1.5"
	m.Files["a.md"] = manifest.FileEntry{DocID: manifest.DocID("a.md"), ChunkCount: 2}
	m.Files["b.md"] = manifest.FileEntry{DocID: manifest.DocID("b.md"), ChunkCount: 1}
	require.NoError(t, m.SaveAtomic(filepath.Join(indexDir, "manifest.json")))

	infos := r.List()
	require.Len(t, infos, 1)
	assert.Equal(t, "docs", infos[0].Name)
	assert.Equal(t, 2, infos[0].FileCount)
	assert.Equal(t, 3, infos[0].ChunkCount)
	assert.Equal(t, "BAAI/bge-small-en-v1.5", infos[0].EmbeddingModel)
	assert.ElementsMatch(t, []string{"a.md", "b.md"}, infos[0].SamplePaths)
}

func TestListIsSortedByName(t *testing.T) {
	r, _ := openRegistry(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		dir := t.TempDir()
		require.NoError(t, r.Add(name, dir))
		require.NoError(t, manifest.Empty().SaveAtomic(filepath.Join(dir, "manifest.json")))
	}

	infos := r.List()
	require.Len(t, infos, 3)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, []string{infos[0].Name, infos[1].Name, infos[2].Name})
}
