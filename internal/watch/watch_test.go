package watch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"
)

func TestAddRecursiveSkipsAlwaysSkipDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "pkg"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))

	fsw, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer fsw.Close()

	w := &Watcher{fsw: fsw}
	require.NoError(t, w.addRecursive(root, false))

	watched := fsw.WatchList()
	require.Contains(t, watched, root)
	require.Contains(t, watched, filepath.Join(root, "src"))
	require.NotContains(t, watched, filepath.Join(root, "node_modules"))
	require.NotContains(t, watched, filepath.Join(root, "node_modules", "pkg"))
}

func TestAddRecursiveHonorsGitignore(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "build"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("build/\n"), 0o644))

	fsw, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer fsw.Close()

	w := &Watcher{fsw: fsw}
	require.NoError(t, w.addRecursive(root, true))

	watched := fsw.WatchList()
	require.Contains(t, watched, root)
	require.NotContains(t, watched, filepath.Join(root, "build"))
}
