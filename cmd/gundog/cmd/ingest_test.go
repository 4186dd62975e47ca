package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initProject runs `gundog init` against projectDir and returns its
// .gundog index root, for use as a fixture by other commands' tests.
func initProject(t *testing.T, projectDir string) string {
	t.Helper()
	cmd := newInitCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{projectDir})
	require.NoError(t, cmd.Execute())
	return filepath.Join(projectDir, indexDirName)
}

func TestIngestCmd_IncrementalReportsAddedAndUnchanged(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	projectDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "a.go"), []byte("package a\n"), 0o644))
	indexRoot := initProject(t, projectDir)

	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "b.go"), []byte("package b\n"), 0o644))

	var stdout bytes.Buffer
	cmd := newIngestCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--root", indexRoot, projectDir})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, stdout.String(), "added=1")
	assert.Contains(t, stdout.String(), "unchanged=1")
}

func TestIngestCmd_FullForcesRebuild(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	projectDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "a.go"), []byte("package a\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "b.go"), []byte("package b\n"), 0o644))
	indexRoot := initProject(t, projectDir)

	require.NoError(t, os.Remove(filepath.Join(projectDir, "b.go")))

	var stdout bytes.Buffer
	cmd := newIngestCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--full", "--root", indexRoot, projectDir})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, stdout.String(), "added=1")
	assert.Contains(t, stdout.String(), "unchanged=0")
}

func TestIngestCmd_ByRegisteredNameResolvesRoot(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	projectDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "a.go"), []byte("package a\n"), 0o644))
	initProject(t, projectDir)

	var stdout bytes.Buffer
	cmd := newIngestCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--index", filepath.Base(projectDir)})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, stdout.String(), "unchanged=1")
}

func TestIngestCmd_UnknownIndexNameFails(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cmd := newIngestCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--index", "does-not-exist"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}
