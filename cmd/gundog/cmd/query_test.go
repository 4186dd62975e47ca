package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryCmd_FindsDirectHitByKeyword(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	projectDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "auth.go"), []byte("package auth\n\nfunc AuthenticateUser() {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "notes.md"), []byte("# Notes\n\npasta recipe\n"), 0o644))
	indexRoot := initProject(t, projectDir)

	var stdout bytes.Buffer
	cmd := newQueryCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--root", indexRoot, "AuthenticateUser"})
	require.NoError(t, cmd.Execute())

	output := stdout.String()
	assert.Contains(t, output, "auth.go")
}

func TestQueryCmd_JSONOutput(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	projectDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "auth.go"), []byte("package auth\n\nfunc AuthenticateUser() {}\n"), 0o644))
	indexRoot := initProject(t, projectDir)

	var stdout bytes.Buffer
	cmd := newQueryCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--root", indexRoot, "--json", "AuthenticateUser"})
	require.NoError(t, cmd.Execute())

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &parsed))
	assert.Contains(t, parsed, "Direct")
}

func TestQueryCmd_NoMatchesPrintsMessage(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	projectDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "a.go"), []byte("package a\n"), 0o644))
	indexRoot := initProject(t, projectDir)

	var stdout bytes.Buffer
	cmd := newQueryCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--root", indexRoot, "--min-score", "0.999999", "zzz nonexistent term"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, stdout.String(), "No matches.")
}

func TestQueryCmd_RejectsEmptyIndex(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cmd := newQueryCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--index", "nope", "hello"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}
