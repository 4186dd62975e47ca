package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func collect(t *testing.T, ch <-chan ScanResult) []*FileRecord {
	t.Helper()
	var files []*FileRecord
	for r := range ch {
		require.NoError(t, r.Error)
		files = append(files, r.File)
	}
	return files
}

func TestScanYieldsMatchingFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")
	writeFile(t, root, "b.md", "# hello\n")
	writeFile(t, root, "vendor/c.go", "package c\n")

	s := New()
	stats := &Stats{}
	results := s.Scan(context.Background(), []Source{{
		Path:         root,
		Glob:         "**/*.go",
		Type:         "code",
		IgnorePreset: PresetGo,
		UseGitignore: boolPtr(false),
	}}, stats)

	files := collect(t, results)
	require.Len(t, files, 1)
	assert.Equal(t, "a.go", files[0].RelPath)
	assert.Equal(t, "code", files[0].Type)
}

func TestScanRespectsExplicitIgnoreOverGlob(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.go", "package keep\n")
	writeFile(t, root, "skip.go", "package skip\n")

	s := New()
	results := s.Scan(context.Background(), []Source{{
		Path:   root,
		Glob:   "**/*.go",
		Ignore: []string{"skip.go"},
	}}, nil)

	files := collect(t, results)
	require.Len(t, files, 1)
	assert.Equal(t, "keep.go", files[0].RelPath)
}

func TestScanRespectsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "secret.txt\n")
	writeFile(t, root, "secret.txt", "shh\n")
	writeFile(t, root, "open.txt", "hi\n")

	s := New()
	results := s.Scan(context.Background(), []Source{{
		Path:         root,
		Glob:         "**/*.txt",
		UseGitignore: boolPtr(true),
	}}, nil)

	files := collect(t, results)
	require.Len(t, files, 1)
	assert.Equal(t, "open.txt", files[0].RelPath)
}

func TestScanSkipsBinaryFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "text.txt", "plain text content\n")
	binPath := filepath.Join(root, "image.bin")
	require.NoError(t, os.WriteFile(binPath, []byte{0x00, 0x01, 0x02, 'a', 'b', 'c'}, 0o644))

	s := New()
	stats := &Stats{}
	results := s.Scan(context.Background(), []Source{{Path: root, Glob: "**/*"}}, stats)

	files := collect(t, results)
	require.Len(t, files, 1)
	assert.Equal(t, "text.txt", files[0].RelPath)
	assert.EqualValues(t, 1, stats.Binary)
}

func TestScanSkipsOversizedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.txt", "tiny")
	writeFile(t, root, "big.txt", strings.Repeat("a", MaxFileSize+1))

	s := New()
	results := s.Scan(context.Background(), []Source{{Path: root, Glob: "**/*"}}, nil)
	files := collect(t, results)
	require.Len(t, files, 1)
	assert.LessOrEqual(t, files[0].Size, int64(MaxFileSize))
}

func TestScanRecordsModTime(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "x")

	s := New()
	before := time.Now().Add(-time.Minute)
	files := collect(t, s.Scan(context.Background(), []Source{{Path: root, Glob: "**/*"}}, nil))
	require.Len(t, files, 1)
	assert.True(t, files[0].ModTime.After(before))
}

func TestIsBinaryFileDetectsNUL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	require.NoError(t, os.WriteFile(path, []byte("abc\x00def"), 0o644))
	assert.True(t, isBinaryFile(path))
}

func TestIsBinaryFileAllowsPlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello, world! über cats"), 0o644))
	assert.False(t, isBinaryFile(path))
}

func TestScanCancelledContextStopsEarly(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		writeFile(t, root, filepath.Join("d", "file"+strconv.Itoa(i)+".txt"), "x")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New()
	results := s.Scan(ctx, []Source{{Path: root, Glob: "**/*"}}, nil)
	for range results {
	}
}
