package gitinfo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenNonRepoReturnsNilNil(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(dir)
	require.NoError(t, err)
	assert.Nil(t, r)
}

func initTestRepo(t *testing.T) (dir string, commitTime time.Time) {
	t.Helper()
	dir = t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	filePath := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("hello"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("a.txt")
	require.NoError(t, err)

	commitTime = time.Now().Add(-time.Hour).Truncate(time.Second)
	_, err = wt.Commit("initial commit", &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: commitTime},
	})
	require.NoError(t, err)

	return dir, commitTime
}

func TestOpenAndLastCommitTime(t *testing.T) {
	dir, commitTime := initTestRepo(t)

	r, err := Open(dir)
	require.NoError(t, err)
	require.NotNil(t, r)

	got := r.LastCommitTime("a.txt")
	require.NotNil(t, got)
	assert.WithinDuration(t, commitTime, *got, time.Second)

	assert.Nil(t, r.LastCommitTime("does-not-exist.txt"))
}

func TestInfoReportsBranchAndCommit(t *testing.T) {
	dir, _ := initTestRepo(t)

	r, err := Open(dir)
	require.NoError(t, err)
	require.NotNil(t, r)

	info := r.Info()
	require.NotNil(t, info)
	assert.NotEmpty(t, info.Commit)
}

func TestNilResolverMethodsAreSafe(t *testing.T) {
	var r *Resolver
	assert.Nil(t, r.LastCommitTime("x"))
	assert.Nil(t, r.Info())
}

func TestWebURLFromRemoteHandlesSSHAndHTTPS(t *testing.T) {
	assert.Equal(t, "https://github.com/owner/repo", webURLFromRemote("git@github.com:owner/repo.git"))
	assert.Equal(t, "https://github.com/owner/repo", webURLFromRemote("https://github.com/owner/repo.git"))
}
