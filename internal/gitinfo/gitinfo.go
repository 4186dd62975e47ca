// Package gitinfo is the GitResolver external collaborator (spec §3,
// §4.10): it resolves per-path last-commit times and repository metadata
// using go-git, a pure-Go git implementation, so gundog never shells out
// to a git binary.
package gitinfo

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
)

// RepoInfo is the optional git block surfaced in IndexRegistry.IndexInfo
// (spec §4.10): web_url, branch, commit.
type RepoInfo struct {
	WebURL string
	Branch string
	Commit string
}

// Resolver resolves git metadata for a source root. A Resolver is bound
// to one repository; open a new one per source root.
type Resolver struct {
	repo *git.Repository
	root string
}

// Open opens the git repository containing root, walking up to find the
// repository boundary the way `git` itself does. Returns (nil, nil) --
// not an error -- when root is not inside a git repository, since most
// GitResolver consumers (recency boost, registry info) treat that as
// "no git metadata available" rather than a hard failure.
func Open(root string) (*Resolver, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if err == git.ErrRepositoryNotExists {
			return nil, nil
		}
		return nil, err
	}
	return &Resolver{repo: repo, root: root}, nil
}

// LastCommitTime returns the most recent commit time touching relPath on
// HEAD, or nil if the path has no history (untracked, or repo has no
// commits yet).
func (r *Resolver) LastCommitTime(relPath string) *time.Time {
	if r == nil {
		return nil
	}
	head, err := r.repo.Head()
	if err != nil {
		return nil
	}
	commitIter, err := r.repo.Log(&git.LogOptions{From: head.Hash(), FileName: &relPath, Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil
	}
	defer commitIter.Close()

	c, err := commitIter.Next()
	if err != nil {
		return nil
	}
	when := c.Author.When
	return &when
}

// Info returns the RepoInfo block for IndexInfo: current branch, HEAD
// commit hash, and a best-effort web URL derived from the "origin"
// remote.
func (r *Resolver) Info() *RepoInfo {
	if r == nil {
		return nil
	}
	head, err := r.repo.Head()
	if err != nil {
		return nil
	}

	info := &RepoInfo{Commit: head.Hash().String()}
	if head.Name().IsBranch() {
		info.Branch = head.Name().Short()
	}

	if remote, err := r.repo.Remote("origin"); err == nil && len(remote.Config().URLs) > 0 {
		info.WebURL = webURLFromRemote(remote.Config().URLs[0])
	}
	return info
}

// webURLFromRemote best-effort converts a git remote URL (ssh or https)
// into a browsable web URL, stripping credentials and the .git suffix.
func webURLFromRemote(remote string) string {
	remote = strings.TrimSuffix(remote, ".git")
	if strings.HasPrefix(remote, "git@") {
		// git@host:owner/repo -> https://host/owner/repo
		rest := strings.TrimPrefix(remote, "git@")
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) == 2 {
			return "https://" + parts[0] + "/" + parts[1]
		}
	}
	if strings.HasPrefix(remote, "ssh://") {
		remote = strings.TrimPrefix(remote, "ssh://git@")
		remote = strings.Replace(remote, ":", "/", 1)
		return "https://" + remote
	}
	if u, err := url.Parse(remote); err == nil && u.User != nil && (u.Scheme == "https" || u.Scheme == "http") {
		u.User = nil
		return u.String()
	}
	return remote
}

// RelPath makes absPath relative to the repository root, for callers
// that only have an absolute path handy.
func RelPath(root, absPath string) (string, error) {
	return filepath.Rel(root, absPath)
}
