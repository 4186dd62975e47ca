// Package registry implements the IndexRegistry (spec §4.10): the
// per-user map of index name to on-disk index directory, persisted in
// the daemon config's `indexes` block.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gundog/gundog/internal/config"
	gundogerrors "github.com/gundog/gundog/internal/errors"
	"github.com/gundog/gundog/internal/gitinfo"
	"github.com/gundog/gundog/internal/manifest"
)

// samplePathCount bounds IndexInfo.SamplePaths.
const samplePathCount = 5

// IndexInfo aggregates an index's manifest header for listing/info
// commands (spec §4.10).
type IndexInfo struct {
	Name           string
	Path           string
	FileCount      int
	ChunkCount     int
	LastUpdated    time.Time
	EmbeddingModel string
	SamplePaths    []string
	Git            *gitinfo.RepoInfo
}

// Registry owns the daemon config's `indexes` map and `default_index`.
type Registry struct {
	mu     sync.Mutex
	path   string
	daemon *config.Daemon
}

// Open loads (or initializes) the registry backed by the daemon config
// at path.
func Open(path string) (*Registry, error) {
	d, err := config.LoadDaemon(path)
	if err != nil {
		return nil, err
	}
	return &Registry{path: path, daemon: d}, nil
}

// Add registers name -> rootPath. Returns an error if name already
// exists with a different path.
func (r *Registry) Add(name, rootPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.daemon.Indexes[name]; ok && existing != rootPath {
		return gundogerrors.New(gundogerrors.CodeInvalidRequest, fmt.Sprintf("index %q already registered at %s", name, existing))
	}
	r.daemon.Indexes[name] = rootPath
	if r.daemon.DefaultIndex == "" {
		r.daemon.DefaultIndex = name
	}
	return r.saveLocked()
}

// Remove unregisters name. Clears DefaultIndex if it pointed at name.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.daemon.Indexes[name]; !ok {
		return gundogerrors.New(gundogerrors.CodeIndexNotFound, fmt.Sprintf("index %q is not registered", name))
	}
	delete(r.daemon.Indexes, name)
	if r.daemon.DefaultIndex == name {
		r.daemon.DefaultIndex = ""
	}
	return r.saveLocked()
}

// Get resolves name to its on-disk root path.
func (r *Registry) Get(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.daemon.Indexes[name]
	return p, ok
}

// Default returns the default index name, if any is set.
func (r *Registry) Default() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.daemon.DefaultIndex == "" {
		return "", false
	}
	return r.daemon.DefaultIndex, true
}

// SwitchDefault atomically sets the default index, failing with
// INDEX_NOT_FOUND if name is unregistered.
func (r *Registry) SwitchDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.daemon.Indexes[name]; !ok {
		return gundogerrors.New(gundogerrors.CodeIndexNotFound, fmt.Sprintf("index %q is not registered", name))
	}
	r.daemon.DefaultIndex = name
	return r.saveLocked()
}

// List returns IndexInfo for every registered index, sorted by name.
// Indexes whose manifest cannot be read are skipped (they contribute no
// error -- `gundog index ls` should keep working after one index's
// directory goes missing).
func (r *Registry) List() []IndexInfo {
	r.mu.Lock()
	names := make([]string, 0, len(r.daemon.Indexes))
	paths := make(map[string]string, len(r.daemon.Indexes))
	for name, path := range r.daemon.Indexes {
		names = append(names, name)
		paths[name] = path
	}
	r.mu.Unlock()

	sort.Strings(names)
	infos := make([]IndexInfo, 0, len(names))
	for _, name := range names {
		path := paths[name]
		manifestPath := filepath.Join(path, "manifest.json")
		if _, err := os.Stat(manifestPath); err != nil {
			continue
		}
		m, err := manifest.Load(manifestPath)
		if err != nil {
			continue
		}
		info := IndexInfo{
			Name:           name,
			Path:           path,
			FileCount:      len(m.Files),
			EmbeddingModel: m.EmbeddingModel,
			LastUpdated:    m.LastIngestAt,
		}
		for relPath, e := range m.Files {
			info.ChunkCount += max(e.ChunkCount, 1)
			if len(info.SamplePaths) < samplePathCount {
				info.SamplePaths = append(info.SamplePaths, relPath)
			}
		}
		sort.Strings(info.SamplePaths)

		if cfg, err := config.LoadProject(filepath.Join(path, "config.yaml")); err == nil && len(cfg.Sources) > 0 {
			if resolver, err := gitinfo.Open(cfg.Sources[0].Path); err == nil && resolver != nil {
				info.Git = resolver.Info()
			}
		}
		infos = append(infos, info)
	}
	return infos
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// saveLocked writes the daemon config atomically (shadow-then-rename),
// per spec §4.10: "Switching the default index is atomic in the
// registry file." Caller holds r.mu.
func (r *Registry) saveLocked() error {
	data, err := yaml.Marshal(r.daemon)
	if err != nil {
		return fmt.Errorf("marshal daemon config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create daemon config dir: %w", err)
	}
	shadow := r.path + ".shadow"
	if err := os.WriteFile(shadow, data, 0o600); err != nil {
		os.Remove(shadow)
		return fmt.Errorf("write shadow daemon config: %w", err)
	}
	return os.Rename(shadow, r.path)
}
