// Package index bundles one on-disk index's stores and its current
// manifest snapshot, and enforces the single-writer discipline (I5) an
// IndexBuilder and a QueryEngine both rely on.
package index

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"github.com/gundog/gundog/internal/config"
	gundogerrors "github.com/gundog/gundog/internal/errors"
	"github.com/gundog/gundog/internal/manifest"
	"github.com/gundog/gundog/internal/store"
)

// Layout names the files under an index root (spec §6.4).
const (
	ManifestFile = "manifest.json"
	VectorFile   = "vectors.bin"
	ColumnarDir  = "columnar"
	KeywordFile  = "keywords.db"
	GraphFile    = "graph.bin"
	LockFile     = ".write.lock"
)

// Index is one loaded on-disk index: its stores, its current manifest
// snapshot, and the writer lock that enforces "only IndexBuilder mutates
// an index" (I5) and "global concurrent ingests: 1 per index" (spec §5).
type Index struct {
	Root   string
	Config *config.Project

	Vector  store.VectorStore
	Keyword store.KeywordStore
	Graph   store.GraphStore

	lock *flock.Flock
	// manifestHandle is the refcounted manifest snapshot of spec §5's
	// locking discipline: Go's garbage collector keeps an old *Manifest
	// alive for as long as any in-flight query holds a reference to it,
	// which is exactly the "last reader drops them" behavior the spec
	// asks for -- no explicit refcount bookkeeping is needed as long as
	// callers capture Handle() once per query and never re-read it.
	manifestHandle atomic.Pointer[manifest.Manifest]
	building       atomic.Bool
}

// Open constructs the stores for root per cfg.Storage.Backend and loads
// the current manifest. It does not acquire the writer lock -- callers
// that intend to mutate the index must call BeginBuild first. defaultDim
// is the configured embedder's output width, used to size the VectorStore
// on a project's first ever ingest (before any manifest has pinned a
// dimension); once the manifest records one, it always wins.
func Open(root string, cfg *config.Project, defaultDim int) (*Index, error) {
	m, err := manifest.Load(filepath.Join(root, ManifestFile))
	if err != nil {
		return nil, err
	}
	dim := defaultDim
	if m.EmbeddingDimension > 0 {
		dim = m.EmbeddingDimension
	}

	vec, err := openVectorStore(root, cfg, dim)
	if err != nil {
		return nil, err
	}
	kw, err := store.NewSQLiteKeywordStore(filepath.Join(root, KeywordFile))
	if err != nil {
		return nil, err
	}
	g := store.NewMemoryGraphStore(filepath.Join(root, GraphFile))
	if err := g.Load(); err != nil {
		return nil, err
	}

	ix := &Index{
		Root:    root,
		Config:  cfg,
		Vector:  vec,
		Keyword: kw,
		Graph:   g,
		lock:    flock.New(filepath.Join(root, LockFile)),
	}
	ix.manifestHandle.Store(m)
	return ix, nil
}

func openVectorStore(root string, cfg *config.Project, dim int) (store.VectorStore, error) {
	switch cfg.Storage.Backend {
	case config.BackendColumnarANN:
		s := store.NewHNSWStore(filepath.Join(root, ColumnarDir, "index.gob"), dim)
		if err := s.Load(); err != nil {
			return nil, err
		}
		return s, nil
	default:
		s := store.NewDenseFileStore(filepath.Join(root, VectorFile), dim)
		if err := s.Load(); err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Handle returns the manifest snapshot current as of the call. A query
// should call this exactly once and use the returned value for its
// entire execution (spec §5: "the next query on the same connection
// after the ingest observes the new snapshot").
func (ix *Index) Handle() *manifest.Manifest {
	return ix.manifestHandle.Load()
}

// Publish atomically swaps in a newly-built manifest, the point at which
// an ingest's effects become visible to new queries (I4, §5).
func (ix *Index) Publish(m *manifest.Manifest) {
	ix.manifestHandle.Store(m)
}

// Busy reports whether an ingest is currently running against this
// index, for the daemon's INDEX_BUSY check (spec §4.9, §7).
func (ix *Index) Busy() bool {
	return ix.building.Load()
}

// BeginBuild enforces "global concurrent ingests: 1 per index" (spec §5)
// both within this process (the atomic bool) and across processes (the
// advisory flock, I5). It returns an *errors.Error with CodeIndexBusy if
// either is already held.
func (ix *Index) BeginBuild() (func(), error) {
	if !ix.building.CompareAndSwap(false, true) {
		return nil, gundogerrors.New(gundogerrors.CodeIndexBusy, "an ingest is already running for this index")
	}
	if err := os.MkdirAll(ix.Root, 0o755); err != nil {
		ix.building.Store(false)
		return nil, err
	}
	ok, err := ix.lock.TryLock()
	if err != nil {
		ix.building.Store(false)
		return nil, fmt.Errorf("acquire index write lock: %w", err)
	}
	if !ok {
		ix.building.Store(false)
		return nil, gundogerrors.New(gundogerrors.CodeIndexBusy, "another process is ingesting this index")
	}

	return func() {
		_ = ix.lock.Unlock()
		ix.building.Store(false)
	}, nil
}

// Close releases resources held by the index's stores.
func (ix *Index) Close() error {
	var firstErr error
	if err := ix.Vector.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := ix.Keyword.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
