package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	gundogerrors "github.com/gundog/gundog/internal/errors"
)

// HNSWStore implements VectorStore with an approximate-kNN backend using
// coder/hnsw, a pure-Go HNSW graph (no CGO).
type HNSWStore struct {
	mu   sync.RWMutex
	path string
	dim  int

	graph *hnsw.Graph[uint64]

	idMap   map[string]uint64 // string id -> internal key
	keyMap  map[uint64]string // internal key -> string id
	vectors map[uint64][]float32
	nextKey uint64

	closed bool
}

type hnswMetadata struct {
	IDMap   map[string]uint64
	Vectors map[uint64][]float32
	NextKey uint64
	Dim     int
}

// NewHNSWStore creates an HNSW-backed VectorStore at path, operating on
// dim-dimensional vectors.
func NewHNSWStore(path string, dim int) *HNSWStore {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	return &HNSWStore{
		path:    path,
		dim:     dim,
		graph:   graph,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		vectors: make(map[uint64][]float32),
	}
}

// Upsert replaces id's vector using lazy deletion of the prior entry: the
// coder/hnsw graph has a known bug when the last remaining node is
// deleted, so a stale node is orphaned (left in the graph, unreachable
// via idMap/keyMap) rather than removed.
func (s *HNSWStore) Upsert(ctx context.Context, id string, vector []float32) error {
	if len(vector) != s.dim {
		return gundogerrors.New(gundogerrors.CodeInternal, "vector dimension mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return gundogerrors.New(gundogerrors.CodeInternal, "store is closed")
	}

	if existingKey, exists := s.idMap[id]; exists {
		delete(s.keyMap, existingKey)
		delete(s.idMap, id)
		delete(s.vectors, existingKey)
	}

	key := s.nextKey
	s.nextKey++

	vec := normalizeCopy(vector)
	s.graph.Add(hnsw.MakeNode(key, vec))
	s.idMap[id] = key
	s.keyMap[key] = id
	s.vectors[key] = vec
	return nil
}

// Delete lazily removes id, orphaning its node rather than deleting it
// from the graph.
func (s *HNSWStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key, exists := s.idMap[id]; exists {
		delete(s.keyMap, key)
		delete(s.idMap, id)
		delete(s.vectors, key)
	}
	return nil
}

// KNN returns up to k approximate nearest neighbors with cosine >=
// minScore, sorted by cosine descending then id ascending.
func (s *HNSWStore) KNN(ctx context.Context, query []float32, k int, minScore float32) ([]VectorResult, error) {
	if len(query) != s.dim {
		return nil, gundogerrors.New(gundogerrors.CodeInternal, "query dimension mismatch")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, gundogerrors.New(gundogerrors.CodeInternal, "store is closed")
	}
	if s.graph.Len() == 0 {
		return nil, nil
	}

	q := normalizeCopy(query)
	// Over-fetch to absorb orphaned (lazily-deleted) nodes the graph still
	// returns.
	fetch := k + (s.graph.Len() - len(s.idMap)) + k
	if fetch > s.graph.Len() {
		fetch = s.graph.Len()
	}
	nodes := s.graph.Search(q, fetch)

	results := make([]VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue // orphaned node
		}
		cos := 1 - s.graph.Distance(q, node.Value)
		if cos < minScore {
			continue
		}
		results = append(results, VectorResult{ID: id, Cosine: cos})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Cosine != results[j].Cosine {
			return results[i].Cosine > results[j].Cosine
		}
		return results[i].ID < results[j].ID
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// AllPairsAbove does a full O(N^2/2) scan over live vectors. The HNSW
// graph itself has no efficient all-pairs query, so the graph-build step
// uses the store's own in-memory vector cache instead.
func (s *HNSWStore) AllPairsAbove(ctx context.Context, threshold float32) ([]VectorPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]uint64, 0, len(s.keyMap))
	for k := range s.keyMap {
		keys = append(keys, k)
	}

	var pairs []VectorPair
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			cos := dot(s.vectors[keys[i]], s.vectors[keys[j]])
			if cos >= threshold {
				a, b := s.keyMap[keys[i]], s.keyMap[keys[j]]
				if a > b {
					a, b = b, a
				}
				pairs = append(pairs, VectorPair{A: a, B: b, Cosine: cos})
			}
		}
	}
	return pairs, nil
}

// Get returns id's stored vector, if present.
func (s *HNSWStore) Get(id string) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.idMap[id]
	if !ok {
		return nil, false
	}
	v, ok := s.vectors[key]
	return v, ok
}

func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// orphanRatio reports the fraction of graph nodes that are lazily
// deleted.
func (s *HNSWStore) orphanRatio() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := s.graph.Len()
	if total == 0 {
		return 0
	}
	return float64(total-len(s.idMap)) / float64(total)
}

// NeedsCompaction reports whether the store's orphan ratio has crossed
// the spec §4.4 threshold ("compaction runs when tombstones exceed 20%
// of N"), shared with DenseFileStore's own compactionThreshold.
func (s *HNSWStore) NeedsCompaction() bool {
	return s.orphanRatio() > compactionThreshold
}

// Compact rebuilds the graph from scratch using only live vectors,
// discarding every orphaned (lazily-deleted) node. Internal keys are
// reassigned; the string id -> vector mapping is unaffected.
func (s *HNSWStore) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = s.graph.M
	graph.EfSearch = s.graph.EfSearch
	graph.Ml = s.graph.Ml

	idMap := make(map[string]uint64, len(s.idMap))
	keyMap := make(map[uint64]string, len(s.idMap))
	vectors := make(map[uint64][]float32, len(s.idMap))

	var nextKey uint64
	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	sort.Strings(ids) // deterministic key reassignment

	for _, id := range ids {
		oldKey := s.idMap[id]
		vec := s.vectors[oldKey]
		key := nextKey
		nextKey++
		graph.Add(hnsw.MakeNode(key, vec))
		idMap[id] = key
		keyMap[key] = id
		vectors[key] = vec
	}

	s.graph = graph
	s.idMap = idMap
	s.keyMap = keyMap
	s.vectors = vectors
	s.nextKey = nextKey
	return nil
}

func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Save persists the graph (via the library's own Export format) and the
// id-mapping metadata as two files, each written shadow-then-rename.
func (s *HNSWStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	shadow := s.path + ".shadow"
	f, err := os.Create(shadow)
	if err != nil {
		return err
	}
	if err := s.graph.Export(f); err != nil {
		f.Close()
		os.Remove(shadow)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(shadow)
		return err
	}
	if err := os.Rename(shadow, s.path); err != nil {
		return err
	}

	return s.saveMetadata(s.path + ".meta")
}

func (s *HNSWStore) saveMetadata(path string) error {
	shadow := path + ".shadow"
	f, err := os.Create(shadow)
	if err != nil {
		return err
	}
	meta := hnswMetadata{IDMap: s.idMap, Vectors: s.vectors, NextKey: s.nextKey, Dim: s.dim}
	if err := gob.NewEncoder(f).Encode(meta); err != nil {
		f.Close()
		os.Remove(shadow)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(shadow)
		return err
	}
	return os.Rename(shadow, path)
}

// Load reads a store previously written by Save. A missing path is not
// an error: the store is simply empty.
func (s *HNSWStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	metaPath := s.path + ".meta"
	if _, err := os.Stat(metaPath); os.IsNotExist(err) {
		return nil
	}
	if err := s.loadMetadata(metaPath); err != nil {
		return err
	}

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	if err := s.graph.Import(bufio.NewReader(f)); err != nil {
		return err
	}
	return nil
}

func (s *HNSWStore) loadMetadata(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var meta hnswMetadata
	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return err
	}

	s.idMap = meta.IDMap
	s.vectors = meta.Vectors
	s.nextKey = meta.NextKey
	s.dim = meta.Dim
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

var _ VectorStore = (*HNSWStore)(nil)
