package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
)

// MemoryGraphStore is the GraphStore implementation: an in-memory
// adjacency list rebuilt wholesale at the end of every ingest (spec §4.6)
// and persisted to a single file on Save.
type MemoryGraphStore struct {
	path  string
	edges []Edge
	adj   map[string][]neighbor
}

type neighbor struct {
	id     string
	weight float32
}

// NewMemoryGraphStore creates an empty graph store backed by path.
func NewMemoryGraphStore(path string) *MemoryGraphStore {
	return &MemoryGraphStore{path: path, adj: make(map[string][]neighbor)}
}

// ReplaceAll atomically replaces the entire edge set (I3: every stored
// edge's endpoints exist in the manifest, which the caller is responsible
// for guaranteeing by only passing edges derived from the current
// document vector set).
func (g *MemoryGraphStore) ReplaceAll(edges []Edge) error {
	adj := make(map[string][]neighbor, len(edges)*2)
	for _, e := range edges {
		adj[e.A] = append(adj[e.A], neighbor{id: e.B, weight: e.Weight})
		adj[e.B] = append(adj[e.B], neighbor{id: e.A, weight: e.Weight})
	}
	g.edges = append([]Edge(nil), edges...)
	g.adj = adj
	return nil
}

type bestPath struct {
	product float64
	depth   int
	via     string
	known   bool
}

// betterThan reports whether candidate (product, depth, via) should
// replace cur per the tie-break rules in spec §4.6: higher product of
// edge weights wins; ties broken by shallower depth, then
// lexicographically smaller via.
func (cur bestPath) betterThan(product float64, depth int, via string) bool {
	if !cur.known {
		return true
	}
	if product != cur.product {
		return product > cur.product
	}
	if depth != cur.depth {
		return depth < cur.depth
	}
	return via < cur.via
}

// Expand runs a multi-source BFS/relaxation from seeds, exploring edges
// with weight >= minWeight up to maxDepth hops. When a node is reachable
// via multiple paths, the path with the highest product of edge weights
// wins (ties: shorter depth, then lexicographically smaller via). Seeds
// are excluded from the result.
func (g *MemoryGraphStore) Expand(seeds []string, minWeight float32, maxDepth int) []ExpandResult {
	seedSet := make(map[string]struct{}, len(seeds))
	for _, s := range seeds {
		seedSet[s] = struct{}{}
	}

	best := make(map[string]bestPath)
	type frontierItem struct {
		id      string
		product float64
		depth   int
		via     string
	}
	frontier := make([]frontierItem, 0, len(seeds))
	for _, s := range seeds {
		frontier = append(frontier, frontierItem{id: s, product: 1.0, depth: 0})
	}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		next := make([]frontierItem, 0)
		for _, item := range frontier {
			for _, nb := range g.adj[item.id] {
				if nb.weight < minWeight {
					continue
				}
				if _, isSeed := seedSet[nb.id]; isSeed {
					continue
				}
				product := item.product * float64(nb.weight)
				via := item.id
				cur := best[nb.id]
				if cur.betterThan(product, depth, via) {
					best[nb.id] = bestPath{product: product, depth: depth, via: via, known: true}
					next = append(next, frontierItem{id: nb.id, product: product, depth: depth, via: via})
				}
			}
		}
		frontier = next
	}

	results := make([]ExpandResult, 0, len(best))
	for id, bp := range best {
		results = append(results, ExpandResult{ID: id, Via: bp.via, Weight: float32(bp.product), Depth: bp.depth})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Depth != results[j].Depth {
			return results[i].Depth < results[j].Depth
		}
		return results[i].ID < results[j].ID
	})
	return results
}

// Edges returns the induced subgraph whose both endpoints are in ids.
func (g *MemoryGraphStore) Edges(ids map[string]struct{}) []Edge {
	out := make([]Edge, 0)
	for _, e := range g.edges {
		_, aok := ids[e.A]
		_, bok := ids[e.B]
		if aok && bok {
			out = append(out, e)
		}
	}
	return out
}

// AllEdges returns every stored edge, for consistency checks that need
// to validate the whole graph rather than one induced subgraph (I3).
func (g *MemoryGraphStore) AllEdges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// graphFile is the on-disk shape of graph.bin: despite the name, the
// content is JSON, matching the manifest's shadow-then-rename discipline
// rather than a bespoke binary layout.
type graphFile struct {
	Edges []Edge `json:"edges"`
}

// Save persists the current edge set to g.path via shadow-then-rename.
func (g *MemoryGraphStore) Save() error {
	if err := os.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(graphFile{Edges: g.edges})
	if err != nil {
		return err
	}
	shadow := g.path + ".shadow"
	if err := os.WriteFile(shadow, data, 0o644); err != nil {
		os.Remove(shadow)
		return err
	}
	return os.Rename(shadow, g.path)
}

// Load reads a graph previously written by Save. A missing file leaves
// the store empty.
func (g *MemoryGraphStore) Load() error {
	data, err := os.ReadFile(g.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var gf graphFile
	if err := json.Unmarshal(data, &gf); err != nil {
		return err
	}
	return g.ReplaceAll(gf.Edges)
}

var _ GraphStore = (*MemoryGraphStore)(nil)
