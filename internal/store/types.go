// Package store persists and queries the vector, keyword, and graph
// indexes that back the retrieval engine.
package store

import "context"

// VectorResult is one hit from a VectorStore kNN query.
type VectorResult struct {
	ID     string
	Cosine float32
}

// VectorPair is one edge candidate from VectorStore.AllPairsAbove.
type VectorPair struct {
	A, B   string
	Cosine float32
}

// VectorStore persists (id -> vector) and answers exact or approximate
// kNN queries. Vectors passed to Upsert need not be normalized; backends
// normalize internally so every stored vector satisfies invariant I1.
type VectorStore interface {
	// Upsert stores or replaces the vector for id. Idempotent.
	Upsert(ctx context.Context, id string, vector []float32) error

	// Delete removes id, immediately or via tombstone depending on
	// backend.
	Delete(ctx context.Context, id string) error

	// KNN returns up to k results with cosine >= minScore, sorted by
	// cosine descending then id ascending. minScore of NaN or below -1
	// means unbounded.
	KNN(ctx context.Context, query []float32, k int, minScore float32) ([]VectorResult, error)

	// AllPairsAbove yields every unordered pair (a, b) with a < b whose
	// cosine similarity is >= threshold. Used to build the similarity
	// graph at the end of an ingest.
	AllPairsAbove(ctx context.Context, threshold float32) ([]VectorPair, error)

	// Get returns id's stored (normalized) vector, used to aggregate
	// chunk vectors into a document-level vector for graph construction.
	Get(id string) ([]float32, bool)

	// Count reports the number of live (non-tombstoned) vectors.
	Count() int

	// Save persists the store to its configured path.
	Save() error

	// Close releases resources without deleting on-disk state.
	Close() error
}

// KeywordResult is one hit from a KeywordStore.Search call.
type KeywordResult struct {
	ID    string
	Score float64 // untransformed BM25 score
}

// KeywordStore persists tokenized documents and answers BM25 queries.
type KeywordStore interface {
	Upsert(ctx context.Context, id, text string) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, queryText string, k int) ([]KeywordResult, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Edge is one entry in the similarity graph. Edge.A < Edge.B
// lexicographically, per the data model.
type Edge struct {
	A, B   string
	Weight float32
}

// ExpandResult is one node reached from GraphStore.Expand.
type ExpandResult struct {
	ID     string
	Via    string // the neighbor this node was reached through
	Weight float32
	Depth  int
}

// GraphStore persists a weighted undirected document graph and answers
// neighborhood expansions.
type GraphStore interface {
	// ReplaceAll atomically replaces the entire edge set.
	ReplaceAll(edges []Edge) error

	// Expand runs a multi-source BFS from seeds, stopping at maxDepth and
	// pruning edges below minWeight. Seeds are excluded from the result.
	Expand(seeds []string, minWeight float32, maxDepth int) []ExpandResult

	// Edges returns the induced subgraph whose endpoints are both in ids.
	Edges(ids map[string]struct{}) []Edge

	// AllEdges returns every stored edge, unfiltered (used by consistency
	// checks that need the whole graph rather than one induced subgraph).
	AllEdges() []Edge

	// Save persists the graph to its configured path.
	Save() error
}
