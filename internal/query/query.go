// Package query implements the QueryEngine (spec §4.9): embed -> kNN +
// BM25 -> HybridRanker.Fuse -> graph expansion -> response assembly.
package query

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/gundog/gundog/internal/embed"
	gundogerrors "github.com/gundog/gundog/internal/errors"
	"github.com/gundog/gundog/internal/index"
	"github.com/gundog/gundog/internal/manifest"
	"github.com/gundog/gundog/internal/rank"
	"github.com/gundog/gundog/internal/store"
)

// Resource limits from spec §5.
const (
	MaxTopK       = 200
	MaxExpandDepth = 4
	DefaultTopK   = 10
	QueryTimeout  = 30 * time.Second
)

// Request is one query.text call (spec §6.3's `query` wire request).
type Request struct {
	Text        string
	TopK        int
	Expand      bool
	ExpandDepth int
	MinScore    *float64 // raw cosine filter on direct results; nil = no filter
}

// DirectHit is one fused-and-rescaled candidate surfaced as a direct hit.
type DirectHit struct {
	ID        string
	DocID     string
	Path      string
	Fused     float64
	Display   float64
	RawCosine float32
	BM25Score float64
}

// RelatedHit is one node reached via graph expansion from the direct
// hits (spec §4.6/§4.9 step 4). Never filtered by MinScore.
type RelatedHit struct {
	DocID  string
	Path   string
	Via    string
	Weight float32
	Depth  int
}

// GraphPayload is the induced subgraph over direct ∪ related nodes (spec
// §4.9 step 5).
type GraphPayload struct {
	Nodes []string
	Edges []store.Edge
}

// Result is the full QueryResult: direct hits, expanded related nodes,
// and the graph payload (spec §4.9).
type Result struct {
	Direct  []DirectHit
	Related []RelatedHit
	Graph   GraphPayload
}

// Engine runs queries against a loaded Index using embedder to vectorize
// query text.
type Engine struct {
	Embedder embed.Embedder
}

// New creates an Engine.
func New(embedder embed.Embedder) *Engine {
	return &Engine{Embedder: embedder}
}

// Query implements spec §4.9 end to end.
func (e *Engine) Query(ctx context.Context, ix *index.Index, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, gundogerrors.New(gundogerrors.CodeInvalidRequest, "query text must not be empty")
	}
	if ix.Busy() {
		return nil, gundogerrors.New(gundogerrors.CodeIndexBusy, "an ingest is in progress for this index")
	}

	m := ix.Handle() // snapshot held for the whole query (spec §5, I5)
	if !m.MatchesEmbedder(e.Embedder.Identifier(), e.Embedder.Dimension()) {
		return nil, gundogerrors.New(gundogerrors.CodeQueryFailed,
			"manifest embedding model/dimension mismatch; index must be rebuilt with full=true")
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeout)
	defer cancel()

	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	expandDepth := req.ExpandDepth
	if expandDepth <= 0 {
		expandDepth = ix.Config.Graph.MaxExpandDepth
	}
	if expandDepth > MaxExpandDepth {
		expandDepth = MaxExpandDepth
	}

	docIndex := buildDocIndex(m)

	vectors, err := embed.EmbedBatched(ctx, e.Embedder, []string{req.Text}, 1)
	if err != nil {
		return nil, asTimeoutOrErr(ctx, gundogerrors.Wrap(gundogerrors.CodeEmbedFailed, err))
	}
	q := embed.Normalize(vectors[0])

	kRaw := topK * 4
	if kRaw < 50 {
		kRaw = 50
	}

	vecResults, err := ix.Vector.KNN(ctx, q, kRaw, float32(math.Inf(-1)))
	if err != nil {
		return nil, asTimeoutOrErr(ctx, gundogerrors.Wrap(gundogerrors.CodeQueryFailed, err))
	}
	kwResults, err := ix.Keyword.Search(ctx, req.Text, kRaw)
	if err != nil {
		return nil, asTimeoutOrErr(ctx, gundogerrors.Wrap(gundogerrors.CodeQueryFailed, err))
	}

	ranker := rank.New(rank.Config{
		BM25Weight:          ix.Config.Hybrid.BM25Weight,
		VectorWeight:        ix.Config.Hybrid.VectorWeight,
		RecencyEnabled:      ix.Config.Recency.Enabled,
		RecencyWeight:       ix.Config.Recency.Weight,
		RecencyHalfLifeDays: ix.Config.Recency.HalfLifeDays,
	})

	fused := ranker.Fuse(vecResults, kwResults, topK, docIDOf, func(docID string) *time.Time {
		if e, ok := docIndex[docID]; ok {
			return e.GitLastCommitTime
		}
		return nil
	}, time.Now())

	if ctx.Err() != nil {
		return nil, asTimeoutOrErr(ctx, nil)
	}

	direct := make([]DirectHit, 0, len(fused))
	directDocs := make(map[string]struct{}, len(fused))
	for _, f := range fused {
		if req.MinScore != nil && float64(f.RawCosine) < *req.MinScore {
			continue
		}
		direct = append(direct, DirectHit{
			ID: f.ID, DocID: f.DocID, Path: docIndex[f.DocID].path,
			Fused: f.Fused, Display: f.Display, RawCosine: f.RawCosine, BM25Score: f.BM25Score,
		})
		directDocs[f.DocID] = struct{}{}
	}

	result := &Result{Direct: direct}

	if req.Expand {
		seeds := make([]string, 0, len(directDocs))
		for d := range directDocs {
			seeds = append(seeds, d)
		}
		expansions := ix.Graph.Expand(seeds, float32(ix.Config.Graph.ExpandThreshold), expandDepth)
		related := make([]RelatedHit, 0, len(expansions))
		nodeSet := make(map[string]struct{}, len(directDocs)+len(expansions))
		for d := range directDocs {
			nodeSet[d] = struct{}{}
		}
		for _, ex := range expansions {
			related = append(related, RelatedHit{
				DocID: ex.ID, Path: docIndex[ex.ID].path, Via: ex.Via, Weight: ex.Weight, Depth: ex.Depth,
			})
			nodeSet[ex.ID] = struct{}{}
		}
		result.Related = related

		nodes := make([]string, 0, len(nodeSet))
		for n := range nodeSet {
			nodes = append(nodes, n)
		}
		result.Graph = GraphPayload{Nodes: nodes, Edges: ix.Graph.Edges(nodeSet)}
	}

	return result, nil
}

// docEntry pairs a manifest.FileEntry with its relative path for reverse
// doc_id -> path lookups.
type docEntry struct {
	manifest.FileEntry
	path string
}

func buildDocIndex(m *manifest.Manifest) map[string]docEntry {
	idx := make(map[string]docEntry, len(m.Files))
	for relPath, entry := range m.Files {
		idx[entry.DocID] = docEntry{FileEntry: entry, path: relPath}
	}
	return idx
}

// docIDOf recovers a document id from a candidate id: chunk ids are
// "docID:chunkIndex"; unchunked ids are the doc_id itself.
func docIDOf(id string) string {
	if i := strings.LastIndex(id, ":"); i >= 0 {
		return id[:i]
	}
	return id
}

func asTimeoutOrErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return gundogerrors.New(gundogerrors.CodeTimeout, "query exceeded the 30s timeout")
	}
	return err
}
