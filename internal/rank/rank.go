// Package rank implements the HybridRanker (spec §4.8): Reciprocal Rank
// Fusion over vector and BM25 candidate lists, an optional recency boost,
// chunk-to-file dedup, [0,1] rescaling, and an irrelevance gate.
package rank

import (
	"math"
	"sort"
	"time"

	"github.com/gundog/gundog/internal/store"
)

// rrfConstant is the fixed RRF smoothing constant from spec §4.8 step 3.
// Exposed as an implementation constant rather than a config knob per
// spec §9's open question.
const rrfConstant = 60

// irrelevantCosine and irrelevantBM25 gate empty-ish result sets per
// spec §4.8 step 7. The BM25 floor is implementation-defined; 0.5 is the
// documented default pending recall measurements (spec §9).
const (
	irrelevantCosine = 0.25
	defaultBM25Floor = 0.5
)

// Config mirrors config.HybridConfig plus config.RecencyConfig, the
// fusion-time parameters the ranker needs.
type Config struct {
	BM25Weight          float64
	VectorWeight        float64
	RecencyEnabled      bool
	RecencyWeight       float64
	RecencyHalfLifeDays float64
	BM25Floor           float64 // 0 uses defaultBM25Floor
}

// Result is one fused candidate, ready for chunk/dedup-aware assembly by
// the QueryEngine.
type Result struct {
	ID        string  // chunk_id (chunking on) or doc_id (chunking off)
	DocID     string
	Fused     float64
	Display   float64
	RawCosine float32 // sentinel NoCosine if absent from the vector candidates
	BM25Score float64
}

// NoCosine marks a Result that was surfaced only by BM25, never seen by
// VectorStore.KNN.
const NoCosine float32 = -2

// DocIDOf maps a candidate id (chunk_id or doc_id) to its owning doc_id.
type DocIDOf func(id string) string

// CommitTimeOf returns a document's git_last_commit_time, or nil if
// unknown/unset.
type CommitTimeOf func(docID string) *time.Time

// Ranker fuses vector and keyword candidates into a ranked, rescaled,
// deduped, gated result list.
type Ranker struct {
	cfg Config
}

// New creates a Ranker with cfg.
func New(cfg Config) *Ranker {
	if cfg.BM25Floor <= 0 {
		cfg.BM25Floor = defaultBM25Floor
	}
	return &Ranker{cfg: cfg}
}

// Fuse implements spec §4.8 steps 3-8. now is injected so fusion is
// deterministic in tests; callers pass time.Now().
func (r *Ranker) Fuse(vector []store.VectorResult, keyword []store.KeywordResult, topK int, docIDOf DocIDOf, commitTimeOf CommitTimeOf, now time.Time) []Result {
	if topK <= 0 {
		topK = 1
	}

	rankV := make(map[string]int, len(vector))
	cosineOf := make(map[string]float32, len(vector))
	for i, v := range vector {
		rankV[v.ID] = i + 1
		cosineOf[v.ID] = v.Cosine
	}
	rankK := make(map[string]int, len(keyword))
	bm25Of := make(map[string]float64, len(keyword))
	for i, k := range keyword {
		rankK[k.ID] = i + 1
		bm25Of[k.ID] = k.Score
	}

	ids := make(map[string]struct{}, len(rankV)+len(rankK))
	for id := range rankV {
		ids[id] = struct{}{}
	}
	for id := range rankK {
		ids[id] = struct{}{}
	}

	// Irrelevance gate: computed over the raw candidate lists before any
	// fusion or dedup.
	bestCosine := float32(-1)
	for _, v := range vector {
		if v.Cosine > bestCosine {
			bestCosine = v.Cosine
		}
	}
	bestBM25 := 0.0
	for _, k := range keyword {
		if k.Score > bestBM25 {
			bestBM25 = k.Score
		}
	}
	if bestCosine < irrelevantCosine && bestBM25 < r.cfg.BM25Floor {
		return nil
	}

	candidates := make([]Result, 0, len(ids))
	for id := range ids {
		rv, hasV := rankV[id]
		rk, hasK := rankK[id]

		var rrf float64
		if hasV {
			rrf += r.cfg.VectorWeight / float64(rrfConstant+rv)
		}
		if hasK {
			rrf += r.cfg.BM25Weight / float64(rrfConstant+rk)
		}

		docID := id
		if docIDOf != nil {
			docID = docIDOf(id)
		}

		fused := rrf
		if r.cfg.RecencyEnabled && commitTimeOf != nil {
			if ct := commitTimeOf(docID); ct != nil {
				ageDays := now.Sub(*ct).Hours() / 24
				if ageDays < 0 {
					ageDays = 0
				}
				halfLife := r.cfg.RecencyHalfLifeDays
				if halfLife <= 0 {
					halfLife = 1
				}
				boost := r.cfg.RecencyWeight * math.Exp(-math.Ln2*ageDays/halfLife)
				fused = rrf * (1 + boost)
			}
		}

		cosine := NoCosine
		if hasV {
			cosine = cosineOf[id]
		}

		candidates = append(candidates, Result{
			ID:        id,
			DocID:     docID,
			Fused:     fused,
			RawCosine: cosine,
			BM25Score: bm25Of[id],
		})
	}

	// Chunk->file dedup: keep the highest-fused candidate per doc_id.
	best := make(map[string]Result, len(candidates))
	for _, c := range candidates {
		cur, ok := best[c.DocID]
		if !ok || c.Fused > cur.Fused || (c.Fused == cur.Fused && c.ID < cur.ID) {
			best[c.DocID] = c
		}
	}
	deduped := make([]Result, 0, len(best))
	for _, c := range best {
		deduped = append(deduped, c)
	}

	sort.Slice(deduped, func(i, j int) bool {
		if deduped[i].Fused != deduped[j].Fused {
			return deduped[i].Fused > deduped[j].Fused
		}
		return deduped[i].ID < deduped[j].ID
	})

	if len(deduped) > topK {
		deduped = deduped[:topK]
	}

	rescale(deduped)
	return deduped
}

// rescale applies spec §4.8 step 6 in place over the (already truncated
// to top_k) window.
func rescale(results []Result) {
	if len(results) == 0 {
		return
	}
	sMax := results[0].Fused
	sFloor := results[len(results)-1].Fused
	spread := sMax - sFloor

	for i := range results {
		if spread <= 1e-9 {
			if i == 0 {
				results[i].Display = 1.0
			} else {
				results[i].Display = 0.0
			}
			continue
		}
		d := (results[i].Fused - sFloor) / spread
		if d < 0 {
			d = 0
		}
		if d > 1 {
			d = 1
		}
		results[i].Display = d
	}
}
