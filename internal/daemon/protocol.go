package daemon

import "github.com/gundog/gundog/internal/store"

// Request is the envelope for every inbound wire frame (spec §6.3). Exactly
// one request-specific field set is populated per Type.
type Request struct {
	ID    string `json:"id,omitempty"`
	Type  string `json:"type"`
	Index string `json:"index,omitempty"`

	// query
	Query       string   `json:"query,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	Expand      bool     `json:"expand,omitempty"`
	ExpandDepth int      `json:"expand_depth,omitempty"`
	MinScore    *float64 `json:"min_score,omitempty"`
}

// Request type names (spec §6.3).
const (
	TypeQuery       = "query"
	TypeListIndexes = "list_indexes"
	TypeSwitchIndex = "switch_index"
)

// Response type names (spec §6.3).
const (
	TypeQueryResult   = "query_result"
	TypeIndexList     = "index_list"
	TypeIndexSwitched = "index_switched"
	TypeStatus        = "status"
	TypeError         = "error"
)

// DirectHit mirrors query.DirectHit in wire shape.
type DirectHit struct {
	ID        string  `json:"id"`
	DocID     string  `json:"doc_id"`
	Path      string  `json:"path"`
	Display   float64 `json:"score"`
	RawCosine float32 `json:"raw_cosine"`
	BM25Score float64 `json:"bm25_score"`
}

// RelatedHit mirrors query.RelatedHit in wire shape.
type RelatedHit struct {
	DocID  string  `json:"doc_id"`
	Path   string  `json:"path"`
	Via    string  `json:"via"`
	Weight float32 `json:"weight"`
	Depth  int     `json:"depth"`
}

// GraphPayload mirrors query.GraphPayload in wire shape.
type GraphPayload struct {
	Nodes []string     `json:"nodes"`
	Edges []store.Edge `json:"edges"`
}

// QueryResultPayload is the `query_result` response body.
type QueryResultPayload struct {
	ID      string       `json:"id,omitempty"`
	Type    string       `json:"type"`
	Direct  []DirectHit  `json:"direct"`
	Related []RelatedHit `json:"related,omitempty"`
	Graph   GraphPayload `json:"graph,omitempty"`
}

// IndexSummary is one entry of an `index_list` response, built from
// registry.IndexInfo.
type IndexSummary struct {
	Name           string   `json:"name"`
	Path           string   `json:"path"`
	FileCount      int      `json:"file_count"`
	ChunkCount     int      `json:"chunk_count"`
	LastUpdated    string   `json:"last_updated,omitempty"`
	EmbeddingModel string   `json:"embedding_model"`
	SamplePaths    []string `json:"sample_paths,omitempty"`
	WebURL         string   `json:"web_url,omitempty"`
	Branch         string   `json:"branch,omitempty"`
	Commit         string   `json:"commit,omitempty"`
	Default        bool     `json:"default"`
}

// IndexListPayload is the `index_list` response body.
type IndexListPayload struct {
	ID      string         `json:"id,omitempty"`
	Type    string         `json:"type"`
	Indexes []IndexSummary `json:"indexes"`
}

// IndexSwitchedPayload is the `index_switched` response body.
type IndexSwitchedPayload struct {
	ID    string `json:"id,omitempty"`
	Type  string `json:"type"`
	Index string `json:"index"`
}

// StatusPayload is the unsolicited server-push `status` frame (spec §4.11).
type StatusPayload struct {
	Type       string                 `json:"type"`
	UptimeSecs float64                `json:"uptime_seconds"`
	Indexes    map[string]IndexStatus `json:"indexes"`
}

// IndexStatus is one index's entry in a StatusPayload.
type IndexStatus struct {
	Loaded bool `json:"loaded"`
	Busy   bool `json:"busy"`
}

// ErrorPayload is the `error` response body (spec §6.3/§7).
type ErrorPayload struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newError(id, code, message string) ErrorPayload {
	return ErrorPayload{ID: id, Type: TypeError, Code: code, Message: message}
}
