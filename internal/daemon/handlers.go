package daemon

import (
	"context"

	gundogerrors "github.com/gundog/gundog/internal/errors"
	"github.com/gundog/gundog/internal/query"
)

func (c *connection) handleQuery(ctx context.Context, req Request, slot chan []byte) {
	indexName, err := c.server.resolveIndexName(req.Index)
	if err != nil {
		c.sendErr(slot, req.ID, err)
		return
	}
	ix, err := c.server.loadIndex(indexName)
	if err != nil {
		c.sendErr(slot, req.ID, err)
		return
	}

	result, err := c.server.Engine.Query(ctx, ix, query.Request{
		Text:        req.Query,
		TopK:        req.TopK,
		Expand:      req.Expand,
		ExpandDepth: req.ExpandDepth,
		MinScore:    req.MinScore,
	})
	if err != nil {
		c.sendErr(slot, req.ID, err)
		return
	}

	c.reply(slot, QueryResultPayload{
		ID:      req.ID,
		Type:    TypeQueryResult,
		Direct:  toWireDirect(result.Direct),
		Related: toWireRelated(result.Related),
		Graph:   GraphPayload{Nodes: result.Graph.Nodes, Edges: result.Graph.Edges},
	})
}

func (c *connection) handleListIndexes(req Request, slot chan []byte) {
	infos := c.server.Registry.List()
	defaultName, _ := c.server.Registry.Default()

	summaries := make([]IndexSummary, 0, len(infos))
	for _, info := range infos {
		s := IndexSummary{
			Name:           info.Name,
			Path:           info.Path,
			FileCount:      info.FileCount,
			ChunkCount:     info.ChunkCount,
			EmbeddingModel: info.EmbeddingModel,
			SamplePaths:    info.SamplePaths,
			Default:        info.Name == defaultName,
		}
		if !info.LastUpdated.IsZero() {
			s.LastUpdated = info.LastUpdated.UTC().Format("2006-01-02T15:04:05Z")
		}
		if info.Git != nil {
			s.WebURL = info.Git.WebURL
			s.Branch = info.Git.Branch
			s.Commit = info.Git.Commit
		}
		summaries = append(summaries, s)
	}

	c.reply(slot, IndexListPayload{ID: req.ID, Type: TypeIndexList, Indexes: summaries})
}

func (c *connection) handleSwitchIndex(req Request, slot chan []byte) {
	if req.Index == "" {
		c.reply(slot, newError(req.ID, gundogerrors.CodeInvalidRequest, "switch_index requires an index name"))
		return
	}
	if err := c.server.Registry.SwitchDefault(req.Index); err != nil {
		c.sendErr(slot, req.ID, err)
		return
	}
	c.reply(slot, IndexSwitchedPayload{ID: req.ID, Type: TypeIndexSwitched, Index: req.Index})
}

// sendErr converts err to a wire `error` frame, defaulting to
// CodeInternal for errors that never carried a wire code.
func (c *connection) sendErr(slot chan []byte, reqID string, err error) {
	c.reply(slot, newError(reqID, gundogerrors.CodeOf(err), err.Error()))
}

func toWireDirect(hits []query.DirectHit) []DirectHit {
	out := make([]DirectHit, len(hits))
	for i, h := range hits {
		out[i] = DirectHit{
			ID: h.ID, DocID: h.DocID, Path: h.Path,
			Display: h.Display, RawCosine: h.RawCosine, BM25Score: h.BM25Score,
		}
	}
	return out
}

func toWireRelated(hits []query.RelatedHit) []RelatedHit {
	out := make([]RelatedHit, len(hits))
	for i, h := range hits {
		out[i] = RelatedHit{DocID: h.DocID, Path: h.Path, Via: h.Via, Weight: h.Weight, Depth: h.Depth}
	}
	return out
}
