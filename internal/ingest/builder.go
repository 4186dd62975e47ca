// Package ingest implements the IndexBuilder orchestrator (spec §4.7):
// incremental scan -> chunk -> embed -> persist, followed by a from-
// scratch similarity-graph rebuild and an atomic manifest publish.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gundog/gundog/internal/chunk"
	"github.com/gundog/gundog/internal/embed"
	gundogerrors "github.com/gundog/gundog/internal/errors"
	"github.com/gundog/gundog/internal/gitinfo"
	"github.com/gundog/gundog/internal/index"
	"github.com/gundog/gundog/internal/manifest"
	"github.com/gundog/gundog/internal/scanner"
	"github.com/gundog/gundog/internal/store"
)

// Builder orchestrates Build calls against one Index.
type Builder struct {
	Scanner  *scanner.Scanner
	Embedder embed.Embedder
	// GitResolvers maps an absolute source root to its git.Resolver, for
	// populating FileEntry.GitLastCommitTime (spec §3). A nil map or a
	// missing entry means "no git metadata for this source".
	GitResolvers map[string]*gitinfo.Resolver
}

// New creates a Builder.
func New(sc *scanner.Scanner, embedder embed.Embedder, resolvers map[string]*gitinfo.Resolver) *Builder {
	return &Builder{Scanner: sc, Embedder: embedder, GitResolvers: resolvers}
}

// Stats summarizes one Build call.
type Stats struct {
	Added     int
	Modified  int
	Removed   int
	Unchanged int
	Binary    int64
}

// Build runs one ingest cycle against ix per spec §4.7. full=true treats
// every discovered file as added and wipes the stores first (step 4).
func (b *Builder) Build(ctx context.Context, ix *index.Index, full bool) (Stats, error) {
	end, err := ix.BeginBuild()
	if err != nil {
		return Stats{}, err
	}
	defer end()

	base := ix.Handle()
	if !full && !base.MatchesEmbedder(b.Embedder.Identifier(), b.Embedder.Dimension()) {
		return Stats{}, gundogerrors.New(gundogerrors.CodeInternal,
			"manifest embedding model/dimension mismatch; refusing to partial-reindex (run with full=true)")
	}

	cfg := ix.Config

	// Backend switches are not migrated in place (spec §9 open question):
	// a manifest recording a prior backend that disagrees with the
	// configured one requires a full rebuild.
	if !full && base.StorageBackend != "" && base.StorageBackend != string(cfg.Storage.Backend) {
		return Stats{}, gundogerrors.New(gundogerrors.CodeInvalidRequest,
			fmt.Sprintf("storage.backend changed from %q to %q; rerun with full=true", base.StorageBackend, cfg.Storage.Backend))
	}
	manifestPath := filepath.Join(ix.Root, index.ManifestFile)

	// Step 2: scan sources into the candidate set C.
	scanStats := &scanner.Stats{}
	results := b.Scanner.Scan(ctx, cfg.Sources, scanStats)
	candidates := make(map[string]*scanner.FileRecord)
	for r := range results {
		if ctx.Err() != nil {
			return Stats{}, ctx.Err()
		}
		if r.Error != nil {
			continue
		}
		candidates[r.File.RelPath] = r.File
	}

	// Step 3: partition into added/modified/removed/unchanged.
	newFiles := make(map[string]manifest.FileEntry, len(base.Files))
	for k, v := range base.Files {
		newFiles[k] = v
	}

	var toEmbed []*scanner.FileRecord
	var stats Stats

	for relPath, rec := range candidates {
		hash, err := contentHash(rec.AbsPath)
		if err != nil {
			continue
		}
		prior, existed := base.Files[relPath]
		if full || !existed {
			toEmbed = append(toEmbed, rec)
			stats.Added++
			continue
		}
		if prior.ContentHash != hash {
			toEmbed = append(toEmbed, rec)
			stats.Modified++
			continue
		}
		stats.Unchanged++
	}

	var removed []string
	if !full {
		for relPath := range base.Files {
			if _, ok := candidates[relPath]; !ok {
				removed = append(removed, relPath)
			}
		}
	}
	stats.Removed = len(removed)
	stats.Binary = scanStats.Binary

	// Step 4: full build wipes stores first.
	if full {
		for relPath := range base.Files {
			b.deleteFile(ctx, ix, base.Files[relPath], relPath)
		}
		newFiles = make(map[string]manifest.FileEntry)
	}

	if ctx.Err() != nil {
		return stats, ctx.Err()
	}

	// Step 5: chunk + embed added/modified, upsert into vector + keyword.
	if err := b.embedAndUpsert(ctx, ix, cfg.Chunking, toEmbed, newFiles); err != nil {
		return stats, err
	}

	if ctx.Err() != nil {
		return stats, ctx.Err()
	}

	// Step 6: delete removed files from stores and the manifest.
	for _, relPath := range removed {
		b.deleteFile(ctx, ix, base.Files[relPath], relPath)
		delete(newFiles, relPath)
	}

	if ctx.Err() != nil {
		return stats, ctx.Err()
	}

	// Step 7-8: document-level vectors and the rebuilt similarity graph.
	if err := b.rebuildGraph(ctx, ix, newFiles); err != nil {
		return stats, err
	}

	// Compaction: an HNSW backend accumulates tombstoned nodes on every
	// delete/re-upsert (coder/hnsw cannot remove the last node cleanly);
	// once orphans exceed the spec §4.4 threshold, rebuild the graph from
	// its live vectors before persisting.
	if compactable, ok := ix.Vector.(interface {
		NeedsCompaction() bool
		Compact() error
	}); ok && compactable.NeedsCompaction() {
		if err := compactable.Compact(); err != nil {
			return stats, fmt.Errorf("compact vector store: %w", err)
		}
		slog.Info("vector store compacted")
	}

	// Step 9: write shadow manifest, fsync, rename (I4).
	next := &manifest.Manifest{
		FormatVersion:      manifest.FormatVersion,
		EmbeddingModel:     b.Embedder.Identifier(),
		EmbeddingDimension: b.Embedder.Dimension(),
		ChunkingEnabled:    cfg.Chunking.Enabled,
		ChunkingMaxTokens:  cfg.Chunking.MaxTokens,
		ChunkingOverlap:    cfg.Chunking.OverlapTokens,
		StorageBackend:     string(cfg.Storage.Backend),
		Files:              newFiles,
		LastIngestAt:       time.Now(),
	}
	if err := ix.Vector.Save(); err != nil {
		return stats, fmt.Errorf("save vector store: %w", err)
	}
	if err := ix.Graph.Save(); err != nil {
		return stats, fmt.Errorf("save graph store: %w", err)
	}
	if err := next.SaveAtomic(manifestPath); err != nil {
		return stats, fmt.Errorf("save manifest: %w", err)
	}
	ix.Publish(next)

	slog.Info("ingest complete",
		slog.Int("added", stats.Added), slog.Int("modified", stats.Modified),
		slog.Int("removed", stats.Removed), slog.Int("unchanged", stats.Unchanged))
	return stats, nil
}

// embedderWorkers returns the embedder worker pool size: min(4, CPU/2)
// per spec §4.7, never less than 1.
func embedderWorkers() int {
	n := runtime.NumCPU() / 2
	if n > 4 {
		n = 4
	}
	if n < 1 {
		n = 1
	}
	return n
}

// embedAndUpsert chunks each file, embeds its chunks through a bounded
// worker pool, and serializes vector/keyword upserts through the single
// writer (spec §4.7's concurrency model).
func (b *Builder) embedAndUpsert(ctx context.Context, ix *index.Index, cfg chunk.Config, files []*scanner.FileRecord, newFiles map[string]manifest.FileEntry) error {
	if len(files) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedderWorkers())

	type upsertJob struct {
		docID    string
		relPath  string
		file     *scanner.FileRecord
		hash     string
		chunks   []chunk.Chunk
		vectors  [][]float32
		commitAt *time.Time
	}
	jobs := make(chan upsertJob, len(files))

	for _, rec := range files {
		rec := rec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(rec.AbsPath)
			if err != nil {
				return nil // file vanished mid-scan; next ingest will see it as removed
			}
			text := string(data)
			hash := hashBytes(data)
			chunks := chunk.Split(text, cfg)

			texts := make([]string, len(chunks))
			for i, c := range chunks {
				texts[i] = c.Text
			}
			vectors, err := embed.EmbedBatched(gctx, b.Embedder, texts, embed.DefaultBatchSize)
			if err != nil {
				return err
			}

			var commitAt *time.Time
			if r := b.GitResolvers[rec.SourcePath]; r != nil {
				commitAt = r.LastCommitTime(rec.RelPath)
			}

			select {
			case jobs <- upsertJob{
				docID: manifest.DocID(rec.RelPath), relPath: rec.RelPath, file: rec,
				hash: hash, chunks: chunks, vectors: vectors, commitAt: commitAt,
			}:
			case <-gctx.Done():
				return gctx.Err()
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
		close(jobs)
	}()

	var upsertErr error
	for job := range jobs {
		if upsertErr != nil {
			continue
		}
		if err := b.upsertDocument(ctx, ix, job.docID, job.chunks, job.vectors); err != nil {
			upsertErr = err
			continue
		}
		newFiles[job.relPath] = manifest.FileEntry{
			ContentHash:       job.hash,
			MTime:             job.file.ModTime,
			Size:              job.file.Size,
			DocID:             job.docID,
			Type:              job.file.Type,
			ChunkCount:        len(job.chunks),
			GitLastCommitTime: job.commitAt,
		}
	}
	if err := <-done; err != nil {
		return err
	}
	return upsertErr
}

// upsertDocument writes one document's chunk vectors and keyword text
// into the stores, serialized through the single writer.
func (b *Builder) upsertDocument(ctx context.Context, ix *index.Index, docID string, chunks []chunk.Chunk, vectors [][]float32) error {
	for i, c := range chunks {
		id := docID
		if ix.Config.Chunking.Enabled {
			id = manifest.ChunkID(docID, i)
		}
		if err := ix.Vector.Upsert(ctx, id, vectors[i]); err != nil {
			return fmt.Errorf("upsert vector %s: %w", id, err)
		}
		if err := ix.Keyword.Upsert(ctx, id, c.Text); err != nil {
			return fmt.Errorf("upsert keyword %s: %w", id, err)
		}
	}
	return nil
}

// deleteFile removes every id owned by relPath's document from both
// stores, covering both the chunked and unchunked id schemes.
func (b *Builder) deleteFile(ctx context.Context, ix *index.Index, entry manifest.FileEntry, relPath string) {
	n := entry.ChunkCount
	if n == 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		id := entry.DocID
		if ix.Config.Chunking.Enabled {
			id = manifest.ChunkID(entry.DocID, i)
		}
		_ = ix.Vector.Delete(ctx, id)
		_ = ix.Keyword.Delete(ctx, id)
	}
}

// rebuildGraph computes a document-level vector for every surviving file
// (the normalized mean of its chunk vectors) and replaces the entire
// edge set from their pairwise cosine similarity (spec §4.7 steps 7-8).
func (b *Builder) rebuildGraph(ctx context.Context, ix *index.Index, files map[string]manifest.FileEntry) error {
	docVectors := make(map[string][]float32, len(files))
	docIDs := make([]string, 0, len(files))

	for _, entry := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n := entry.ChunkCount
		if n == 0 {
			n = 1
		}
		var sum []float32
		found := 0
		for i := 0; i < n; i++ {
			id := entry.DocID
			if ix.Config.Chunking.Enabled {
				id = manifest.ChunkID(entry.DocID, i)
			}
			v, ok := ix.Vector.Get(id)
			if !ok {
				continue
			}
			if sum == nil {
				sum = make([]float32, len(v))
			}
			for d := range v {
				sum[d] += v[d]
			}
			found++
		}
		if found == 0 {
			continue
		}
		for d := range sum {
			sum[d] /= float32(found)
		}
		docVectors[entry.DocID] = embed.Normalize(sum)
		docIDs = append(docIDs, entry.DocID)
	}

	sort.Strings(docIDs)
	threshold := float32(ix.Config.Graph.SimilarityThreshold)
	var edges []store.Edge
	for i := 0; i < len(docIDs); i++ {
		for j := i + 1; j < len(docIDs); j++ {
			a, bID := docIDs[i], docIDs[j]
			cos := cosine(docVectors[a], docVectors[bID])
			if cos >= threshold {
				edges = append(edges, store.Edge{A: a, B: bID, Weight: cos})
			}
		}
	}
	return ix.Graph.ReplaceAll(edges)
}

func cosine(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func contentHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return hashBytes(data), nil
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
