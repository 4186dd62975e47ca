// Package embed defines the Embedder contract the engine consumes and a
// deterministic fallback implementation that requires no model download.
package embed

import (
	"context"
	"math"

	gundogerrors "github.com/gundog/gundog/internal/errors"
)

// DefaultBatchSize is the batch size the ingest pipeline uses when calling
// EmbedBatch, absent a project override.
const DefaultBatchSize = 32

// MaxBatchSize bounds a single EmbedBatch call.
const MaxBatchSize = 256

// Embedder maps text to fixed-dimension vectors. Implementations need not
// return unit-norm vectors; callers normalize on store.
type Embedder interface {
	// EmbedBatch embeds texts in one call. A failure is fatal to the
	// ingest of the affected batch and must be wrapped with
	// errors.CodeEmbedFailed by the caller.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Identifier returns a stable id encoding model name and version,
	// persisted in the manifest for mismatch detection.
	Identifier() string

	// Dimension returns the vector width this embedder produces.
	Dimension() int
}

// Normalize returns v scaled to unit L2 norm. The zero vector is returned
// unchanged since it has no well-defined direction.
func Normalize(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSquares)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// EmbedBatched calls e.EmbedBatch in chunks of at most batchSize,
// concatenating results in order. batchSize <= 0 uses DefaultBatchSize.
func EmbedBatched(ctx context.Context, e Embedder, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, gundogerrors.Wrap(gundogerrors.CodeEmbedFailed, err)
		}
		if len(batch) != end-start {
			return nil, gundogerrors.New(gundogerrors.CodeEmbedFailed, "embedder returned a mismatched vector count")
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}
