package embed

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestNormalizeProducesUnitVector(t *testing.T) {
	v := []float32{3, 4}
	n := Normalize(v)
	assert.InDelta(t, 1.0, vectorNorm(n), 1e-6)
}

func TestNormalizeZeroVectorUnchanged(t *testing.T) {
	v := []float32{0, 0, 0}
	assert.Equal(t, v, Normalize(v))
}

func TestStaticEmbedderIsDeterministic(t *testing.T) {
	e := NewStaticEmbedder("")
	out1, err := e.EmbedBatch(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	out2, err := e.EmbedBatch(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	assert.Equal(t, out1, out2)
}

func TestStaticEmbedderDimension(t *testing.T) {
	e := NewStaticEmbedder("static/test")
	assert.Equal(t, StaticDimension, e.Dimension())
	assert.Equal(t, "static/test", e.Identifier())

	out, err := e.EmbedBatch(context.Background(), []string{"x"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Len(t, out[0], StaticDimension)
}

func TestStaticEmbedderDistinguishesText(t *testing.T) {
	e := NewStaticEmbedder("")
	out, err := e.EmbedBatch(context.Background(), []string{"alpha beta gamma", "totally different text here"})
	require.NoError(t, err)
	assert.NotEqual(t, out[0], out[1])
}

func TestEmbedBatchedSplitsIntoBatches(t *testing.T) {
	e := NewStaticEmbedder("")
	texts := make([]string, 10)
	for i := range texts {
		texts[i] = "text"
	}
	out, err := EmbedBatched(context.Background(), e, texts, 3)
	require.NoError(t, err)
	assert.Len(t, out, 10)
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("boom")
}
func (failingEmbedder) Identifier() string { return "failing" }
func (failingEmbedder) Dimension() int      { return 4 }

func TestEmbedBatchedWrapsFailureAsEmbedFailed(t *testing.T) {
	_, err := EmbedBatched(context.Background(), failingEmbedder{}, []string{"a"}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMBED_FAILED")
}

type countingEmbedder struct {
	calls int
	dim   int
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}
func (c *countingEmbedder) Identifier() string { return "counting" }
func (c *countingEmbedder) Dimension() int      { return 1 }

func TestCachedEmbedderAvoidsDuplicateCalls(t *testing.T) {
	inner := &countingEmbedder{}
	cached := NewCachedEmbedder(inner, 10)

	out1, err := cached.EmbedBatch(context.Background(), []string{"same", "same", "different"})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, out1[0], out1[1])

	_, err = cached.EmbedBatch(context.Background(), []string{"same"})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls, "second call for a cached text should not hit the inner embedder")
}

func TestCachedEmbedderPreservesOrder(t *testing.T) {
	inner := &countingEmbedder{}
	cached := NewCachedEmbedder(inner, 10)

	_, err := cached.EmbedBatch(context.Background(), []string{"aa"})
	require.NoError(t, err)

	out, err := cached.EmbedBatch(context.Background(), []string{"b", "aa", "ccc"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, float32(1), out[0][0])
	assert.Equal(t, float32(2), out[1][0])
	assert.Equal(t, float32(3), out[2][0])
}
