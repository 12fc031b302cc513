package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestEmbedPreservesOrderAndDimension(t *testing.T) {
	e := NewEmbedder(64)
	ctx := context.Background()

	pair, err := e.Embed(ctx, []string{"alpha beta", "gamma delta"})
	require.NoError(t, err)
	require.Len(t, pair, 2)

	single, err := e.Embed(ctx, []string{"alpha beta"})
	require.NoError(t, err)
	require.Len(t, single, 1)

	assert.Len(t, pair[0], 64)
	assert.Len(t, pair[1], 64)
	assert.InDeltaSlice(t, single[0], pair[0], 1e-6)
}

func TestEmbedIsDeterministic(t *testing.T) {
	e := NewEmbedder(0)
	assert.Equal(t, DefaultDimension, e.Dimension())
	ctx := context.Background()

	text := "Paris is the capital and most populous city of France, France!"
	a, err := e.EmbedOne(ctx, text)
	require.NoError(t, err)
	b, err := e.EmbedOne(ctx, text)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other := NewEmbedder(0)
	c, err := other.EmbedOne(ctx, text)
	require.NoError(t, err)
	assert.Equal(t, a, c)
}

func TestEmbedEmptyInput(t *testing.T) {
	e := NewEmbedder(32)
	out, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestEmbedUnitLengthAndStopwords(t *testing.T) {
	e := NewEmbedder(128)
	ctx := context.Background()

	v, err := e.EmbedOne(ctx, "Vectors should be normalised")
	require.NoError(t, err)
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)

	onlyStop, err := e.EmbedOne(ctx, "the and of is")
	require.NoError(t, err)
	for _, x := range onlyStop {
		assert.Zero(t, x)
	}
}

func TestEmbedSimilarTextsScoreHigher(t *testing.T) {
	e := NewEmbedder(DefaultDimension)
	ctx := context.Background()

	vs, err := e.Embed(ctx, []string{
		"What is the capital of France?",
		"The capital of France is Paris.",
		"Bananas grow in tropical climates.",
	})
	require.NoError(t, err)
	assert.Greater(t, cosine(vs[0], vs[1]), cosine(vs[0], vs[2]))
}

func TestEmbedHonoursCancelledContext(t *testing.T) {
	e := NewEmbedder(16)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Embed(ctx, []string{"x"})
	require.ErrorIs(t, err, context.Canceled)
}
