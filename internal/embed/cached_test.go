package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps the static embedder and counts model invocations.
type countingEmbedder struct {
	*StaticEmbedder
	embeds      int
	batchEmbeds int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.embeds++
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchEmbeds += len(texts)
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_RepeatedQueryHitsCache(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	c := NewCachedEmbedder(inner, 10)
	defer c.Close()

	first, err := c.Embed(context.Background(), "revenue growth")
	require.NoError(t, err)
	second, err := c.Embed(context.Background(), "revenue growth")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.embeds)
}

func TestCachedEmbedder_BatchOnlyComputesMisses(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	c := NewCachedEmbedder(inner, 10)
	defer c.Close()

	// Given: one text already cached
	_, err := c.Embed(context.Background(), "alpha")
	require.NoError(t, err)

	// When: a batch mixes the cached text with two new ones
	vecs, err := c.EmbedBatch(context.Background(), []string{"alpha", "beta", "gamma"})

	// Then: only the misses reach the model
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, 1, inner.embeds)
	assert.Equal(t, 2, inner.batchEmbeds)
}

func TestCachedEmbedder_EvictionRecomputes(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	c := NewCachedEmbedder(inner, 2)
	defer c.Close()

	for _, text := range []string{"a", "b", "c", "a"} {
		_, err := c.Embed(context.Background(), text)
		require.NoError(t, err)
	}

	// "a" was evicted by "b"/"c" and recomputed on the second pass.
	assert.Equal(t, 4, inner.embeds)
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	inner := NewStaticEmbedder()
	c := NewCachedEmbedder(inner, 0)

	assert.Equal(t, inner.Dimensions(), c.Dimensions())
	assert.Equal(t, inner.ModelName(), c.ModelName())
	assert.True(t, c.Available(context.Background()))
	require.NoError(t, c.Close())
}
