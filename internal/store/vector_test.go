package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorConfig(dims int) VectorConfig {
	return VectorConfig{Dimensions: dims, Metric: "cos", M: 16, EfSearch: 64}
}

func embeddedChunk(id string, embedding []float32) *Chunk {
	return &Chunk{
		ID:         id,
		DocumentID: "d1",
		Text:       "placeholder",
		PageNumber: 1,
		Embedding:  embedding,
	}
}

func TestHNSWVectorIndex_CosineOrdering(t *testing.T) {
	// Given: three vectors, one aligned with the query, one orthogonal,
	// one opposed
	chunks := []*Chunk{
		embeddedChunk("aligned", []float32{1, 0, 0}),
		embeddedChunk("orthogonal", []float32{0, 1, 0}),
		embeddedChunk("opposed", []float32{-1, 0, 0}),
	}
	idx, err := NewHNSWVectorIndex(chunks, vectorConfig(3))
	require.NoError(t, err)
	defer idx.Close()

	// When: searching with the aligned direction
	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 3)

	// Then: nearest first, with scores decreasing
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "aligned", results[0].ChunkID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Greater(t, results[1].Score, results[2].Score)
}

func TestHNSWVectorIndex_SkipsChunksWithoutEmbeddings(t *testing.T) {
	chunks := []*Chunk{
		embeddedChunk("c1", []float32{1, 0, 0}),
		embeddedChunk("c2", nil),
	}
	idx, err := NewHNSWVectorIndex(chunks, vectorConfig(3))
	require.NoError(t, err)
	defer idx.Close()

	assert.Equal(t, 1, idx.Count())
}

func TestHNSWVectorIndex_QueryDimensionMismatch(t *testing.T) {
	idx, err := NewHNSWVectorIndex([]*Chunk{
		embeddedChunk("c1", []float32{1, 0, 0}),
	}, vectorConfig(3))
	require.NoError(t, err)
	defer idx.Close()

	// When: the query vector has the wrong dimension
	_, err = idx.Search(context.Background(), []float32{1, 0}, 1)

	// Then: the error names both dimensions and the index survives
	var dimErr ErrDimensionMismatch
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 3, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Got)

	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestHNSWVectorIndex_BuildRejectsMismatchedEmbedding(t *testing.T) {
	_, err := NewHNSWVectorIndex([]*Chunk{
		embeddedChunk("c1", []float32{1, 0}),
	}, vectorConfig(3))

	var dimErr ErrDimensionMismatch
	require.True(t, errors.As(err, &dimErr))
}

func TestHNSWVectorIndex_EmptyIndexReturnsEmpty(t *testing.T) {
	idx, err := NewHNSWVectorIndex(nil, vectorConfig(3))
	require.NoError(t, err)
	defer idx.Close()

	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 5)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDistanceToScore(t *testing.T) {
	// Cosine: identical vectors (distance 0) score 1, opposed (distance 2) score 0.
	assert.InDelta(t, 1.0, distanceToScore(0, "cos"), 1e-6)
	assert.InDelta(t, 0.0, distanceToScore(2, "cos"), 1e-6)

	// L2: score decays with distance.
	assert.InDelta(t, 1.0, distanceToScore(0, "l2"), 1e-6)
	assert.InDelta(t, 0.5, distanceToScore(1, "l2"), 1e-6)
}
