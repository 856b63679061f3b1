package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lexicalChunks() []*Chunk {
	return []*Chunk{
		{ID: "c1", DocumentID: "d1", Ordinal: 1, PageNumber: 5,
			Text: "Operating income increased by 12% compared to the prior quarter"},
		{ID: "c2", DocumentID: "d1", Ordinal: 2, PageNumber: 12,
			Text: "Cash flow from operations remained stable through Q2 2025"},
		{ID: "c3", DocumentID: "d2", Ordinal: 1, PageNumber: 3,
			Text: "Marketing expenses rose due to the new campaign launch"},
	}
}

func TestBleveLexicalIndex_Search(t *testing.T) {
	idx, err := NewBleveLexicalIndex(lexicalChunks(), DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	results, err := idx.Search(context.Background(), "operating income", 10)

	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestBleveLexicalIndex_EmptyQueryReturnsEmpty(t *testing.T) {
	idx, err := NewBleveLexicalIndex(lexicalChunks(), DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	// Given: an empty and a whitespace-only query
	for _, q := range []string{"", "   "} {
		// When: searching
		results, err := idx.Search(context.Background(), q, 10)

		// Then: empty candidate set, not an error
		require.NoError(t, err)
		assert.Empty(t, results)
	}
}

func TestBleveLexicalIndex_UnknownTermsReturnEmpty(t *testing.T) {
	idx, err := NewBleveLexicalIndex(lexicalChunks(), DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	results, err := idx.Search(context.Background(), "zebra astronaut", 10)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBleveLexicalIndex_MatchedTerms(t *testing.T) {
	idx, err := NewBleveLexicalIndex(lexicalChunks(), DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	results, err := idx.Search(context.Background(), "marketing expenses", 10)

	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].MatchedTerms, "marketing")
}

func TestBleveLexicalIndex_DocCount(t *testing.T) {
	idx, err := NewBleveLexicalIndex(lexicalChunks(), DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	assert.Equal(t, 3, idx.DocCount())
}

func TestBleveLexicalIndex_RespectsLimit(t *testing.T) {
	idx, err := NewBleveLexicalIndex(lexicalChunks(), DefaultBM25Config())
	require.NoError(t, err)
	defer idx.Close()

	results, err := idx.Search(context.Background(), "the quarter operations expenses income", 1)

	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 1)
}

func TestBleveLexicalIndex_ConfiguredStopWordsAreNotIndexed(t *testing.T) {
	// Given: an index treating "marketing" as a stop word
	cfg := BM25Config{StopWords: []string{"marketing"}, MinTokenLength: 2}
	idx, err := NewBleveLexicalIndex(lexicalChunks(), cfg)
	require.NoError(t, err)
	defer idx.Close()

	// When: querying for the stop word
	results, err := idx.Search(context.Background(), "marketing", 10)

	// Then: no hits; the default list's stop words are indexed instead
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Search(context.Background(), "the", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestBleveLexicalIndex_ConfiguredMinTokenLength(t *testing.T) {
	// Given: an index dropping tokens shorter than 6 characters
	cfg := BM25Config{StopWords: DefaultFinanceStopWords, MinTokenLength: 6}
	idx, err := NewBleveLexicalIndex(lexicalChunks(), cfg)
	require.NoError(t, err)
	defer idx.Close()

	// Then: a 4-character term is not indexed, a longer one is
	results, err := idx.Search(context.Background(), "cash", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Search(context.Background(), "operating", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}
