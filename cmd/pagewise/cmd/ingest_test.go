package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagewise-ai/pagewise/internal/embed"
	"github.com/pagewise-ai/pagewise/internal/meta"
	"github.com/pagewise-ai/pagewise/internal/store"
)

func newIngestApp(t *testing.T) *app {
	t.Helper()
	chunks, err := store.NewSQLiteChunkStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = chunks.Close() })
	return &app{chunks: chunks, embedder: embed.NewStaticEmbedder()}
}

func newIngestExtractor(t *testing.T) *meta.CachedExtractor {
	t.Helper()
	extractor := meta.NewCachedExtractor(meta.NewPatternExtractor(), 0)
	t.Cleanup(func() { _ = extractor.Close() })
	return extractor
}

func chunkRecord(id string, page int) ingestRecord {
	return ingestRecord{
		Type:       "chunk",
		DocumentID: "doc-1",
		ChunkID:    id,
		Ordinal:    1,
		Text:       "operating income increased in the quarter",
		TokenCount: 6,
		PageNumber: page,
		Element:    "paragraph",
	}
}

func TestIngestChunk_AdmitsValidChunk(t *testing.T) {
	a := newIngestApp(t)
	ctx := context.Background()
	require.NoError(t, a.chunks.PutDocument(ctx, &store.Document{
		ID: "doc-1", Filename: "10q.pdf", PageCount: 10,
		Status: store.DocumentStatusIngested,
	}))

	ok, err := ingestChunk(ctx, a, newIngestExtractor(t), chunkRecord("c1", 5), false)

	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIngestChunk_QuarantinesAdmissionViolations(t *testing.T) {
	a := newIngestApp(t)
	ctx := context.Background()
	require.NoError(t, a.chunks.PutDocument(ctx, &store.Document{
		ID: "doc-1", Filename: "10q.pdf", PageCount: 10,
		Status: store.DocumentStatusIngested,
	}))

	// Given: a chunk claiming page 42 of a 10-page document
	ok, err := ingestChunk(ctx, a, newIngestExtractor(t), chunkRecord("c-oob", 42), false)

	// Then: quarantined, not an error; ingestion continues
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIngestChunk_StoreFailureAbortsInsteadOfQuarantining(t *testing.T) {
	a := newIngestApp(t)
	extractor := newIngestExtractor(t)

	// Given: the store fails for reasons unrelated to the chunk's data
	require.NoError(t, a.chunks.Close())

	ok, err := ingestChunk(context.Background(), a, extractor, chunkRecord("c1", 5), false)

	// Then: the failure surfaces instead of being counted as a quarantine
	require.Error(t, err)
	assert.False(t, ok)
}
