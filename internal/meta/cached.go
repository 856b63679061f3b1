package meta

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pagewise-ai/pagewise/internal/store"
)

// DefaultMetadataCacheSize is the default number of documents to cache.
const DefaultMetadataCacheSize = 512

// CachedExtractor wraps an Extractor with an LRU cache keyed by document ID.
// Metadata is document-level, so every chunk of a document shares one
// extraction.
type CachedExtractor struct {
	inner Extractor
	cache *lru.Cache[string, store.BusinessMetadata]
}

// Verify interface implementation at compile time
var _ Extractor = (*CachedExtractor)(nil)

// NewCachedExtractor creates a cached extractor wrapping the given extractor.
func NewCachedExtractor(inner Extractor, cacheSize int) *CachedExtractor {
	if cacheSize <= 0 {
		cacheSize = DefaultMetadataCacheSize
	}
	cache, _ := lru.New[string, store.BusinessMetadata](cacheSize)
	return &CachedExtractor{
		inner: inner,
		cache: cache,
	}
}

// Extract delegates to the inner extractor. Use ExtractForDocument when a
// stable document ID is available for caching.
func (c *CachedExtractor) Extract(ctx context.Context, text string) (store.BusinessMetadata, error) {
	return c.inner.Extract(ctx, text)
}

// ExtractForDocument returns cached metadata for a document, extracting and
// caching on first sight.
func (c *CachedExtractor) ExtractForDocument(ctx context.Context, documentID, text string) (store.BusinessMetadata, error) {
	if meta, ok := c.cache.Get(documentID); ok {
		return meta, nil
	}

	meta, err := c.inner.Extract(ctx, text)
	if err != nil {
		return store.BusinessMetadata{}, err
	}

	c.cache.Add(documentID, meta)
	return meta, nil
}

// Close releases resources and closes the inner extractor.
func (c *CachedExtractor) Close() error {
	return c.inner.Close()
}
