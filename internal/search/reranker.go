package search

import (
	"context"
)

// RerankResult represents a single reranked result.
type RerankResult struct {
	// Index is the original position in the input documents slice.
	Index int
	// Score is the relevance score (0.0 to 1.0).
	Score float64
}

// Reranker reranks search results using a cross-encoder model.
// Cross-encoders jointly encode query-document pairs for more accurate
// relevance scoring than bi-encoders, but at higher computational cost.
// The model itself is opaque; implementations only move (query, document)
// pairs in and scores out.
type Reranker interface {
	// Rerank scores documents by relevance to the query.
	// Returns one score per input document, in input order.
	Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error)

	// Available checks if the reranker service is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// NoopReranker returns documents in original order with decreasing scores.
// Used when reranking is disabled or no service is configured.
type NoopReranker struct{}

// Verify interface implementation at compile time
var _ Reranker = (*NoopReranker)(nil)

// Rerank assigns decreasing scores to preserve the incoming order.
func (n *NoopReranker) Rerank(_ context.Context, _ string, documents []string) ([]RerankResult, error) {
	results := make([]RerankResult, len(documents))
	for i := range documents {
		results[i] = RerankResult{
			Index: i,
			Score: 1.0 - float64(i)*0.01, // 1.0, 0.99, 0.98, ...
		}
	}
	return results, nil
}

// Available always returns true for NoopReranker.
func (n *NoopReranker) Available(_ context.Context) bool {
	return true
}

// Close is a no-op for NoopReranker.
func (n *NoopReranker) Close() error {
	return nil
}
