// Package search provides the hybrid retrieval orchestrator: parallel
// dispatch to the lexical, vector, and structured indices, score fusion,
// and optional cross-encoder reranking with local fallback.
package search

import (
	"context"
	"time"

	"github.com/pagewise-ai/pagewise/internal/store"
)

// Status classifies a search response.
type Status string

const (
	// StatusOK indicates a normal response with results.
	StatusOK Status = "ok"

	// StatusNoResults indicates retrieval ran but nothing matched.
	StatusNoResults Status = "no_results"

	// StatusNoRetrieval indicates every index failed; the response is empty
	// by policy, not by relevance.
	StatusNoRetrieval Status = "no_retrieval"
)

// Index names used in degradation reporting.
const (
	IndexLexical    = "lexical"
	IndexVector     = "vector"
	IndexStructured = "structured"
)

// SearchOptions configures a single query.
type SearchOptions struct {
	// TopK is the number of results to return (default: 10, max: 100).
	TopK int

	// UseReranker requests cross-encoder reranking of the fused pool.
	UseReranker bool

	// Filters restricts results by exact metadata match. Keys must be
	// among store.FilterFields.
	Filters map[string]string

	// FilterPolicy overrides the engine's missing-metadata policy for
	// this query ("" uses the engine default).
	FilterPolicy store.FilterPolicy
}

// Breakdown carries the per-signal score components of one result, kept for
// auditability of every ranking decision.
type Breakdown struct {
	// Lexical is the min-max normalized BM25 component (0 when absent).
	Lexical float64

	// Vector is the min-max normalized similarity component (0 when absent).
	Vector float64

	// Rerank is the cross-encoder score, nil when reranking was skipped
	// or fell back.
	Rerank *float64

	// StructuredBoost is the additive boost applied after normalization.
	StructuredBoost float64
}

// Result is a single attributed search result.
type Result struct {
	// ChunkID identifies the passage.
	ChunkID string

	// DocumentID and PageNumber give exact provenance.
	DocumentID string
	PageNumber int

	// Element is the layout element type of the chunk.
	Element store.ElementType

	// Text is the chunk content.
	Text string

	// Metadata is the chunk's business metadata.
	Metadata store.BusinessMetadata

	// Rank is the 1-indexed final position.
	Rank int

	// FinalScore is the score that produced Rank.
	FinalScore float64

	// Breakdown preserves the contributing signals.
	Breakdown Breakdown

	// MatchedTerms lists the lexical query terms that matched.
	MatchedTerms []string
}

// Response is the full answer to one query.
type Response struct {
	// Results are ordered by Rank.
	Results []*Result

	// Status classifies the response.
	Status Status

	// Degraded is true when at least one index failed or timed out.
	Degraded bool

	// DegradedIndexes names the failed indices.
	DegradedIndexes []string

	// Reranked is true when the cross-encoder actually reordered the
	// results (false on fallback).
	Reranked bool

	// GenerationID identifies the index generation that served the query.
	GenerationID string

	// Took is the total query latency.
	Took time.Duration
}

// EngineConfig configures the orchestrator.
type EngineConfig struct {
	// Alpha is the vector weight in the fused score:
	// final = alpha*vec + (1-alpha)*lex (default: 0.65).
	Alpha float64

	// CandidatesPerIndex is the top-M fetched from each index (default: 50).
	CandidatesPerIndex int

	// FuseTopN is the size of the fused pool handed to the reranker
	// (default: 20). Must be >= TopK for reranking to trigger.
	FuseTopN int

	// DefaultTopK is the result count when the query does not set one
	// (default: 10).
	DefaultTopK int

	// MaxTopK caps the requested result count (default: 100).
	MaxTopK int

	// IndexTimeout bounds each index search (default: 2s).
	IndexTimeout time.Duration

	// RerankTimeout bounds the whole rerank phase (default: 10s).
	RerankTimeout time.Duration

	// RerankBatchSize is the documents-per-request batch (default: 8).
	RerankBatchSize int

	// RerankWorkers bounds concurrent rerank batches (default: 2).
	RerankWorkers int

	// StructuredBoost is the additive boost for entity-matched chunks
	// (default: 0.1).
	StructuredBoost float64

	// BoostEnabled gates the structured boost signal.
	BoostEnabled bool

	// FilterPolicy is the default missing-metadata policy.
	FilterPolicy store.FilterPolicy
}

// DefaultEngineConfig returns sensible defaults. Alpha 0.65 favors the
// semantic signal, matching observed behavior on natural-language queries
// over filings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Alpha:              0.65,
		CandidatesPerIndex: 50,
		FuseTopN:           20,
		DefaultTopK:        10,
		MaxTopK:            100,
		IndexTimeout:       2 * time.Second,
		RerankTimeout:      10 * time.Second,
		RerankBatchSize:    8,
		RerankWorkers:      2,
		StructuredBoost:    0.1,
		BoostEnabled:       true,
		FilterPolicy:       store.DefaultFilterPolicy,
	}
}

// QueryEmbedder is the subset of the embedder contract the engine needs.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
