// Package store provides the chunk store (SQLite) and the three per-generation
// retrieval indices: lexical (bleve BM25), vector (HNSW), and structured
// (exact-match business metadata). Indices hold chunk-ID references plus
// derived statistics only; the chunk store owns all content.
package store

import (
	"context"
	"fmt"
	"time"
)

// DocumentStatus tracks a document through the ingestion pipeline.
// The ingestion collaborator owns documents; the core only reads them.
type DocumentStatus string

const (
	DocumentStatusPending  DocumentStatus = "pending"
	DocumentStatusIngested DocumentStatus = "ingested"
	DocumentStatusFailed   DocumentStatus = "failed"
)

// ElementType classifies the layout element a chunk was extracted from.
type ElementType string

const (
	ElementTypeParagraph     ElementType = "paragraph"
	ElementTypeTable         ElementType = "table"
	ElementTypeSectionHeader ElementType = "section_header"
	ElementTypeList          ElementType = "list"
	ElementTypeMixed         ElementType = "mixed"
)

// Metadata field names accepted by structured filters.
const (
	FieldFiscalPeriod   = "fiscal_period"
	FieldCompanyName    = "company_name"
	FieldDepartmentName = "department_name"
)

// FilterFields lists the metadata fields a query filter may reference.
var FilterFields = []string{FieldFiscalPeriod, FieldCompanyName, FieldDepartmentName}

// State keys for the chunk store's key-value state table.
const (
	// StateKeyCorpusDimension stores the corpus-wide embedding dimension,
	// recorded on the first chunk admitted with an embedding.
	StateKeyCorpusDimension = "corpus_embedding_dimension"
	// StateKeyEmbeddingModel stores the embedding model name used for the corpus.
	StateKeyEmbeddingModel = "corpus_embedding_model"
)

// Document is a paginated source file. Owned by the ingestion collaborator.
type Document struct {
	ID         string
	Filename   string
	PageCount  int // > 0
	Status     DocumentStatus
	IngestedAt time.Time
}

// BusinessMetadata is document-level business metadata attached to every
// chunk of that document. All fields are optional; absence is distinct from
// mismatch (see structured index filter policy).
type BusinessMetadata struct {
	FiscalPeriod   string
	CompanyName    string
	DepartmentName string
}

// Empty reports whether no metadata field is set.
func (m BusinessMetadata) Empty() bool {
	return m.FiscalPeriod == "" && m.CompanyName == "" && m.DepartmentName == ""
}

// Field returns the value of a named metadata field.
func (m BusinessMetadata) Field(name string) string {
	switch name {
	case FieldFiscalPeriod:
		return m.FiscalPeriod
	case FieldCompanyName:
		return m.CompanyName
	case FieldDepartmentName:
		return m.DepartmentName
	default:
		return ""
	}
}

// Chunk is the retrievable unit: one passage of a document with exact page
// provenance. Embedding is populated exactly once by the embedding
// collaborator and immutable thereafter (short of full re-ingestion).
type Chunk struct {
	ID         string // stable, unique
	DocumentID string
	Ordinal    int    // position within document, defines deterministic ordering
	Text       string
	TokenCount int
	PageNumber int // 1-indexed, must lie within [1, Document.PageCount]
	Element    ElementType
	Embedding  []float32 // fixed corpus dimension
	Metadata   BusinessMetadata
	CreatedAt  time.Time
}

// Snapshot is an immutable view of the chunk store used to build index
// generations. Chunks are ordered by (DocumentID, Ordinal).
type Snapshot struct {
	Chunks    []*Chunk
	Dimension int // corpus embedding dimension, 0 if no embeddings yet
	TakenAt   time.Time
}

// ChunkStore is the canonical, versioned collection of passages.
// Put is whole-or-nothing: a chunk violating the admission invariants is
// quarantined (rejected with an ingestion error) and never reaches an index.
type ChunkStore interface {
	// PutDocument inserts or updates a document record.
	PutDocument(ctx context.Context, doc *Document) error

	// GetDocument returns the document or an ERR_204 not-found error.
	GetDocument(ctx context.Context, id string) (*Document, error)

	// Put inserts a chunk, rejecting unresolved/out-of-bounds page numbers
	// and embedding dimension mismatches.
	Put(ctx context.Context, chunk *Chunk) error

	// Get returns the chunk or an ERR_204 not-found error.
	Get(ctx context.Context, id string) (*Chunk, error)

	// GetMany returns chunks for the given IDs in a single query.
	// Missing IDs are silently skipped.
	GetMany(ctx context.Context, ids []string) ([]*Chunk, error)

	// ListByDocument returns all chunks of a document ordered by ordinal.
	ListByDocument(ctx context.Context, documentID string) ([]*Chunk, error)

	// QuarantineCount returns the number of rejected chunks recorded.
	QuarantineCount(ctx context.Context) (int, error)

	// Snapshot returns an immutable view used to build index generations.
	Snapshot(ctx context.Context) (*Snapshot, error)

	// State operations (key-value store for corpus-wide state).
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	// Path returns the on-disk database path ("" for in-memory stores).
	Path() string

	// Close releases resources.
	Close() error
}

// LexicalResult is a single BM25-style keyword search result.
type LexicalResult struct {
	ChunkID      string
	Score        float64 // raw BM25-style score, unbounded
	MatchedTerms []string
}

// LexicalIndex provides keyword search over a generation's chunks.
type LexicalIndex interface {
	// Search returns up to limit chunks scored by BM25. An empty query
	// returns an empty candidate set, not an error.
	Search(ctx context.Context, query string, limit int) ([]*LexicalResult, error)

	// DocCount returns the number of indexed chunks.
	DocCount() int

	Close() error
}

// VectorResult is a single dense-vector search result.
type VectorResult struct {
	ChunkID  string
	Distance float32 // cosine distance, 0-2
	Score    float32 // normalized similarity, 0-1
}

// VectorIndex provides approximate-nearest-neighbor search over a
// generation's chunk embeddings. It accepts only pre-computed query vectors.
type VectorIndex interface {
	// Search finds the k nearest chunks to the query vector. A dimension
	// mismatch is a per-query fatal error reported to the orchestrator.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Dimensions returns the index's embedding dimension.
	Dimensions() int

	// Count returns the number of indexed vectors.
	Count() int

	Close() error
}

// BM25Config holds the analysis tunables for the lexical index. Scoring
// uses bleve's BM25 model with its standard k1=1.2, b=0.75 constants.
type BM25Config struct {
	// StopWords is a list of words to filter out during tokenization.
	StopWords []string

	// MinTokenLength is minimum token length to index (default: 2).
	MinTokenLength int
}

// DefaultBM25Config returns default BM25 configuration.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		StopWords:      DefaultFinanceStopWords,
		MinTokenLength: 2,
	}
}

// DefaultFinanceStopWords contains boilerplate terms that carry no signal in
// financial filings and would otherwise dominate term statistics.
var DefaultFinanceStopWords = []string{
	"the", "and", "for", "with", "that", "this", "are", "was", "were",
	"from", "have", "has", "been", "will", "shall", "may", "our", "its",
	"company", "total", "amount", "year", "ended", "period", "note",
}

// VectorConfig configures the vector index.
type VectorConfig struct {
	// Dimensions is the corpus-wide embedding dimension.
	Dimensions int

	// Metric is the similarity metric: "cos" (cosine) or "l2" (default: "cos").
	Metric string

	// M is HNSW max connections per layer (default: 16).
	M int

	// EfSearch is HNSW query-time search width (default: 64).
	EfSearch int
}

// DefaultVectorConfig returns sensible defaults for the vector index.
func DefaultVectorConfig(dimensions int) VectorConfig {
	return VectorConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   64,
	}
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
