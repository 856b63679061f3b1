package store

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWVectorIndex implements VectorIndex using the coder/hnsw pure Go HNSW
// implementation. Built once per generation from chunk embeddings; immutable
// afterwards. The index stores only chunk-ID references and vector
// coordinates, never chunk content.
type HNSWVectorIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorConfig

	// ID mapping (string <-> uint64)
	idMap  map[string]uint64
	keyMap map[uint64]string

	closed bool
}

// Verify interface implementation at compile time
var _ VectorIndex = (*HNSWVectorIndex)(nil)

// NewHNSWVectorIndex builds a vector index from the embedded chunks of a
// snapshot. Chunks without embeddings are skipped (they remain reachable via
// the lexical index). Every admitted embedding has already passed the
// corpus-dimension check at Put.
func NewHNSWVectorIndex(chunks []*Chunk, cfg VectorConfig) (*HNSWVectorIndex, error) {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	s := &HNSWVectorIndex{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}

	var nextKey uint64
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			continue
		}
		if len(chunk.Embedding) != cfg.Dimensions {
			return nil, ErrDimensionMismatch{
				Expected: cfg.Dimensions,
				Got:      len(chunk.Embedding),
			}
		}

		vec := make([]float32, len(chunk.Embedding))
		copy(vec, chunk.Embedding)
		if cfg.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}

		key := nextKey
		nextKey++
		graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[chunk.ID] = key
		s.keyMap[key] = chunk.ID
	}

	return s, nil
}

// Search finds the k nearest chunks to the query vector.
// A dimension mismatch is fatal for the query but never destroys the index;
// the orchestrator degrades and continues with the remaining indices.
func (s *HNSWVectorIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("vector index is closed")
	}

	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{
			Expected: s.config.Dimensions,
			Got:      len(query),
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	normalizedQuery := make([]float32, len(query))
	copy(normalizedQuery, query)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(normalizedQuery)
	}

	nodes := s.graph.Search(normalizedQuery, k)

	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue
		}

		distance := s.graph.Distance(normalizedQuery, node.Value)
		results = append(results, &VectorResult{
			ChunkID:  id,
			Distance: distance,
			Score:    distanceToScore(distance, s.config.Metric),
		})
	}

	return results, nil
}

// Dimensions returns the index's embedding dimension.
func (s *HNSWVectorIndex) Dimensions() int {
	return s.config.Dimensions
}

// Count returns the number of indexed vectors.
func (s *HNSWVectorIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Close releases resources.
func (s *HNSWVectorIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// distanceToScore converts a distance value to a similarity score.
// For cosine distance: score = 1 - distance/2 (distance ranges 0-2).
// For L2 distance: score = 1 / (1 + distance).
func distanceToScore(distance float32, metric string) float32 {
	switch metric {
	case "l2":
		return 1.0 / (1.0 + distance)
	default:
		return 1.0 - distance/2.0
	}
}
