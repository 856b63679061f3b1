package store

import (
	"strings"
	"sync"
)

// FilterPolicy decides how chunks lacking a filtered metadata field are
// treated. Absence of metadata is distinct from a mismatch: under the strict
// policy missing metadata is excluded, under the lenient policy it passes
// through.
type FilterPolicy string

const (
	FilterPolicyStrict  FilterPolicy = "strict"
	FilterPolicyLenient FilterPolicy = "lenient"
)

// DefaultFilterPolicy passes chunks with missing metadata through a filter.
// Documents predating metadata extraction stay visible to analysts; the
// absent fields remain auditable in the result provenance.
const DefaultFilterPolicy = FilterPolicyLenient

// StructuredLookup is an exact-match index from business metadata values to
// chunk-ID sets, built once per generation. Used as a hard filter on fused
// candidates and, config-gated, as an additive boost signal when the query
// mentions a known metadata value.
type StructuredLookup struct {
	mu sync.RWMutex

	// buckets: field -> lowercased value -> chunk-ID set
	buckets map[string]map[string]map[string]struct{}

	// meta: chunk ID -> metadata reference for per-chunk filter checks
	meta map[string]BusinessMetadata

	closed bool
}

// NewStructuredLookup builds the metadata buckets from the chunks of a snapshot.
func NewStructuredLookup(chunks []*Chunk) *StructuredLookup {
	s := &StructuredLookup{
		buckets: make(map[string]map[string]map[string]struct{}),
		meta:    make(map[string]BusinessMetadata, len(chunks)),
	}
	for _, field := range FilterFields {
		s.buckets[field] = make(map[string]map[string]struct{})
	}

	for _, chunk := range chunks {
		s.meta[chunk.ID] = chunk.Metadata
		for _, field := range FilterFields {
			value := chunk.Metadata.Field(field)
			if value == "" {
				continue
			}
			key := strings.ToLower(value)
			set, ok := s.buckets[field][key]
			if !ok {
				set = make(map[string]struct{})
				s.buckets[field][key] = set
			}
			set[chunk.ID] = struct{}{}
		}
	}

	return s
}

// Matches reports whether a chunk satisfies every requested filter under the
// given policy. Matching is case-insensitive. Unknown chunk IDs only pass
// under the lenient policy (they carry no metadata at all).
func (s *StructuredLookup) Matches(chunkID string, filters map[string]string, policy FilterPolicy) bool {
	if len(filters) == 0 {
		return true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, known := s.meta[chunkID]
	for field, want := range filters {
		var have string
		if known {
			have = meta.Field(field)
		}
		if have == "" {
			if policy == FilterPolicyStrict {
				return false
			}
			continue
		}
		if !strings.EqualFold(have, want) {
			return false
		}
	}
	return true
}

// Lookup returns the chunk-ID set for an exact (field, value) pair.
func (s *StructuredLookup) Lookup(field, value string) map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values, ok := s.buckets[field]
	if !ok {
		return nil
	}
	return values[strings.ToLower(value)]
}

// InferEntities scans the query text for known metadata values and returns
// the matched field -> value pairs. Drives the optional structured boost
// when no explicit filter is requested.
func (s *StructuredLookup) InferEntities(query string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lower := strings.ToLower(query)
	entities := make(map[string]string)
	for _, field := range FilterFields {
		for value := range s.buckets[field] {
			if strings.Contains(lower, value) {
				entities[field] = value
				break
			}
		}
	}
	return entities
}

// BoostSet returns the union of chunk IDs matching any of the given
// field -> value pairs.
func (s *StructuredLookup) BoostSet(entities map[string]string) map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	boosted := make(map[string]struct{})
	for field, value := range entities {
		for id := range s.buckets[field][strings.ToLower(value)] {
			boosted[id] = struct{}{}
		}
	}
	return boosted
}

// Metadata returns the stored metadata reference for a chunk.
func (s *StructuredLookup) Metadata(chunkID string) (BusinessMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.meta[chunkID]
	return meta, ok
}

// Size returns the number of chunks with at least one indexed metadata value.
func (s *StructuredLookup) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, values := range s.buckets {
		for _, set := range values {
			for id := range set {
				seen[id] = struct{}{}
			}
		}
	}
	return len(seen)
}

// Close releases resources. StructuredLookup holds no external resources;
// Close exists for symmetry with the other per-generation indices.
func (s *StructuredLookup) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
