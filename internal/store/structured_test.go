package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func structuredChunks() []*Chunk {
	return []*Chunk{
		{ID: "c1", Metadata: BusinessMetadata{
			FiscalPeriod: "Q2 FY2025",
			CompanyName:  "Acme Corp",
		}},
		{ID: "c2", Metadata: BusinessMetadata{
			FiscalPeriod:   "Q3 FY2025",
			DepartmentName: "Marketing",
		}},
		{ID: "c3"}, // no metadata at all
	}
}

func TestStructuredLookup_MatchesCaseInsensitive(t *testing.T) {
	s := NewStructuredLookup(structuredChunks())

	filters := map[string]string{FieldCompanyName: "acme corp"}

	assert.True(t, s.Matches("c1", filters, FilterPolicyStrict))
	assert.False(t, s.Matches("c2", filters, FilterPolicyLenient))
}

func TestStructuredLookup_MissingMetadataPolicies(t *testing.T) {
	s := NewStructuredLookup(structuredChunks())

	// Given: a filter on a field c3 does not carry
	filters := map[string]string{FieldFiscalPeriod: "Q2 FY2025"}

	// Then: lenient lets the chunk through, strict excludes it
	assert.True(t, s.Matches("c3", filters, FilterPolicyLenient))
	assert.False(t, s.Matches("c3", filters, FilterPolicyStrict))
}

func TestStructuredLookup_UnknownChunk(t *testing.T) {
	s := NewStructuredLookup(structuredChunks())

	filters := map[string]string{FieldFiscalPeriod: "Q2 FY2025"}

	// Unknown IDs carry no metadata: only the lenient policy passes them.
	assert.True(t, s.Matches("ghost", filters, FilterPolicyLenient))
	assert.False(t, s.Matches("ghost", filters, FilterPolicyStrict))
}

func TestStructuredLookup_NoFiltersAlwaysMatch(t *testing.T) {
	s := NewStructuredLookup(structuredChunks())

	assert.True(t, s.Matches("c3", nil, FilterPolicyStrict))
}

func TestStructuredLookup_Lookup(t *testing.T) {
	s := NewStructuredLookup(structuredChunks())

	set := s.Lookup(FieldDepartmentName, "MARKETING")

	require.Len(t, set, 1)
	assert.Contains(t, set, "c2")
}

func TestStructuredLookup_InferEntities(t *testing.T) {
	s := NewStructuredLookup(structuredChunks())

	// When: the query mentions a known company and period verbatim
	entities := s.InferEntities("What did Acme Corp report for q2 fy2025?")

	// Then: both fields are inferred with their bucket values
	assert.Equal(t, "acme corp", entities[FieldCompanyName])
	assert.Equal(t, "q2 fy2025", entities[FieldFiscalPeriod])
}

func TestStructuredLookup_BoostSet(t *testing.T) {
	s := NewStructuredLookup(structuredChunks())

	boosted := s.BoostSet(map[string]string{
		FieldCompanyName:    "Acme Corp",
		FieldDepartmentName: "Marketing",
	})

	assert.Len(t, boosted, 2)
	assert.Contains(t, boosted, "c1")
	assert.Contains(t, boosted, "c2")
}

func TestStructuredLookup_Size(t *testing.T) {
	s := NewStructuredLookup(structuredChunks())

	// c3 has no indexed values.
	assert.Equal(t, 2, s.Size())
}
