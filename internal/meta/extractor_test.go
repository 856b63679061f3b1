package meta

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagewise-ai/pagewise/internal/store"
)

func extract(t *testing.T, text string) store.BusinessMetadata {
	t.Helper()
	meta, err := NewPatternExtractor().Extract(context.Background(), text)
	require.NoError(t, err)
	return meta
}

// --- Fiscal period ---

func TestExtract_QuarterMarkers(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Results for Q1 FY2024 were strong", "Q1 FY2024"},
		{"q3 2023 revenue summary", "Q3 FY2023"},
		{"Q2-FY2025 highlights", "Q2 FY2025"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extract(t, tt.text).FiscalPeriod, tt.text)
	}
}

func TestExtract_FiscalYearWithoutQuarter(t *testing.T) {
	assert.Equal(t, "FY2024", extract(t, "fiscal year 2024 annual report").FiscalPeriod)
	assert.Equal(t, "FY2023", extract(t, "FY 2023 consolidated results").FiscalPeriod)
}

func TestExtract_QuarterWinsOverBareYear(t *testing.T) {
	meta := extract(t, "FY2024 overview, detailed Q2 2024 figures follow")

	assert.Equal(t, "Q2 FY2024", meta.FiscalPeriod)
}

// --- Company ---

func TestExtract_CompanyLabeledLine(t *testing.T) {
	meta := extract(t, "Quarterly Report\nCompany: Acme Holdings\nPage 1")

	assert.Equal(t, "Acme Holdings", meta.CompanyName)
}

func TestExtract_CompanyCorporateSuffix(t *testing.T) {
	meta := extract(t, "annual filing prepared for Evergreen Analytics, Inc. internal use")

	assert.Equal(t, "Evergreen Analytics, Inc", meta.CompanyName)
}

func TestExtract_LabeledLineWinsOverSuffix(t *testing.T) {
	meta := extract(t, "Company: Acme Holdings\nAudited by Grant & Field LLC today")

	assert.Equal(t, "Acme Holdings", meta.CompanyName)
}

// --- Department ---

func TestExtract_DepartmentLabeledLine(t *testing.T) {
	meta := extract(t, "Department: Finance\nBudget overview")

	assert.Equal(t, "Finance", meta.DepartmentName)
}

func TestExtract_NothingFoundLeavesFieldsEmpty(t *testing.T) {
	meta := extract(t, "plain narrative text about market conditions")

	assert.True(t, meta.Empty())
}

func TestExtract_ScanBoundedToHead(t *testing.T) {
	e := &PatternExtractor{MaxScanBytes: 32}
	text := "padding padding padding padding Company: Acme Holdings"

	meta, err := e.Extract(context.Background(), text)

	// The labeled line sits past the scan limit and is never seen.
	require.NoError(t, err)
	assert.Empty(t, meta.CompanyName)
}

// --- Caching ---

// countingExtractor counts how often the inner extraction actually runs.
type countingExtractor struct {
	*PatternExtractor
	calls int
}

func (c *countingExtractor) Extract(ctx context.Context, text string) (store.BusinessMetadata, error) {
	c.calls++
	return c.PatternExtractor.Extract(ctx, text)
}

func TestCachedExtractor_OneExtractionPerDocument(t *testing.T) {
	inner := &countingExtractor{PatternExtractor: NewPatternExtractor()}
	c := NewCachedExtractor(inner, 10)
	defer c.Close()

	text := "Company: Acme Holdings\nQ1 FY2024 results"

	// When: three chunks of the same document request metadata
	for range 3 {
		meta, err := c.ExtractForDocument(context.Background(), "doc1", text)
		require.NoError(t, err)
		assert.Equal(t, "Acme Holdings", meta.CompanyName)
	}

	// Then: the document was scanned once
	assert.Equal(t, 1, inner.calls)
}

func TestCachedExtractor_DistinctDocumentsExtractSeparately(t *testing.T) {
	inner := &countingExtractor{PatternExtractor: NewPatternExtractor()}
	c := NewCachedExtractor(inner, 10)
	defer c.Close()

	_, err := c.ExtractForDocument(context.Background(), "doc1", "Company: Acme Holdings")
	require.NoError(t, err)
	_, err = c.ExtractForDocument(context.Background(), "doc2", "Company: Beta Corp")
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls)
}
