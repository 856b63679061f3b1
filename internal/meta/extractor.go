// Package meta extracts business metadata (fiscal period, company name,
// department name) from document text. Extraction sits behind the Extractor
// interface so an LLM-backed collaborator can replace the pattern-based
// default without touching the core.
package meta

import (
	"context"
	"regexp"
	"strings"

	"github.com/pagewise-ai/pagewise/internal/store"
)

// Extractor derives document-level business metadata from text.
type Extractor interface {
	// Extract returns the metadata found in the text. Fields that cannot
	// be determined are left empty; absence is not an error.
	Extract(ctx context.Context, text string) (store.BusinessMetadata, error)

	Close() error
}

// Fiscal period patterns, most specific first.
var (
	// "Q1 FY2024", "Q3 2023", "2024年度 第1四半期" style quarters
	quarterPattern = regexp.MustCompile(`(?i)\b(Q[1-4])[\s-]*(?:FY)?\s*(\d{4})\b`)

	// "FY2024", "FY 2023", "fiscal year 2024", "fiscal 2024"
	fiscalYearPattern = regexp.MustCompile(`(?i)\b(?:FY\s*|fiscal\s+(?:year\s+)?)(\d{4})\b`)

	// "Company: Acme Corp" / "会社名: ..." style labeled lines
	companyLabelPattern = regexp.MustCompile(`(?im)^\s*(?:company|company name|issuer)\s*[:：]\s*(.{2,80})\s*$`)

	// "Acme Holdings, Inc." / "Foo Corp." / "Bar Co., Ltd."
	companySuffixPattern = regexp.MustCompile(`\b([A-Z][A-Za-z0-9&\-. ]{1,60}?(?:,? (?:Inc|Corp|Corporation|Co|Ltd|LLC|PLC|KK|GmbH)\.?))(?:\s|$|[,;)])`)

	// "Department: Finance" style labeled lines
	departmentLabelPattern = regexp.MustCompile(`(?im)^\s*(?:department|division|dept)\s*[:：]\s*(.{2,60})\s*$`)
)

// PatternExtractor is the default rule-based extractor. It recognizes common
// filing conventions (FY/quarter markers, labeled header lines, corporate
// suffixes) and leaves fields empty otherwise.
type PatternExtractor struct {
	// MaxScanBytes bounds how much of the text is scanned. Metadata lives
	// in headers and cover pages; scanning whole documents wastes work.
	MaxScanBytes int
}

// Verify interface implementation at compile time
var _ Extractor = (*PatternExtractor)(nil)

// DefaultMaxScanBytes bounds metadata scanning to the document head.
const DefaultMaxScanBytes = 16 * 1024

// NewPatternExtractor creates a rule-based metadata extractor.
func NewPatternExtractor() *PatternExtractor {
	return &PatternExtractor{MaxScanBytes: DefaultMaxScanBytes}
}

// Extract scans the text head for fiscal period, company, and department.
func (e *PatternExtractor) Extract(ctx context.Context, text string) (store.BusinessMetadata, error) {
	if err := ctx.Err(); err != nil {
		return store.BusinessMetadata{}, err
	}

	limit := e.MaxScanBytes
	if limit <= 0 {
		limit = DefaultMaxScanBytes
	}
	if len(text) > limit {
		text = text[:limit]
	}

	meta := store.BusinessMetadata{
		FiscalPeriod:   extractFiscalPeriod(text),
		CompanyName:    extractCompany(text),
		DepartmentName: extractDepartment(text),
	}
	return meta, nil
}

// Close releases resources. The pattern extractor holds none.
func (e *PatternExtractor) Close() error {
	return nil
}

func extractFiscalPeriod(text string) string {
	if m := quarterPattern.FindStringSubmatch(text); m != nil {
		return strings.ToUpper(m[1]) + " FY" + m[2]
	}
	if m := fiscalYearPattern.FindStringSubmatch(text); m != nil {
		return "FY" + m[1]
	}
	return ""
}

func extractCompany(text string) string {
	if m := companyLabelPattern.FindStringSubmatch(text); m != nil {
		return cleanValue(m[1])
	}
	if m := companySuffixPattern.FindStringSubmatch(text); m != nil {
		return cleanValue(m[1])
	}
	return ""
}

func extractDepartment(text string) string {
	if m := departmentLabelPattern.FindStringSubmatch(text); m != nil {
		return cleanValue(m[1])
	}
	return ""
}

// cleanValue strips trailing punctuation and collapses whitespace.
func cleanValue(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ".,;:")
	return strings.Join(strings.Fields(s), " ")
}
