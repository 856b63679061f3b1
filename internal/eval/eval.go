// Package eval provides the fixed-case evaluation harness. Runs are advisory
// only: they measure retrieval quality and latency against a labeled case
// set and render a pass/fail decision gate, but never mutate engine state.
package eval

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pagewise-ai/pagewise/internal/search"
)

// Evaluation window: a case passes when the expected evidence appears in the
// top PassWindow returned results.
const PassWindow = 5

// Case is one labeled evaluation query.
type Case struct {
	// Query is the natural-language question.
	Query string `yaml:"query"`

	// ExpectedPage is the page that must appear among the top results.
	ExpectedPage int `yaml:"expected_page"`

	// ExpectedKeywords optionally passes the case when enough of them
	// appear in the top results' text, even off the expected page.
	ExpectedKeywords []string `yaml:"expected_keywords,omitempty"`

	// KeywordThreshold is the fraction of keywords that must overlap
	// (default 0.5 when keywords are set).
	KeywordThreshold float64 `yaml:"keyword_threshold,omitempty"`

	// Category groups cases for reporting (e.g. "numeric", "narrative").
	Category string `yaml:"category,omitempty"`

	// Difficulty is a free-form label ("easy", "hard").
	Difficulty string `yaml:"difficulty,omitempty"`
}

// CaseFile is the YAML document holding a case set.
type CaseFile struct {
	Cases []Case `yaml:"cases"`
}

// LoadCases reads a YAML case file.
func LoadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read case file: %w", err)
	}

	var file CaseFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse case file: %w", err)
	}
	if len(file.Cases) == 0 {
		return nil, fmt.Errorf("case file %s contains no cases", path)
	}

	for i, c := range file.Cases {
		if strings.TrimSpace(c.Query) == "" {
			return nil, fmt.Errorf("case %d has an empty query", i)
		}
		if c.ExpectedPage < 1 {
			return nil, fmt.Errorf("case %d has invalid expected_page %d", i, c.ExpectedPage)
		}
	}
	return file.Cases, nil
}

// CaseResult is the outcome of one evaluated case.
type CaseResult struct {
	Case    Case
	Passed  bool
	Latency time.Duration

	// TopPages are the pages of the top results, for failure analysis.
	TopPages []int
}

// Report aggregates a full evaluation run.
type Report struct {
	Results  []CaseResult
	Total    int
	Passed   int
	Accuracy float64
	P50      time.Duration
	P95      time.Duration

	// Threshold and Pass record the decision gate: Pass is true when
	// Accuracy >= Threshold (boundary inclusive).
	Threshold float64
	Pass      bool
}

// Searcher is the engine surface the harness needs.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.SearchOptions) (*search.Response, error)
}

// Options configures an evaluation run.
type Options struct {
	// Threshold is the accuracy gate (default 0.70).
	Threshold float64

	// UseReranker forwards the rerank request to every query.
	UseReranker bool
}

// DefaultThreshold is the default accuracy gate.
const DefaultThreshold = 0.70

// Run evaluates every case against the engine and returns the report.
// Cases run sequentially so latency percentiles reflect single-query cost.
func Run(ctx context.Context, engine Searcher, cases []Case, opts Options) (*Report, error) {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}

	report := &Report{
		Results:   make([]CaseResult, 0, len(cases)),
		Total:     len(cases),
		Threshold: opts.Threshold,
	}

	latencies := make([]time.Duration, 0, len(cases))

	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := engine.Search(ctx, c.Query, search.SearchOptions{
			TopK:        PassWindow,
			UseReranker: opts.UseReranker,
		})
		latency := time.Since(start)
		latencies = append(latencies, latency)

		result := CaseResult{Case: c, Latency: latency}
		if err == nil {
			result.TopPages = topPages(resp)
			result.Passed = judge(c, resp)
		}

		if result.Passed {
			report.Passed++
		}
		report.Results = append(report.Results, result)
	}

	if report.Total > 0 {
		report.Accuracy = float64(report.Passed) / float64(report.Total)
	}
	report.P50 = percentile(latencies, 50)
	report.P95 = percentile(latencies, 95)
	report.Pass = report.Accuracy >= report.Threshold

	return report, nil
}

// judge decides pass/fail for one case: the expected page appears among the
// top results, or the keyword overlap over the same window clears the
// case's threshold.
func judge(c Case, resp *search.Response) bool {
	window := resp.Results
	if len(window) > PassWindow {
		window = window[:PassWindow]
	}

	for _, r := range window {
		if r.PageNumber == c.ExpectedPage {
			return true
		}
	}

	if len(c.ExpectedKeywords) == 0 {
		return false
	}
	threshold := c.KeywordThreshold
	if threshold <= 0 {
		threshold = 0.5
	}
	return keywordOverlap(c.ExpectedKeywords, window) >= threshold
}

// keywordOverlap returns the fraction of expected keywords found in the
// window's text (case-insensitive).
func keywordOverlap(keywords []string, window []*search.Result) float64 {
	if len(keywords) == 0 {
		return 0
	}

	var combined strings.Builder
	for _, r := range window {
		combined.WriteString(strings.ToLower(r.Text))
		combined.WriteString(" ")
	}
	text := combined.String()

	found := 0
	for _, kw := range keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			found++
		}
	}
	return float64(found) / float64(len(keywords))
}

func topPages(resp *search.Response) []int {
	window := resp.Results
	if len(window) > PassWindow {
		window = window[:PassWindow]
	}
	pages := make([]int, len(window))
	for i, r := range window {
		pages[i] = r.PageNumber
	}
	return pages
}

// percentile computes the p-th latency percentile using nearest-rank.
func percentile(latencies []time.Duration, p int) time.Duration {
	if len(latencies) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rank := (p*len(sorted) + 99) / 100 // ceil(p/100 * n)
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
