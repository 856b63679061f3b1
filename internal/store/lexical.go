package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
	index "github.com/blevesearch/bleve_index_api"
)

const (
	// FinanceTokenizerName is the name of our custom finance tokenizer.
	FinanceTokenizerName = "finance_tokenizer"

	// FinanceStopFilterName is the name of our custom stop word filter.
	FinanceStopFilterName = "finance_stop"

	// FinanceAnalyzerName is the name of our custom finance analyzer.
	FinanceAnalyzerName = "finance_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(FinanceTokenizerName, financeTokenizerConstructor)
	_ = registry.RegisterTokenFilter(FinanceStopFilterName, financeStopFilterConstructor)
}

// BleveLexicalIndex wraps Bleve v2 for BM25-style keyword search over one
// index generation. The index is built once from a chunk store snapshot and
// immutable afterwards.
type BleveLexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	config BM25Config
	count  int
	closed bool
}

// Verify interface implementation at compile time
var _ LexicalIndex = (*BleveLexicalIndex)(nil)

// bleveChunkDoc is the document structure for Bleve indexing. Only the text
// is indexed; everything else stays in the chunk store.
type bleveChunkDoc struct {
	Text string `json:"text"`
}

// NewBleveLexicalIndex builds an in-memory lexical index from the chunks of
// a snapshot. Chunks without text never reach this point (quarantined at Put).
func NewBleveLexicalIndex(chunks []*Chunk, config BM25Config) (*BleveLexicalIndex, error) {
	indexMapping, err := createIndexMapping(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	idx, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	batch := idx.NewBatch()
	for _, chunk := range chunks {
		if err := batch.Index(chunk.ID, bleveChunkDoc{Text: chunk.Text}); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("failed to index chunk %s: %w", chunk.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to execute batch: %w", err)
	}

	return &BleveLexicalIndex{
		index:  idx,
		config: config,
		count:  len(chunks),
	}, nil
}

// Per-mapping instance names for the configured tokenizer and stop filter.
const (
	financeTermsName = "finance_terms"
	financeStopsName = "finance_stops"
)

// createIndexMapping creates the Bleve index mapping with the finance
// analyzer, built from the configured tunables, and BM25 scoring.
func createIndexMapping(config BM25Config) (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.ScoringModel = index.BM25Scoring

	err := indexMapping.AddCustomTokenizer(financeTermsName, map[string]interface{}{
		"type":             FinanceTokenizerName,
		"min_token_length": config.MinTokenLength,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom tokenizer: %w", err)
	}

	err = indexMapping.AddCustomTokenFilter(financeStopsName, map[string]interface{}{
		"type":       FinanceStopFilterName,
		"stop_words": config.StopWords,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom token filter: %w", err)
	}

	err = indexMapping.AddCustomAnalyzer(FinanceAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": financeTermsName,
		"token_filters": []string{
			lowercase.Name,
			financeStopsName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = FinanceAnalyzerName
	return indexMapping, nil
}

// Search returns chunks matching the query, scored by BM25.
// An empty query returns an empty candidate set, not an error.
func (b *BleveLexicalIndex) Search(ctx context.Context, queryStr string, limit int) ([]*LexicalResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}

	if strings.TrimSpace(queryStr) == "" {
		return []*LexicalResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("text")

	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = limit
	searchRequest.IncludeLocations = true // for matched terms

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	results := make([]*LexicalResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &LexicalResult{
			ChunkID:      hit.ID,
			Score:        hit.Score,
			MatchedTerms: extractMatchedTerms(hit),
		})
	}

	return results, nil
}

// DocCount returns the number of indexed chunks.
func (b *BleveLexicalIndex) DocCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}
	return b.count
}

// Close closes the index.
func (b *BleveLexicalIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// extractMatchedTerms extracts matched terms from a search hit.
func extractMatchedTerms(hit *search.DocumentMatch) []string {
	terms := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if field == "text" {
			for term := range locations {
				terms[term] = struct{}{}
			}
		}
	}

	result := make([]string, 0, len(terms))
	for term := range terms {
		result = append(result, term)
	}
	return result
}

// financeTokenizerConstructor creates the finance tokenizer for Bleve.
// The config map may carry "min_token_length"; it arrives as an int when the
// mapping is built in-process and as a float64 after a JSON round trip.
func financeTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	minLen := 0
	switch v := config["min_token_length"].(type) {
	case int:
		minLen = v
	case float64:
		minLen = int(v)
	}
	return &bleveFinanceTokenizer{minTokenLength: minLen}, nil
}

// bleveFinanceTokenizer implements analysis.Tokenizer for finance-aware
// tokenization (fiscal periods, figures).
type bleveFinanceTokenizer struct {
	minTokenLength int
}

// Tokenize implements analysis.Tokenizer.
func (t *bleveFinanceTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := TokenizeFinance(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0

	for _, token := range tokens {
		if len(token) < t.minTokenLength {
			continue
		}
		// Find token position in original text (case-insensitive search).
		start := strings.Index(strings.ToLower(text[offset:]), token)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)

		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}

	return result
}

// financeStopFilterConstructor creates a finance stop word filter for Bleve.
// The config map may carry "stop_words" ([]string in-process, []interface{}
// after a JSON round trip); without it the default finance list applies.
func financeStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	words := DefaultFinanceStopWords
	switch v := config["stop_words"].(type) {
	case []string:
		words = v
	case []interface{}:
		words = make([]string, 0, len(v))
		for _, w := range v {
			if s, ok := w.(string); ok {
				words = append(words, s)
			}
		}
	}
	return &bleveFinanceStopFilter{
		stopWords: BuildStopWordMap(words),
	}, nil
}

// bleveFinanceStopFilter implements analysis.TokenFilter for finance stop words.
type bleveFinanceStopFilter struct {
	stopWords map[string]struct{}
}

// Filter implements analysis.TokenFilter.
func (f *bleveFinanceStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		term := strings.ToLower(string(token.Term))
		if _, isStop := f.stopWords[term]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
