package search

import (
	"sort"

	"github.com/pagewise-ai/pagewise/internal/store"
)

// FusedResult is a single candidate after score fusion.
type FusedResult struct {
	ChunkID      string
	FinalScore   float64  // alpha-blended normalized score plus boost
	LexScore     float64  // raw BM25 score (preserved)
	LexNorm      float64  // min-max normalized lexical component (0 if absent)
	VecScore     float64  // raw vector similarity (preserved)
	VecNorm      float64  // min-max normalized vector component (0 if absent)
	Boost        float64  // additive structured boost
	InBothLists  bool     // candidate appeared in both index lists
	MatchedTerms []string // lexical matched terms (for display)
}

// Fuser combines lexical and vector candidate lists into one ranking.
//
// Each list's raw scores are min-max normalized to [0,1] per query, then
// blended: final = alpha*vecNorm + (1-alpha)*lexNorm. A candidate missing
// from one list contributes 0 for that component. The structured boost is
// added after normalization. Identical inputs always produce the identical
// ranking: ties break by ascending chunk ID.
type Fuser struct {
	// Alpha is the vector weight (0-1).
	Alpha float64
}

// DefaultAlpha favors the semantic signal on natural-language queries.
const DefaultAlpha = 0.65

// NewFuser creates a fuser with the given vector weight.
// Alpha outside (0,1] falls back to the default.
func NewFuser(alpha float64) *Fuser {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &Fuser{Alpha: alpha}
}

// Fuse merges lexical and vector results. boosted is the chunk-ID set
// receiving the additive boost (nil disables boosting).
//
// Results are sorted by: FinalScore (desc) -> InBothLists (true first) ->
// ChunkID (asc).
func (f *Fuser) Fuse(
	lex []*store.LexicalResult,
	vec []*store.VectorResult,
	boosted map[string]struct{},
	boost float64,
) []*FusedResult {
	if len(lex) == 0 && len(vec) == 0 {
		return []*FusedResult{}
	}

	capacity := len(lex) + len(vec)
	candidates := make(map[string]*FusedResult, capacity)

	lexNorm := minMaxLexical(lex)
	inLexical := make(map[string]struct{}, len(lex))
	for i, r := range lex {
		c := f.getOrCreate(candidates, r.ChunkID)
		c.LexScore = r.Score
		c.LexNorm = lexNorm[i]
		c.MatchedTerms = r.MatchedTerms
		inLexical[r.ChunkID] = struct{}{}
	}

	vecNorm := minMaxVector(vec)
	for i, r := range vec {
		c := f.getOrCreate(candidates, r.ChunkID)
		c.VecScore = float64(r.Score)
		c.VecNorm = vecNorm[i]
		if _, ok := inLexical[r.ChunkID]; ok {
			c.InBothLists = true
		}
	}

	for id, c := range candidates {
		c.FinalScore = f.Alpha*c.VecNorm + (1-f.Alpha)*c.LexNorm
		if boosted != nil {
			if _, ok := boosted[id]; ok {
				c.Boost = boost
				c.FinalScore += boost
			}
		}
	}

	results := make([]*FusedResult, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, c)
	}
	sort.Slice(results, func(i, j int) bool {
		return f.compare(results[i], results[j])
	})

	return results
}

func (f *Fuser) getOrCreate(m map[string]*FusedResult, id string) *FusedResult {
	if c, ok := m[id]; ok {
		return c
	}
	c := &FusedResult{ChunkID: id}
	m[id] = c
	return c
}

// compare implements deterministic ordering. Returns true if a ranks
// before b.
func (f *Fuser) compare(a, b *FusedResult) bool {
	if a.FinalScore != b.FinalScore {
		return a.FinalScore > b.FinalScore
	}
	if a.InBothLists != b.InBothLists {
		return a.InBothLists
	}
	return a.ChunkID < b.ChunkID
}

// minMaxLexical maps raw BM25 scores to [0,1] per query. A single candidate
// (or a degenerate all-equal list) normalizes to 1.0: within this query it
// is the best evidence its index produced.
func minMaxLexical(results []*store.LexicalResult) []float64 {
	norms := make([]float64, len(results))
	if len(results) == 0 {
		return norms
	}

	min, max := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}

	if max == min {
		for i := range norms {
			norms[i] = 1.0
		}
		return norms
	}

	for i, r := range results {
		norms[i] = (r.Score - min) / (max - min)
	}
	return norms
}

// minMaxVector maps raw similarity scores to [0,1] per query, same
// degenerate-case rule as minMaxLexical.
func minMaxVector(results []*store.VectorResult) []float64 {
	norms := make([]float64, len(results))
	if len(results) == 0 {
		return norms
	}

	min, max := float64(results[0].Score), float64(results[0].Score)
	for _, r := range results[1:] {
		s := float64(r.Score)
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}

	if max == min {
		for i := range norms {
			norms[i] = 1.0
		}
		return norms
	}

	for i, r := range results {
		norms[i] = (float64(r.Score) - min) / (max - min)
	}
	return norms
}
