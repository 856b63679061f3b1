package search

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	pwerrors "github.com/pagewise-ai/pagewise/internal/errors"
	"github.com/pagewise-ai/pagewise/internal/generation"
	"github.com/pagewise-ai/pagewise/internal/store"
)

// GenerationProvider hands out the current serving generation.
// *generation.Manager satisfies it.
type GenerationProvider interface {
	Current() *generation.Generation
}

// Engine is the multi-index orchestrator. One query fans out to the lexical
// and vector indices in parallel, intersects with the structured index,
// fuses, optionally reranks, and returns attributed results. Index failures
// degrade the response; they never fail it. The only errors Search returns
// are validation errors.
type Engine struct {
	chunks   store.ChunkStore
	gens     GenerationProvider
	embedder QueryEmbedder
	reranker Reranker
	fuser    *Fuser
	pool     *rerankPool
	cfg      EngineConfig
}

// NewEngine creates the orchestrator. embedder may be nil (vector search is
// skipped); reranker may be nil (rerank requests fall back to fused order).
func NewEngine(
	chunks store.ChunkStore,
	gens GenerationProvider,
	embedder QueryEmbedder,
	reranker Reranker,
	cfg EngineConfig,
) *Engine {
	def := DefaultEngineConfig()
	if cfg.Alpha <= 0 || cfg.Alpha > 1 {
		cfg.Alpha = def.Alpha
	}
	if cfg.CandidatesPerIndex <= 0 {
		cfg.CandidatesPerIndex = def.CandidatesPerIndex
	}
	if cfg.FuseTopN <= 0 {
		cfg.FuseTopN = def.FuseTopN
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = def.DefaultTopK
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = def.MaxTopK
	}
	if cfg.IndexTimeout <= 0 {
		cfg.IndexTimeout = def.IndexTimeout
	}
	if cfg.RerankTimeout <= 0 {
		cfg.RerankTimeout = def.RerankTimeout
	}
	if cfg.RerankBatchSize <= 0 {
		cfg.RerankBatchSize = def.RerankBatchSize
	}
	if cfg.RerankWorkers <= 0 {
		cfg.RerankWorkers = def.RerankWorkers
	}
	if cfg.FilterPolicy == "" {
		cfg.FilterPolicy = def.FilterPolicy
	}

	e := &Engine{
		chunks:   chunks,
		gens:     gens,
		embedder: embedder,
		reranker: reranker,
		fuser:    NewFuser(cfg.Alpha),
		cfg:      cfg,
	}
	if reranker != nil {
		e.pool = newRerankPool(reranker, cfg.RerankBatchSize, cfg.RerankWorkers)
	}
	return e
}

// Search executes one query. The generation is loaded once at the top; the
// whole request is served from that snapshot regardless of concurrent
// rebuilds.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) (*Response, error) {
	start := time.Now()

	if err := validateQuery(query, &opts, e.cfg); err != nil {
		return nil, err
	}

	gen := e.gens.Current()
	if gen == nil {
		slog.Warn("no generation available, serving empty response")
		return &Response{
			Results:         []*Result{},
			Status:          StatusNoRetrieval,
			Degraded:        true,
			DegradedIndexes: []string{IndexLexical, IndexVector, IndexStructured},
			Took:            time.Since(start),
		}, nil
	}

	lex, vec, degraded := e.gather(ctx, gen, query)

	// All retrieval signals down: explicit empty response, never an error.
	if e.allRetrievalFailed(gen, degraded) {
		return &Response{
			Results:         []*Result{},
			Status:          StatusNoRetrieval,
			Degraded:        true,
			DegradedIndexes: degraded,
			GenerationID:    gen.ID,
			Took:            time.Since(start),
		}, nil
	}

	// Structured boost applies only without an explicit filter; a filter is
	// a hard constraint and boosting inside it would double-count.
	var boosted map[string]struct{}
	if e.cfg.BoostEnabled && len(opts.Filters) == 0 && gen.Structured != nil {
		if entities := gen.Structured.InferEntities(query); len(entities) > 0 {
			boosted = gen.Structured.BoostSet(entities)
		}
	}

	fused := e.fuser.Fuse(lex, vec, boosted, e.cfg.StructuredBoost)

	policy := e.cfg.FilterPolicy
	if opts.FilterPolicy != "" {
		policy = opts.FilterPolicy
	}
	if len(opts.Filters) > 0 && gen.Structured != nil {
		fused = filterFused(fused, gen.Structured, opts.Filters, policy)
	}

	if len(fused) > e.cfg.FuseTopN {
		fused = fused[:e.cfg.FuseTopN]
	}

	if len(fused) == 0 {
		return &Response{
			Results:         []*Result{},
			Status:          StatusNoResults,
			Degraded:        len(degraded) > 0,
			DegradedIndexes: degraded,
			GenerationID:    gen.ID,
			Took:            time.Since(start),
		}, nil
	}

	chunks, err := e.fetchChunks(ctx, fused)
	if err != nil {
		slog.Error("failed to load chunks for fused candidates",
			slog.String("error", err.Error()))
		return &Response{
			Results:         []*Result{},
			Status:          StatusNoRetrieval,
			Degraded:        true,
			DegradedIndexes: append(degraded, IndexLexical, IndexVector),
			GenerationID:    gen.ID,
			Took:            time.Since(start),
		}, nil
	}

	// Candidates whose chunk vanished between index build and fetch are
	// dropped rather than served without provenance.
	fused = dropMissing(fused, chunks)

	reranked := false
	var rerankScores []float64
	if opts.UseReranker && e.pool != nil && len(fused) > opts.TopK {
		rerankScores = e.rerank(ctx, query, fused, chunks)
		reranked = rerankScores != nil
	}

	final := fused
	if reranked {
		final = reorderByRerank(fused, rerankScores)
	}
	if len(final) > opts.TopK {
		final = final[:opts.TopK]
	}

	results := e.buildResults(final, chunks, rerankScores, fused)

	return &Response{
		Results:         results,
		Status:          StatusOK,
		Degraded:        len(degraded) > 0,
		DegradedIndexes: degraded,
		Reranked:        reranked,
		GenerationID:    gen.ID,
		Took:            time.Since(start),
	}, nil
}

// gather dispatches the lexical and vector searches in parallel with
// per-index timeouts. Failures are logged and converted into degradation,
// never into errors.
func (e *Engine) gather(ctx context.Context, gen *generation.Generation, query string) (
	[]*store.LexicalResult, []*store.VectorResult, []string,
) {
	var (
		lex []*store.LexicalResult
		vec []*store.VectorResult
	)
	var lexFailed, vecFailed bool

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if gen.Lexical == nil {
			lexFailed = true
			return nil
		}
		searchCtx, cancel := context.WithTimeout(gctx, e.cfg.IndexTimeout)
		defer cancel()

		results, err := gen.Lexical.Search(searchCtx, query, e.cfg.CandidatesPerIndex)
		if err != nil {
			lexFailed = true
			e.logIndexFailure(IndexLexical, searchCtx, err)
			return nil
		}
		lex = results
		return nil
	})

	g.Go(func() error {
		if gen.Vector == nil || e.embedder == nil {
			// No embeddings in the corpus or no embedder configured;
			// the query proceeds on the lexical signal alone.
			return nil
		}
		searchCtx, cancel := context.WithTimeout(gctx, e.cfg.IndexTimeout)
		defer cancel()

		qvec, err := e.embedder.Embed(searchCtx, query)
		if err != nil {
			vecFailed = true
			slog.Warn("query embedding failed, degrading vector index",
				slog.String("code", pwerrors.ErrCodeEmbedderUnavailable),
				slog.String("error", err.Error()))
			return nil
		}

		results, err := gen.Vector.Search(searchCtx, qvec, e.cfg.CandidatesPerIndex)
		if err != nil {
			vecFailed = true
			e.logIndexFailure(IndexVector, searchCtx, err)
			return nil
		}
		vec = results
		return nil
	})

	// Goroutines swallow their errors into degradation flags.
	_ = g.Wait()

	degraded := make([]string, 0, 2)
	if lexFailed {
		degraded = append(degraded, IndexLexical)
	}
	if vecFailed {
		degraded = append(degraded, IndexVector)
	}
	return lex, vec, degraded
}

// logIndexFailure distinguishes timeouts from hard failures in the log.
func (e *Engine) logIndexFailure(index string, ctx context.Context, err error) {
	code := pwerrors.ErrCodeIndexUnavailable
	if ctx.Err() == context.DeadlineExceeded {
		code = pwerrors.ErrCodeIndexTimeout
	}
	slog.Warn("index search failed, degrading",
		slog.String("index", index),
		slog.String("code", code),
		slog.String("error", err.Error()))
}

// allRetrievalFailed reports whether every retrieval-capable index failed.
// The structured index only filters and boosts; it cannot retrieve on its
// own and is excluded here.
func (e *Engine) allRetrievalFailed(gen *generation.Generation, degraded []string) bool {
	failed := make(map[string]bool, len(degraded))
	for _, name := range degraded {
		failed[name] = true
	}

	lexDown := gen.Lexical == nil || failed[IndexLexical]
	vecDown := gen.Vector == nil || e.embedder == nil || failed[IndexVector]

	// At least one real failure must have occurred; a corpus without
	// embeddings is not an outage.
	return lexDown && vecDown && len(degraded) > 0
}

// filterFused applies the structured hard filter to the fused candidates.
func filterFused(
	fused []*FusedResult,
	lookup *store.StructuredLookup,
	filters map[string]string,
	policy store.FilterPolicy,
) []*FusedResult {
	kept := fused[:0]
	for _, c := range fused {
		if lookup.Matches(c.ChunkID, filters, policy) {
			kept = append(kept, c)
		}
	}
	return kept
}

// fetchChunks loads chunk content for the fused pool in one query.
func (e *Engine) fetchChunks(ctx context.Context, fused []*FusedResult) (map[string]*store.Chunk, error) {
	ids := make([]string, len(fused))
	for i, c := range fused {
		ids[i] = c.ChunkID
	}

	chunks, err := e.chunks.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*store.Chunk, len(chunks))
	for _, ch := range chunks {
		byID[ch.ID] = ch
	}
	return byID, nil
}

// dropMissing removes candidates with no backing chunk.
func dropMissing(fused []*FusedResult, chunks map[string]*store.Chunk) []*FusedResult {
	kept := fused[:0]
	for _, c := range fused {
		if _, ok := chunks[c.ChunkID]; ok {
			kept = append(kept, c)
		}
	}
	return kept
}

// rerank scores the fused pool through the batched worker pool under a hard
// timeout. Returns nil on any failure; the caller falls back to the fused
// order.
func (e *Engine) rerank(ctx context.Context, query string, fused []*FusedResult, chunks map[string]*store.Chunk) []float64 {
	documents := make([]string, len(fused))
	for i, c := range fused {
		documents[i] = chunks[c.ChunkID].Text
	}

	rerankCtx, cancel := context.WithTimeout(ctx, e.cfg.RerankTimeout)
	defer cancel()

	scores, err := e.pool.score(rerankCtx, query, documents)
	if err != nil {
		code := pwerrors.ErrCodeRerankerUnavailable
		if rerankCtx.Err() == context.DeadlineExceeded {
			code = pwerrors.ErrCodeRerankerTimeout
		}
		slog.Warn("rerank failed, falling back to fused ranking",
			slog.String("code", code),
			slog.String("error", err.Error()))
		return nil
	}
	return scores
}

// reorderByRerank sorts the pool by cross-encoder score, ties broken by
// ascending chunk ID. The input order is preserved in the returned slice's
// source; the fused slice itself is not mutated.
func reorderByRerank(fused []*FusedResult, scores []float64) []*FusedResult {
	type scored struct {
		c     *FusedResult
		score float64
	}
	pool := make([]scored, len(fused))
	for i, c := range fused {
		pool[i] = scored{c: c, score: scores[i]}
	}

	sort.Slice(pool, func(i, j int) bool {
		if pool[i].score != pool[j].score {
			return pool[i].score > pool[j].score
		}
		return pool[i].c.ChunkID < pool[j].c.ChunkID
	})

	out := make([]*FusedResult, len(pool))
	for i, s := range pool {
		out[i] = s.c
	}
	return out
}

// buildResults assembles the attributed final results. rerankScores indexes
// into fusedOrder (the pre-rerank pool); nil means no rerank signal.
func (e *Engine) buildResults(
	final []*FusedResult,
	chunks map[string]*store.Chunk,
	rerankScores []float64,
	fusedOrder []*FusedResult,
) []*Result {
	// Map pool position for rerank score lookup.
	var poolIndex map[string]int
	if rerankScores != nil {
		poolIndex = make(map[string]int, len(fusedOrder))
		for i, c := range fusedOrder {
			poolIndex[c.ChunkID] = i
		}
	}

	results := make([]*Result, 0, len(final))
	for rank, c := range final {
		chunk := chunks[c.ChunkID]

		breakdown := Breakdown{
			Lexical:         c.LexNorm,
			Vector:          c.VecNorm,
			StructuredBoost: c.Boost,
		}
		score := c.FinalScore
		if rerankScores != nil {
			s := rerankScores[poolIndex[c.ChunkID]]
			breakdown.Rerank = &s
			score = s
		}

		results = append(results, &Result{
			ChunkID:      c.ChunkID,
			DocumentID:   chunk.DocumentID,
			PageNumber:   chunk.PageNumber,
			Element:      chunk.Element,
			Text:         chunk.Text,
			Metadata:     chunk.Metadata,
			Rank:         rank + 1,
			FinalScore:   score,
			Breakdown:    breakdown,
			MatchedTerms: c.MatchedTerms,
		})
	}
	return results
}

// Close releases the engine's model clients.
func (e *Engine) Close() error {
	if e.reranker != nil {
		return e.reranker.Close()
	}
	return nil
}
