package search

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// rerankPool runs candidate scoring through a bounded worker pool: documents
// are split into fixed-size batches and at most workers batches are in
// flight at once. One failed batch fails the whole pool; the engine handles
// the failure by falling back to the fused ranking.
type rerankPool struct {
	reranker  Reranker
	batchSize int
	workers   int
}

func newRerankPool(reranker Reranker, batchSize, workers int) *rerankPool {
	if batchSize <= 0 {
		batchSize = 8
	}
	if workers <= 0 {
		workers = 2
	}
	return &rerankPool{
		reranker:  reranker,
		batchSize: batchSize,
		workers:   workers,
	}
}

// score returns one relevance score per document, in input order.
// An empty document list returns immediately without touching the model.
func (p *rerankPool) score(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return []float64{}, nil
	}

	scores := make([]float64, len(documents))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for start := 0; start < len(documents); start += p.batchSize {
		end := start + p.batchSize
		if end > len(documents) {
			end = len(documents)
		}
		offset, batch := start, documents[start:end]

		g.Go(func() error {
			results, err := p.reranker.Rerank(gctx, query, batch)
			if err != nil {
				return err
			}
			for _, r := range results {
				// Index is batch-relative; map back into the full slice.
				scores[offset+r.Index] = r.Score
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}
