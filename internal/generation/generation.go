// Package generation manages immutable index generations. A generation is a
// consistent triple of lexical, vector, and structured indices built from one
// chunk-store snapshot. Generations are never mutated: updates are absorbed
// by building a new generation off the serving path and atomically swapping
// it in.
package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pagewise-ai/pagewise/internal/store"
)

// Generation is one immutable index triple. All fields are read-only after
// Build returns; concurrent queries share a generation without locking.
type Generation struct {
	// ID uniquely identifies this generation for result provenance.
	ID string

	// Lexical is the BM25 keyword index, nil if the build failed.
	Lexical store.LexicalIndex

	// Vector is the ANN index, nil when the snapshot carries no embeddings
	// or the build failed.
	Vector store.VectorIndex

	// Structured is the exact-match metadata index.
	Structured *store.StructuredLookup

	// ChunkCount is the number of chunks in the source snapshot.
	ChunkCount int

	// Dimension is the embedding dimension of the vector index, 0 if absent.
	Dimension int

	// BuiltAt records when the build completed.
	BuiltAt time.Time
}

// BuildConfig controls generation builds.
type BuildConfig struct {
	BM25   store.BM25Config
	Vector store.VectorConfig
}

// DefaultBuildConfig returns the default build configuration. The vector
// dimension is taken from the snapshot at build time.
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		BM25: store.DefaultBM25Config(),
	}
}

// Build constructs a generation from a snapshot. The lexical and structured
// indices always build; the vector index builds only when the snapshot has a
// corpus dimension. Any index build failure fails the whole generation: the
// manager keeps serving the previous generation instead of swapping in a
// partial one.
func Build(ctx context.Context, snap *store.Snapshot, cfg BuildConfig) (*Generation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g := &Generation{
		ID:         uuid.New().String(),
		ChunkCount: len(snap.Chunks),
	}

	lexical, err := store.NewBleveLexicalIndex(snap.Chunks, cfg.BM25)
	if err != nil {
		return nil, fmt.Errorf("build lexical index: %w", err)
	}
	g.Lexical = lexical

	g.Structured = store.NewStructuredLookup(snap.Chunks)

	if snap.Dimension > 0 {
		vcfg := cfg.Vector
		if vcfg.Dimensions == 0 {
			vcfg = store.DefaultVectorConfig(snap.Dimension)
		}
		vector, err := store.NewHNSWVectorIndex(snap.Chunks, vcfg)
		if err != nil {
			_ = lexical.Close()
			return nil, fmt.Errorf("build vector index: %w", err)
		}
		g.Vector = vector
		g.Dimension = vcfg.Dimensions
	}

	g.BuiltAt = time.Now()
	return g, nil
}

// Close releases the generation's index resources. Callers must ensure no
// in-flight query still holds the generation.
func (g *Generation) Close() error {
	var firstErr error
	if g.Lexical != nil {
		if err := g.Lexical.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if g.Vector != nil {
		if err := g.Vector.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if g.Structured != nil {
		if err := g.Structured.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
