package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	pwerrors "github.com/pagewise-ai/pagewise/internal/errors"
	"github.com/pagewise-ai/pagewise/internal/meta"
	"github.com/pagewise-ai/pagewise/internal/store"
)

// ingestRecord is one line of the JSONL chunk feed produced by the document
// parsing collaborator. A line is either a document header or a chunk.
type ingestRecord struct {
	Type string `json:"type"` // "document" or "chunk"

	// Document fields.
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename,omitempty"`
	PageCount  int    `json:"page_count,omitempty"`

	// Chunk fields.
	ChunkID    string `json:"chunk_id,omitempty"`
	Ordinal    int    `json:"ordinal,omitempty"`
	Text       string `json:"text,omitempty"`
	TokenCount int    `json:"token_count,omitempty"`
	PageNumber int    `json:"page_number,omitempty"`
	Element    string `json:"element,omitempty"`

	// Optional pre-extracted metadata; missing fields are inferred from
	// the chunk text.
	FiscalPeriod   string `json:"fiscal_period,omitempty"`
	CompanyName    string `json:"company_name,omitempty"`
	DepartmentName string `json:"department_name,omitempty"`
}

// newIngestCmd creates the ingest command.
func newIngestCmd() *cobra.Command {
	var noEmbed bool
	var noRebuild bool

	cmd := &cobra.Command{
		Use:   "ingest <chunks.jsonl>",
		Short: "Ingest a JSONL chunk feed into the chunk store",
		Long: `Ingest reads a JSONL feed of document headers and chunks (the output of
the document parsing pipeline), computes embeddings, extracts business
metadata, and admits chunks into the store. Chunks violating the admission
invariants are quarantined and reported, never indexed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			return runIngest(cmd.Context(), cmd, a, args[0], !noEmbed, !noRebuild)
		},
	}

	cmd.Flags().BoolVar(&noEmbed, "no-embed", false, "Skip embedding computation (lexical-only corpus)")
	cmd.Flags().BoolVar(&noRebuild, "no-rebuild", false, "Skip the generation rebuild after ingestion")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, a *app, path string, withEmbeddings, rebuild bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open feed: %w", err)
	}
	defer f.Close()

	extractor := meta.NewCachedExtractor(meta.NewPatternExtractor(), 0)
	defer extractor.Close()

	start := time.Now()
	var admitted, quarantined, documents int

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 8*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}

		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var rec ingestRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("line %d: malformed record: %w", line, err)
		}

		switch rec.Type {
		case "document":
			if err := ingestDocument(ctx, a, rec); err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			documents++
		case "chunk":
			ok, err := ingestChunk(ctx, a, extractor, rec, withEmbeddings)
			if err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			if ok {
				admitted++
			} else {
				quarantined++
			}
		default:
			return fmt.Errorf("line %d: unknown record type %q", line, rec.Type)
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("read feed: %w", err)
	}

	if rebuild {
		if err := a.manager.Rebuild(ctx); err != nil {
			return fmt.Errorf("rebuild after ingest: %w", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"ingested %d documents, %d chunks admitted, %d quarantined in %s\n",
		documents, admitted, quarantined, time.Since(start).Round(time.Millisecond))
	return nil
}

func ingestDocument(ctx context.Context, a *app, rec ingestRecord) error {
	if rec.DocumentID == "" {
		return fmt.Errorf("document record missing document_id")
	}
	return a.chunks.PutDocument(ctx, &store.Document{
		ID:         rec.DocumentID,
		Filename:   rec.Filename,
		PageCount:  rec.PageCount,
		Status:     store.DocumentStatusIngested,
		IngestedAt: time.Now(),
	})
}

// ingestChunk admits one chunk. Returns false when the chunk was quarantined.
func ingestChunk(ctx context.Context, a *app, extractor *meta.CachedExtractor, rec ingestRecord, withEmbeddings bool) (bool, error) {
	metadata := store.BusinessMetadata{
		FiscalPeriod:   rec.FiscalPeriod,
		CompanyName:    rec.CompanyName,
		DepartmentName: rec.DepartmentName,
	}
	if metadata.Empty() {
		extracted, err := extractor.ExtractForDocument(ctx, rec.DocumentID, rec.Text)
		if err == nil {
			metadata = extracted
		}
	}

	chunk := &store.Chunk{
		ID:         rec.ChunkID,
		DocumentID: rec.DocumentID,
		Ordinal:    rec.Ordinal,
		Text:       rec.Text,
		TokenCount: rec.TokenCount,
		PageNumber: rec.PageNumber,
		Element:    store.ElementType(rec.Element),
		Metadata:   metadata,
		CreatedAt:  time.Now(),
	}

	if withEmbeddings {
		vec, err := a.embedder.Embed(ctx, rec.Text)
		if err != nil {
			return false, fmt.Errorf("embed chunk %s: %w", rec.ChunkID, err)
		}
		chunk.Embedding = vec
	}

	if err := a.chunks.Put(ctx, chunk); err != nil {
		// Only admission failures quarantine the chunk; a store failure
		// (closed database, transaction error) aborts the feed.
		if pwerrors.GetCategory(err) != pwerrors.CategoryIngestion {
			return false, fmt.Errorf("store chunk %s: %w", rec.ChunkID, err)
		}
		slog.Warn("chunk quarantined",
			slog.String("chunk_id", rec.ChunkID),
			slog.String("document_id", rec.DocumentID),
			slog.String("error", err.Error()))
		return false, nil
	}
	return true, nil
}
