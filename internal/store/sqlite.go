package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	pwerrors "github.com/pagewise-ai/pagewise/internal/errors"
)

// SQLiteChunkStore implements ChunkStore on SQLite.
// WAL mode enables concurrent multi-process access; the connection pool is
// pinned to a single writer to avoid lock contention.
type SQLiteChunkStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Verify interface implementation at compile time
var _ ChunkStore = (*SQLiteChunkStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	filename    TEXT NOT NULL,
	page_count  INTEGER NOT NULL CHECK (page_count > 0),
	status      TEXT NOT NULL,
	ingested_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id              TEXT PRIMARY KEY,
	document_id     TEXT NOT NULL REFERENCES documents(id),
	ordinal         INTEGER NOT NULL,
	text            TEXT NOT NULL,
	token_count     INTEGER NOT NULL,
	page_number     INTEGER NOT NULL,
	element_type    TEXT NOT NULL,
	embedding       BLOB,
	fiscal_period   TEXT NOT NULL DEFAULT '',
	company_name    TEXT NOT NULL DEFAULT '',
	department_name TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, ordinal);

CREATE TABLE IF NOT EXISTS quarantine (
	chunk_id    TEXT NOT NULL,
	document_id TEXT NOT NULL,
	code        TEXT NOT NULL,
	message     TEXT NOT NULL,
	recorded_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// NewSQLiteChunkStore opens (or creates) a chunk store at path.
// If path is empty, an in-memory store is created for testing.
func NewSQLiteChunkStore(path string) (*SQLiteChunkStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		// WAL mode for concurrent access; busy_timeout handles lock
		// contention gracefully.
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Set pragmas via statements: modernc.org/sqlite ignores the DSN params.
	// CRITICAL: WAL mode must be set via PRAGMA for modernc.org/sqlite.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",   // concurrent reads while one process writes
		"PRAGMA busy_timeout = 5000",  // 5 second timeout for lock contention
		"PRAGMA synchronous = NORMAL", // balance durability and performance
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteChunkStore{db: db, path: path}, nil
}

// Path returns the on-disk database path ("" for in-memory stores).
func (s *SQLiteChunkStore) Path() string {
	return s.path
}

// PutDocument inserts or updates a document record.
func (s *SQLiteChunkStore) PutDocument(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return pwerrors.New(pwerrors.ErrCodeStoreClosed, "chunk store is closed", nil)
	}
	if doc.PageCount <= 0 {
		return pwerrors.IngestionError(pwerrors.ErrCodeUnknownDocument,
			fmt.Sprintf("document %s has non-positive page count %d", doc.ID, doc.PageCount))
	}

	ingestedAt := doc.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, filename, page_count, status, ingested_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			filename = excluded.filename,
			page_count = excluded.page_count,
			status = excluded.status,
			ingested_at = excluded.ingested_at`,
		doc.ID, doc.Filename, doc.PageCount, string(doc.Status), ingestedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	return nil
}

// GetDocument returns the document or a not-found error.
func (s *SQLiteChunkStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, pwerrors.New(pwerrors.ErrCodeStoreClosed, "chunk store is closed", nil)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, page_count, status, ingested_at FROM documents WHERE id = ?`, id)

	var doc Document
	var status, ingestedAt string
	if err := row.Scan(&doc.ID, &doc.Filename, &doc.PageCount, &status, &ingestedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, pwerrors.New(pwerrors.ErrCodeNotFound,
				fmt.Sprintf("document %s not found", id), nil)
		}
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	doc.Status = DocumentStatus(status)
	doc.IngestedAt, _ = time.Parse(time.RFC3339Nano, ingestedAt)
	return &doc, nil
}

// Put inserts a chunk whole-or-nothing. Admission invariants:
//   - page number resolved (>= 1) and within the document's page count
//   - non-empty text
//   - embedding dimension matches the corpus-wide dimension
//
// Violations are recorded in the quarantine table and returned as ingestion
// errors; the chunk never reaches an index.
func (s *SQLiteChunkStore) Put(ctx context.Context, chunk *Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return pwerrors.New(pwerrors.ErrCodeStoreClosed, "chunk store is closed", nil)
	}

	if err := s.validate(ctx, chunk); err != nil {
		s.recordQuarantine(ctx, chunk, err)
		return err
	}

	createdAt := chunk.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chunks (id, document_id, ordinal, text, token_count, page_number,
			element_type, embedding, fiscal_period, company_name, department_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			ordinal = excluded.ordinal,
			text = excluded.text,
			token_count = excluded.token_count,
			page_number = excluded.page_number,
			element_type = excluded.element_type,
			embedding = excluded.embedding,
			fiscal_period = excluded.fiscal_period,
			company_name = excluded.company_name,
			department_name = excluded.department_name`,
		chunk.ID, chunk.DocumentID, chunk.Ordinal, chunk.Text, chunk.TokenCount,
		chunk.PageNumber, string(chunk.Element), encodeEmbedding(chunk.Embedding),
		chunk.Metadata.FiscalPeriod, chunk.Metadata.CompanyName, chunk.Metadata.DepartmentName,
		createdAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save chunk %s: %w", chunk.ID, err)
	}

	// First admitted embedding fixes the corpus dimension.
	if len(chunk.Embedding) > 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO state (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO NOTHING`,
			StateKeyCorpusDimension, strconv.Itoa(len(chunk.Embedding))); err != nil {
			return fmt.Errorf("record corpus dimension: %w", err)
		}
	}

	return tx.Commit()
}

// validate checks the admission invariants for a chunk.
func (s *SQLiteChunkStore) validate(ctx context.Context, chunk *Chunk) error {
	if chunk.Text == "" {
		return pwerrors.IngestionError(pwerrors.ErrCodeEmptyChunk,
			fmt.Sprintf("chunk %s has empty text", chunk.ID))
	}
	if chunk.PageNumber < 1 {
		return pwerrors.IngestionError(pwerrors.ErrCodePageUnresolved,
			fmt.Sprintf("chunk %s has unresolved page number %d", chunk.ID, chunk.PageNumber))
	}

	var pageCount int
	err := s.db.QueryRowContext(ctx,
		`SELECT page_count FROM documents WHERE id = ?`, chunk.DocumentID).Scan(&pageCount)
	if err == sql.ErrNoRows {
		return pwerrors.IngestionError(pwerrors.ErrCodeUnknownDocument,
			fmt.Sprintf("chunk %s references unknown document %s", chunk.ID, chunk.DocumentID))
	}
	if err != nil {
		return fmt.Errorf("look up document %s: %w", chunk.DocumentID, err)
	}
	if chunk.PageNumber > pageCount {
		return pwerrors.IngestionError(pwerrors.ErrCodePageOutOfBounds,
			fmt.Sprintf("chunk %s page %d exceeds document page count %d",
				chunk.ID, chunk.PageNumber, pageCount))
	}

	if len(chunk.Embedding) > 0 {
		dim, err := s.corpusDimension(ctx)
		if err != nil {
			return err
		}
		if dim > 0 && dim != len(chunk.Embedding) {
			return pwerrors.IngestionError(pwerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("chunk %s embedding has %d dimensions, corpus uses %d",
					chunk.ID, len(chunk.Embedding), dim))
		}
	}

	return nil
}

// recordQuarantine logs a rejected chunk for ingestion-quality reporting.
// Best effort: quarantine bookkeeping never masks the ingestion error.
func (s *SQLiteChunkStore) recordQuarantine(ctx context.Context, chunk *Chunk, cause error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quarantine (chunk_id, document_id, code, message, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		chunk.ID, chunk.DocumentID, pwerrors.GetCode(cause), cause.Error(),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		slog.Warn("failed to record quarantined chunk",
			slog.String("chunk_id", chunk.ID),
			slog.String("error", err.Error()))
	}
}

// QuarantineCount returns the number of rejected chunks recorded.
func (s *SQLiteChunkStore) QuarantineCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, pwerrors.New(pwerrors.ErrCodeStoreClosed, "chunk store is closed", nil)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quarantine`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count quarantine: %w", err)
	}
	return count, nil
}

// Get returns the chunk or a not-found error.
func (s *SQLiteChunkStore) Get(ctx context.Context, id string) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, pwerrors.New(pwerrors.ErrCodeStoreClosed, "chunk store is closed", nil)
	}

	row := s.db.QueryRowContext(ctx, chunkSelect+` WHERE id = ?`, id)
	chunk, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, pwerrors.New(pwerrors.ErrCodeNotFound,
			fmt.Sprintf("chunk %s not found", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk %s: %w", id, err)
	}
	return chunk, nil
}

// GetMany returns chunks for the given IDs in a single query.
func (s *SQLiteChunkStore) GetMany(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return []*Chunk{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, pwerrors.New(pwerrors.ErrCodeStoreClosed, "chunk store is closed", nil)
	}

	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		chunkSelect+` WHERE id IN (`+string(placeholders)+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

// ListByDocument returns all chunks of a document ordered by ordinal.
func (s *SQLiteChunkStore) ListByDocument(ctx context.Context, documentID string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, pwerrors.New(pwerrors.ErrCodeStoreClosed, "chunk store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx,
		chunkSelect+` WHERE document_id = ? ORDER BY ordinal`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks for document %s: %w", documentID, err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

// Snapshot returns an immutable view used to build index generations.
func (s *SQLiteChunkStore) Snapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, pwerrors.New(pwerrors.ErrCodeStoreClosed, "chunk store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx, chunkSelect+` ORDER BY document_id, ordinal`)
	if err != nil {
		return nil, fmt.Errorf("snapshot chunks: %w", err)
	}
	defer rows.Close()

	chunks, err := collectChunks(rows)
	if err != nil {
		return nil, err
	}

	dim, err := s.corpusDimension(ctx)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Chunks:    chunks,
		Dimension: dim,
		TakenAt:   time.Now().UTC(),
	}, nil
}

// GetState returns a state value, or "" if the key is unset.
func (s *SQLiteChunkStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", pwerrors.New(pwerrors.ErrCodeStoreClosed, "chunk store is closed", nil)
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get state %s: %w", key, err)
	}
	return value, nil
}

// SetState stores a state value.
func (s *SQLiteChunkStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return pwerrors.New(pwerrors.ErrCodeStoreClosed, "chunk store is closed", nil)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// Close releases resources.
func (s *SQLiteChunkStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// corpusDimension reads the corpus embedding dimension from state (0 if unset).
func (s *SQLiteChunkStore) corpusDimension(ctx context.Context) (int, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM state WHERE key = ?`, StateKeyCorpusDimension).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read corpus dimension: %w", err)
	}
	dim, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid corpus dimension %q: %w", value, err)
	}
	return dim, nil
}

const chunkSelect = `
	SELECT id, document_id, ordinal, text, token_count, page_number,
		element_type, embedding, fiscal_period, company_name, department_name, created_at
	FROM chunks`

// rowScanner abstracts sql.Row and sql.Rows for scanChunk.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanChunk reads one chunk row.
func scanChunk(row rowScanner) (*Chunk, error) {
	var c Chunk
	var element, createdAt string
	var embedding []byte

	err := row.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Text, &c.TokenCount,
		&c.PageNumber, &element, &embedding,
		&c.Metadata.FiscalPeriod, &c.Metadata.CompanyName, &c.Metadata.DepartmentName,
		&createdAt)
	if err != nil {
		return nil, err
	}

	c.Element = ElementType(element)
	c.Embedding = decodeEmbedding(embedding)
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &c, nil
}

// collectChunks drains a result set into a chunk slice.
func collectChunks(rows *sql.Rows) ([]*Chunk, error) {
	var chunks []*Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return chunks, nil
}

// encodeEmbedding serializes a vector as little-endian float32 bytes.
func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeEmbedding deserializes little-endian float32 bytes.
func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
