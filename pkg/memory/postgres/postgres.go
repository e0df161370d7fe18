// Package postgres provides a PostgreSQL-backed implementation of the
// memory.SearchIndex using the pgvector extension.
//
// The pgvector extension must be available in the target database; [Migrate]
// installs it automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	index, err := postgres.New(ctx, dsn, 1536)
//	if err != nil { … }
//	defer index.Close()
//
//	_ = index.IndexDocument(ctx, doc)
//	results, _ := index.Search(ctx, queryVec, 4, "")
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/parleyvoice/parley/pkg/memory"
)

// Compile-time interface check.
var _ memory.SearchIndex = (*Index)(nil)

// Index is the pgvector-backed search index. It holds a single
// [pgxpool.Pool]; all methods are safe for concurrent use.
type Index struct {
	pool *pgxpool.Pool
}

// New creates a new Index, establishes a connection pool to the PostgreSQL
// database at dsn, registers pgvector types on every connection, and runs
// [Migrate] to ensure the documents table and vector extension exist.
//
// embeddingDimensions must match the output dimension of the embedding model
// used to produce [memory.Document.Embedding] values. Changing this value
// after the first migration requires a manual schema change.
func New(ctx context.Context, dsn string, embeddingDimensions int) (*Index, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector index: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgvector index: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector index: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector index: migrate: %w", err)
	}

	return &Index{pool: pool}, nil
}

// Close releases the connection pool.
func (ix *Index) Close() {
	ix.pool.Close()
}

// Ping verifies database connectivity, for readiness probes.
func (ix *Index) Ping(ctx context.Context) error {
	return ix.pool.Ping(ctx)
}

// ddlDocuments returns the DDL with the embedding dimension substituted.
// The vector dimension is baked into the column type at schema creation time.
func ddlDocuments(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
    id          TEXT         PRIMARY KEY,
    content     TEXT         NOT NULL,
    embedding   vector(%d),
    source      TEXT         NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_documents_source
    ON documents (source);

CREATE INDEX IF NOT EXISTS idx_documents_embedding
    ON documents USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures the documents table and vector extension exist.
// It is idempotent and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddlDocuments(embeddingDimensions)); err != nil {
		return fmt.Errorf("pgvector migrate: %w", err)
	}
	return nil
}

// IndexDocument implements [memory.SearchIndex]. It upserts a pre-embedded
// document into the documents table.
func (ix *Index) IndexDocument(ctx context.Context, doc memory.Document) error {
	const q = `
		INSERT INTO documents (id, content, embedding, source, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
		    content    = EXCLUDED.content,
		    embedding  = EXCLUDED.embedding,
		    source     = EXCLUDED.source,
		    created_at = EXCLUDED.created_at`

	if doc.ID == "" {
		return fmt.Errorf("pgvector index: document ID must not be empty")
	}
	if len(doc.Embedding) == 0 {
		return fmt.Errorf("pgvector index: document %q has no embedding", doc.ID)
	}

	created := doc.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := ix.pool.Exec(ctx, q,
		doc.ID,
		doc.Content,
		pgvector.NewVector(doc.Embedding),
		doc.Source,
		created,
	)
	if err != nil {
		return fmt.Errorf("pgvector index: index document: %w", err)
	}
	return nil
}

// Search implements [memory.SearchIndex]. Results are ordered by ascending
// cosine distance (most similar first).
func (ix *Index) Search(ctx context.Context, embedding []float32, topK int, source string) ([]memory.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	args := []any{pgvector.NewVector(embedding)} // $1 = query vector
	var conditions []string
	if source != "" {
		args = append(args, source)
		conditions = append(conditions, fmt.Sprintf("source = $%d", len(args)))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	args = append(args, topK)
	q := fmt.Sprintf(`
		SELECT id, content, source, created_at,
		       embedding <=> $1 AS distance
		FROM   documents
		%s
		ORDER  BY distance
		LIMIT  $%d`, whereClause, len(args))

	rows, err := ix.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector index: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.SearchResult, error) {
		var sr memory.SearchResult
		err := row.Scan(
			&sr.Document.ID,
			&sr.Document.Content,
			&sr.Document.Source,
			&sr.Document.CreatedAt,
			&sr.Distance,
		)
		return sr, err
	})
	if err != nil {
		return nil, fmt.Errorf("pgvector index: collect results: %w", err)
	}
	return results, nil
}

// DeleteBySource implements [memory.SearchIndex].
func (ix *Index) DeleteBySource(ctx context.Context, source string) (int64, error) {
	if source == "" {
		return 0, fmt.Errorf("pgvector index: source must not be empty")
	}
	tag, err := ix.pool.Exec(ctx, `DELETE FROM documents WHERE source = $1`, source)
	if err != nil {
		return 0, fmt.Errorf("pgvector index: delete by source: %w", err)
	}
	return tag.RowsAffected(), nil
}
