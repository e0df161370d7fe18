// Package memory defines the semantic search index backing the assistant's
// knowledge base.
//
// Documents are pre-embedded chunks of reference text (product docs, FAQ
// entries, transcripts of past calls). At turn time the retrieval layer
// embeds the user's utterance and asks the index for the closest documents to
// ground the reply in.
//
// The interface is public so that external packages can supply alternative
// storage backends (Postgres/pgvector, Redis, in-memory) without depending on
// parley internals. Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"time"
)

// Document is a chunk of reference text prepared for semantic indexing. A
// Document carries its pre-computed embedding so the index does not need to
// re-embed on insertion.
type Document struct {
	// ID is the unique identifier for this document (e.g., a UUID).
	ID string

	// Content is the raw text of the document chunk.
	Content string

	// Embedding is the vector representation of Content. Dimension must match
	// the index configuration (e.g., 1536 for OpenAI text-embedding-3-small).
	Embedding []float32

	// Source identifies where the content came from (file name, URL, session
	// ID). Used for filtering and for bulk deletion on re-ingest.
	Source string

	// CreatedAt is when this document was indexed.
	CreatedAt time.Time
}

// SearchResult pairs a retrieved document with its vector-space distance from
// the query embedding. Lower Distance values indicate higher semantic
// similarity.
type SearchResult struct {
	// Document is the retrieved chunk. Its Embedding field may be nil in
	// results; implementations are not required to return stored vectors.
	Document Document

	// Distance is the cosine distance to the query embedding.
	Distance float64
}

// SearchIndex is the abstraction over any vector store backend.
type SearchIndex interface {
	// IndexDocument upserts a pre-embedded document. If a document with the
	// same ID already exists it is completely replaced.
	IndexDocument(ctx context.Context, doc Document) error

	// Search finds the topK documents whose embeddings are closest to the
	// supplied query embedding, ordered by ascending distance (most similar
	// first). source, when non-empty, restricts results to documents with
	// that Source.
	Search(ctx context.Context, embedding []float32, topK int, source string) ([]SearchResult, error)

	// DeleteBySource removes all documents with the given Source. Returns the
	// number of documents removed.
	DeleteBySource(ctx context.Context, source string) (int64, error)
}
