// Package mock provides an in-memory test double for memory.SearchIndex.
//
// Documents are held in a map and Search computes exact cosine distances, so
// tests can verify retrieval behavior without a database.
package mock

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/parleyvoice/parley/pkg/memory"
)

// Index is a mock implementation of memory.SearchIndex.
type Index struct {
	mu sync.Mutex

	// Err, if non-nil, is returned by every method.
	Err error

	docs map[string]memory.Document
}

// IndexDocument stores the document, replacing any existing one with the same ID.
func (m *Index) IndexDocument(_ context.Context, doc memory.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.docs == nil {
		m.docs = make(map[string]memory.Document)
	}
	m.docs[doc.ID] = doc
	return nil
}

// Search returns the topK stored documents by ascending cosine distance.
func (m *Index) Search(_ context.Context, embedding []float32, topK int, source string) ([]memory.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	var results []memory.SearchResult
	for _, doc := range m.docs {
		if source != "" && doc.Source != source {
			continue
		}
		results = append(results, memory.SearchResult{
			Document: doc,
			Distance: cosineDistance(embedding, doc.Embedding),
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteBySource removes all documents with the given source.
func (m *Index) DeleteBySource(_ context.Context, source string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	var n int64
	for id, doc := range m.docs {
		if doc.Source == source {
			delete(m.docs, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored documents. Thread-safe.
func (m *Index) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

// cosineDistance returns 1 - cosine similarity. Mismatched or zero-length
// vectors yield the maximum distance of 1.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// Ensure Index implements memory.SearchIndex at compile time.
var _ memory.SearchIndex = (*Index)(nil)
