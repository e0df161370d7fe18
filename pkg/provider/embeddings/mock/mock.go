// Package mock provides a test double for the embeddings.Provider interface.
//
// The mock returns deterministic vectors derived from the input text length,
// unless Vectors maps the exact text to a fixed vector. Dimensions defaults
// to 8 to keep test fixtures small.
package mock

import (
	"context"
	"sync"

	"github.com/parleyvoice/parley/pkg/provider/embeddings"
)

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// Dims is the dimensionality reported and produced. Zero means 8.
	Dims int

	// Vectors maps exact input texts to fixed embedding vectors. Texts not in
	// the map get a deterministic generated vector.
	Vectors map[string][]float32

	// Err, if non-nil, is returned by every Embed and EmbedBatch call.
	Err error

	// EmbedCalls records every text passed to Embed or EmbedBatch, in order.
	EmbedCalls []string
}

// Embed records the call and returns the scripted or generated vector.
func (m *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EmbedCalls = append(m.EmbedCalls, text)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.vectorFor(text), nil
}

// EmbedBatch records each text and returns one vector per input.
func (m *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EmbedCalls = append(m.EmbedCalls, texts...)
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vectorFor(t)
	}
	return out, nil
}

// Dimensions returns Dims, defaulting to 8.
func (m *Provider) Dimensions() int {
	if m.Dims > 0 {
		return m.Dims
	}
	return 8
}

// ModelID identifies the mock in logs.
func (m *Provider) ModelID() string { return "mock-embeddings" }

// CallCount returns the number of embedded texts. Thread-safe.
func (m *Provider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.EmbedCalls)
}

// vectorFor returns the scripted vector for text, or a deterministic vector
// derived from the text bytes. Caller must hold mu.
func (m *Provider) vectorFor(text string) []float32 {
	if v, ok := m.Vectors[text]; ok {
		cp := make([]float32, len(v))
		copy(cp, v)
		return cp
	}
	dims := m.Dims
	if dims <= 0 {
		dims = 8
	}
	vec := make([]float32, dims)
	for i, b := range []byte(text) {
		vec[i%dims] += float32(b) / 255.0
	}
	return vec
}

// Ensure Provider implements embeddings.Provider at compile time.
var _ embeddings.Provider = (*Provider)(nil)
