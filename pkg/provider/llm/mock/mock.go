// Package mock provides a test double for the llm.Provider interface.
//
// Pre-populate Responses with the replies to return in order, or set Err to
// make every call fail. Each request is recorded for inspection.
package mock

import (
	"context"
	"sync"

	"github.com/parleyvoice/parley/pkg/provider/llm"
)

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Responses are returned one per Complete call, in order. When exhausted,
	// Default is returned instead.
	Responses []llm.CompletionResponse

	// Default is the response returned once Responses is exhausted.
	Default llm.CompletionResponse

	// Err, if non-nil, is returned by every Complete call instead of a response.
	Err error

	// Requests records every CompletionRequest passed to Complete, in order.
	Requests []llm.CompletionRequest

	next int
}

// Complete records the request and returns the next scripted response.
func (m *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)

	if m.Err != nil {
		return nil, m.Err
	}
	if m.next < len(m.Responses) {
		resp := m.Responses[m.next]
		m.next++
		return &resp, nil
	}
	resp := m.Default
	return &resp, nil
}

// CallCount returns the number of Complete calls. Thread-safe.
func (m *Provider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// LastRequest returns the most recent request, or a zero value if none.
// Thread-safe.
func (m *Provider) LastRequest() llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return llm.CompletionRequest{}
	}
	return m.Requests[len(m.Requests)-1]
}

// Reset clears all recorded requests and rewinds the scripted responses.
// Thread-safe.
func (m *Provider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = nil
	m.next = 0
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
