// Package mock provides a test double for the stt.Transcriber interface.
//
// Pre-populate Results with the texts to return in order, or set Err to make
// every call fail. Each call's WAV payload is recorded for inspection.
package mock

import (
	"context"
	"sync"

	"github.com/parleyvoice/parley/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// WAV is a copy of the audio bytes passed to Transcribe.
	WAV []byte
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Results are returned one per call, in order. When exhausted, Default is
	// returned instead.
	Results []string

	// Default is the text returned once Results is exhausted.
	Default string

	// Err, if non-nil, is returned by every Transcribe call instead of a result.
	Err error

	// Calls records every call to Transcribe in order.
	Calls []TranscribeCall

	next int
}

// Transcribe records the call and returns the next scripted result.
func (m *Transcriber) Transcribe(_ context.Context, wav []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]byte, len(wav))
	copy(cp, wav)
	m.Calls = append(m.Calls, TranscribeCall{WAV: cp})

	if m.Err != nil {
		return "", m.Err
	}
	if m.next < len(m.Results) {
		text := m.Results[m.next]
		m.next++
		return text, nil
	}
	return m.Default, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (m *Transcriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Reset clears all recorded calls and rewinds the scripted results. Thread-safe.
func (m *Transcriber) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.next = 0
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)
