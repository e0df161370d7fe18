// Package mock provides a test double for the vad.Classifier interface.
//
// Use Classifier to script per-frame results and inspect the frames that were
// submitted for classification.
//
// Example:
//
//	c := &mock.Classifier{Results: []bool{true, true, false}}
//	speech, _ := c.IsSpeech(frame) // true, then true, then false, false, …
package mock

import (
	"sync"

	"github.com/parleyvoice/parley/pkg/vad"
)

// Classifier is a mock implementation of vad.Classifier.
type Classifier struct {
	mu sync.Mutex

	// Results is consumed one entry per IsSpeech call. When exhausted (or
	// empty), Default is returned.
	Results []bool

	// Default is returned once Results is exhausted.
	Default bool

	// Err, if non-nil, is returned by every IsSpeech call.
	Err error

	// Frames records a copy of every frame passed to IsSpeech, in order.
	Frames [][]byte

	next int
}

// IsSpeech records the call and returns the next scripted result.
func (c *Classifier) IsSpeech(frame []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	c.Frames = append(c.Frames, cp)
	if c.Err != nil {
		return false, c.Err
	}
	if c.next < len(c.Results) {
		r := c.Results[c.next]
		c.next++
		return r, nil
	}
	return c.Default, nil
}

// Reset clears recorded frames and rewinds the scripted results.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Frames = nil
	c.next = 0
}

// Ensure Classifier implements vad.Classifier at compile time.
var _ vad.Classifier = (*Classifier)(nil)
