package turn

import (
	"context"
	"fmt"
	"sync"

	"github.com/parleyvoice/parley/pkg/audio"
)

// FrameBuffer is a bounded, ordered queue of audio frames connecting the
// capture producer to the segmentation consumer. It is the only shared
// mutable structure between the two.
//
// When the buffer is full, Put blocks until the consumer catches up. Frames
// are never dropped; silent frame loss would corrupt VAD timing downstream.
type FrameBuffer struct {
	frames chan audio.Frame

	done chan struct{}
	once sync.Once
}

// NewFrameBuffer creates a buffer holding at most capacity frames.
// capacity must be at least 1.
func NewFrameBuffer(capacity int) (*FrameBuffer, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("turn: frame buffer capacity must be at least 1, got %d", capacity)
	}
	return &FrameBuffer{
		frames: make(chan audio.Frame, capacity),
		done:   make(chan struct{}),
	}, nil
}

// Put appends a frame, blocking while the buffer is full. Returns ctx.Err()
// if the context is cancelled first, or ErrBufferClosed after Close.
func (b *FrameBuffer) Put(ctx context.Context, f audio.Frame) error {
	select {
	case <-b.done:
		return ErrBufferClosed
	default:
	}
	select {
	case b.frames <- f:
		return nil
	case <-b.done:
		return ErrBufferClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get removes and returns the oldest frame, blocking while the buffer is
// empty. After Close, Get keeps returning buffered frames until the buffer is
// drained, then returns ErrBufferClosed.
func (b *FrameBuffer) Get(ctx context.Context) (audio.Frame, error) {
	// Drain buffered frames even when the buffer is already closed.
	select {
	case f := <-b.frames:
		return f, nil
	default:
	}
	select {
	case f := <-b.frames:
		return f, nil
	case <-b.done:
		// Closing may race with a final Put; prefer delivering the frame.
		select {
		case f := <-b.frames:
			return f, nil
		default:
			return audio.Frame{}, ErrBufferClosed
		}
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	}
}

// Len returns the number of frames currently buffered.
func (b *FrameBuffer) Len() int { return len(b.frames) }

// Cap returns the buffer capacity.
func (b *FrameBuffer) Cap() int { return cap(b.frames) }

// Close marks the buffer closed. Subsequent Puts fail; Gets drain the
// remaining frames then fail. Close is idempotent.
func (b *FrameBuffer) Close() {
	b.once.Do(func() { close(b.done) })
}
