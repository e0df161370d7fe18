package turn

import "errors"

// Stage errors returned by [Orchestrator.ProcessTurn]. Each is scoped to a
// single turn: the capture and segmentation loop keeps running and the next
// utterance starts a fresh turn.
var (
	// ErrTranscription marks a failed speech-to-text stage. No history
	// mutation has happened when this is returned.
	ErrTranscription = errors.New("turn: transcription failed")

	// ErrGeneration marks a failed reply-generation stage. The user message
	// has already been appended to history and is retained.
	ErrGeneration = errors.New("turn: generation failed")

	// ErrSynthesis marks a failed speech-synthesis stage. The reply text is
	// still available in the turn result; the turn degrades to text-only.
	ErrSynthesis = errors.New("turn: synthesis failed")

	// ErrPlayback marks a failed playback/emit stage. Like ErrSynthesis, the
	// reply text survives.
	ErrPlayback = errors.New("turn: playback failed")

	// ErrBufferClosed is returned by FrameBuffer operations after Close.
	ErrBufferClosed = errors.New("turn: frame buffer is closed")
)
