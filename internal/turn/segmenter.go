package turn

import (
	"fmt"
	"time"

	"github.com/parleyvoice/parley/pkg/audio"
	"github.com/parleyvoice/parley/pkg/vad"
)

// Utterance is one contiguous span of speech framed by silence. It is created
// by the Segmenter, consumed once by the Orchestrator, then discarded.
type Utterance struct {
	// Frames are the speech frames accumulated for this utterance, in order.
	// Silence frames are never included.
	Frames []audio.Frame

	// Start is the stream offset of the first speech frame.
	Start time.Duration

	// End is the stream offset at which the trailing-silence threshold was
	// crossed.
	End time.Duration
}

// Duration returns the wall-clock span of the utterance including internal
// silence gaps.
func (u *Utterance) Duration() time.Duration { return u.End - u.Start }

// PCM concatenates the frames' sample data into a single buffer.
func (u *Utterance) PCM() []byte {
	var n int
	for _, f := range u.Frames {
		n += len(f.Data)
	}
	out := make([]byte, 0, n)
	for _, f := range u.Frames {
		out = append(out, f.Data...)
	}
	return out
}

// Segmenter is the utterance-boundary state machine. It consumes one
// classified frame at a time, accumulates contiguous speech, and emits a
// complete Utterance once trailing silence exceeds the configured end-silence
// threshold.
//
// The zero state is IDLE: leading silence is discarded, never accumulated.
// While accumulating, a silence gap shorter than the threshold does not break
// the utterance; only the trailing-silence counter resets when speech
// resumes. There is no maximum utterance length.
//
// Segmenter is not safe for concurrent use; it is owned by a single consumer
// loop.
type Segmenter struct {
	classifier       vad.Classifier
	endSilenceFrames int

	inSpeech bool
	silence  int
	frames   []audio.Frame
	lastSeen time.Duration
}

// NewSegmenter builds a Segmenter over the given classifier. The end-silence
// threshold in frames is endSilence divided by frameDuration, rounded down;
// an utterance is emitted when the count of consecutive trailing silence
// frames exceeds that threshold (e.g. 800 ms / 30 ms yields 26, so the 27th
// silence frame triggers emission).
func NewSegmenter(classifier vad.Classifier, endSilence, frameDuration time.Duration) (*Segmenter, error) {
	if classifier == nil {
		return nil, fmt.Errorf("turn: segmenter requires a classifier")
	}
	if frameDuration <= 0 {
		return nil, fmt.Errorf("turn: frame duration must be positive, got %v", frameDuration)
	}
	if endSilence < frameDuration {
		return nil, fmt.Errorf("turn: end silence %v must be at least one frame duration %v", endSilence, frameDuration)
	}
	return &Segmenter{
		classifier:       classifier,
		endSilenceFrames: int(endSilence / frameDuration),
	}, nil
}

// EndSilenceFrames returns the configured trailing-silence threshold in frames.
func (s *Segmenter) EndSilenceFrames() int { return s.endSilenceFrames }

// Push feeds one frame through the classifier and advances the state machine.
// It returns a non-nil Utterance exactly when this frame crossed the
// trailing-silence threshold; the segmenter is then reset and ready for the
// next utterance. Classification errors propagate and leave the state
// unchanged.
func (s *Segmenter) Push(f audio.Frame) (*Utterance, error) {
	speech, err := s.classifier.IsSpeech(f.Data)
	if err != nil {
		return nil, fmt.Errorf("turn: classify frame: %w", err)
	}

	if speech {
		s.frames = append(s.frames, f)
		s.silence = 0
		s.inSpeech = true
		s.lastSeen = f.Timestamp + f.Duration()
		return nil, nil
	}

	if !s.inSpeech {
		// Leading silence is discarded.
		return nil, nil
	}

	s.silence++
	s.lastSeen = f.Timestamp + f.Duration()
	if s.silence <= s.endSilenceFrames {
		return nil, nil
	}

	utt := &Utterance{
		Frames: s.frames,
		Start:  s.frames[0].Timestamp,
		End:    s.lastSeen,
	}
	s.reset()
	return utt, nil
}

// Flush emits any accumulated speech as a final utterance without waiting for
// the silence threshold, e.g. when the input stream ends mid-speech. Returns
// nil when nothing is accumulated.
func (s *Segmenter) Flush() *Utterance {
	if !s.inSpeech || len(s.frames) == 0 {
		return nil
	}
	utt := &Utterance{
		Frames: s.frames,
		Start:  s.frames[0].Timestamp,
		End:    s.lastSeen,
	}
	s.reset()
	return utt
}

// reset returns the state machine to IDLE with an empty accumulator.
func (s *Segmenter) reset() {
	s.inSpeech = false
	s.silence = 0
	s.frames = nil
}
