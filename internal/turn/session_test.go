package turn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/parleyvoice/parley/pkg/provider/stt"
	sttmock "github.com/parleyvoice/parley/pkg/provider/stt/mock"
	ttsmock "github.com/parleyvoice/parley/pkg/provider/tts/mock"
	"github.com/parleyvoice/parley/pkg/types"
	vadmock "github.com/parleyvoice/parley/pkg/vad/mock"
)

// turnRecord captures one turn callback invocation.
type turnRecord struct {
	res *Result
	err error
}

// turnCollector is a thread-safe turn callback double.
type turnCollector struct {
	mu    sync.Mutex
	turns []turnRecord
}

func (c *turnCollector) callback(res *Result, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, turnRecord{res: res, err: err})
}

func (c *turnCollector) snapshot() []turnRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]turnRecord(nil), c.turns...)
}

// newTestSession wires a session over mocks. The classifier script decides
// which frames count as speech; the transcriber decides what each utterance
// says.
func newTestSession(t *testing.T, script []bool, transcriber *sttmock.Transcriber, collector *turnCollector) (*Session, *History) {
	t.Helper()

	h := NewHistory("you are a voice assistant")
	o, err := NewOrchestrator(transcriber,
		responderFunc(func(context.Context, []types.Message) (string, error) {
			return "understood", nil
		}),
		&ttsmock.Synthesizer{Audio: []byte{1, 2}},
		&playerRec{},
		h,
	)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}

	buf, err := NewFrameBuffer(len(script) + 1)
	if err != nil {
		t.Fatalf("NewFrameBuffer: %v", err)
	}
	seg, err := NewSegmenter(&vadmock.Classifier{Results: script}, 800*time.Millisecond, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSegmenter: %v", err)
	}

	sess, err := NewSession(buf, seg, o, h, WithTurnCallback(collector.callback))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return sess, h
}

// feedAndRun puts one frame per script entry, closes the buffer, and waits
// for Run to drain.
func feedAndRun(t *testing.T, sess *Session, script []bool) error {
	t.Helper()

	ctx := context.Background()
	for i := range script {
		if err := sess.Buffer().Put(ctx, testFrame(i)); err != nil {
			t.Fatalf("Put frame %d: %v", i, err)
		}
	}
	sess.Buffer().Close()

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not finish after buffer close")
		return nil
	}
}

func TestSession_CompleteTurn(t *testing.T) {
	t.Parallel()

	// 10 speech frames, then enough trailing silence to end the utterance.
	script := boolRun(true, 10)
	script = append(script, boolRun(false, 27)...)

	transcriber := &sttmock.Transcriber{Results: []string{"hello there"}}
	collector := &turnCollector{}
	sess, h := newTestSession(t, script, transcriber, collector)

	if err := feedAndRun(t, sess, script); err != nil {
		t.Fatalf("Run: %v", err)
	}

	turns := collector.snapshot()
	if len(turns) != 1 {
		t.Fatalf("got %d turns, want 1", len(turns))
	}
	if turns[0].err != nil {
		t.Fatalf("turn error: %v", turns[0].err)
	}
	if turns[0].res.UserText != "hello there" {
		t.Errorf("UserText = %q", turns[0].res.UserText)
	}
	if turns[0].res.ReplyText != "understood" {
		t.Errorf("ReplyText = %q", turns[0].res.ReplyText)
	}
	if h.Len() != 3 {
		t.Errorf("history length = %d, want 3", h.Len())
	}
}

func TestSession_FlushesFinalUtteranceOnClose(t *testing.T) {
	t.Parallel()

	// The stream ends mid-speech: no trailing silence ever arrives, so the
	// utterance is only emitted by the close-time flush.
	script := boolRun(true, 6)

	transcriber := &sttmock.Transcriber{Results: []string{"goodbye"}}
	collector := &turnCollector{}
	sess, _ := newTestSession(t, script, transcriber, collector)

	if err := feedAndRun(t, sess, script); err != nil {
		t.Fatalf("Run: %v", err)
	}

	turns := collector.snapshot()
	if len(turns) != 1 {
		t.Fatalf("got %d turns, want 1", len(turns))
	}
	if turns[0].res.UserText != "goodbye" {
		t.Errorf("UserText = %q", turns[0].res.UserText)
	}
}

func TestSession_MultipleTurns(t *testing.T) {
	t.Parallel()

	script := boolRun(true, 4)
	script = append(script, boolRun(false, 27)...)
	script = append(script, boolRun(true, 3)...)
	script = append(script, boolRun(false, 27)...)

	transcriber := &sttmock.Transcriber{Results: []string{"first question", "second question"}}
	collector := &turnCollector{}
	sess, h := newTestSession(t, script, transcriber, collector)

	if err := feedAndRun(t, sess, script); err != nil {
		t.Fatalf("Run: %v", err)
	}

	turns := collector.snapshot()
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].res.UserText != "first question" || turns[1].res.UserText != "second question" {
		t.Errorf("turn texts = %q, %q", turns[0].res.UserText, turns[1].res.UserText)
	}
	if h.Len() != 5 {
		t.Errorf("history length = %d, want 5 (system + two turn pairs)", h.Len())
	}
}

func TestSession_NoSpeechSkipsCallback(t *testing.T) {
	t.Parallel()

	script := boolRun(true, 4)
	script = append(script, boolRun(false, 27)...)

	transcriber := &sttmock.Transcriber{Err: stt.ErrNoSpeech}
	collector := &turnCollector{}
	sess, h := newTestSession(t, script, transcriber, collector)

	if err := feedAndRun(t, sess, script); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if turns := collector.snapshot(); len(turns) != 0 {
		t.Errorf("got %d turns, want 0 for an empty transcription", len(turns))
	}
	if h.Len() != 1 {
		t.Errorf("history length = %d, want 1", h.Len())
	}
}

func TestSession_ErrorTurnStillReported(t *testing.T) {
	t.Parallel()

	script := boolRun(true, 4)
	script = append(script, boolRun(false, 27)...)

	transcriber := &sttmock.Transcriber{Err: errors.New("upstream down")}
	collector := &turnCollector{}
	sess, _ := newTestSession(t, script, transcriber, collector)

	if err := feedAndRun(t, sess, script); err != nil {
		t.Fatalf("Run: %v", err)
	}

	turns := collector.snapshot()
	if len(turns) != 1 {
		t.Fatalf("got %d turns, want 1", len(turns))
	}
	if !errors.Is(turns[0].err, ErrTranscription) {
		t.Errorf("turn error = %v, want ErrTranscription", turns[0].err)
	}
}

func TestSession_CancelledContext(t *testing.T) {
	t.Parallel()

	sess, _ := newTestSession(t, nil, &sttmock.Transcriber{}, &turnCollector{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestNewSession_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewSession(nil, nil, nil, nil); err == nil {
		t.Error("NewSession accepted nil parts")
	}
}

func TestSession_HasID(t *testing.T) {
	t.Parallel()

	a, _ := newTestSession(t, nil, &sttmock.Transcriber{}, &turnCollector{})
	b, _ := newTestSession(t, nil, &sttmock.Transcriber{}, &turnCollector{})
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("session IDs not unique: %q vs %q", a.ID(), b.ID())
	}
}
