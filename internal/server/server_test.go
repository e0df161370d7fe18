package server

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/parleyvoice/parley/internal/config"
	"github.com/parleyvoice/parley/internal/turn"
	sttmock "github.com/parleyvoice/parley/pkg/provider/stt/mock"
	ttsmock "github.com/parleyvoice/parley/pkg/provider/tts/mock"
	"github.com/parleyvoice/parley/pkg/types"
)

// responderFunc adapts a function to the turn.Responder interface.
type responderFunc func(ctx context.Context, messages []types.Message) (string, error)

func (f responderFunc) Respond(ctx context.Context, messages []types.Message) (string, error) {
	return f(ctx, messages)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Agent.SystemPrompt = "you are a voice assistant"
	cfg.Providers.STT.Name = "openai"
	cfg.Providers.LLM.Name = "openai"
	cfg.Providers.TTS.Name = "elevenlabs"
	config.ApplyDefaults(cfg)
	// Short end-of-utterance silence keeps the test frame count small:
	// 90 ms / 30 ms = 3, so the 4th silence frame triggers emission.
	cfg.Audio.EndSilenceMs = 90
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, p Pipeline) *httptest.Server {
	t.Helper()
	s, err := New(cfg, p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

// pcmFrame builds one 30 ms mono frame at 16 kHz with every sample set to
// the given amplitude.
func pcmFrame(amplitude int16) []byte {
	const samples = 480
	b := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(amplitude))
	}
	return b
}

func TestWS_CompleteTurn(t *testing.T) {
	t.Parallel()

	transcriber := &sttmock.Transcriber{Results: []string{"hello there"}}
	synth := &ttsmock.Synthesizer{Audio: []byte{10, 20, 30, 40}}
	srv := newTestServer(t, testConfig(), Pipeline{
		Transcriber: transcriber,
		Responder: responderFunc(func(_ context.Context, messages []types.Message) (string, error) {
			if messages[0].Role != types.RoleSystem {
				t.Errorf("first message role = %s, want system", messages[0].Role)
			}
			return "hi, how can I help", nil
		}),
		Synthesizer: synth,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	// 5 speech frames, then 4 silence frames to end the utterance.
	for i := 0; i < 5; i++ {
		if err := conn.Write(ctx, websocket.MessageBinary, pcmFrame(5000)); err != nil {
			t.Fatalf("write speech frame %d: %v", i, err)
		}
	}
	for i := 0; i < 4; i++ {
		if err := conn.Write(ctx, websocket.MessageBinary, pcmFrame(0)); err != nil {
			t.Fatalf("write silence frame %d: %v", i, err)
		}
	}

	// The reply audio arrives as a binary message, then the turn event as
	// JSON text.
	typ, audioMsg, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read reply audio: %v", err)
	}
	if typ != websocket.MessageBinary {
		t.Fatalf("first message type = %v, want binary", typ)
	}
	if len(audioMsg) != 4 {
		t.Errorf("reply audio = %d bytes, want 4", len(audioMsg))
	}

	typ, eventMsg, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read turn event: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("second message type = %v, want text", typ)
	}
	var ev turnEvent
	if err := json.Unmarshal(eventMsg, &ev); err != nil {
		t.Fatalf("decode turn event: %v", err)
	}
	if ev.Type != "turn" || ev.SessionID == "" {
		t.Errorf("event = %+v", ev)
	}
	if ev.UserText != "hello there" {
		t.Errorf("UserText = %q", ev.UserText)
	}
	if ev.ReplyText != "hi, how can I help" {
		t.Errorf("ReplyText = %q", ev.ReplyText)
	}
	if ev.Error != "" {
		t.Errorf("Error = %q, want empty", ev.Error)
	}

	// The transcriber saw a WAV container.
	if transcriber.CallCount() != 1 {
		t.Fatalf("transcriber calls = %d, want 1", transcriber.CallCount())
	}
	if wav := transcriber.Calls[0].WAV; len(wav) < 44 || string(wav[0:4]) != "RIFF" {
		t.Error("transcriber did not receive a RIFF container")
	}

	conn.Close(websocket.StatusNormalClosure, "done")
}

func TestWS_SynthesisFailureStillSendsEvent(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testConfig(), Pipeline{
		Transcriber: &sttmock.Transcriber{Results: []string{"hello"}},
		Responder: responderFunc(func(context.Context, []types.Message) (string, error) {
			return "text only reply", nil
		}),
		Synthesizer: &ttsmock.Synthesizer{Err: context.DeadlineExceeded},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	for i := 0; i < 3; i++ {
		if err := conn.Write(ctx, websocket.MessageBinary, pcmFrame(5000)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	for i := 0; i < 4; i++ {
		if err := conn.Write(ctx, websocket.MessageBinary, pcmFrame(0)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	// No audio message: the first thing back is the turn event, carrying the
	// reply text and the synthesis error.
	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("message type = %v, want text", typ)
	}
	var ev turnEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.ReplyText != "text only reply" {
		t.Errorf("ReplyText = %q, want preserved despite synthesis failure", ev.ReplyText)
	}
	if ev.Error == "" {
		t.Error("event must carry the synthesis error")
	}
}

func TestWS_EndControlFlushesUtterance(t *testing.T) {
	t.Parallel()

	transcriber := &sttmock.Transcriber{Results: []string{"goodbye"}}
	srv := newTestServer(t, testConfig(), Pipeline{
		Transcriber: transcriber,
		Responder: responderFunc(func(context.Context, []types.Message) (string, error) {
			return "bye", nil
		}),
		Synthesizer: &ttsmock.Synthesizer{Audio: []byte{1}},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	// Speech with no trailing silence, then the end control: the final
	// utterance is flushed and processed before the server closes.
	for i := 0; i < 3; i++ {
		if err := conn.Write(ctx, websocket.MessageBinary, pcmFrame(5000)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"end"}`)); err != nil {
		t.Fatalf("write end control: %v", err)
	}

	typ, _, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageBinary {
		t.Fatalf("first message type = %v, want binary reply audio", typ)
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var ev turnEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.UserText != "goodbye" {
		t.Errorf("UserText = %q, want flushed utterance transcribed", ev.UserText)
	}
}

func TestWS_RejectsWrongFrameSize(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testConfig(), Pipeline{
		Transcriber: &sttmock.Transcriber{},
		Responder: responderFunc(func(context.Context, []types.Message) (string, error) {
			return "", nil
		}),
		Synthesizer: &ttsmock.Synthesizer{},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	if err := conn.Write(ctx, websocket.MessageBinary, make([]byte, 100)); err != nil {
		t.Fatalf("write: %v", err)
	}

	// The server terminates the session; the next read fails.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func TestOperationalEndpoints(t *testing.T) {
	t.Parallel()

	s, err := New(testConfig(), Pipeline{
		Transcriber: &sttmock.Transcriber{},
		Responder: responderFunc(func(context.Context, []types.Message) (string, error) {
			return "", nil
		}),
		Synthesizer: &ttsmock.Synthesizer{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, Pipeline{}); err == nil {
		t.Error("New accepted a nil config")
	}
	if _, err := New(testConfig(), Pipeline{}); err == nil {
		t.Error("New accepted an empty pipeline")
	}
}

var _ turn.Player = (*wsPlayer)(nil)
