package elevenlabs

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/parleyvoice/parley/pkg/types"
)

func TestBuildWSMessage_WithVoiceSettings(t *testing.T) {
	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
	data, err := buildWSMessage("Hello world", vs)
	if err != nil {
		t.Fatalf("buildWSMessage: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if decoded["text"] != "Hello world" {
		t.Errorf("text = %v, want Hello world", decoded["text"])
	}
	if _, ok := decoded["voice_settings"]; !ok {
		t.Error("voice_settings missing from payload")
	}
}

func TestBuildWSMessage_FlushCommand(t *testing.T) {
	data, err := buildWSMessage("", nil)
	if err != nil {
		t.Fatalf("buildWSMessage: %v", err)
	}
	if string(data) != `{"text":""}` {
		t.Errorf("flush payload = %s, want {\"text\":\"\"}", data)
	}
}

func TestBuildURLForVoice(t *testing.T) {
	url := buildURLForVoice("voice123", "eleven_flash_v2_5")
	if !strings.Contains(url, "/text-to-speech/voice123/stream-input") {
		t.Errorf("url missing voice path: %s", url)
	}
	if !strings.Contains(url, "model_id=eleven_flash_v2_5") {
		t.Errorf("url missing model query: %s", url)
	}
}

func TestConvertVoices(t *testing.T) {
	vr := voicesResponse{Voices: []elevenLabsVoice{
		{
			VoiceID:  "v1",
			Name:     "Rachel",
			Category: "premade",
			Labels:   map[string]string{"accent": "american"},
		},
		{VoiceID: "v2", Name: "Custom"},
	}}

	profiles := convertVoices(vr)
	if len(profiles) != 2 {
		t.Fatalf("got %d profiles, want 2", len(profiles))
	}
	if profiles[0].ID != "v1" || profiles[0].Provider != "elevenlabs" {
		t.Errorf("unexpected first profile: %+v", profiles[0])
	}
	if profiles[0].Metadata["accent"] != "american" || profiles[0].Metadata["category"] != "premade" {
		t.Errorf("labels not carried into metadata: %+v", profiles[0].Metadata)
	}
	if len(profiles[1].Metadata) != 0 {
		t.Errorf("voice without labels should have empty metadata, got %+v", profiles[1].Metadata)
	}
}

func TestSettingsForVoice(t *testing.T) {
	vs := settingsForVoice(types.VoiceProfile{ID: "v1"})
	if vs.Speed != 0 {
		t.Errorf("default profile should not set speed, got %f", vs.Speed)
	}
	vs = settingsForVoice(types.VoiceProfile{ID: "v1", SpeedFactor: 1.2})
	if vs.Speed != 1.2 {
		t.Errorf("speed = %f, want 1.2", vs.Speed)
	}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty apiKey")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("model = %q, want %q", p.model, defaultModel)
	}
	if p.outputFormat != defaultOutputFmt {
		t.Errorf("outputFormat = %q, want %q", p.outputFormat, defaultOutputFmt)
	}
}

func TestNew_WithOptions(t *testing.T) {
	p, err := New("key", WithModel("eleven_multilingual_v2"), WithOutputFormat("pcm_24000"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "eleven_multilingual_v2" {
		t.Errorf("model = %q", p.model)
	}
	if p.outputFormat != "pcm_24000" {
		t.Errorf("outputFormat = %q", p.outputFormat)
	}
}
