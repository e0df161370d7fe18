package whisper

import (
	"encoding/binary"
	"math"
	"testing"
)

func encodeInt16s(values []int16) []byte {
	pcm := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return pcm
}

func almostEqual(a, b float32) bool {
	return math.Abs(float64(a-b)) <= 1e-6
}

func TestMonoSamples(t *testing.T) {
	tests := []struct {
		name     string
		values   []int16
		channels int
		want     []float32
	}{
		{"empty", nil, 1, nil},
		{"zero", []int16{0}, 1, []float32{0}},
		{"max positive", []int16{32767}, 1, []float32{32767.0 / 32768.0}},
		{"max negative", []int16{-32768}, 1, []float32{-1.0}},
		{"mixed mono", []int16{16384, -16384}, 1, []float32{0.5, -0.5}},
		{
			"stereo downmix",
			[]int16{1000, 3000, -2000, -4000},
			2,
			[]float32{2000.0 / 32768.0, -3000.0 / 32768.0},
		},
		{
			"three channel downmix",
			[]int16{3000, 6000, 9000},
			3,
			[]float32{6000.0 / 32768.0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := monoSamples(encodeInt16s(tt.values), tt.channels)
			if len(out) != len(tt.want) {
				t.Fatalf("got %d samples, want %d", len(out), len(tt.want))
			}
			for i := range out {
				if !almostEqual(out[i], tt.want[i]) {
					t.Errorf("sample[%d] = %f, want %f", i, out[i], tt.want[i])
				}
			}
		})
	}
}

func TestMonoSamples_PartialFrameDropped(t *testing.T) {
	// Three bytes hold one complete mono sample; the trailing byte is dropped.
	out := monoSamples([]byte{0x00, 0x40, 0xFF}, 1)
	if len(out) != 1 {
		t.Fatalf("got %d samples from 3-byte input, want 1", len(out))
	}

	// Three samples across two channels hold one complete stereo frame.
	out = monoSamples(encodeInt16s([]int16{1000, 3000, 5000}), 2)
	if len(out) != 1 {
		t.Fatalf("got %d mono samples from 3 stereo values, want 1", len(out))
	}
}

func TestMonoSamples_ZeroChannelsTreatedAsMono(t *testing.T) {
	out := monoSamples(encodeInt16s([]int16{16384}), 0)
	if len(out) != 1 || !almostEqual(out[0], 0.5) {
		t.Fatalf("monoSamples with 0 channels = %v, want [0.5]", out)
	}
}
