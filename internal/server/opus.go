package server

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/parleyvoice/parley/pkg/audio"
)

// opusDecoder decodes the connection's incoming Opus packets to mono PCM.
// Decoder state carries across consecutive frames, so each connection gets
// its own instance.
type opusDecoder struct {
	dec             *gopus.Decoder
	samplesPerFrame int
}

// newOpusDecoder creates a mono decoder for the configured sample rate and
// frame size. Opus supports 8/12/16/24/48 kHz and frame durations up to
// 20 ms at these rates, which the config layer already enforces.
func newOpusDecoder(sampleRate, samplesPerFrame int) (*opusDecoder, error) {
	dec, err := gopus.NewDecoder(sampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("server: create opus decoder: %w", err)
	}
	return &opusDecoder{dec: dec, samplesPerFrame: samplesPerFrame}, nil
}

// decode decodes one Opus packet into little-endian int16 PCM bytes.
func (d *opusDecoder) decode(packet []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(packet, d.samplesPerFrame, false)
	if err != nil {
		return nil, fmt.Errorf("server: opus decode: %w", err)
	}
	return audio.Int16sToBytes(pcm), nil
}
