package whisper

import "github.com/parleyvoice/parley/pkg/audio"

// monoSamples converts 16-bit little-endian PCM to the mono float32 samples
// whisper.cpp expects, normalised to [-1.0, 1.0]. Interleaved multi-channel
// input is down-mixed by averaging the channels of each frame. A trailing
// partial frame is dropped.
func monoSamples(pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	ints := audio.BytesToInt16s(pcm)
	n := len(ints) / channels
	out := make([]float32, n)
	scale := 32768.0 * float32(channels)
	for i := range out {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += float32(ints[i*channels+ch])
		}
		out[i] = sum / scale
	}
	return out
}
