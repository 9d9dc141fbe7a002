// Package audio turns uploaded audio clips into the canonical representation
// the encoder expects: mono float32 samples at 16 kHz.
//
// The package provides three steps that compose into that conversion:
// [DecodeWAV] parses a RIFF/WAVE container into interleaved float32 samples,
// [Clip.Mono] downmixes to a single channel, and [Resample] converts the
// sample rate. Each step is a pure function over its input; no global state
// is involved.
package audio

import "time"

// CanonicalRate is the sample rate (Hz) all audio is normalised to before
// encoding. The pretrained encoder was trained on 16 kHz input and produces
// garbage for anything else.
const CanonicalRate = 16000

// Clip is decoded but not yet canonical audio: interleaved float32 samples
// in the range [-1.0, 1.0] at whatever rate and channel count the container
// declared.
type Clip struct {
	// Samples holds interleaved per-frame samples (frame = one sample per
	// channel).
	Samples []float32

	// SampleRate is the declared rate in Hz.
	SampleRate int

	// Channels is the declared channel count (≥1).
	Channels int
}

// Frames returns the number of complete frames in the clip.
func (c *Clip) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Mono downmixes the clip to a single channel by averaging all channels per
// frame. For a mono clip the sample slice is returned unchanged (zero
// allocation).
func (c *Clip) Mono() []float32 {
	if c.Channels <= 1 {
		return c.Samples
	}
	frames := c.Frames()
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range c.Channels {
			sum += c.Samples[i*c.Channels+ch]
		}
		mono[i] = sum / float32(c.Channels)
	}
	return mono
}

// Buffer is a canonical audio clip: mono float32 samples at a fixed rate.
// A Buffer is constructed per request and owned exclusively by that request.
type Buffer struct {
	// Samples are mono samples in the range [-1.0, 1.0].
	Samples []float32

	// SampleRate is the rate in Hz, normally [CanonicalRate].
	SampleRate int
}

// Len returns the number of samples in the buffer.
func (b Buffer) Len() int { return len(b.Samples) }

// Duration returns the playback duration of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.Samples)) / float64(b.SampleRate) * float64(time.Second))
}
