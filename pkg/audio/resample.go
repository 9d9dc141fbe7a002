package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts mono float32 samples from srcRate to dstRate. When the
// rates already match (or the input is empty) the input slice is returned
// unchanged.
//
// The conversion uses a windowed-sinc resampler at high quality; the filter
// delay swallows a handful of samples at the tail, which is irrelevant for
// clips long enough to embed.
func Resample(samples []float32, srcRate, dstRate int) ([]float32, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("audio: invalid resample rates %d → %d", srcRate, dstRate)
	}
	if srcRate == dstRate || len(samples) == 0 {
		return samples, nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: create resampler: %w", err)
	}

	input := make([]float64, len(samples))
	for i, s := range samples {
		input[i] = float64(s)
	}

	output, err := r.Process(input)
	if err != nil {
		return nil, fmt.Errorf("audio: resample %d Hz → %d Hz: %w", srcRate, dstRate, err)
	}

	out := make([]float32, len(output))
	for i, s := range output {
		switch {
		case s > 1.0:
			out[i] = 1.0
		case s < -1.0:
			out[i] = -1.0
		default:
			out[i] = float32(s)
		}
	}
	return out, nil
}
