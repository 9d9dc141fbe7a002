// Package encoder defines the Provider interface for pretrained audio
// encoder backends.
//
// An encoder provider wraps a pretrained acoustic model (e.g., wav2vec2)
// that maps raw audio samples to a fixed-length dense float32 vector. The
// vector summarises the clip's content for similarity comparison; the same
// provider must be used for both query ("hum") clips and reference clips or
// the vectors are not comparable.
//
// Implementations must be safe for concurrent use. The underlying model is
// loaded exactly once and never mutated afterwards, so Encode calls from
// concurrent requests need no further synchronisation.
package encoder

import (
	"context"

	"github.com/MrWong99/humvec/pkg/audio"
)

// MinSamples is the minimum number of canonical-rate samples Encode accepts:
// 0.1 s at 16 kHz. Shorter buffers carry too little signal for the model's
// convolutional front end to produce a stable representation.
const MinSamples = audio.CanonicalRate / 10

// Provider is the abstraction over any pretrained audio encoder backend.
//
// All vectors returned by a single Provider instance share the same
// dimensionality (returned by Dimensions). Callers must not mix vectors from
// different Provider instances in the same similarity computation unless
// both use the same model.
type Provider interface {
	// Load makes the backing model available for inference. It is idempotent:
	// only the first call does work, every later call returns the recorded
	// outcome. A load failure is terminal for the provider — the process
	// should not serve embed traffic after Load returns an error.
	Load(ctx context.Context) error

	// Ready reports whether Load has completed successfully. The transition
	// to ready happens exactly once and is never reversed.
	Ready() bool

	// Encode maps mono [audio.CanonicalRate] samples to a single embedding
	// vector of length Dimensions(). The input must contain at least
	// [MinSamples] samples. Encoding is deterministic for identical input
	// and has no side effects beyond transient compute.
	//
	// If the provider is not yet ready, Encode triggers Load first.
	Encode(ctx context.Context, samples []float32) ([]float32, error)

	// Dimensions returns the fixed length of every vector produced by this
	// provider. Constant for the lifetime of the instance.
	Dimensions() int

	// ModelID returns the backend-specific model identifier (e.g.,
	// "facebook/wav2vec2-base"). Useful for logging and for ensuring the
	// reference catalog was built with the same model.
	ModelID() string
}
