// Package mock provides a test double for the encoder.Provider interface.
//
// Use Provider to return pre-canned embedding vectors without a live model
// and to verify which sample buffers were submitted for encoding.
//
// Example:
//
//	p := &mock.Provider{
//	    EncodeResult:    make([]float32, 768),
//	    DimensionsValue: 768,
//	    ModelIDValue:    "test-encoder-v1",
//	}
//	vec, _ := p.Encode(ctx, samples)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/humvec/pkg/provider/encoder"
)

// EncodeCall records a single invocation of Encode.
type EncodeCall struct {
	// Ctx is the context passed to Encode.
	Ctx context.Context
	// Samples is a copy of the sample buffer passed to Encode.
	Samples []float32
}

// Provider is a mock implementation of encoder.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// LoadErr, if non-nil, is returned by Load. The provider never becomes
	// ready while LoadErr is set.
	LoadErr error

	// EncodeResult is returned by Encode. If nil, a zero vector of length
	// DimensionsValue is returned.
	EncodeResult []float32

	// EncodeErr, if non-nil, is returned as the error from Encode.
	EncodeErr error

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// --- Call records ---

	// LoadCallCount is the number of times Load was called.
	LoadCallCount int

	// EncodeCalls records every call to Encode in order.
	EncodeCalls []EncodeCall

	ready bool
}

// Load records the call and returns LoadErr. On success the provider
// becomes ready.
func (p *Provider) Load(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LoadCallCount++
	if p.LoadErr != nil {
		return p.LoadErr
	}
	p.ready = true
	return nil
}

// Ready reports whether a successful Load has happened.
func (p *Provider) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// Encode records the call and returns EncodeResult, EncodeErr. If
// EncodeResult is nil, a zero vector of length DimensionsValue is returned
// so callers always see the right shape.
func (p *Provider) Encode(ctx context.Context, samples []float32) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	p.EncodeCalls = append(p.EncodeCalls, EncodeCall{Ctx: ctx, Samples: cp})
	if p.EncodeErr != nil {
		return nil, p.EncodeErr
	}
	if p.EncodeResult != nil {
		return p.EncodeResult, nil
	}
	return make([]float32, p.DimensionsValue), nil
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DimensionsValue
}

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelIDValue
}

// Reset clears all recorded calls and the ready flag. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LoadCallCount = 0
	p.EncodeCalls = nil
	p.ready = false
}

// Ensure Provider implements encoder.Provider at compile time.
var _ encoder.Provider = (*Provider)(nil)
