// Package wav2vec provides an encoder.Provider backed by a wav2vec2
// inference sidecar.
//
// The sidecar is a small serving process that holds the pretrained wav2vec2
// weights and exposes two endpoints:
//
//	GET  /health   → {"status": "ok", "model": "..."}
//	POST /forward  → {"last_hidden_state": [[[t × dim floats]]]}
//
// The Go side owns everything around the forward pass: feature extraction
// (zero-mean unit-variance normalisation of the raw waveform, exactly what
// the paired Wav2Vec2 feature extractor does), the batch dimension (always
// 1), and mean pooling of the per-time-step hidden states into a single
// fixed-length vector. Mean pooling — not max, not last step — is chosen
// because it is robust to variable-length input and captures a global
// summary of the clip rather than a single instant.
//
// Usage:
//
//	p, err := wav2vec.New("http://localhost:8090")
//	if err := p.Load(ctx); err != nil { ... } // fatal: do not serve
//	vec, err := p.Encode(ctx, samples)        // len(vec) == 768
package wav2vec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/humvec/pkg/provider/encoder"
)

const (
	// DefaultDimensions is the hidden size of the wav2vec2 base architecture.
	DefaultDimensions = 768

	// DefaultModelID is the pretrained checkpoint the sidecar serves unless
	// configured otherwise.
	DefaultModelID = "facebook/wav2vec2-base"

	// normEpsilon matches the variance floor of the Wav2Vec2 feature
	// extractor. Changing it changes the embedding values.
	normEpsilon = 1e-7

	defaultTimeout = 60 * time.Second
)

// Compile-time assertion that Provider implements encoder.Provider.
var _ encoder.Provider = (*Provider)(nil)

// ErrTooShort is returned by Encode when the input buffer has fewer than
// [encoder.MinSamples] samples.
var ErrTooShort = errors.New("wav2vec: audio buffer too short")

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier reported by ModelID and forwarded to
// the sidecar. Defaults to [DefaultModelID].
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithDimensions overrides the expected hidden dimension. Only needed for
// non-base checkpoints (e.g., wav2vec2-large with 1024). Defaults to
// [DefaultDimensions].
func WithDimensions(dims int) Option {
	return func(p *Provider) { p.dimensions = dims }
}

// WithTimeout sets the per-request HTTP timeout for sidecar calls. Defaults
// to 60 s, which covers CPU inference on clips of a few minutes.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// Provider implements encoder.Provider against a wav2vec2 inference sidecar.
// It is safe for concurrent use: the load transition is guarded by a
// sync.Once and everything else is immutable after construction.
type Provider struct {
	serverURL  string
	model      string
	dimensions int
	httpClient *http.Client

	// One-way Uninitialized → Ready transition. loadOnce guards the single
	// probe; concurrent early callers block on it rather than each probing.
	loadOnce sync.Once
	loadErr  error
	ready    atomic.Bool
}

// New creates a Provider that talks to the sidecar at serverURL (e.g.,
// "http://localhost:8090"). serverURL must be non-empty. No network traffic
// happens until Load or the first Encode.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("wav2vec: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		model:      DefaultModelID,
		dimensions: DefaultDimensions,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// healthResponse is the JSON body of the sidecar's GET /health endpoint.
type healthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

// Load probes the sidecar once and records the outcome. Implements
// [encoder.Provider].
func (p *Provider) Load(ctx context.Context) error {
	p.loadOnce.Do(func() {
		p.loadErr = p.probe(ctx)
		if p.loadErr == nil {
			p.ready.Store(true)
		}
	})
	return p.loadErr
}

// probe verifies the sidecar is up and has its model loaded.
func (p *Provider) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("wav2vec: build health request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("wav2vec: sidecar unreachable at %s: %w", p.serverURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wav2vec: sidecar health returned HTTP %d", resp.StatusCode)
	}

	var hr healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		return fmt.Errorf("wav2vec: parse health response: %w", err)
	}
	if hr.Status != "ok" {
		return fmt.Errorf("wav2vec: sidecar not ready: status %q", hr.Status)
	}
	if hr.Model != "" && hr.Model != p.model {
		return fmt.Errorf("wav2vec: sidecar serves %q, configured for %q", hr.Model, p.model)
	}
	return nil
}

// Ready implements [encoder.Provider].
func (p *Provider) Ready() bool { return p.ready.Load() }

// forwardRequest is the JSON request body for POST /forward. InputValues is
// a batch of normalised waveforms; the batch size is always 1.
type forwardRequest struct {
	Model       string      `json:"model,omitempty"`
	InputValues [][]float32 `json:"input_values"`
}

// forwardResponse is the JSON response body of POST /forward. The hidden
// state tensor has shape (batch, time_steps, dim).
type forwardResponse struct {
	LastHiddenState [][][]float32 `json:"last_hidden_state"`
}

// Encode implements [encoder.Provider]: normalise the waveform, run one
// forward pass through the sidecar, and mean-pool the per-time-step hidden
// states into a single vector of length Dimensions().
func (p *Provider) Encode(ctx context.Context, samples []float32) ([]float32, error) {
	if !p.ready.Load() {
		if err := p.Load(ctx); err != nil {
			return nil, err
		}
	}
	if len(samples) < encoder.MinSamples {
		return nil, fmt.Errorf("%w: %d samples, need at least %d", ErrTooShort, len(samples), encoder.MinSamples)
	}

	hidden, err := p.forward(ctx, normalize(samples))
	if err != nil {
		return nil, err
	}

	vec, err := meanPool(hidden, p.dimensions)
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// forward sends one batch-of-1 forward pass to the sidecar and returns the
// per-time-step hidden states.
func (p *Provider) forward(ctx context.Context, input []float32) ([][]float32, error) {
	body, err := json.Marshal(forwardRequest{
		Model:       p.model,
		InputValues: [][]float32{input},
	})
	if err != nil {
		return nil, fmt.Errorf("wav2vec: marshal forward request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/forward", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("wav2vec: build forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wav2vec: forward request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little of the body for the error message; sidecar errors
		// are short JSON or plain text.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("wav2vec: sidecar returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var fr forwardResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("wav2vec: parse forward response: %w", err)
	}
	if len(fr.LastHiddenState) != 1 {
		return nil, fmt.Errorf("wav2vec: expected batch of 1 in response, got %d", len(fr.LastHiddenState))
	}
	return fr.LastHiddenState[0], nil
}

// Dimensions implements [encoder.Provider].
func (p *Provider) Dimensions() int { return p.dimensions }

// ModelID implements [encoder.Provider].
func (p *Provider) ModelID() string { return p.model }

// ---- pooling & feature extraction --------------------------------------------

// normalize applies the Wav2Vec2 feature extraction: shift the waveform to
// zero mean and scale to unit variance. Accumulation is done in float64 so
// long clips do not lose precision.
func normalize(samples []float32) []float32 {
	n := float64(len(samples))

	var sum float64
	for _, s := range samples {
		sum += float64(s)
	}
	mean := sum / n

	var variance float64
	for _, s := range samples {
		d := float64(s) - mean
		variance += d * d
	}
	variance /= n

	scale := 1.0 / math.Sqrt(variance+normEpsilon)
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32((float64(s) - mean) * scale)
	}
	return out
}

// meanPool reduces per-time-step hidden states of shape (time_steps, dim) to
// a single vector of length dim by averaging across the time axis.
func meanPool(hidden [][]float32, dim int) ([]float32, error) {
	if len(hidden) == 0 {
		return nil, errors.New("wav2vec: empty hidden state sequence")
	}

	acc := make([]float64, dim)
	for t, frame := range hidden {
		if len(frame) != dim {
			return nil, fmt.Errorf("wav2vec: hidden state %d has dimension %d, want %d", t, len(frame), dim)
		}
		for i, v := range frame {
			acc[i] += float64(v)
		}
	}

	steps := float64(len(hidden))
	vec := make([]float32, dim)
	for i, v := range acc {
		vec[i] = float32(v / steps)
	}
	return vec, nil
}
