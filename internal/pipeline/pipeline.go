// Package pipeline implements the embed request flow: validate the uploaded
// bytes, decode and resample them into the canonical audio representation,
// and run the encoder to obtain a fixed-length embedding vector.
//
// Errors are tagged rather than stringly-typed: every failure is either a
// [*ClientError] (the upload was malformed, too short, or undecodable —
// never retried, never fatal) or an [*InferenceError] (the encoder failed on
// otherwise-valid input — a server fault). The HTTP boundary translates the
// tag into a status code with errors.As; nothing in this package knows about
// HTTP.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/humvec/internal/observe"
	"github.com/MrWong99/humvec/pkg/audio"
	"github.com/MrWong99/humvec/pkg/provider/encoder"
)

// ClientError marks a failure caused by the uploaded payload. Detail is a
// human-readable message safe to return to the caller.
type ClientError struct {
	Detail string
	Err    error
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e.Err != nil {
		return e.Detail + ": " + e.Err.Error()
	}
	return e.Detail
}

// Unwrap returns the underlying cause, if any.
func (e *ClientError) Unwrap() error { return e.Err }

// InferenceError marks an unexpected failure during preprocessing or the
// forward pass on otherwise-valid input. Deterministic inference means a
// retry of identical input reproduces the failure, so callers must not retry.
type InferenceError struct {
	Err error
}

// Error implements the error interface.
func (e *InferenceError) Error() string { return "inference failed: " + e.Err.Error() }

// Unwrap returns the underlying cause.
func (e *InferenceError) Unwrap() error { return e.Err }

// clientErrf builds a *ClientError with a formatted detail message.
func clientErrf(cause error, format string, args ...any) error {
	return &ClientError{Detail: fmt.Sprintf(format, args...), Err: cause}
}

// Limits holds the validation thresholds applied before inference.
type Limits struct {
	// MinUploadBytes is the minimum raw upload size accepted before any
	// decoding is attempted. A cheap guard against empty or truncated files.
	MinUploadBytes int

	// MinSamples is the minimum decoded length at the canonical rate.
	// Decoding can legitimately produce near-empty output from a
	// plausible-sized file (header-only data), so this is checked after
	// decode, not inferred from the byte count.
	MinSamples int

	// MaxDuration caps the decoded clip length. Zero disables the cap; a
	// pathologically long clip then costs unbounded inference time, which is
	// acceptable behind an external load manager.
	MaxDuration time.Duration
}

// DefaultLimits are the thresholds the service ships with: 1000 bytes, 0.1 s
// of audio at 16 kHz, no duration cap.
var DefaultLimits = Limits{
	MinUploadBytes: 1000,
	MinSamples:     encoder.MinSamples,
}

// Pipeline turns uploaded bytes into embedding vectors. It is reentrant: all
// per-request state lives on the stack, and the encoder it delegates to is
// read-only after load. Construct once and share across requests.
type Pipeline struct {
	enc     encoder.Provider
	limits  Limits
	metrics *observe.Metrics
}

// New creates a Pipeline around the given encoder. Zero-valued limit fields
// are replaced with [DefaultLimits] values; metrics may be nil in tests that
// do not assert on instrumentation.
func New(enc encoder.Provider, limits Limits, metrics *observe.Metrics) *Pipeline {
	if limits.MinUploadBytes <= 0 {
		limits.MinUploadBytes = DefaultLimits.MinUploadBytes
	}
	if limits.MinSamples <= 0 {
		limits.MinSamples = DefaultLimits.MinSamples
	}
	return &Pipeline{enc: enc, limits: limits, metrics: metrics}
}

// Encoder returns the encoder the pipeline delegates to.
func (p *Pipeline) Encoder() encoder.Provider { return p.enc }

// Embed runs the full flow for one upload: validate → decode → downmix →
// resample → length check → encode. The returned vector has exactly
// p.Encoder().Dimensions() elements.
//
// Failures are tagged: [*ClientError] for anything wrong with the upload,
// [*InferenceError] for encoder-side faults.
func (p *Pipeline) Embed(ctx context.Context, upload []byte) ([]float32, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.Embed")
	defer span.End()

	start := time.Now()
	p.inFlight(ctx, 1)
	defer p.inFlight(ctx, -1)

	vec, err := p.embed(ctx, upload)
	if err != nil {
		observe.FailSpan(span, err)
	}

	if p.metrics != nil {
		p.metrics.EmbedDuration.Record(ctx, time.Since(start).Seconds())
		p.metrics.RecordEmbedRequest(ctx, statusOf(err))
	}
	return vec, err
}

func (p *Pipeline) embed(ctx context.Context, upload []byte) ([]float32, error) {
	// Cheap byte-length guard before any decoding work.
	if len(upload) < p.limits.MinUploadBytes {
		p.recordError(ctx, "validate")
		return nil, clientErrf(nil, "audio file too short: %d bytes, need at least %d", len(upload), p.limits.MinUploadBytes)
	}

	buf, err := p.decode(ctx, upload)
	if err != nil {
		return nil, err
	}

	encStart := time.Now()
	vec, err := p.enc.Encode(ctx, buf.Samples)
	if p.metrics != nil {
		p.metrics.EncodeDuration.Record(ctx, time.Since(encStart).Seconds())
	}
	if err != nil {
		p.recordError(ctx, "encode")
		return nil, &InferenceError{Err: err}
	}
	return vec, nil
}

// decode parses the upload, downmixes to mono, resamples to the canonical
// rate, and applies the post-decode length checks.
func (p *Pipeline) decode(ctx context.Context, upload []byte) (audio.Buffer, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.decode")
	defer span.End()

	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.DecodeDuration.Record(ctx, time.Since(start).Seconds())
		}
	}()

	clip, err := audio.DecodeWAV(upload)
	if err != nil {
		p.recordError(ctx, "decode")
		return audio.Buffer{}, clientErrf(err, "invalid audio")
	}

	samples, err := audio.Resample(clip.Mono(), clip.SampleRate, audio.CanonicalRate)
	if err != nil {
		// Resampler construction or processing failing on a well-formed clip
		// is a server-side fault, not the client's.
		p.recordError(ctx, "decode")
		return audio.Buffer{}, &InferenceError{Err: err}
	}

	buf := audio.Buffer{Samples: samples, SampleRate: audio.CanonicalRate}

	if buf.Len() < p.limits.MinSamples {
		p.recordError(ctx, "validate")
		return audio.Buffer{}, clientErrf(nil, "audio too short after decoding: %d samples, need at least %d", buf.Len(), p.limits.MinSamples)
	}
	if p.limits.MaxDuration > 0 && buf.Duration() > p.limits.MaxDuration {
		p.recordError(ctx, "validate")
		return audio.Buffer{}, clientErrf(nil, "audio too long: %s exceeds the %s limit", buf.Duration().Round(time.Millisecond), p.limits.MaxDuration)
	}

	return buf, nil
}

func (p *Pipeline) inFlight(ctx context.Context, delta int64) {
	if p.metrics != nil {
		p.metrics.InFlightRequests.Add(ctx, delta)
	}
}

func (p *Pipeline) recordError(ctx context.Context, stage string) {
	if p.metrics != nil {
		p.metrics.RecordEmbedError(ctx, stage)
	}
}

// statusOf maps an embed outcome to the metrics status attribute.
func statusOf(err error) string {
	if err == nil {
		return "ok"
	}
	var ce *ClientError
	if errors.As(err, &ce) {
		return "client_error"
	}
	return "inference_error"
}
