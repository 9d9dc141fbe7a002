package observe

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a manual reader so
// tests can collect and inspect recorded data points.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metrics from the reader into a flat name → metric map.
func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestNewMetrics_AllInstrumentsCreated(t *testing.T) {
	m, _ := newTestMetrics(t)

	if m.DecodeDuration == nil || m.EncodeDuration == nil || m.EmbedDuration == nil {
		t.Error("latency histograms must be initialised")
	}
	if m.EmbedRequests == nil || m.EmbedErrors == nil {
		t.Error("counters must be initialised")
	}
	if m.InFlightRequests == nil {
		t.Error("in-flight gauge must be initialised")
	}
	if m.HTTPRequestDuration == nil {
		t.Error("HTTP histogram must be initialised")
	}
}

func TestRecordEmbedRequest_CountsByStatus(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordEmbedRequest(ctx, "ok")
	m.RecordEmbedRequest(ctx, "ok")
	m.RecordEmbedRequest(ctx, "client_error")

	metrics := collect(t, reader)
	md, ok := metrics["humvec.embed.requests"]
	if !ok {
		t.Fatal("humvec.embed.requests not collected")
	}
	sum, ok := md.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", md.Data)
	}

	byStatus := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		if v, present := dp.Attributes.Value("status"); present {
			byStatus[v.AsString()] = dp.Value
		}
	}
	if byStatus["ok"] != 2 {
		t.Errorf("ok count = %d, want 2", byStatus["ok"])
	}
	if byStatus["client_error"] != 1 {
		t.Errorf("client_error count = %d, want 1", byStatus["client_error"])
	}
}

func TestRecordEmbedError_CountsByStage(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordEmbedError(ctx, "decode")
	m.RecordEmbedError(ctx, "encode")
	m.RecordEmbedError(ctx, "encode")

	metrics := collect(t, reader)
	md, ok := metrics["humvec.embed.errors"]
	if !ok {
		t.Fatal("humvec.embed.errors not collected")
	}
	sum, ok := md.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", md.Data)
	}

	byStage := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		if v, present := dp.Attributes.Value("stage"); present {
			byStage[v.AsString()] = dp.Value
		}
	}
	if byStage["decode"] != 1 {
		t.Errorf("decode count = %d, want 1", byStage["decode"])
	}
	if byStage["encode"] != 2 {
		t.Errorf("encode count = %d, want 2", byStage["encode"])
	}
}

func TestEmbedDuration_RecordsHistogram(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.EmbedDuration.Record(ctx, 0.042)

	metrics := collect(t, reader)
	md, ok := metrics["humvec.embed.duration"]
	if !ok {
		t.Fatal("humvec.embed.duration not collected")
	}
	hist, ok := md.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("unexpected data type %T", md.Data)
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("got %d data points, want 1", len(hist.DataPoints))
	}
	if hist.DataPoints[0].Count != 1 {
		t.Errorf("count = %d, want 1", hist.DataPoints[0].Count)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics must return the same instance on every call")
	}
}
