package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// withTestTracer installs a real tracer provider for the duration of the test
// so spans carry valid trace IDs, and returns a recorder holding every span
// that ended.
func withTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return sr
}

// embedMux routes POST /embed to a fixed-status handler, matching how the
// server wires the middleware outside a bare handler.
func embedMux(status int) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /embed", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	return mux
}

func TestMiddleware_SetsCorrelationIDHeader(t *testing.T) {
	withTestTracer(t)
	m, _ := newTestMetrics(t)

	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	cid := rec.Header().Get("X-Correlation-ID")
	if cid == "" {
		t.Fatal("expected X-Correlation-ID response header")
	}
	if len(cid) != 32 {
		t.Errorf("correlation ID %q is not a 32-hex-char trace ID", cid)
	}
}

func TestMiddleware_PropagatesIncomingTraceContext(t *testing.T) {
	withTestTracer(t)
	m, _ := newTestMetrics(t)

	const wantTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	var gotTraceID string
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTraceID = trace.SpanContextFromContext(r.Context()).TraceID().String()
	}))

	req := httptest.NewRequest(http.MethodGet, "/embed", nil)
	req.Header.Set("traceparent", "00-"+wantTraceID+"-00f067aa0ba902b7-01")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if gotTraceID != wantTraceID {
		t.Errorf("handler trace ID = %q, want %q", gotTraceID, wantTraceID)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != wantTraceID {
		t.Errorf("X-Correlation-ID = %q, want %q", got, wantTraceID)
	}
}

func TestMiddleware_RecordsRouteAndStatus(t *testing.T) {
	withTestTracer(t)
	m, reader := newTestMetrics(t)

	handler := Middleware(m)(embedMux(http.StatusOK))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/embed", nil))

	metrics := collect(t, reader)
	md, ok := metrics["humvec.http.request.duration"]
	if !ok {
		t.Fatal("humvec.http.request.duration not collected")
	}
	hist, ok := md.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("unexpected data type %T", md.Data)
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("got %d data points, want 1", len(hist.DataPoints))
	}

	dp := hist.DataPoints[0]
	if v, present := dp.Attributes.Value("method"); !present || v.AsString() != http.MethodPost {
		t.Errorf("method attribute = %q, want POST", v.AsString())
	}
	if v, present := dp.Attributes.Value("route"); !present || v.AsString() != "POST /embed" {
		t.Errorf("route attribute = %q, want the matched pattern", v.AsString())
	}
	if v, present := dp.Attributes.Value("status"); !present || v.AsString() != "200" {
		t.Errorf("status attribute = %q, want 200", v.AsString())
	}
}

func TestMiddleware_UnmatchedPathsShareOneLabel(t *testing.T) {
	withTestTracer(t)
	m, reader := newTestMetrics(t)

	handler := Middleware(m)(http.NewServeMux())

	// Distinct garbage paths must collapse into a single metric series, not
	// one series per path.
	for _, path := range []string{"/nope", "/definitely/not/here"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("GET %s = %d, want 404", path, rec.Code)
		}
	}

	metrics := collect(t, reader)
	hist, ok := metrics["humvec.http.request.duration"].Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("unexpected data type %T", metrics["humvec.http.request.duration"].Data)
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("got %d metric series, want 1 shared series for unmatched paths", len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	if v, present := dp.Attributes.Value("route"); !present || v.AsString() != "unmatched" {
		t.Errorf("route attribute = %q, want unmatched", v.AsString())
	}
	if dp.Count != 2 {
		t.Errorf("count = %d, want 2", dp.Count)
	}
}

func TestMiddleware_SpanNamedAfterRoute(t *testing.T) {
	sr := withTestTracer(t)
	m, _ := newTestMetrics(t)

	handler := Middleware(m)(embedMux(http.StatusOK))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/embed", nil))

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if got := spans[0].Name(); got != "POST /embed" {
		t.Errorf("span name = %q, want the matched pattern", got)
	}
	if code := spans[0].Status().Code; code == codes.Error {
		t.Error("successful request must not produce an error span")
	}
}

func TestMiddleware_MarksServerFaultSpans(t *testing.T) {
	sr := withTestTracer(t)
	m, _ := newTestMetrics(t)

	handler := Middleware(m)(embedMux(http.StatusInternalServerError))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/embed", nil))

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if code := spans[0].Status().Code; code != codes.Error {
		t.Errorf("span status = %v, want error for HTTP 500", code)
	}
}

func TestMiddleware_PreservesDownstreamStatus(t *testing.T) {
	withTestTracer(t)
	m, _ := newTestMetrics(t)

	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}

func TestFailSpan_SetsErrorStatus(t *testing.T) {
	sr := withTestTracer(t)

	_, span := StartSpan(context.Background(), "embed")
	FailSpan(span, context.DeadlineExceeded)
	span.End()

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if code := spans[0].Status().Code; code != codes.Error {
		t.Errorf("span status = %v, want error", code)
	}
	if len(spans[0].Events()) == 0 {
		t.Error("expected the error to be recorded as a span event")
	}
}

func TestCorrelationID_EmptyWithoutSpan(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID = %q, want empty", got)
	}
}

func TestLogger_FallsBackToDefault(t *testing.T) {
	if Logger(context.Background()) == nil {
		t.Error("Logger must never return nil")
	}
}
