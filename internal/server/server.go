// Package server exposes the embedding pipeline over HTTP.
//
// Routes:
//
//	GET  /health   — service descriptor (status + embedding dimensionality)
//	GET  /healthz  — liveness probe
//	GET  /readyz   — readiness probe (encoder model loaded)
//	POST /embed    — multipart audio upload → embedding vector
//	GET  /metrics  — Prometheus scrape endpoint
//
// All routes run behind the observability middleware (tracing, request
// metrics, completion logging) and a permissive CORS layer so browser-based
// callers can hit the API directly.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/humvec/internal/config"
	"github.com/MrWong99/humvec/internal/health"
	"github.com/MrWong99/humvec/internal/observe"
	"github.com/MrWong99/humvec/internal/pipeline"
	"github.com/MrWong99/humvec/pkg/provider/encoder"
)

// shutdownGrace is how long in-flight requests get to finish once the run
// context is cancelled.
const shutdownGrace = 15 * time.Second

// Server owns the HTTP listener and routes requests into the pipeline.
type Server struct {
	cfg      config.ServerConfig
	pipeline *pipeline.Pipeline
	httpSrv  *http.Server
}

// New assembles the full handler chain around pl and returns a Server ready
// to Run. The encoder behind pl provides the dimensionality reported by
// /health and the readiness signal for /readyz.
func New(cfg config.ServerConfig, pl *pipeline.Pipeline, metrics *observe.Metrics) *Server {
	s := &Server{
		cfg:      cfg,
		pipeline: pl,
	}

	enc := pl.Encoder()
	healthHandler := health.New(enc.Dimensions(), health.Checker{
		Name:  "encoder",
		Check: encoderCheck(enc),
	})

	mux := http.NewServeMux()
	healthHandler.Register(mux)
	mux.HandleFunc("POST /embed", s.handleEmbed)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := observe.Middleware(metrics)(corsMiddleware(mux))

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// encoderCheck adapts the encoder's one-way ready flag into a health.Checker
// function.
func encoderCheck(enc encoder.Provider) func(context.Context) error {
	return func(_ context.Context) error {
		if !enc.Ready() {
			return errors.New("encoder model not loaded")
		}
		return nil
	}
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully. It
// returns nil on a clean shutdown and the listener error otherwise.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if s.cfg.TLS != nil {
			err = s.httpSrv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Handler returns the fully assembled handler chain. Used by tests to drive
// the server through httptest without binding a socket.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// corsMiddleware applies an allow-all CORS policy: any origin may call the
// API, mirroring what browser-based hum-to-search frontends need. Preflight
// OPTIONS requests are answered directly. Credentials are deliberately not
// allowed — browsers ignore Access-Control-Allow-Credentials when the origin
// is the wildcard, and the API carries no cookies or auth to share.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
