// Command humvec is the hum-to-search embedding service: it accepts audio
// uploads over HTTP and returns fixed-length embedding vectors computed by a
// pretrained wav2vec2 encoder.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/humvec/internal/config"
	"github.com/MrWong99/humvec/internal/observe"
	"github.com/MrWong99/humvec/internal/pipeline"
	"github.com/MrWong99/humvec/internal/server"
	"github.com/MrWong99/humvec/pkg/provider/encoder"
	"github.com/MrWong99/humvec/pkg/provider/encoder/wav2vec"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (optional; defaults apply when omitted)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "humvec: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("humvec starting",
		"version", version,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.WithServiceVersion(version))
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Encoder provider ──────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinEncoders(reg)

	enc, err := reg.CreateEncoder(cfg.Encoder)
	if err != nil {
		slog.Error("failed to create encoder provider", "name", cfg.Encoder.Name, "err", err)
		return 1
	}

	// Model load is fatal: the process must not serve embed traffic without
	// a working encoder.
	slog.Info("loading encoder model", "name", cfg.Encoder.Name, "model", enc.ModelID())
	if err := enc.Load(ctx); err != nil {
		slog.Error("encoder model load failed", "err", err)
		return 1
	}
	slog.Info("encoder model loaded", "model", enc.ModelID(), "embedding_dim", enc.Dimensions())

	// ── Pipeline + HTTP server ────────────────────────────────────────────────
	limits := pipeline.Limits{
		MinUploadBytes: cfg.Limits.MinUploadBytes,
		MinSamples:     cfg.Limits.MinSamples,
		MaxDuration:    time.Duration(cfg.Limits.MaxDurationSeconds * float64(time.Second)),
	}
	pl := pipeline.New(enc, limits, metrics)
	srv := server.New(cfg.Server, pl, metrics)

	slog.Info("server ready", "listen_addr", cfg.Server.ListenAddr)

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// loadConfig reads the config file when a path is given and falls back to
// built-in defaults otherwise.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found — copy configs/example.yaml to get started", path)
		}
		return nil, err
	}
	return cfg, nil
}

// registerBuiltinEncoders wires the encoder factories that ship with humvec
// into reg.
func registerBuiltinEncoders(reg *config.Registry) {
	reg.RegisterEncoder("wav2vec", func(entry config.ProviderEntry) (encoder.Provider, error) {
		var opts []wav2vec.Option
		if entry.Model != "" {
			opts = append(opts, wav2vec.WithModel(entry.Model))
		}
		if dims := optInt(entry.Options, "dimensions"); dims > 0 {
			opts = append(opts, wav2vec.WithDimensions(dims))
		}
		if secs := optInt(entry.Options, "timeout_seconds"); secs > 0 {
			opts = append(opts, wav2vec.WithTimeout(time.Duration(secs)*time.Second))
		}
		return wav2vec.New(entry.BaseURL, opts...)
	})
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optInt extracts an integer value from an encoder Options map[string]any.
// YAML decodes whole numbers as int; float64 is accepted for robustness.
// Returns 0 if the map is nil, the key is absent, or the value has another type.
func optInt(opts map[string]any, key string) int {
	if opts == nil {
		return 0
	}
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
