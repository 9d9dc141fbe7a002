package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidEncoderNames lists the known encoder provider names. Used by
// [Validate] to reject typos early instead of failing at registry lookup.
var ValidEncoderNames = []string{"wav2vec"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills unset fields from
// [Default], and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields with the values from [Default].
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = def.Server.ListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = def.Server.LogLevel
	}
	if cfg.Encoder.Name == "" {
		cfg.Encoder.Name = def.Encoder.Name
	}
	if cfg.Encoder.BaseURL == "" {
		cfg.Encoder.BaseURL = def.Encoder.BaseURL
	}
	if cfg.Limits.MinUploadBytes == 0 {
		cfg.Limits.MinUploadBytes = def.Limits.MinUploadBytes
	}
	if cfg.Limits.MinSamples == 0 {
		cfg.Limits.MinSamples = def.Limits.MinSamples
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	if cfg.Encoder.Name != "" && !slices.Contains(ValidEncoderNames, cfg.Encoder.Name) {
		errs = append(errs, fmt.Errorf("encoder.name %q is unknown; valid values: %v", cfg.Encoder.Name, ValidEncoderNames))
	}

	if cfg.Limits.MinUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("limits.min_upload_bytes %d must not be negative", cfg.Limits.MinUploadBytes))
	}
	if cfg.Limits.MinSamples < 0 {
		errs = append(errs, fmt.Errorf("limits.min_samples %d must not be negative", cfg.Limits.MinSamples))
	}
	if cfg.Limits.MaxDurationSeconds < 0 {
		errs = append(errs, fmt.Errorf("limits.max_duration_seconds %.2f must not be negative", cfg.Limits.MaxDurationSeconds))
	}

	return errors.Join(errs...)
}
