// Package config provides the configuration schema, loader, and encoder
// provider registry for the humvec embedding service.
package config

// LogLevel controls log verbosity for the humvec server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for humvec.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Encoder ProviderEntry `yaml:"encoder"`
	Limits  LimitsConfig  `yaml:"limits"`
}

// ServerConfig holds network and logging settings for the humvec server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProviderEntry selects and configures the encoder backend. The Name field
// is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered encoder implementation (e.g., "wav2vec").
	Name string `yaml:"name"`

	// BaseURL is the address of the inference sidecar
	// (e.g., "http://localhost:8090").
	BaseURL string `yaml:"base_url"`

	// Model selects a specific pretrained checkpoint within the backend
	// (e.g., "facebook/wav2vec2-base").
	Model string `yaml:"model"`

	// Options holds backend-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or
	// nested maps.
	Options map[string]any `yaml:"options"`
}

// LimitsConfig holds the upload validation thresholds.
type LimitsConfig struct {
	// MinUploadBytes is the minimum raw upload size accepted before decoding.
	// Defaults to 1000.
	MinUploadBytes int `yaml:"min_upload_bytes"`

	// MinSamples is the minimum decoded sample count at the canonical 16 kHz
	// rate. Defaults to 1600 (0.1 s).
	MinSamples int `yaml:"min_samples"`

	// MaxDurationSeconds caps the decoded clip length. Zero (the default)
	// disables the cap.
	MaxDurationSeconds float64 `yaml:"max_duration_seconds"`
}

// DefaultListenAddr is used when server.listen_addr is not set.
const DefaultListenAddr = ":8000"

// Default returns a Config populated with the values the service ships with:
// listen on [DefaultListenAddr], info logging, wav2vec encoder against a
// local sidecar, default limits.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: DefaultListenAddr,
			LogLevel:   LogInfo,
		},
		Encoder: ProviderEntry{
			Name:    "wav2vec",
			BaseURL: "http://localhost:8090",
		},
		Limits: LimitsConfig{
			MinUploadBytes: 1000,
			MinSamples:     1600,
		},
	}
}
