// Package config loads and validates the DocMirror YAML configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// RemoteBaseURL is the base URL of the remote document-search API
	// (e.g. "https://generativelanguage.googleapis.com"). Defaults to the
	// public endpoint if unset.
	RemoteBaseURL string `yaml:"remote_base_url"`

	// APIKey authenticates against the remote service. Required.
	APIKey string `yaml:"api_key"`

	// DBPath is the SQLite database location.
	// Defaults to ~/.local/share/docmirror/mirror.db.
	DBPath string `yaml:"db_path"`

	// ListenAddr is the HTTP API listen address, e.g. "127.0.0.1:8787".
	// Leave empty to disable the HTTP API.
	ListenAddr string `yaml:"listen_addr"`

	// SyncInterval is the sync engine's idle wait between cycles.
	// Minimum 5s, maximum 10m. Defaults to 30s if unset.
	SyncInterval time.Duration `yaml:"sync_interval"`

	// PollInterval is the polling engine's idle wait between cycles.
	// Minimum 5s, maximum 10m. Defaults to 30s if unset.
	PollInterval time.Duration `yaml:"poll_interval"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "docmirror".
	ServiceName string `yaml:"service_name"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request. Equivalent to the OTEL_EXPORTER_OTLP_HEADERS environment
	// variable. Use this for authentication tokens, e.g.:
	//   Authorization: "Bearer <token>"
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultRemoteBaseURL is the public API endpoint used when the config does
// not name one.
const DefaultRemoteBaseURL = "https://generativelanguage.googleapis.com"

// DefaultPath returns the default config file path: ~/.config/docmirror/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "docmirror", "config.yaml"), nil
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required fields are present and well-formed.
func (c *Config) validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}

	if c.RemoteBaseURL == "" {
		c.RemoteBaseURL = DefaultRemoteBaseURL
	}
	u, err := url.ParseRequestURI(c.RemoteBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("remote_base_url %q must be a valid http or https URL", c.RemoteBaseURL)
	}

	if err := c.validateInterval("sync_interval", &c.SyncInterval); err != nil {
		return err
	}
	if err := c.validateInterval("poll_interval", &c.PollInterval); err != nil {
		return err
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}

func (c *Config) validateInterval(name string, d *time.Duration) error {
	if *d == 0 {
		*d = 30 * time.Second
	}
	if *d < 5*time.Second {
		return fmt.Errorf("%s %v is too short (minimum 5s)", name, *d)
	}
	if *d > 10*time.Minute {
		return fmt.Errorf("%s %v is too long (maximum 10m)", name, *d)
	}
	return nil
}
