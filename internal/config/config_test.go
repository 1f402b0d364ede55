package config

import (
	"os"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("creating temp config: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_Valid(t *testing.T) {
	path := writeConfig(t, `
remote_base_url: "https://api.example.com"
api_key: "secret-key"
db_path: "/var/lib/docmirror/mirror.db"
listen_addr: "127.0.0.1:8787"
sync_interval: 45s
poll_interval: 10s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RemoteBaseURL != "https://api.example.com" {
		t.Errorf("RemoteBaseURL = %q", cfg.RemoteBaseURL)
	}
	if cfg.APIKey != "secret-key" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.DBPath != "/var/lib/docmirror/mirror.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.ListenAddr != "127.0.0.1:8787" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.SyncInterval != 45*time.Second {
		t.Errorf("SyncInterval = %v, want 45s", cfg.SyncInterval)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Errorf("PollInterval = %v, want 10s", cfg.PollInterval)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
api_key: "secret-key"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RemoteBaseURL != DefaultRemoteBaseURL {
		t.Errorf("RemoteBaseURL = %q, want default", cfg.RemoteBaseURL)
	}
	if cfg.SyncInterval != 30*time.Second {
		t.Errorf("SyncInterval = %v, want default 30s", cfg.SyncInterval)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v, want default 30s", cfg.PollInterval)
	}
	if cfg.ListenAddr != "" {
		t.Errorf("ListenAddr = %q, want empty (API disabled)", cfg.ListenAddr)
	}
}

func TestLoad_MissingAPIKey(t *testing.T) {
	path := writeConfig(t, `
remote_base_url: "https://api.example.com"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing api_key, got nil")
	}
}

func TestLoad_InvalidBaseURL(t *testing.T) {
	path := writeConfig(t, `
remote_base_url: "not-a-url"
api_key: "k"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid remote_base_url, got nil")
	}
}

func TestLoad_IntervalBounds(t *testing.T) {
	tooShort := writeConfig(t, `
api_key: "k"
sync_interval: 1s
`)
	if _, err := Load(tooShort); err == nil {
		t.Error("expected error for sync_interval below minimum")
	}

	tooLong := writeConfig(t, `
api_key: "k"
poll_interval: 1h
`)
	if _, err := Load(tooLong); err == nil {
		t.Error("expected error for poll_interval above maximum")
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeConfig(t, `
api_key: "k"
api_keey: "typo"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
}

func TestLoad_TelemetryRequiresEndpoint(t *testing.T) {
	path := writeConfig(t, `
api_key: "k"
telemetry:
  insecure: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for telemetry without otlp_endpoint, got nil")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
