package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.URL != DefaultAPIURL {
		t.Errorf("API.URL = %q, want %q", cfg.API.URL, DefaultAPIURL)
	}
	if cfg.Monitor.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", cfg.Monitor.PollInterval)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q", cfg.Database.Driver)
	}
	if want := filepath.Join(home, DefaultDBFile); cfg.Database.Path != want {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, want)
	}
	if cfg.Export.Compression != "none" {
		t.Errorf("Export.Compression = %q", cfg.Export.Compression)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, "custom.json")
	body := `{
  "api": {"url": "http://scanner.internal:3001/", "timeout": "5s"},
  "monitor": {"poll_interval": "0s"},
  "database": {"path": "~/journal.db"},
  "schedules": [{"name": "nightly", "expr": "0 2 * * *", "target": "example.com", "type": "fast", "enabled": true}]
}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SCANBOARD_METRICS_ADDR", "127.0.0.1:9464")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.URL != "http://scanner.internal:3001" {
		t.Errorf("API.URL = %q, trailing slash should be trimmed", cfg.API.URL)
	}
	if cfg.API.Timeout != 5*time.Second {
		t.Errorf("API.Timeout = %v", cfg.API.Timeout)
	}
	if cfg.Monitor.PollInterval != DefaultPollInterval {
		t.Errorf("PollInterval = %v, non-positive should fall back to default", cfg.Monitor.PollInterval)
	}
	if want := filepath.Join(home, "journal.db"); cfg.Database.Path != want {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, want)
	}
	if cfg.Metrics.Addr != "127.0.0.1:9464" {
		t.Errorf("Metrics.Addr = %q, env override ignored", cfg.Metrics.Addr)
	}
	if len(cfg.Schedules) != 1 || cfg.Schedules[0].Name != "nightly" || !cfg.Schedules[0].Enabled {
		t.Errorf("Schedules = %+v", cfg.Schedules)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load() expected error for malformed config")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	tok, err := LoadSession()
	if err != nil || tok != "" {
		t.Fatalf("LoadSession() = %q, %v; want empty", tok, err)
	}
	if err := SaveSession("jwt-abc"); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	p, _ := SessionPath()
	info, err := os.Stat(p)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("session file mode = %o, want 600", perm)
	}
	if tok, _ := LoadSession(); tok != "jwt-abc" {
		t.Errorf("LoadSession() = %q", tok)
	}
	if err := ClearSession(); err != nil {
		t.Fatalf("ClearSession() error = %v", err)
	}
	if err := ClearSession(); err != nil {
		t.Fatalf("second ClearSession() error = %v", err)
	}
	if tok, _ := LoadSession(); tok != "" {
		t.Errorf("LoadSession() after clear = %q", tok)
	}
}

func TestSaveWritesReadableDurations(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, "config.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.API.Timeout = 90 * time.Second
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw struct {
		API     map[string]any `json:"api"`
		Monitor map[string]any `json:"monitor"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("saved config is not JSON: %v", err)
	}
	if got := raw.API["timeout"]; got != "1m30s" {
		t.Errorf("api.timeout written as %v, want \"1m30s\"", got)
	}
	if got := raw.Monitor["poll_interval"]; got != "2s" {
		t.Errorf("monitor.poll_interval written as %v, want \"2s\"", got)
	}
	if _, ok := raw.API["url"]; !ok {
		t.Error("api.url missing from saved config")
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reloading saved config: %v", err)
	}
	if again.API.Timeout != 90*time.Second || again.Monitor.PollInterval != 2*time.Second {
		t.Errorf("round trip: timeout=%v poll=%v", again.API.Timeout, again.Monitor.PollInterval)
	}
}
