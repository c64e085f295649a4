package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	content := `{
	// This is a JSONC comment
	"backend": {
		"base_url": "${{ .Env.LUMI_TEST_BACKEND }}",
		"timeout": "30s",
		"routes": {
			"listen": "/voice",
		},
	},
	"voice": {"listen_window": "3s"},
	"gateway": {
		"host": "0.0.0.0",
		"port": 9999,
		"enabled": false
	},
	"sessions": {"persist": false}
}`

	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("LUMI_TEST_BACKEND", "http://10.0.0.2:5001")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Backend.BaseURL != "http://10.0.0.2:5001" {
		t.Errorf("expected expanded base_url, got %s", cfg.Backend.BaseURL)
	}
	if cfg.Backend.Timeout.Duration() != 30*time.Second {
		t.Errorf("expected timeout 30s, got %s", cfg.Backend.Timeout.Duration())
	}
	if cfg.Backend.Routes.Listen != "/voice" {
		t.Errorf("expected listen route /voice, got %s", cfg.Backend.Routes.Listen)
	}
	if cfg.Backend.Routes.Upload != "/upload" {
		t.Errorf("expected default upload route, got %s", cfg.Backend.Routes.Upload)
	}
	if cfg.Voice.ListenWindow.Duration() != 3*time.Second {
		t.Errorf("expected listen window 3s, got %s", cfg.Voice.ListenWindow.Duration())
	}
	if cfg.Gateway.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Gateway.Port)
	}
	if cfg.Gateway.IsEnabled() {
		t.Error("expected gateway disabled")
	}
	if cfg.Sessions.ShouldPersist() {
		t.Error("expected persistence disabled")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LUMI_PATH", "/tmp/lumi-test")
	t.Setenv("LUMI_BACKEND_URL", "")

	content := `{}`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Backend.BaseURL != DefaultBackendURL {
		t.Errorf("expected default backend %s, got %s", DefaultBackendURL, cfg.Backend.BaseURL)
	}
	if cfg.Voice.ListenWindow.Duration() != 5*time.Second {
		t.Errorf("expected default listen window 5s, got %s", cfg.Voice.ListenWindow.Duration())
	}
	if cfg.Gateway.Port != DefaultGatewayPort {
		t.Errorf("expected default port %d, got %d", DefaultGatewayPort, cfg.Gateway.Port)
	}
	if !cfg.Gateway.IsEnabled() {
		t.Error("expected gateway enabled by default")
	}
	if len(cfg.Gateway.AllowedOrigins) != 1 || cfg.Gateway.AllowedOrigins[0] != "file://" {
		t.Errorf("expected file:// as the only allowed origin, got %v", cfg.Gateway.AllowedOrigins)
	}
	if cfg.Events.BufferSize != 1024 {
		t.Errorf("expected default buffer 1024, got %d", cfg.Events.BufferSize)
	}
	if cfg.Sessions.Dir != "/tmp/lumi-test/sessions" {
		t.Errorf("expected sessions dir under LUMI_PATH, got %s", cfg.Sessions.Dir)
	}
	if !cfg.UI.RenderMarkdown() {
		t.Error("expected markdown rendering by default")
	}
}

func TestLoadDefaults_BackendFromEnv(t *testing.T) {
	t.Setenv("LUMI_BACKEND_URL", "http://backend.local:8000")

	cfg := Default()
	if cfg.Backend.BaseURL != "http://backend.local:8000" {
		t.Errorf("expected backend from env, got %s", cfg.Backend.BaseURL)
	}
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(`{"backend": `), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for truncated config")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.jsonc"))
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Backend.Routes.TextCommand != "/text-command" {
		t.Errorf("expected defaults, got %+v", cfg.Backend.Routes)
	}
}

func TestExpandEnvTemplates(t *testing.T) {
	t.Setenv("TEST_KEY", "my-secret")
	result := expandEnvTemplates(`{"key": "${{ .Env.TEST_KEY }}"}`)
	expected := `{"key": "my-secret"}`
	if result != expected {
		t.Errorf("expected %s, got %s", expected, result)
	}
}
