package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/tailscale/hujson"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

const (
	DefaultBackendURL   = "http://127.0.0.1:5001"
	DefaultGatewayHost  = "127.0.0.1"
	DefaultGatewayPort  = 18430
	DefaultListenWindow = 5 * time.Second
	DefaultTimeout      = 2 * time.Minute
	DefaultWelcome      = "Hi, I'm Lumi. Click the orb to talk, type below, or upload a document."
)

// Load reads a JSONC config file, strips comments, expands ${{ .Env.VAR }} templates,
// unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variable templates (before stripping, since templates are in strings)
	expanded := expandEnvTemplates(string(data))

	std, err := hujson.Standardize([]byte(expanded))
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config with every default applied, used when no file exists.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Backend.BaseURL == "" {
		if v := os.Getenv("LUMI_BACKEND_URL"); v != "" {
			cfg.Backend.BaseURL = v
		} else {
			cfg.Backend.BaseURL = DefaultBackendURL
		}
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = Duration(DefaultTimeout)
	}
	r := &cfg.Backend.Routes
	if r.Listen == "" {
		r.Listen = "/listen"
	}
	if r.TextCommand == "" {
		r.TextCommand = "/text-command"
	}
	if r.AskDocument == "" {
		r.AskDocument = "/ask-document"
	}
	if r.Upload == "" {
		r.Upload = "/upload"
	}
	if cfg.Voice.ListenWindow == 0 {
		cfg.Voice.ListenWindow = Duration(DefaultListenWindow)
	}
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = DefaultGatewayHost
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultGatewayPort
	}
	if len(cfg.Gateway.AllowedOrigins) == 0 {
		// The overlay renderer loads from disk.
		cfg.Gateway.AllowedOrigins = []string{"file://"}
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Events.LogDir == "" {
		cfg.Events.LogDir = EventLogDir()
	}
	if cfg.Sessions.Dir == "" {
		cfg.Sessions.Dir = SessionsDir()
	}
	if cfg.UI.Welcome == "" {
		cfg.UI.Welcome = DefaultWelcome
	}
	if len(cfg.UI.DocumentTypes) == 0 {
		cfg.UI.DocumentTypes = []string{".pdf", ".txt", ".md", ".docx"}
	}
}
