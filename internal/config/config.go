package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config is the root configuration for Lumi.
type Config struct {
	Backend  BackendConfig  `json:"backend"`
	Voice    VoiceConfig    `json:"voice"`
	Gateway  GatewayConfig  `json:"gateway"`
	Events   EventsConfig   `json:"events"`
	Sessions SessionsConfig `json:"sessions"`
	UI       UIConfig       `json:"ui"`
}

// BackendConfig points the shell at the reasoning backend.
type BackendConfig struct {
	BaseURL string       `json:"base_url"`
	Timeout Duration     `json:"timeout,omitempty"`
	Routes  RoutesConfig `json:"routes"`
}

// RoutesConfig maps each remote operation to a path on the backend.
type RoutesConfig struct {
	Listen      string `json:"listen"`
	TextCommand string `json:"text_command"`
	AskDocument string `json:"ask_document"`
	Upload      string `json:"upload"`
}

// VoiceConfig tunes voice interaction feedback.
type VoiceConfig struct {
	// ListenWindow is how long the placeholder says "Listening…" before
	// switching to "Thinking…". It matches the backend capture window.
	ListenWindow Duration `json:"listen_window,omitempty"`
}

// GatewayConfig holds the local renderer gateway settings.
type GatewayConfig struct {
	Enabled *bool  `json:"enabled,omitempty"`
	Host    string `json:"host"`
	Port    int    `json:"port"`

	// AllowedOrigins are the browser origins (coder/websocket patterns)
	// that may open the WebSocket. Clients sending no Origin, like
	// `lumi send`, are always accepted.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// IsEnabled reports whether the gateway should be started (default true).
func (g GatewayConfig) IsEnabled() bool {
	return g.Enabled == nil || *g.Enabled
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int    `json:"buffer_size"`
	LogDir     string `json:"log_dir,omitempty"`
}

// SessionsConfig configures transcript persistence.
type SessionsConfig struct {
	Dir     string `json:"dir,omitempty"`
	Persist *bool  `json:"persist,omitempty"`
}

// ShouldPersist reports whether transcripts are written to disk (default true).
func (s SessionsConfig) ShouldPersist() bool {
	return s.Persist == nil || *s.Persist
}

// UIConfig holds host presentation settings.
type UIConfig struct {
	Welcome  string `json:"welcome,omitempty"`
	Markdown *bool  `json:"markdown,omitempty"`

	// DocumentTypes restricts the document picker to these extensions.
	DocumentTypes []string `json:"document_types,omitempty"`
}

// RenderMarkdown reports whether assistant replies are rendered as markdown.
func (u UIConfig) RenderMarkdown() bool {
	return u.Markdown == nil || *u.Markdown
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// Validate reports settings the shell cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.Backend.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend.base_url: %q is not an http(s) URL", c.Backend.BaseURL))
	}
	if c.Backend.Timeout < 0 {
		errs = append(errs, errors.New("backend.timeout: must not be negative"))
	}
	if c.Voice.ListenWindow <= 0 {
		errs = append(errs, errors.New("voice.listen_window: must be positive"))
	}
	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		errs = append(errs, fmt.Errorf("gateway.port: %d out of range", c.Gateway.Port))
	}
	if c.Events.BufferSize < 0 {
		errs = append(errs, errors.New("events.buffer_size: must not be negative"))
	}
	return errors.Join(errs...)
}
