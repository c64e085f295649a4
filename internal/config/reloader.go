package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"sync/atomic"
)

// LoadOrDefault loads path, falling back to defaults when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Reloader re-reads the .env file and the config on demand and hands the
// result to listeners. An invalid reload leaves the current config in place.
type Reloader struct {
	configPath string
	dotenvPath string
	current    atomic.Pointer[Config]

	mu        sync.Mutex
	pins      []func(*Config)
	listeners []func(*Config)
}

// NewReloader creates a Reloader serving initial until the first Reload.
func NewReloader(configPath, dotenvPath string, initial *Config) *Reloader {
	r := &Reloader{configPath: configPath, dotenvPath: dotenvPath}
	r.current.Store(initial)
	return r
}

// Current returns the config in effect.
func (r *Reloader) Current() *Config {
	return r.current.Load()
}

// Pin registers a change applied to every reloaded config before
// validation. Command-line overrides use it to survive a reload.
func (r *Reloader) Pin(fn func(*Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pins = append(r.pins, fn)
}

// OnReload registers fn to run after each successful reload, in
// registration order.
func (r *Reloader) OnReload(fn func(*Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Reload re-exports the .env file (overriding the environment), reloads the
// config and notifies listeners. A missing config file reloads to defaults.
func (r *Reloader) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ReloadDotenv(r.dotenvPath); err != nil {
		return fmt.Errorf("reload dotenv: %w", err)
	}
	cfg, err := LoadOrDefault(r.configPath)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	for _, pin := range r.pins {
		pin(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("reload config: %w", err)
	}

	r.current.Store(cfg)
	slog.Info("config reloaded", "path", r.configPath, "backend", cfg.Backend.BaseURL)
	for _, fn := range r.listeners {
		fn(cfg)
	}
	return nil
}
