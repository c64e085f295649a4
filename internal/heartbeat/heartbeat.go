// Package heartbeat lets a running shell advertise itself to other lumi
// commands on the same machine: `lumi status` reports it and `lumi send`
// finds the gateway through it.
package heartbeat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultInterval is how often the heartbeat file is refreshed. Readers
// treat a file older than two intervals as stale.
const DefaultInterval = 30 * time.Second

// Status represents the liveness state of the shell.
type Status string

const (
	StatusAlive Status = "alive"
	StatusStale Status = "stale"
	StatusDead  Status = "dead"
)

// Info describes the running shell.
type Info struct {
	// Addr is the gateway listen address, empty when the gateway is off.
	Addr      string `json:"addr,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Backend   string `json:"backend,omitempty"`
}

// Heartbeat is the content of the heartbeat file.
type Heartbeat struct {
	Info
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// Uptime is how long the shell had been running at the last beat.
func (h Heartbeat) Uptime() time.Duration {
	return h.Timestamp.Sub(h.StartedAt).Truncate(time.Second)
}

// Writer keeps the heartbeat file of this process fresh.
type Writer struct {
	path     string
	interval time.Duration

	mu      sync.Mutex
	info    Info
	started time.Time
	stop    chan struct{}
	done    chan struct{}
}

// NewWriter creates a writer for path. Nothing is written before Start.
func NewWriter(path string, info Info) *Writer {
	return &Writer{path: path, info: info, interval: DefaultInterval}
}

// Start writes the first beat and keeps refreshing it until Stop. Calling
// Start on a running writer does nothing.
func (w *Writer) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop != nil {
		return
	}

	w.started = time.Now()
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.beatLocked()

	go w.loop(w.stop, w.done)
}

func (w *Writer) loop(stop, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			w.mu.Lock()
			w.beatLocked()
			w.mu.Unlock()
		case <-stop:
			return
		}
	}
}

// Update changes the advertised info, e.g. after a config reload, and
// writes a beat right away when running.
func (w *Writer) Update(fn func(*Info)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&w.info)
	if w.stop != nil {
		w.beatLocked()
	}
}

// Stop ends the refresh loop and removes the file unless another shell
// has taken it over since.
func (w *Writer) Stop() {
	w.mu.Lock()
	stop, done := w.stop, w.done
	w.stop, w.done = nil, nil
	w.mu.Unlock()
	if stop == nil {
		return
	}

	close(stop)
	<-done

	if hb, err := read(w.path); err == nil && hb.PID == os.Getpid() {
		os.Remove(w.path)
	}
}

func (w *Writer) beatLocked() {
	hb := Heartbeat{
		Info:      w.info,
		PID:       os.Getpid(),
		StartedAt: w.started,
		Timestamp: time.Now(),
	}
	data, err := json.MarshalIndent(hb, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		slog.Warn("heartbeat dir", "path", w.path, "error", err)
		return
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Warn("heartbeat write", "path", w.path, "error", err)
		return
	}
	if err := os.Rename(tmp, w.path); err != nil {
		slog.Warn("heartbeat write", "path", w.path, "error", err)
	}
}

func read(path string) (*Heartbeat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var hb Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return nil, fmt.Errorf("decode heartbeat: %w", err)
	}
	return &hb, nil
}

// Check reads the heartbeat at path. A missing file means no shell runs; a
// beat older than maxAge is stale.
func Check(path string, maxAge time.Duration) (Status, *Heartbeat, error) {
	hb, err := read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return StatusDead, nil, nil
	}
	if err != nil {
		return StatusDead, nil, err
	}
	if time.Since(hb.Timestamp) > maxAge {
		return StatusStale, hb, nil
	}
	return StatusAlive, hb, nil
}
