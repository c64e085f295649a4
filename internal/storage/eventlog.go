// Package storage keeps durable side records of bus traffic: the JSONL
// event log and per-session request statistics.
package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dohr-michael/lumi/internal/events"
)

// globalLog holds events published without a session id.
const globalLog = "_global"

// EventLogger appends every bus event to <dir>/<session>.jsonl. A file
// stays open until its session closes or the logger does.
type EventLogger struct {
	dir         string
	unsubscribe func()

	mu    sync.Mutex
	files map[string]*os.File
}

// NewEventLogger subscribes a logger writing under dir to bus.
func NewEventLogger(dir string, bus *events.Bus) *EventLogger {
	el := &EventLogger{dir: dir, files: make(map[string]*os.File)}
	el.unsubscribe = bus.Subscribe(el.record)
	return el
}

// Close detaches the logger and closes its files.
func (el *EventLogger) Close() {
	if el.unsubscribe != nil {
		el.unsubscribe()
	}
	el.mu.Lock()
	defer el.mu.Unlock()
	for key, f := range el.files {
		f.Close()
		delete(el.files, key)
	}
}

func (el *EventLogger) record(e events.Event) {
	// Key repeat on a busy orb carries no state change.
	if p, ok := events.GetInputPayload(e); ok && p.Outcome == "ignored" {
		return
	}

	el.mu.Lock()
	defer el.mu.Unlock()

	key := logKey(e.SessionID)
	if err := el.append(key, e); err != nil {
		slog.Warn("event log write", "session_id", e.SessionID, "error", err)
	}
	if e.Type == events.EventSessionClosed {
		if f, ok := el.files[key]; ok {
			f.Close()
			delete(el.files, key)
		}
	}
}

func (el *EventLogger) append(key string, e events.Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	f, ok := el.files[key]
	if !ok {
		if err := os.MkdirAll(el.dir, 0o755); err != nil {
			return err
		}
		f, err = os.OpenFile(filepath.Join(el.dir, key+".jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		el.files[key] = f
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

func logKey(sessionID string) string {
	if sessionID == "" {
		return globalLog
	}
	return sessionID
}

// LogPath returns the JSONL file holding sessionID's events.
func LogPath(dir, sessionID string) string {
	return filepath.Join(dir, logKey(sessionID)+".jsonl")
}

// ReadLog loads the logged events of a session in write order. Lines that
// do not decode are skipped; a missing log is empty.
func ReadLog(dir, sessionID string) ([]events.Event, error) {
	f, err := os.Open(LogPath(dir, sessionID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var out []events.Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		var e events.Event
		if json.Unmarshal(sc.Bytes(), &e) == nil {
			out = append(out, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan event log: %w", err)
	}
	return out, nil
}
