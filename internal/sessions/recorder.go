package sessions

import (
	"log/slog"
	"sync"

	"github.com/dohr-michael/lumi/internal/events"
)

// Recorder mirrors one session's bus events into a Store. Placeholders are
// transient and never persisted.
type Recorder struct {
	store     Store
	sessionID string

	mu       sync.Mutex
	mode     string
	document string
	unsub    func()
}

// NewRecorder creates a recorder for sessionID.
func NewRecorder(store Store, sessionID string) *Recorder {
	return &Recorder{store: store, sessionID: sessionID}
}

// Attach subscribes the recorder to bus.
func (r *Recorder) Attach(bus *events.Bus) {
	unsub := bus.Subscribe(r.handle,
		events.EventTranscriptAppended,
		events.EventSessionState,
		events.EventSessionClosed,
	)
	r.mu.Lock()
	r.unsub = unsub
	r.mu.Unlock()
}

// Detach stops recording.
func (r *Recorder) Detach() {
	r.mu.Lock()
	unsub := r.unsub
	r.unsub = nil
	r.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (r *Recorder) handle(e events.Event) {
	if e.SessionID != r.sessionID {
		return
	}

	switch e.Type {
	case events.EventTranscriptAppended:
		p, ok := events.GetMessagePayload(e)
		if !ok || p.Placeholder {
			return
		}
		msg := Message{Author: p.Author, Text: p.Text, Order: p.Order, Ts: e.Timestamp}
		if err := r.store.AppendMessage(r.sessionID, msg); err != nil {
			slog.Warn("persist message", "session", r.sessionID, "error", err)
		}

	case events.EventSessionState:
		p, ok := events.GetSessionStatePayload(e)
		if !ok {
			return
		}
		r.recordMode(p.Mode, p.Document)

	case events.EventSessionClosed:
		if err := r.store.Close(r.sessionID); err != nil {
			slog.Warn("close session", "session", r.sessionID, "error", err)
		}
	}
}

func (r *Recorder) recordMode(mode, document string) {
	r.mu.Lock()
	if mode == r.mode && document == r.document {
		r.mu.Unlock()
		return
	}
	r.mode, r.document = mode, document
	r.mu.Unlock()

	err := r.store.Update(r.sessionID, func(s *Session) {
		s.Mode = mode
		s.Document = document
	})
	if err != nil {
		slog.Warn("persist session mode", "session", r.sessionID, "error", err)
	}
}
