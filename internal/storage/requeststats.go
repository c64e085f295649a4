package storage

import (
	"errors"
	"log/slog"

	"github.com/dohr-michael/lumi/internal/events"
	"github.com/dohr-michael/lumi/internal/sessions"
)

// RequestStats subscribes to request resolutions and accumulates counts and
// latency per session.
type RequestStats struct {
	store       sessions.Store
	unsubscribe func()
}

// NewRequestStats creates a RequestStats that listens for resolved requests.
func NewRequestStats(bus *events.Bus, store sessions.Store) *RequestStats {
	rs := &RequestStats{store: store}
	rs.unsubscribe = bus.Subscribe(rs.handleEvent, events.EventRequestResolved)
	return rs
}

// Close unsubscribes the tracker from the event bus.
func (rs *RequestStats) Close() {
	if rs.unsubscribe != nil {
		rs.unsubscribe()
	}
}

func (rs *RequestStats) handleEvent(e events.Event) {
	if e.SessionID == "" {
		return
	}

	payload, ok := events.GetRequestResolvedPayload(e)
	if !ok {
		return
	}

	err := rs.store.Update(e.SessionID, func(s *sessions.Session) {
		s.Requests.Total++
		if !payload.OK {
			s.Requests.Failed++
		}
		s.Requests.TotalTime += payload.Duration
	})
	if errors.Is(err, sessions.ErrNotFound) {
		slog.Debug("request stats: session not found", "session_id", e.SessionID)
	} else if err != nil {
		slog.Error("request stats: update session", "session_id", e.SessionID, "error", err)
	}
}
