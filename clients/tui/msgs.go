package tui

import (
	"time"

	"github.com/dohr-michael/lumi/internal/backend"
	"github.com/dohr-michael/lumi/internal/events"
)

// SessionChangedMsg signals that the session transcript or state changed
// and the view should pull a fresh snapshot.
type SessionChangedMsg struct {
	Type events.EventType
}

// RequestDoneMsg reports a resolved backend request.
type RequestDoneMsg struct {
	Operation backend.Operation
	OK        bool
	Duration  time.Duration
}

// SessionEndedMsg signals that the session was closed or the event feed
// stopped.
type SessionEndedMsg struct{}

// ReloadedMsg carries the result of a /reload.
type ReloadedMsg struct {
	Backend string
	Err     error
}
