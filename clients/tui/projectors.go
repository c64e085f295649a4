package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dohr-michael/lumi/internal/backend"
	"github.com/dohr-michael/lumi/internal/events"
)

// watchedEvents are the bus events the TUI reacts to.
var watchedEvents = []events.EventType{
	events.EventTranscriptAppended,
	events.EventTranscriptUpdated,
	events.EventTranscriptRemoved,
	events.EventSessionState,
	events.EventSessionClosed,
	events.EventRequestResolved,
}

// Project converts a bus event into a typed tea.Msg.
// Returns nil for events that don't map to a TUI message.
func Project(evt events.Event) tea.Msg {
	switch evt.Type {
	case events.EventTranscriptAppended, events.EventTranscriptUpdated,
		events.EventTranscriptRemoved, events.EventSessionState:
		return SessionChangedMsg{Type: evt.Type}
	case events.EventSessionClosed:
		return SessionEndedMsg{}
	case events.EventRequestResolved:
		p, ok := events.GetRequestResolvedPayload(evt)
		if !ok {
			return nil
		}
		return RequestDoneMsg{
			Operation: backend.Operation(p.Operation),
			OK:        p.OK,
			Duration:  p.Duration,
		}
	default:
		return nil
	}
}

// WaitForEvent blocks on ch until an event projects to a message. A closed
// channel ends the session.
func WaitForEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		for evt := range ch {
			if msg := Project(evt); msg != nil {
				return msg
			}
		}
		return SessionEndedMsg{}
	}
}
