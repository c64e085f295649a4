package events

import (
	"encoding/json"
	"time"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// TRANSCRIPT EVENTS
// =============================================================================

// MessagePayload describes one transcript entry.
type MessagePayload struct {
	Ref         uint64 `json:"ref"`
	Author      string `json:"author"`
	Text        string `json:"text"`
	Order       uint64 `json:"order"`
	Placeholder bool   `json:"placeholder,omitempty"`
}

type TranscriptAppendedPayload struct {
	MessagePayload
}

func (TranscriptAppendedPayload) EventType() EventType { return EventTranscriptAppended }

type TranscriptUpdatedPayload struct {
	MessagePayload
}

func (TranscriptUpdatedPayload) EventType() EventType { return EventTranscriptUpdated }

type TranscriptRemovedPayload struct {
	MessagePayload
}

func (TranscriptRemovedPayload) EventType() EventType { return EventTranscriptRemoved }

// =============================================================================
// SESSION EVENTS
// =============================================================================

// SessionStatePayload mirrors the UI affordances derived from controller state.
type SessionStatePayload struct {
	Mode         string `json:"mode"`
	Document     string `json:"document,omitempty"`
	Processing   string `json:"processing"`
	InputEnabled bool   `json:"input_enabled"`
	Highlight    bool   `json:"highlight"`
	Placeholder  uint64 `json:"placeholder,omitempty"`
	Welcome      bool   `json:"welcome"`
}

func (SessionStatePayload) EventType() EventType { return EventSessionState }

type SessionCreatedPayload struct {
	SessionID string `json:"session_id"`
}

func (SessionCreatedPayload) EventType() EventType { return EventSessionCreated }

type SessionClosedPayload struct {
	SessionID string `json:"session_id"`
}

func (SessionClosedPayload) EventType() EventType { return EventSessionClosed }

// =============================================================================
// INPUT EVENTS
// =============================================================================

type InputPayload struct {
	Action  string `json:"action"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

func (InputPayload) EventType() EventType { return EventInput }

// =============================================================================
// REQUEST EVENTS
// =============================================================================

type RequestIssuedPayload struct {
	RequestID uint64 `json:"request_id"`
	Operation string `json:"operation"`
}

func (RequestIssuedPayload) EventType() EventType { return EventRequestIssued }

type RequestResolvedPayload struct {
	RequestID uint64        `json:"request_id"`
	Operation string        `json:"operation"`
	OK        bool          `json:"ok"`
	Kind      string        `json:"kind,omitempty"`
	Status    int           `json:"status,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

func (RequestResolvedPayload) EventType() EventType { return EventRequestResolved }

// =============================================================================
// TYPED EVENT CONSTRUCTORS
// =============================================================================

func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return NewEvent(payload.EventType(), source, toMap(payload))
}

// NewTypedEventWithSession creates an event from a typed payload for one
// session.
func NewTypedEventWithSession(source EventSource, payload EventPayload, sessionID string) Event {
	e := NewTypedEvent(source, payload)
	e.SessionID = sessionID
	return e
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// =============================================================================
// TYPED PAYLOAD EXTRACTORS
// =============================================================================

func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}

// GetMessagePayload extracts the message of any transcript event.
func GetMessagePayload(e Event) (MessagePayload, bool) {
	switch e.Type {
	case EventTranscriptAppended, EventTranscriptUpdated, EventTranscriptRemoved:
	default:
		return MessagePayload{}, false
	}
	p, ok := ExtractPayload[TranscriptAppendedPayload](e)
	return p.MessagePayload, ok
}

func GetSessionStatePayload(e Event) (SessionStatePayload, bool) {
	return ExtractPayload[SessionStatePayload](e)
}

func GetInputPayload(e Event) (InputPayload, bool) {
	return ExtractPayload[InputPayload](e)
}

func GetRequestResolvedPayload(e Event) (RequestResolvedPayload, bool) {
	return ExtractPayload[RequestResolvedPayload](e)
}
