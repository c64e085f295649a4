// Package ws implements the renderer protocol of the gateway: JSON frames
// over one WebSocket. Requests are answered by a response frame with the
// same id; bus events are pushed as event frames.
package ws

import (
	"encoding/json"
	"errors"
)

// FrameType represents the type of WebSocket frame.
type FrameType string

const (
	FrameTypeRequest  FrameType = "req"
	FrameTypeResponse FrameType = "res"
	FrameTypeEvent    FrameType = "event"
)

// Method names a request.
type Method string

const (
	MethodActivateOrb   Method = "activate_orb"
	MethodSubmitText    Method = "submit_text"
	MethodSelectFile    Method = "select_file"
	MethodClearDocument Method = "clear_document"
	MethodSnapshot      Method = "snapshot"
	MethodSubscribe     Method = "subscribe"
)

// EventSnapshot is pushed to every client right after it connects.
const EventSnapshot = "session.snapshot"

// SubmitTextParams are the params of submit_text.
type SubmitTextParams struct {
	Text string `json:"text"`
}

// SelectFileParams are the params of select_file. Path must be readable by
// the shell process.
type SelectFileParams struct {
	Path string `json:"path"`
}

// SubscribeParams narrows the event frames a client receives. An empty
// list restores every event. The connect snapshot is always sent.
type SubscribeParams struct {
	Events []string `json:"events"`
}

// OutcomeResult answers the four input methods.
type OutcomeResult struct {
	Outcome string `json:"outcome"`
}

var errNoBody = errors.New("frame has no body")

// Frame is the protocol envelope. Which fields are set depends on Type.
type Frame struct {
	Type      FrameType       `json:"type"`
	ID        string          `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	OK        *bool           `json:"ok,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
	Event     string          `json:"event,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
}

// Decode unmarshals the params of a request, or the payload of a response
// or event, into v.
func (f Frame) Decode(v any) error {
	raw := f.Payload
	if f.Type == FrameTypeRequest {
		raw = f.Params
	}
	if len(raw) == 0 {
		return errNoBody
	}
	return json.Unmarshal(raw, v)
}

// Err returns the failure carried by a response frame, or nil.
func (f Frame) Err() error {
	if f.Type != FrameTypeResponse || (f.OK != nil && *f.OK) {
		return nil
	}
	if f.Error == "" {
		return errors.New("request failed")
	}
	return errors.New(f.Error)
}

// MarshalFrame serializes a Frame to JSON bytes.
func MarshalFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

// UnmarshalFrame deserializes JSON bytes into a Frame.
func UnmarshalFrame(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}

func encode(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// NewRequestFrame creates a request. params may be nil.
func NewRequestFrame(id string, method Method, params any) (Frame, error) {
	raw, err := encode(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeRequest, ID: id, Method: string(method), Params: raw}, nil
}

// NewEventFrame creates an event frame.
func NewEventFrame(event, sessionID string, payload any) (Frame, error) {
	raw, err := encode(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Event: event, SessionID: sessionID, Payload: raw}, nil
}

// NewResultFrame creates a successful response.
func NewResultFrame(id string, result any) (Frame, error) {
	raw, err := encode(result)
	if err != nil {
		return Frame{}, err
	}
	ok := true
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Payload: raw}, nil
}

// NewErrorFrame creates a failed response.
func NewErrorFrame(id, msg string) Frame {
	ok := false
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Error: msg}
}
